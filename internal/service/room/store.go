package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chatroom/backend/internal/metrics"
	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
	"github.com/zhouzirui/z-chatroom/backend/internal/storage"
)

var (
	ErrDuplicateID  = errors.New("room id already exists")
	ErrRoomNotFound = errors.New("room not found")
)

// Store is the durable, ordered collection of rooms. The whole collection is
// encoded into one blob and rewritten on every mutation; writes are
// serialized so interleaved callers cannot lose each other's updates.
//
// A mutation is applied in memory only after the blob write succeeded, so a
// failed write leaves both copies unchanged.
type Store struct {
	mu      sync.RWMutex
	backend storage.Backend
	key     string
	rooms   []chat.Room
}

// NewStore returns an empty store bound to the blob named key. Call Load to
// read the persisted collection.
func NewStore(backend storage.Backend, key string) *Store {
	return &Store{
		backend: backend,
		key:     key,
		rooms:   []chat.Room{},
	}
}

// Open creates a store and loads it.
func Open(ctx context.Context, backend storage.Backend, key string) *Store {
	s := NewStore(backend, key)
	s.Load(ctx)
	return s
}

// Load replaces the in-memory collection with the persisted one. A missing,
// unreadable or corrupt blob degrades to an empty collection.
func (s *Store) Load(ctx context.Context) {
	rooms := s.read(ctx)

	s.mu.Lock()
	s.rooms = rooms
	s.mu.Unlock()

	metrics.RoomsStored.Set(float64(len(rooms)))
}

func (s *Store) read(ctx context.Context) []chat.Room {
	data, err := s.backend.Read(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		log.Debug().Str("key", s.key).Msg("no persisted rooms, starting empty")
		return []chat.Room{}
	}
	if err != nil {
		log.Error().Err(err).Str("key", s.key).Msg("room store unreadable, starting empty")
		return []chat.Room{}
	}

	var decoded []chat.Room
	if err := json.Unmarshal(data, &decoded); err != nil {
		log.Error().Err(err).Str("key", s.key).Int("bytes", len(data)).Msg("room store corrupt, starting empty")
		return []chat.Room{}
	}

	rooms := make([]chat.Room, 0, len(decoded))
	for _, r := range decoded {
		rooms = append(rooms, r.Clone())
	}
	log.Debug().Str("key", s.key).Int("rooms", len(rooms)).Msg("room store loaded")
	return rooms
}

// List returns the rooms in insertion order.
func (s *Store) List(_ context.Context) []chat.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Room, len(s.rooms))
	for i, r := range s.rooms {
		out[i] = r.Clone()
	}
	return out
}

// Get looks up a room by id.
func (s *Store) Get(_ context.Context, id string) (chat.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.rooms[i].Clone(), nil
	}
	return chat.Room{}, ErrRoomNotFound
}

// Add appends a room.
func (s *Store) Add(ctx context.Context, r chat.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(r.ID) >= 0 {
		return fmt.Errorf("add room %s: %w", r.ID, ErrDuplicateID)
	}

	next := s.copyLocked()
	next = append(next, r.Clone())
	return s.persistLocked(ctx, "add", next)
}

// Update replaces the room with the same id in place. An unknown id is
// ignored; the miss is logged and counted.
func (s *Store) Update(ctx context.Context, r chat.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(r.ID)
	if i < 0 {
		metrics.StoreUpdateMisses.Inc()
		log.Warn().Str("room_id", r.ID).Msg("update ignored: room not in store")
		return nil
	}

	next := s.copyLocked()
	next[i] = r.Clone()
	return s.persistLocked(ctx, "update", next)
}

// Remove deletes the room with the given id. An unknown id is a no-op and
// does not touch the blob.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		log.Debug().Str("room_id", id).Msg("remove ignored: room not in store")
		return nil
	}

	next := make([]chat.Room, 0, len(s.rooms)-1)
	next = append(next, s.rooms[:i]...)
	next = append(next, s.rooms[i+1:]...)
	return s.persistLocked(ctx, "remove", next)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.rooms {
		if s.rooms[i].ID == id {
			return i
		}
	}
	return -1
}

// copyLocked returns a new slice header; room values are shared until a
// slot is replaced, which is safe because stored rooms are never mutated.
func (s *Store) copyLocked() []chat.Room {
	return append(make([]chat.Room, 0, len(s.rooms)+1), s.rooms...)
}

func (s *Store) persistLocked(ctx context.Context, op string, next []chat.Room) error {
	data, err := json.Marshal(next)
	if err != nil {
		metrics.StoreWrites.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("encode rooms: %w", err)
	}

	start := time.Now()
	err = s.backend.Write(ctx, s.key, data)
	metrics.StoreWriteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreWrites.WithLabelValues(op, "error").Inc()
		log.Error().Err(err).Str("op", op).Str("key", s.key).Msg("room store write failed")
		return fmt.Errorf("persist rooms: %w", err)
	}

	metrics.StoreWrites.WithLabelValues(op, "ok").Inc()
	metrics.RoomsStored.Set(float64(len(next)))
	s.rooms = next
	return nil
}
