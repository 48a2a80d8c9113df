package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/completion"
)

// RoomStore is the persistence the service needs.
type RoomStore interface {
	RoomWriter
	List(ctx context.Context) []chat.Room
	Get(ctx context.Context, id string) (chat.Room, error)
	Add(ctx context.Context, room chat.Room) error
	Remove(ctx context.Context, id string) error
}

// Options configures every controller the service opens.
type Options struct {
	Model        string
	SystemPrompt string
	Now          func() time.Time
}

// Service manages rooms and keeps exactly one controller per open room.
type Service struct {
	mu          sync.Mutex
	store       RoomStore
	client      completion.Client
	opts        Options
	observers   []Observer
	controllers map[string]*Controller
}

// NewService wires the store and completion client. client may be nil, in
// which case rooms can be browsed but sends fail with
// ErrCompletionUnavailable. observers are attached to every controller.
func NewService(store RoomStore, client completion.Client, opts Options, observers ...Observer) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:       store,
		client:      client,
		opts:        opts,
		observers:   observers,
		controllers: make(map[string]*Controller),
	}
}

// Available reports whether a completion client is configured.
func (s *Service) Available() bool {
	return s.client != nil
}

// CreateRoom adds an empty, untitled room.
func (s *Service) CreateRoom(ctx context.Context) (chat.Room, error) {
	room := chat.NewRoom(s.opts.Now())
	if err := s.store.Add(ctx, room); err != nil {
		return chat.Room{}, fmt.Errorf("create room: %w", err)
	}
	log.Info().Str("room_id", room.ID).Msg("room created")
	return room, nil
}

// ListRooms returns every room in creation order.
func (s *Service) ListRooms(ctx context.Context) []chat.Room {
	return s.store.List(ctx)
}

// GetRoom returns the persisted copy of a room.
func (s *Service) GetRoom(ctx context.Context, roomID string) (chat.Room, error) {
	return s.store.Get(ctx, roomID)
}

// Open returns the controller for roomID, creating it on first use.
func (s *Service) Open(ctx context.Context, roomID string) (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctl, ok := s.controllers[roomID]; ok {
		return ctl, nil
	}

	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}

	ctl := NewController(room, s.store, s.client, ControllerOptions{
		Model:        s.opts.Model,
		SystemPrompt: s.opts.SystemPrompt,
		Now:          s.opts.Now,
	})
	for _, obs := range s.observers {
		ctl.Subscribe(obs)
	}
	s.controllers[roomID] = ctl
	return ctl, nil
}

// SendMessage opens the room and sends text through its controller.
func (s *Service) SendMessage(ctx context.Context, roomID, text string) (Outcome, error) {
	ctl, err := s.Open(ctx, roomID)
	if err != nil {
		return Outcome{}, err
	}
	return ctl.SendMessage(ctx, text)
}

// DeleteRoom closes the room's controller and removes it from the store.
// Deleting an unknown room is a no-op. The registry stays locked until the
// store no longer has the room, so a concurrent Open cannot reopen it.
func (s *Service) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctl, ok := s.controllers[roomID]; ok {
		ctl.Close()
		delete(s.controllers, roomID)
	}

	if err := s.store.Remove(ctx, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	log.Info().Str("room_id", roomID).Msg("room deleted")
	return nil
}
