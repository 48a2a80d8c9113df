package chat

import (
	"time"

	"github.com/google/uuid"
)

// Room is a persisted conversation thread. ID is the sole lookup key and
// never changes; an empty Title means the room is untitled.
type Room struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// NewRoom creates an empty, untitled room.
func NewRoom(now time.Time) Room {
	return Room{
		ID:        uuid.NewString(),
		CreatedAt: now.UTC(),
		Messages:  []Message{},
	}
}

// Untitled reports whether the room has not claimed a title yet.
func (r Room) Untitled() bool {
	return r.Title == ""
}

// Clone returns a copy that shares no mutable state with r.
func (r Room) Clone() Room {
	r.Messages = CloneMessages(r.Messages)
	return r
}
