package events

import (
	"time"

	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
)

// Type names a room event.
type Type string

const (
	TypeMessages Type = "messages"
	TypeLoading  Type = "loading"
	TypeError    Type = "error"
)

// Event is one room state change as delivered to stream clients.
type Event struct {
	Type      Type           `json:"type"`
	RoomID    string         `json:"roomId"`
	Messages  []chat.Message `json:"messages,omitempty"`
	Loading   *bool          `json:"loading,omitempty"`
	Error     *string        `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Topic returns the pub/sub topic carrying a room's events.
func Topic(roomID string) string {
	return "room." + roomID
}

// Snapshot renders a room's current state as the events a new subscriber
// would have received.
func Snapshot(roomID string, messages []chat.Message, loading bool, errMsg string, at time.Time) []Event {
	if messages == nil {
		messages = []chat.Message{}
	}
	at = at.UTC()
	return []Event{
		{Type: TypeMessages, RoomID: roomID, Messages: messages, Timestamp: at},
		{Type: TypeLoading, RoomID: roomID, Loading: &loading, Timestamp: at},
		{Type: TypeError, RoomID: roomID, Error: &errMsg, Timestamp: at},
	}
}
