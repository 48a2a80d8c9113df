package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Status tracks delivery of a user-originated message. The zero value means
// the message carries no status (system and assistant messages).
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is a single role-tagged turn of a room transcript.
//
// Role and Content are fixed at construction. Timestamp and Status are the
// only fields the conversation controller mutates.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Status    Status     `json:"status,omitempty"`
}

// SystemMessage builds a prompt message. It has neither timestamp nor status.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a pending user message stamped with the creation time.
func UserMessage(content string, at time.Time) Message {
	ts := at.UTC()
	return Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: &ts,
		Status:    StatusSending,
	}
}

// AssistantMessage builds a reply without a timestamp; the controller stamps
// it when the completion arrives.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Stamped returns a copy of m with the timestamp set to at.
func (m Message) Stamped(at time.Time) Message {
	ts := at.UTC()
	m.Timestamp = &ts
	return m
}

// CloneMessages deep copies a message slice, including timestamps. A nil
// input yields an empty, non-nil slice.
func CloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, msg := range messages {
		if msg.Timestamp != nil {
			ts := *msg.Timestamp
			msg.Timestamp = &ts
		}
		out[i] = msg
	}
	return out
}

// LastUserIndex returns the index of the most recent user message, or -1.
func LastUserIndex(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
