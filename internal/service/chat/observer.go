package chat

import "github.com/zhouzirui/z-chatroom/backend/internal/model/chat"

// Observer receives a room's state changes. Calls for one room arrive in
// order and never concurrently; messages is a copy the observer may keep.
// Observers must not block for long and must not call back into the
// controller synchronously.
type Observer interface {
	MessagesChanged(roomID string, messages []chat.Message)
	LoadingChanged(roomID string, loading bool)
	// ErrorChanged reports the user-facing error; "" means cleared.
	ErrorChanged(roomID string, message string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnMessages func(roomID string, messages []chat.Message)
	OnLoading  func(roomID string, loading bool)
	OnError    func(roomID string, message string)
}

func (f ObserverFuncs) MessagesChanged(roomID string, messages []chat.Message) {
	if f.OnMessages != nil {
		f.OnMessages(roomID, messages)
	}
}

func (f ObserverFuncs) LoadingChanged(roomID string, loading bool) {
	if f.OnLoading != nil {
		f.OnLoading(roomID, loading)
	}
}

func (f ObserverFuncs) ErrorChanged(roomID string, message string) {
	if f.OnError != nil {
		f.OnError(roomID, message)
	}
}
