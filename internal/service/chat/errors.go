package chat

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/z-chatroom/backend/internal/service/completion"
)

var (
	ErrSendInFlight          = errors.New("a message is already being sent in this room")
	ErrEmptyMessage          = errors.New("message content is required")
	ErrRoomClosed            = errors.New("room session is closed")
	ErrCompletionUnavailable = errors.New("completion service unavailable")
	// ErrNoResponse marks a successful call whose response had no choice.
	ErrNoResponse = errors.New("AI produced no response")
)

// User-facing texts for failed sends.
const (
	MsgInvalidCredential  = "Invalid API key. Please check your credentials."
	MsgRetryLater         = "Too many requests. Please retry later."
	MsgServiceUnavailable = "The AI service is unavailable right now. Please try again later."
	MsgParseFailed        = "Could not parse the AI response."
	MsgOffline            = "You appear to be offline. Check your network connection."
	MsgTimedOut           = "The request timed out. Please try again."
	MsgNoResponse         = "AI produced no response"
	MsgUnknown            = "Something went wrong while sending the message."
)

// describeError maps a send failure to the text shown to the user.
func describeError(err error) string {
	if errors.Is(err, ErrNoResponse) {
		return MsgNoResponse
	}

	cerr := completion.Classify(err)
	switch cerr.Kind {
	case completion.KindUnauthorized:
		return MsgInvalidCredential
	case completion.KindRateLimited:
		return MsgRetryLater
	case completion.KindServerError:
		return MsgServiceUnavailable
	case completion.KindHTTPStatus:
		return fmt.Sprintf("Request failed with status %d.", cerr.StatusCode)
	case completion.KindDecode:
		return MsgParseFailed
	case completion.KindConnectivity:
		return MsgOffline
	case completion.KindTimeout:
		return MsgTimedOut
	default:
		return MsgUnknown
	}
}
