// Package completion is the boundary to the remote chat completion endpoint.
// Every call is a single attempt carrying the full message history; failures
// are reported as *Error so callers can tell the causes apart.
package completion

import (
	"context"

	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
)

// Request is the outbound payload. Only role and content of each message
// reach the wire.
type Request struct {
	Model    string
	Messages []chat.Message
}

// Choice is one candidate reply.
type Choice struct {
	Message chat.Message
}

// Response holds the candidates returned by the endpoint. It may be empty.
type Response struct {
	Choices []Choice
}

// Client sends one completion request.
type Client interface {
	Send(ctx context.Context, req Request) (*Response, error)
}
