package completion

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
)

// ChatModelClient adapts an eino chat model (Ark in production) to Client.
// Provider SDK errors carry no portable status code, so failures are
// classified from the transport error alone.
type ChatModelClient struct {
	model model.BaseChatModel
}

// NewChatModelClient wraps m.
func NewChatModelClient(m model.BaseChatModel) *ChatModelClient {
	return &ChatModelClient{model: m}
}

func (c *ChatModelClient) Send(ctx context.Context, req Request) (*Response, error) {
	var opts []model.Option
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}

	out, err := c.model.Generate(ctx, toSchemaMessages(req.Messages), opts...)
	if err != nil {
		return nil, Classify(fmt.Errorf("generate: %w", err))
	}
	if out == nil {
		return &Response{}, nil
	}

	return &Response{Choices: []Choice{{
		Message: chat.AssistantMessage(out.Content),
	}}}, nil
}

func toSchemaMessages(messages []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			out = append(out, schema.SystemMessage(msg.Content))
		case chat.RoleUser:
			out = append(out, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return out
}
