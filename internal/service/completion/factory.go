package completion

import (
	"context"
	"fmt"

	"github.com/zhouzirui/z-chatroom/backend/internal/config"
)

// New builds the instrumented client for the configured provider.
func New(ctx context.Context, cfg config.AIConfig) (Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%s completion provider is not configured", cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return Instrument(NewChatModelClient(chatModel), cfg.Provider), nil
	case config.ProviderOpenAI:
		return Instrument(NewOpenAIClient(OpenAIOptions{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			RequestTimeout:  cfg.RequestTimeout,
			ResourceTimeout: cfg.ResourceTimeout,
		}), cfg.Provider), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
