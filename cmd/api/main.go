package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chatroom/backend/internal/config"
	"github.com/zhouzirui/z-chatroom/backend/internal/handler"
	"github.com/zhouzirui/z-chatroom/backend/internal/logging"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/chat"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/completion"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/events"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/room"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	backend, err := cfg.Store.OpenBackend(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open room storage")
	}
	defer backend.Close()

	store := room.Open(ctx, backend, cfg.Store.Key)
	log.Info().Str("driver", cfg.Store.Driver).Int("rooms", len(store.List(ctx))).Msg("room store loaded")

	// Initialize completion client; without one rooms stay browsable but sends fail
	var client completion.Client
	if cfg.AI.Enabled() {
		client, err = completion.New(ctx, cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize completion client, continuing without AI functionality")
			client = nil
		} else {
			log.Info().Str("provider", cfg.AI.Provider).Str("model", requestModel(cfg.AI)).Msg("completion client initialized")
		}
	} else {
		log.Warn().Str("provider", cfg.AI.Provider).Msg("completion credentials not configured, sending is disabled")
	}

	bus := events.NewBus()
	defer bus.Close()

	chatService := chat.NewService(store, client, chat.Options{
		Model:        requestModel(cfg.AI),
		SystemPrompt: cfg.AI.SystemPrompt,
	}, bus)

	router := handler.NewRouter(chatService, bus)

	startServer(ctx, cfg.Server, router)
}

// requestModel returns the model identifier sent with each request.
func requestModel(cfg config.AIConfig) string {
	if cfg.Provider == config.ProviderArk {
		return cfg.ArkModel
	}
	return cfg.Model
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Z Chatroom backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
