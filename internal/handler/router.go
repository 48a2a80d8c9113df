package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chatroom/backend/internal/handler/room"
	"github.com/zhouzirui/z-chatroom/backend/internal/handler/stream"
	"github.com/zhouzirui/z-chatroom/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/z-chatroom/backend/internal/middleware"
	chatService "github.com/zhouzirui/z-chatroom/backend/internal/service/chat"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/events"
	"github.com/zhouzirui/z-chatroom/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, bus *events.Bus) http.Handler {
	r := chi.NewRouter()

	r.Use(middlewarePkg.Metrics)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(log.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	roomHandler := room.New(chatSvc)
	streamHandler := stream.New(chatSvc, bus)
	wsHandler := ws.New(chatSvc, bus)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"completion": chatSvc.Available(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		roomHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
