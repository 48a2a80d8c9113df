package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	chatService "github.com/zhouzirui/z-chatroom/backend/internal/service/chat"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/events"
	roomStore "github.com/zhouzirui/z-chatroom/backend/internal/service/room"
	"github.com/zhouzirui/z-chatroom/backend/pkg/utils"
)

const (
	defaultHeartbeat = 15 * time.Second
	writeTimeout     = 10 * time.Second
)

// Subscriber streams a room's events.
type Subscriber interface {
	Subscribe(ctx context.Context, roomID string) (<-chan events.Event, error)
}

// Handler pushes room state changes to browsers via Server-Sent Events
type Handler struct {
	chatSvc   *chatService.Service
	bus       Subscriber
	heartbeat time.Duration
	now       func() time.Time
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, bus Subscriber) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		bus:       bus,
		heartbeat: defaultHeartbeat,
		now:       time.Now,
	}
}

// RegisterRoutes registers the event stream route
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/rooms/{roomID}/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctl, err := h.chatSvc.Open(r.Context(), roomID)
	if errors.Is(err, roomStore.ErrRoomNotFound) {
		utils.RespondError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("open room for stream failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ctx := r.Context()
	// subscribe before the snapshot so no change falls in between
	ch, err := h.bus.Subscribe(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("subscribe to room events failed")
		utils.RespondError(w, http.StatusInternalServerError, "streaming unavailable")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	// a stalled client fails the write instead of blocking forever
	rc := http.NewResponseController(w)
	extendDeadline := func() {
		_ = rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	}

	logger := log.With().Str("room_id", roomID).Logger()
	logger.Debug().Msg("event stream opened")
	defer logger.Debug().Msg("event stream closed")

	for _, e := range events.Snapshot(ctl.RoomID(), ctl.Messages(), ctl.Loading(), ctl.Error(), h.now()) {
		extendDeadline()
		if err := utils.SendSSEEvent(w, flusher, string(e.Type), e); err != nil {
			return
		}
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			extendDeadline()
			if err := utils.SendSSEEvent(w, flusher, string(e.Type), e); err != nil {
				logger.Debug().Err(err).Msg("event stream write failed")
				return
			}
		case <-ticker.C:
			extendDeadline()
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
