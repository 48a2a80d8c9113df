package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-chatroom/backend/internal/service/chat"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/events"
	roomStore "github.com/zhouzirui/z-chatroom/backend/internal/service/room"
	"github.com/zhouzirui/z-chatroom/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Subscriber streams a room's events.
type Subscriber interface {
	Subscribe(ctx context.Context, roomID string) (<-chan events.Event, error)
}

// Handler WebSocket聊天室处理器：推送房间事件并接收发送请求
type Handler struct {
	chatSvc  *chatservice.Service
	bus      Subscriber
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service, bus Subscriber) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		bus:     bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/rooms/{roomID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// outgoingMessage 连接级消息；房间事件按 events.Event 原样下发
type outgoingMessage struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"roomId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type sendResult struct {
	Reply *chat.Message `json:"reply,omitempty"`
	Error string        `json:"error,omitempty"`
}

// connection 串行化写操作，gorilla 不允许并发写
type connection struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger zerolog.Logger
}

func (c *connection) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *connection) send(msgType, roomID string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		RoomID:    roomID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.writeJSON(msg); err != nil {
		c.logger.Debug().Err(err).Str("type", msgType).Msg("websocket write failed")
	}
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	ctl, err := h.chatSvc.Open(r.Context(), roomID)
	if errors.Is(err, roomStore.ErrRoomNotFound) {
		utils.RespondError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("open room for websocket failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	conn := &connection{conn: ws, logger: log.With().Str("room_id", roomID).Logger()}
	conn.logger.Info().Msg("websocket connected")
	defer conn.logger.Info().Msg("websocket disconnected")

	// on return: cancel, wait for in-flight sends, then close the socket
	ctx, cancel := context.WithCancel(r.Context())
	var sends sync.WaitGroup
	defer sends.Wait()
	defer cancel()

	ch, err := h.bus.Subscribe(ctx, roomID)
	if err != nil {
		conn.logger.Error().Err(err).Msg("subscribe to room events failed")
		conn.send("rejected", roomID, map[string]string{"message": "event stream unavailable"})
		return
	}

	conn.send("connected", roomID, map[string]any{"available": h.chatSvc.Available()})
	for _, e := range events.Snapshot(ctl.RoomID(), ctl.Messages(), ctl.Loading(), ctl.Error(), time.Now()) {
		if err := conn.writeJSON(e); err != nil {
			return
		}
	}

	go h.forwardEvents(ctx, cancel, conn, ch)
	go h.pingLoop(ctx, conn)

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				conn.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "send":
			// 发送在后台完成，读循环保持响应；进行中的重复发送由控制器拒绝
			sends.Add(1)
			go func(content string) {
				defer sends.Done()
				h.handleSend(ctx, conn, roomID, content)
			}(msg.Content)
		default:
			conn.send("rejected", roomID, map[string]string{"message": "unsupported message type: " + msg.Type})
		}
	}
}

func (h *Handler) handleSend(ctx context.Context, conn *connection, roomID, content string) {
	outcome, err := h.chatSvc.SendMessage(ctx, roomID, content)
	if ctx.Err() != nil {
		// client gone; the outcome is persisted and published already
		return
	}
	if err != nil {
		conn.send("rejected", roomID, map[string]string{"message": err.Error()})
		return
	}
	conn.send("result", roomID, sendResult{Reply: outcome.Reply, Error: outcome.ErrorMessage})
}

// forwardEvents ends the connection when it stops, so a dropped or broken
// event stream never leaves the read loop running.
func (h *Handler) forwardEvents(ctx context.Context, cancel context.CancelFunc, conn *connection, ch <-chan events.Event) {
	defer func() {
		cancel()
		_ = conn.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.writeJSON(e); err != nil {
				conn.logger.Debug().Err(err).Msg("forward room event failed")
				return
			}
		}
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
