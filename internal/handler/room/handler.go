package room

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-chatroom/backend/internal/service/chat"
	roomStore "github.com/zhouzirui/z-chatroom/backend/internal/service/room"
	"github.com/zhouzirui/z-chatroom/backend/pkg/utils"
)

// Handler 聊天室的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天室处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天室相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/rooms", h.handleListRooms)
	r.Post("/rooms", h.handleCreateRoom)
	r.Get("/rooms/{roomID}", h.handleGetRoom)
	r.Delete("/rooms/{roomID}", h.handleDeleteRoom)
	r.Post("/rooms/{roomID}/messages", h.handleSendMessage)
}

// roomView 聊天室及其实时状态
type roomView struct {
	chat.Room
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

type sendResponse struct {
	Messages []chat.Message `json:"messages"`
	Reply    *chat.Message  `json:"reply,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// handleListRooms 按创建顺序列出聊天室
func (h *Handler) handleListRooms(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.ListRooms(r.Context()))
}

// handleCreateRoom 创建空聊天室
func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.chatSvc.CreateRoom(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("create room failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, room)
}

// handleGetRoom 返回聊天室的实时消息列表
func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	ctl, err := h.chatSvc.Open(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, roomView{
		Room:    ctl.Room(),
		Loading: ctl.Loading(),
		Error:   ctl.Error(),
	})
}

// handleDeleteRoom 删除聊天室，不存在时同样返回成功
func (h *Handler) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteRoom(r.Context(), chi.URLParam(r, "roomID")); err != nil {
		log.Error().Err(err).Msg("delete room failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete room")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage 发送消息并等待AI回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.chatSvc.SendMessage(r.Context(), chi.URLParam(r, "roomID"), payload.Content)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sendResponse{
		Messages: outcome.Messages,
		Reply:    outcome.Reply,
		Error:    outcome.ErrorMessage,
	})
}

// respondServiceError 将服务层错误映射为HTTP状态码
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, roomStore.ErrRoomNotFound), errors.Is(err, chatService.ErrRoomClosed):
		utils.RespondError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, chatService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrSendInFlight):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chatService.ErrCompletionUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("room request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
