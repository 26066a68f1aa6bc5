package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/travel-assistant/backend/internal/middleware"
	"github.com/zhouzirui/travel-assistant/backend/internal/model/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/assistant"
	chatService "github.com/zhouzirui/travel-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
	"github.com/zhouzirui/travel-assistant/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	assistant *assistant.Service
	chatSvc   *chatService.Service
}

// New 创建聊天处理器
func New(assistantSvc *assistant.Service, chatSvc *chatService.Service) *Handler {
	return &Handler{assistant: assistantSvc, chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleDeleteSession)
		r.Get("/prompts", h.handleListPrompts)
		r.Post("/prompts", h.handleSubmit)
		r.Post("/prompts/{promptID}/messages/{messageID}/stop", h.handleStop)
	})
}

type submitResponse struct {
	Prompt  chat.Prompt  `json:"prompt"`
	Message chat.Message `json:"message"`
}

// handleCreateSession 创建会话，profileId 为空时使用默认智能体
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProfileID string `json:"profileId"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.assistant.StartSession(r.Context(), middleware.ClientID(r.Context()), payload.ProfileID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.assistant.EndSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListPrompts 返回会话记录
func (h *Handler) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	exchanges, err := h.chatSvc.LoadTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, exchanges)
}

// handleSubmit 提交问题；回复通过 SSE 或 WebSocket 推送
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload assistant.SubmitInput
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prompt, msg, err := h.assistant.Submit(r.Context(), chi.URLParam(r, "sessionID"), payload)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, submitResponse{Prompt: prompt, Message: msg})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	promptID := chi.URLParam(r, "promptID")
	messageID := chi.URLParam(r, "messageID")

	if err := h.assistant.Stop(r.Context(), sessionID, promptID, messageID); err != nil {
		respondServiceError(w, err)
		return
	}

	conv, err := h.chatSvc.Conversation(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	msg, _ := conv.Get(promptID, messageID)
	utils.RespondJSON(w, http.StatusAccepted, msg)
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	var te *stream.TransportError
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound),
		errors.Is(err, chatService.ErrPromptNotFound),
		errors.Is(err, assistant.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrBusy), errors.Is(err, chatService.ErrStreamInFlight):
		return http.StatusConflict
	case errors.Is(err, assistant.ErrEmptyInput),
		errors.Is(err, assistant.ErrUploadDisabled),
		errors.Is(err, assistant.ErrProfileNotFound),
		errors.Is(err, chatService.ErrProfileRequired):
		return http.StatusBadRequest
	case errors.As(err, &te):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	utils.RespondError(w, StatusFor(err), err.Error())
}
