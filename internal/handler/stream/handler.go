package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	chatHandler "github.com/zhouzirui/travel-assistant/backend/internal/handler/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/assistant"
	chatService "github.com/zhouzirui/travel-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/events"
	"github.com/zhouzirui/travel-assistant/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Handler relays session updates to browsers over Server-Sent Events and WebSocket.
type Handler struct {
	assistant *assistant.Service
	chatSvc   *chatService.Service
	hub       *events.Hub
	logger    zerolog.Logger
	upgrader  websocket.Upgrader

	// heartbeat is the SSE comment interval and the WebSocket ping interval.
	heartbeat time.Duration
}

// New creates a new stream handler
func New(assistantSvc *assistant.Service, chatSvc *chatService.Service, hub *events.Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		assistant: assistantSvc,
		chatSvc:   chatSvc,
		hub:       hub,
		logger:    logger,
		heartbeat: defaultHeartbeat,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册推送相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/{sessionID}/events", h.handleEvents)
	r.Get("/session/{sessionID}/ws", h.handleWebSocket)
	r.Get("/stream/{sessionID}", h.handleAsk)
}

// handleEvents relays every update of the session until the client goes away.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, chatHandler.StatusFor(err), err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel := h.hub.Subscribe(sessionID)
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEComment(w, flusher, "connected"); err != nil {
		return
	}

	logger := h.logger.With().Str("session_id", sessionID).Logger()
	logger.Debug().Msg("sse relay opened")
	err := h.relay(r.Context(), w, flusher, updates, func(events.Update) bool { return false })
	logger.Debug().Err(err).Msg("sse relay closed")
}

// handleAsk submits ?message= and streams that reply, ending once its stream closed.
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	text := r.URL.Query().Get("message")
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// subscribe first so the open update is not missed
	updates, cancel := h.hub.Subscribe(sessionID)
	defer cancel()

	prompt, msg, err := h.assistant.Submit(r.Context(), sessionID, assistant.SubmitInput{
		Text: text,
		Mode: r.URL.Query().Get("mode"),
	})
	if err != nil {
		utils.RespondError(w, chatHandler.StatusFor(err), err.Error())
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "submitted", map[string]any{"prompt": prompt, "message": msg}); err != nil {
		return
	}

	err = h.relay(r.Context(), w, flusher, updates, func(u events.Update) bool {
		return u.Type == events.TypeClosed && u.MessageID == msg.ID
	})
	if err != nil && r.Context().Err() != nil {
		// client went away; the reply keeps streaming into the transcript
		h.logger.Debug().Str("session_id", sessionID).Msg("ask stream detached")
	}
}

// resyncEvent tells a client its update feed ended early and the transcript must be reloaded.
const resyncEvent = "resync"

// relay writes updates as SSE data lines with heartbeat comments in between. It returns nil
// once last reports true for a written update, or after a resync event when the hub closed the
// subscription.
func (h *Handler) relay(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, updates <-chan events.Update, last func(events.Update) bool) error {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return err
			}
		case u, ok := <-updates:
			if !ok {
				// the hub dropped this subscriber; the client reloads the transcript
				return utils.SendSSEEvent(w, flusher, resyncEvent, map[string]string{"reason": "unsubscribed"})
			}
			if err := utils.SendSSEChunk(w, flusher, u); err != nil {
				return err
			}
			if last(u) {
				return nil
			}
		}
	}
}
