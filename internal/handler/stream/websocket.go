package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	chatHandler "github.com/zhouzirui/travel-assistant/backend/internal/handler/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/assistant"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/events"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// inbound message types
const (
	inboundSubmit = "submit"
	inboundStop   = "stop"
	inboundPing   = "ping"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

type stopMessage struct {
	PromptID  string `json:"promptId"`
	MessageID string `json:"messageId"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleWebSocket relays updates like handleEvents and additionally accepts submit and stop
// commands on the same connection.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), chatHandler.StatusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := h.logger.With().Str("session_id", sessionID).Logger()
	logger.Info().Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := h.hub.Subscribe(sessionID)
	defer unsubscribe()

	// gorilla connections allow one writer; everything outgoing goes through this channel
	out := make(chan outgoingMessage, 16)
	go h.writeLoop(ctx, cancel, conn, sessionID, updates, out, logger)

	send := func(typ string, data any) {
		select {
		case out <- outgoingMessage{Type: typ, SessionID: sessionID, Data: data}:
		case <-ctx.Done():
		}
	}
	send("connected", map[string]any{"profile": session.ProfileID, "transport": session.Transport})

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			send("error", map[string]string{"error": "session mismatch"})
			continue
		}
		h.handleMessage(ctx, sessionID, msg, send)
	}
}

func (h *Handler) handleMessage(ctx context.Context, sessionID string, msg inboundMessage, send func(string, any)) {
	switch msg.Type {
	case inboundSubmit:
		var in assistant.SubmitInput
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			send("error", map[string]string{"error": "invalid submit payload"})
			return
		}
		prompt, m, err := h.assistant.Submit(ctx, sessionID, in)
		if err != nil {
			send("error", map[string]any{"error": err.Error(), "status": chatHandler.StatusFor(err)})
			return
		}
		send("submitted", map[string]any{"prompt": prompt, "message": m})
	case inboundStop:
		var in stopMessage
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			send("error", map[string]string{"error": "invalid stop payload"})
			return
		}
		if err := h.assistant.Stop(ctx, sessionID, in.PromptID, in.MessageID); err != nil {
			send("error", map[string]any{"error": err.Error(), "status": chatHandler.StatusFor(err)})
		}
	case inboundPing:
		send("pong", nil)
	default:
		send("error", map[string]string{"error": "unknown message type " + msg.Type})
	}
}

func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sessionID string, updates <-chan events.Update, out <-chan outgoingMessage, logger zerolog.Logger) {
	defer cancel()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	write := func(msg outgoingMessage) bool {
		msg.Timestamp = time.Now().Unix()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug().Err(err).Msg("websocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-out:
			if !write(msg) {
				return
			}
		case u, ok := <-updates:
			if !ok {
				write(outgoingMessage{Type: resyncEvent, SessionID: sessionID})
				return
			}
			if !write(outgoingMessage{Type: "update", SessionID: sessionID, Data: u}) {
				return
			}
		}
	}
}
