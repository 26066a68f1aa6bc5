// Package events fans out per-session updates to the SSE and WebSocket relays.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-assistant/backend/internal/metrics"
)

// Type identifies an update.
type Type string

const (
	TypeOpen     Type = "open"
	TypeChunk    Type = "chunk"
	TypeComplete Type = "complete"
	TypeRender   Type = "render"
	TypeError    Type = "error"
	TypeStopped  Type = "stopped"
	TypeClosed   Type = "closed"
)

// Update is one client-facing change of a session's conversation.
type Update struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"sessionId"`
	PromptID  string    `json:"promptId,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Content   string    `json:"content,omitempty"`
	Status    string    `json:"status,omitempty"`
	Target    string    `json:"target,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Terminal reports whether t settles a message; render updates may still follow a complete.
func (t Type) Terminal() bool {
	switch t {
	case TypeComplete, TypeError, TypeStopped, TypeClosed:
		return true
	}
	return false
}

const defaultBuffer = 64

type subscriber struct {
	ch   chan Update
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub delivers updates to subscribers of a session. Publish never blocks. A subscriber whose
// buffer is full misses open, chunk and render updates; when a terminal update does not fit it is
// evicted instead, and its channel is closed so the reader can resync from the transcript.
type Hub struct {
	logger zerolog.Logger
	buffer int

	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]*subscriber
	closed bool
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger,
		buffer: defaultBuffer,
		subs:   make(map[string]map[uint64]*subscriber),
	}
}

// Subscribe registers a subscriber for sessionID. The returned cancel func unregisters it and
// closes the channel; it is safe to call more than once. After Close the channel is already closed.
func (h *Hub) Subscribe(sessionID string) (<-chan Update, func()) {
	sub := &subscriber{ch: make(chan Update, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	h.nextID++
	id := h.nextID
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[uint64]*subscriber)
	}
	h.subs[sessionID][id] = sub
	h.mu.Unlock()

	return sub.ch, func() {
		h.mu.Lock()
		h.remove(sessionID, id)
		h.mu.Unlock()
		sub.close()
	}
}

// Publish stamps and delivers u to every subscriber of u.SessionID.
func (h *Hub) Publish(u Update) {
	if u.Time.IsZero() {
		u.Time = time.Now().UTC()
	}

	var slow []uint64
	h.mu.RLock()
	for id, sub := range h.subs[u.SessionID] {
		select {
		case sub.ch <- u:
			continue
		default:
		}
		metrics.UpdatesDropped.Inc()
		if u.Type.Terminal() {
			slow = append(slow, id)
			continue
		}
		h.logger.Warn().Str("session_id", u.SessionID).Str("type", string(u.Type)).Msg("subscriber too slow, update dropped")
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range slow {
		if sub := h.remove(u.SessionID, id); sub != nil {
			sub.close()
			h.logger.Warn().Str("session_id", u.SessionID).Str("type", string(u.Type)).Msg("subscriber too slow, evicted")
		}
	}
}

// Close closes every subscriber channel and rejects new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sessionID, subs := range h.subs {
		for _, sub := range subs {
			sub.close()
		}
		delete(h.subs, sessionID)
	}
}

// remove unregisters a subscriber; h.mu must be held for writing.
func (h *Hub) remove(sessionID string, id uint64) *subscriber {
	sub, ok := h.subs[sessionID][id]
	if !ok {
		return nil
	}
	delete(h.subs[sessionID], id)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
	return sub
}

// Subscribers returns the number of subscribers of a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
