package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/travel-assistant/backend/internal/model/chat"
)

var (
	ErrProfileRequired = errors.New("profile id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrPromptNotFound  = errors.New("prompt not found")
	ErrStreamInFlight  = errors.New("a message of this prompt is still streaming")
)

// Service encapsulates conversation state management.
type Service struct {
	mu            sync.RWMutex
	sessions      map[string]chat.Session
	conversations map[string]*Conversation
}

// NewService bootstraps the in-memory chat service.
func NewService() *Service {
	return &Service{
		sessions:      make(map[string]chat.Session),
		conversations: make(map[string]*Conversation),
	}
}

// CreateSession provisions an anonymous session for a browser client bound to a profile.
func (s *Service) CreateSession(_ context.Context, clientID, profileID, transport string) (chat.Session, error) {
	if profileID == "" {
		return chat.Session{}, ErrProfileRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		ProfileID: profileID,
		Transport: transport,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.conversations[session.ID] = newConversation()
	s.mu.Unlock()

	return session, nil
}

// BindUpstream records the session id issued by the upstream agent server.
func (s *Service) BindUpstream(_ context.Context, sessionID, upstreamID string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	session.UpstreamSessionID = upstreamID
	s.sessions[sessionID] = session
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Conversation returns the live conversation of a session.
func (s *Service) Conversation(_ context.Context, sessionID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return conv, nil
}

// LoadTranscript returns a snapshot of the session's prompts and messages.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Exchange, error) {
	conv, err := s.Conversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return conv.Exchanges(), nil
}

// DeleteSession drops a session and its conversation.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.conversations, sessionID)
	return nil
}
