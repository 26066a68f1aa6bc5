// Package assistant drives one conversation end to end: it opens upstream streams for submitted
// prompts, keeps the transcript in the chat store, decodes directives out of finished replies and
// publishes every change to the update hub.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-assistant/backend/internal/analysis/directive"
	"github.com/zhouzirui/travel-assistant/backend/internal/metrics"
	"github.com/zhouzirui/travel-assistant/backend/internal/model/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/model/profile"
	chatsvc "github.com/zhouzirui/travel-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/events"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/render"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/settings"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
)

var (
	ErrBusy            = errors.New("a reply is still streaming")
	ErrEmptyInput      = errors.New("text or attachment is required")
	ErrUploadDisabled  = errors.New("file upload is disabled")
	ErrProfileNotFound = errors.New("profile not found")
	ErrMessageNotFound = errors.New("message not found")
)

// TransportFactory builds the upstream transport of a new session from the client's settings.
type TransportFactory func(ctx context.Context, cfg settings.AppConfig, p profile.Profile) (stream.Transport, error)

// SubmitInput is one user submission.
type SubmitInput struct {
	Text       string           `json:"text"`
	Attachment *chat.Attachment `json:"attachment,omitempty"`
	Mode       string           `json:"mode,omitempty"`
}

// Options tunes a Service.
type Options struct {
	AppName     string
	UserID      string
	StopTimeout time.Duration
}

type sessionState struct {
	session    chat.Session
	profile    profile.Profile
	settings   settings.AppConfig
	controller *stream.Controller

	// submit serialises the busy check with message creation.
	submit sync.Mutex
}

// Service coordinates sessions. It is safe for concurrent use.
type Service struct {
	chats      *chatsvc.Service
	profiles   profile.Store
	settings   *settings.Service
	hub        *events.Hub
	factory    TransportFactory
	dispatcher *render.Dispatcher
	opts       Options
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

func NewService(
	chats *chatsvc.Service,
	profiles profile.Store,
	settingsSvc *settings.Service,
	hub *events.Hub,
	factory TransportFactory,
	opts Options,
	logger zerolog.Logger,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		chats:    chats,
		profiles: profiles,
		settings: settingsSvc,
		hub:      hub,
		factory:  factory,
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*sessionState),
	}
	s.dispatcher = render.NewDispatcher(logger)
	s.dispatcher.Register(render.TargetChart, render.RendererFunc(s.renderCharts))
	s.dispatcher.Register(render.TargetMap, render.RendererFunc(s.renderMap))
	return s
}

// Dispatcher exposes the directive dispatcher so callers can add renderers.
func (s *Service) Dispatcher() *render.Dispatcher {
	return s.dispatcher
}

// StartSession snapshots the client's settings, builds the transport and, when the upstream keeps
// its own sessions, creates one there.
func (s *Service) StartSession(ctx context.Context, clientID, profileID string) (chat.Session, error) {
	p, ok := s.profiles.FindByID(profileID)
	if !ok {
		return chat.Session{}, ErrProfileNotFound
	}

	cfg, err := s.settings.Resolve(ctx, clientID)
	if err != nil {
		return chat.Session{}, fmt.Errorf("resolve settings: %w", err)
	}

	transport, err := s.factory(ctx, cfg, p)
	if err != nil {
		return chat.Session{}, fmt.Errorf("build transport: %w", err)
	}

	session, err := s.chats.CreateSession(ctx, clientID, p.ID, transport.Name())
	if err != nil {
		return chat.Session{}, err
	}

	if creator, ok := transport.(stream.SessionCreator); ok {
		upstreamID, err := creator.CreateSession(ctx, s.appName(p), s.opts.UserID)
		if err != nil {
			_ = s.chats.DeleteSession(ctx, session.ID)
			return chat.Session{}, fmt.Errorf("create upstream session: %w", err)
		}
		if session, err = s.chats.BindUpstream(ctx, session.ID, upstreamID); err != nil {
			return chat.Session{}, err
		}
	}

	var ctrlOpts []stream.Option
	if s.opts.StopTimeout > 0 {
		ctrlOpts = append(ctrlOpts, stream.WithStopTimeout(s.opts.StopTimeout))
	}
	logger := s.logger.With().Str("session_id", session.ID).Str("transport", transport.Name()).Logger()

	s.mu.Lock()
	s.sessions[session.ID] = &sessionState{
		session:    session,
		profile:    p,
		settings:   cfg,
		controller: stream.NewController(transport, logger, ctrlOpts...),
	}
	s.mu.Unlock()

	logger.Info().Str("profile", p.ID).Str("upstream_session", session.UpstreamSessionID).Msg("session started")
	return session, nil
}

// Settings returns the settings snapshot the session was started with.
func (s *Service) Settings(sessionID string) (settings.AppConfig, error) {
	state, err := s.state(sessionID)
	if err != nil {
		return settings.AppConfig{}, err
	}
	return state.settings, nil
}

// Submit records a prompt with an empty streaming message and starts streaming the reply.
func (s *Service) Submit(ctx context.Context, sessionID string, in SubmitInput) (chat.Prompt, chat.Message, error) {
	state, err := s.state(sessionID)
	if err != nil {
		return chat.Prompt{}, chat.Message{}, err
	}

	text := strings.TrimSpace(in.Text)
	if in.Attachment != nil && !state.settings.EnableUploadFile {
		return chat.Prompt{}, chat.Message{}, ErrUploadDisabled
	}
	title := chat.PromptTitle(text, in.Attachment)
	if strings.TrimSpace(title) == "" {
		return chat.Prompt{}, chat.Message{}, ErrEmptyInput
	}
	mode := ""
	if state.settings.EnableSelectMode {
		mode = strings.TrimSpace(in.Mode)
	}

	conv, err := s.chats.Conversation(ctx, sessionID)
	if err != nil {
		return chat.Prompt{}, chat.Message{}, err
	}
	history, err := s.history(ctx, sessionID)
	if err != nil {
		return chat.Prompt{}, chat.Message{}, err
	}

	state.submit.Lock()
	defer state.submit.Unlock()

	if _, busy := conv.Live(); busy {
		return chat.Prompt{}, chat.Message{}, ErrBusy
	}
	prompt := conv.CreatePrompt(title, text)
	msg, err := conv.CreateMessage(prompt.ID)
	if err != nil {
		return chat.Prompt{}, chat.Message{}, err
	}

	req := stream.Request{
		Text:      text,
		SessionID: state.session.UpstreamSessionID,
		UserID:    s.opts.UserID,
		AppName:   s.appName(state.profile),
		Streaming: true,
		Mode:      mode,
		History:   history,
	}
	state.controller.Open(s.ctx, req, s.listener(conv, sessionID, prompt.ID, msg.ID))

	return prompt, msg, nil
}

// Stop stops a streaming message. Stopping a finished message does nothing.
func (s *Service) Stop(ctx context.Context, sessionID, promptID, messageID string) error {
	state, err := s.state(sessionID)
	if err != nil {
		return err
	}
	conv, err := s.chats.Conversation(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, ok := conv.Get(promptID, messageID); !ok {
		return ErrMessageNotFound
	}

	// status first: the close callback must not finalize a stopped reply as complete
	if !s.markStopped(conv, events.Update{SessionID: sessionID, PromptID: promptID, MessageID: messageID}) {
		return nil
	}
	state.controller.Cancel()
	return nil
}

// markStopped moves a streaming message to STOPPED and publishes it with its partial content.
func (s *Service) markStopped(conv *chatsvc.Conversation, ref events.Update) bool {
	if !conv.SetStatus(ref.PromptID, ref.MessageID, chat.StatusStopped) {
		return false
	}
	msg, _ := conv.Get(ref.PromptID, ref.MessageID)
	u := ref
	u.Type = events.TypeStopped
	u.Content = msg.Content
	u.Status = string(chat.StatusStopped)
	s.publish(u)
	return true
}

// EndSession cancels any running stream and forgets the session.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	state, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return chatsvc.ErrSessionNotFound
	}

	if conv, err := s.chats.Conversation(ctx, sessionID); err == nil {
		if live, streaming := conv.Live(); streaming {
			s.markStopped(conv, events.Update{SessionID: sessionID, PromptID: live.PromptID, MessageID: live.ID})
		}
	}
	state.controller.Cancel()
	return s.chats.DeleteSession(ctx, sessionID)
}

// Close cancels every running stream. Messages still streaming end as stopped.
func (s *Service) Close() {
	s.cancel()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, state := range s.sessions {
		state.controller.Cancel()
	}
}

func (s *Service) state(sessionID string) (*sessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, chatsvc.ErrSessionNotFound
	}
	return state, nil
}

func (s *Service) appName(p profile.Profile) string {
	if p.AppName != "" {
		return p.AppName
	}
	return s.opts.AppName
}

// history returns the finished exchanges as turns, for transports that replay context.
func (s *Service) history(ctx context.Context, sessionID string) ([]stream.Turn, error) {
	exchanges, err := s.chats.LoadTranscript(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var turns []stream.Turn
	for _, ex := range exchanges {
		for i := len(ex.Messages) - 1; i >= 0; i-- {
			m := ex.Messages[i]
			if m.Status != chat.StatusComplete {
				continue
			}
			turns = append(turns,
				stream.Turn{Role: "user", Content: ex.Prompt.Text},
				stream.Turn{Role: "assistant", Content: m.Content},
			)
			break
		}
	}
	return turns, nil
}

func (s *Service) listener(conv *chatsvc.Conversation, sessionID, promptID, messageID string) stream.Listener {
	base := events.Update{SessionID: sessionID, PromptID: promptID, MessageID: messageID}
	with := func(t events.Type, fn func(*events.Update)) events.Update {
		u := base
		u.Type = t
		if fn != nil {
			fn(&u)
		}
		return u
	}
	logger := s.logger.With().Str("session_id", sessionID).Str("message_id", messageID).Logger()

	return stream.Listener{
		OnOpen: func() {
			s.publish(with(events.TypeOpen, nil))
		},
		OnChunk: func(text, _ string) {
			if !conv.AppendChunk(promptID, messageID, text) {
				return
			}
			s.publish(with(events.TypeChunk, func(u *events.Update) {
				u.Content = text
				u.Status = string(chat.StatusStreaming)
			}))
		},
		OnComplete: func(full string) {
			s.finalize(conv, base, full, logger)
		},
		OnError: func(err error) {
			if !conv.SetError(promptID, messageID, err.Error()) {
				return
			}
			s.publish(with(events.TypeError, func(u *events.Update) {
				u.Error = err.Error()
				u.Status = string(chat.StatusError)
			}))
		},
		OnClose: func(phase stream.Phase) {
			if msg, ok := conv.Get(promptID, messageID); ok && msg.Status == chat.StatusStreaming {
				// only a graceful end carries a whole reply; a cancelled one is never decoded
				if phase == stream.PhaseClosed && s.ctx.Err() == nil {
					s.finalize(conv, base, "", logger)
				} else {
					s.markStopped(conv, base)
				}
			}
			s.publish(with(events.TypeClosed, nil))
		},
	}
}

// finalize decodes the reply, stores the cleaned text as the complete content and dispatches
// its directives. An empty full text finalizes what was streamed so far.
func (s *Service) finalize(conv *chatsvc.Conversation, ref events.Update, full string, logger zerolog.Logger) {
	if full == "" {
		msg, ok := conv.Get(ref.PromptID, ref.MessageID)
		if !ok {
			return
		}
		full = msg.Content
	}

	res := directive.Decode(full)
	for _, derr := range res.Errors {
		metrics.DirectiveDecodeFailures.Inc()
		logger.Warn().Err(derr).Msg("directive decode failed")
	}
	for _, d := range res.Directives {
		metrics.DirectivesDecoded.WithLabelValues(string(d.Kind)).Inc()
	}

	if !conv.Complete(ref.PromptID, ref.MessageID, res.CleanedText) {
		return
	}

	u := ref
	u.Type = events.TypeComplete
	u.Content = res.CleanedText
	u.Status = string(chat.StatusComplete)
	s.publish(u)

	if len(res.Directives) > 0 {
		s.dispatcher.Dispatch(withRef(s.ctx, ref), res.Directives)
	}
}

func (s *Service) publish(u events.Update) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(u)
}
