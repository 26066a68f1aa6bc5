package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-assistant/backend/internal/metrics"
)

const defaultStopTimeout = 5 * time.Second

// Controller owns at most one in-flight stream session. Opening a new session supersedes the
// current one.
type Controller struct {
	transport   Transport
	logger      zerolog.Logger
	stopTimeout time.Duration

	mu      sync.Mutex
	current *Session
}

// Option customizes a Controller.
type Option func(*Controller)

// WithStopTimeout bounds the best-effort server-side stop request.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.stopTimeout = d
		}
	}
}

// NewController binds a controller to one transport.
func NewController(transport Transport, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		transport:   transport,
		logger:      logger.With().Str("transport", transport.Name()).Logger(),
		stopTimeout: defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transport returns the transport the controller streams through.
func (c *Controller) Transport() Transport {
	return c.transport
}

// Open starts a new session and returns immediately; callbacks fire on the session's own
// goroutine. ctx bounds the whole session.
func (c *Controller) Open(ctx context.Context, req Request, l Listener) *Session {
	sessCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:          uuid.NewString(),
		transport:   c.transport,
		listener:    l,
		logger:      c.logger,
		stopTimeout: c.stopTimeout,
		ctx:         sessCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		phase:       PhaseIdle,
	}
	s.logger = s.logger.With().Str("stream_session", s.ID).Logger()

	c.mu.Lock()
	prev := c.current
	c.current = s
	c.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	metrics.StreamsOpened.WithLabelValues(c.transport.Name()).Inc()
	go s.run(req)
	return s
}

// Cancel cancels the current session, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s != nil {
		s.Cancel()
	}
}

// Current returns the most recently opened session or nil.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Session is one request/response cycle.
type Session struct {
	ID string

	transport   Transport
	listener    Listener
	logger      zerolog.Logger
	stopTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}

	mu        sync.Mutex
	phase     Phase
	taskID    string
	cancelled bool
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// TaskID returns the upstream task id, empty until the first event carrying one.
func (s *Session) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskID
}

// Done is closed after OnClose has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// StopDone is closed once no upstream stop request is pending: after the stop request issued by
// Cancel has returned, or when the session ended without being cancelled.
func (s *Session) StopDone() <-chan struct{} {
	return s.stopped
}

// Cancel aborts the transport and, when the transport supports it and a task id is known,
// asks the upstream to stop generating. Calling it more than once or after the session ended
// does nothing.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.cancelled || s.phase.Terminal() {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.phase = PhaseAborted
	taskID := s.taskID
	s.mu.Unlock()

	s.cancel()
	s.logger.Info().Str("task_id", taskID).Msg("stream cancelled")

	stopper, ok := s.transport.(Stopper)
	if !ok || taskID == "" {
		close(s.stopped)
		return
	}
	go s.stop(stopper, taskID)
}

func (s *Session) stop(stopper Stopper, taskID string) {
	defer close(s.stopped)

	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	if err := stopper.Stop(ctx, taskID); err != nil {
		metrics.StopRequests.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("stop request failed")
		return
	}
	metrics.StopRequests.WithLabelValues("ok").Inc()
	s.logger.Debug().Str("task_id", taskID).Msg("stop request accepted")
}

func (s *Session) run(req Request) {
	defer close(s.done)
	defer s.cancel()
	defer s.finish()

	src, err := s.transport.Open(s.ctx, req)
	if err != nil {
		s.fail(err)
		return
	}
	defer src.Close()

	if !s.transition(PhaseOpen) {
		return
	}
	if s.listener.OnOpen != nil {
		s.listener.OnOpen()
	}

	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.fail(err)
			return
		}
		if s.ctx.Err() != nil {
			return
		}

		metrics.StreamEvents.WithLabelValues(string(ev.Type)).Inc()

		switch ev.Type {
		case EventPartial:
			taskID := s.captureTask(ev.TaskID)
			if !s.transition(PhaseStreaming) {
				return
			}
			if s.listener.OnChunk != nil {
				s.listener.OnChunk(ev.Text, taskID)
			}
		case EventFinal:
			s.captureTask(ev.TaskID)
			if s.listener.OnComplete != nil {
				s.listener.OnComplete(ev.Text)
			}
		case EventError:
			s.captureTask(ev.TaskID)
			s.fail(&TransportError{Transport: s.transport.Name(), Message: ev.Err})
			return
		case EventEnd:
			return
		}
	}
}

// captureTask keeps the first non-empty task id and returns the held one.
func (s *Session) captureTask(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskID == "" && id != "" {
		s.taskID = id
	}
	return s.taskID
}

// transition moves to a non-terminal phase; it fails once the session was cancelled.
func (s *Session) transition(p Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return false
	}
	s.phase = p
	return true
}

// fail reports a transport failure unless the session was cancelled locally.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.phase.Terminal() || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseErrored
	s.mu.Unlock()

	var te *TransportError
	if !errors.As(err, &te) {
		err = &TransportError{Transport: s.transport.Name(), Err: err}
	}
	s.logger.Error().Err(err).Msg("stream failed")
	if s.listener.OnError != nil {
		s.listener.OnError(err)
	}
}

func (s *Session) finish() {
	s.mu.Lock()
	if !s.phase.Terminal() {
		// a parent context cancelled under the session aborts it as Cancel would
		if s.ctx.Err() != nil {
			s.phase = PhaseAborted
		} else {
			s.phase = PhaseClosed
		}
	}
	phase := s.phase
	cancelled := s.cancelled
	s.mu.Unlock()

	if !cancelled {
		close(s.stopped)
	}
	metrics.StreamsFinished.WithLabelValues(string(phase)).Inc()
	if s.listener.OnClose != nil {
		s.listener.OnClose(phase)
	}
}
