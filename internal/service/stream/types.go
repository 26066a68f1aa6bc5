package stream

import "context"

// Phase is the lifecycle position of a stream session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseOpen      Phase = "open"
	PhaseStreaming Phase = "streaming"
	PhaseClosed    Phase = "closed"
	PhaseAborted   Phase = "aborted"
	PhaseErrored   Phase = "errored"
)

// Terminal reports whether no further transitions can happen.
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseAborted || p == PhaseErrored
}

// EventType distinguishes the framing of upstream events.
type EventType string

const (
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
	EventError   EventType = "error"
	EventEnd     EventType = "end"
)

// Event is a transport-neutral upstream event.
type Event struct {
	Type   EventType
	Text   string
	TaskID string
	Err    string
}

// Turn is one prior exchange handed to transports that need history.
type Turn struct {
	Role    string
	Content string
}

// Request carries the parameters of one submission.
type Request struct {
	Text      string
	SessionID string
	UserID    string
	AppName   string
	Streaming bool
	Mode      string
	History   []Turn
}

// Source yields events of one opened stream. Next returns io.EOF when the stream ends.
type Source interface {
	Next() (Event, error)
	Close() error
}

// Transport opens upstream streams. Implementations are selected by configuration.
type Transport interface {
	Name() string
	Open(ctx context.Context, req Request) (Source, error)
}

// Stopper is implemented by transports that can stop generation of a task server-side.
type Stopper interface {
	Stop(ctx context.Context, taskID string) error
}

// SessionCreator is implemented by transports whose upstream keeps its own sessions.
type SessionCreator interface {
	CreateSession(ctx context.Context, appName, userID string) (string, error)
}

// Listener receives session lifecycle callbacks. Every field is optional. OnClose gets the
// terminal phase: PhaseClosed for a graceful end, PhaseAborted after Cancel.
type Listener struct {
	OnOpen     func()
	OnChunk    func(text, taskID string)
	OnComplete func(full string)
	OnClose    func(phase Phase)
	OnError    func(err error)
}
