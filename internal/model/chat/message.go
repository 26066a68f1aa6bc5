package chat

import "time"

// Status is the lifecycle state of an assistant message.
type Status string

const (
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusStopped || s == StatusError
}

// Prompt is one user submission. Title is the rendered form shown in the transcript; Text is
// the raw input sent upstream.
type Prompt struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one assistant response to a prompt.
type Message struct {
	ID        string    `json:"id"`
	PromptID  string    `json:"promptId"`
	Content   string    `json:"content"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Exchange groups a prompt with its messages for transcript views.
type Exchange struct {
	Prompt   Prompt    `json:"prompt"`
	Messages []Message `json:"messages"`
}
