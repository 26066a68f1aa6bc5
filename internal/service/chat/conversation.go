package chat

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zhouzirui/travel-assistant/backend/internal/model/chat"
)

type promptEntry struct {
	prompt   chat.Prompt
	messages []chat.Message
}

// Conversation is the ordered list of prompts of one session and the messages answering them.
// It is safe for concurrent use; stream goroutines and HTTP handlers share it.
//
// Message status only moves from streaming to one of the terminal states. Mutations that would
// break this are ignored and reported by a false return.
type Conversation struct {
	mu      sync.RWMutex
	prompts []*promptEntry
	index   map[string]*promptEntry
	now     func() time.Time
}

func newConversation() *Conversation {
	return &Conversation{
		index: make(map[string]*promptEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreatePrompt appends a prompt. title is what the transcript shows, text what was asked.
func (c *Conversation) CreatePrompt(title, text string) chat.Prompt {
	p := chat.Prompt{
		ID:        ulid.Make().String(),
		Title:     title,
		Text:      text,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &promptEntry{prompt: p}
	c.prompts = append(c.prompts, entry)
	c.index[p.ID] = entry
	return p
}

// CreateMessage appends an empty streaming message to the prompt.
func (c *Conversation) CreateMessage(promptID string) (chat.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.index[promptID]
	if !ok {
		return chat.Message{}, ErrPromptNotFound
	}
	for _, m := range entry.messages {
		if m.Status == chat.StatusStreaming {
			return chat.Message{}, ErrStreamInFlight
		}
	}

	now := c.now()
	m := chat.Message{
		ID:        ulid.Make().String(),
		PromptID:  promptID,
		Status:    chat.StatusStreaming,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry.messages = append(entry.messages, m)
	return m, nil
}

// AppendChunk appends text to a streaming message.
func (c *Conversation) AppendChunk(promptID, messageID, text string) bool {
	return c.mutate(promptID, messageID, func(m *chat.Message) bool {
		if m.Status != chat.StatusStreaming {
			return false
		}
		m.Content += text
		return true
	})
}

// SetContent replaces the content of a streaming message.
func (c *Conversation) SetContent(promptID, messageID, content string) bool {
	return c.mutate(promptID, messageID, func(m *chat.Message) bool {
		if m.Status != chat.StatusStreaming {
			return false
		}
		m.Content = content
		return true
	})
}

// SetStatus finishes a streaming message.
func (c *Conversation) SetStatus(promptID, messageID string, status chat.Status) bool {
	return c.finish(promptID, messageID, status, "")
}

// SetError finishes a streaming message with status error and the reason shown to the user.
func (c *Conversation) SetError(promptID, messageID, reason string) bool {
	return c.finish(promptID, messageID, chat.StatusError, reason)
}

// Complete replaces the content and marks the message complete in one step, so a concurrent
// stop either wins entirely or not at all.
func (c *Conversation) Complete(promptID, messageID, content string) bool {
	return c.mutate(promptID, messageID, func(m *chat.Message) bool {
		if m.Status != chat.StatusStreaming {
			return false
		}
		m.Content = content
		m.Status = chat.StatusComplete
		return true
	})
}

func (c *Conversation) finish(promptID, messageID string, status chat.Status, reason string) bool {
	if !status.Terminal() {
		return false
	}
	return c.mutate(promptID, messageID, func(m *chat.Message) bool {
		if m.Status != chat.StatusStreaming {
			return false
		}
		m.Status = status
		m.Error = reason
		return true
	})
}

func (c *Conversation) mutate(promptID, messageID string, fn func(*chat.Message) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.index[promptID]
	if !ok {
		return false
	}
	for i := range entry.messages {
		if entry.messages[i].ID != messageID {
			continue
		}
		if !fn(&entry.messages[i]) {
			return false
		}
		entry.messages[i].UpdatedAt = c.now()
		return true
	}
	return false
}

// Get returns a copy of the message.
func (c *Conversation) Get(promptID, messageID string) (chat.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.index[promptID]
	if !ok {
		return chat.Message{}, false
	}
	for _, m := range entry.messages {
		if m.ID == messageID {
			return m, true
		}
	}
	return chat.Message{}, false
}

// Prompt returns the prompt with the given id.
func (c *Conversation) Prompt(promptID string) (chat.Prompt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.index[promptID]
	if !ok {
		return chat.Prompt{}, false
	}
	return entry.prompt, true
}

// Prompts returns the prompts in creation order.
func (c *Conversation) Prompts() []chat.Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]chat.Prompt, 0, len(c.prompts))
	for _, entry := range c.prompts {
		out = append(out, entry.prompt)
	}
	return out
}

// Messages returns the messages of a prompt in creation order.
func (c *Conversation) Messages(promptID string) []chat.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.index[promptID]
	if !ok {
		return nil
	}
	return append([]chat.Message(nil), entry.messages...)
}

// Exchanges returns every prompt together with its messages.
func (c *Conversation) Exchanges() []chat.Exchange {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]chat.Exchange, 0, len(c.prompts))
	for _, entry := range c.prompts {
		out = append(out, chat.Exchange{
			Prompt:   entry.prompt,
			Messages: append([]chat.Message(nil), entry.messages...),
		})
	}
	return out
}

// Live returns the message currently streaming, if any.
func (c *Conversation) Live() (chat.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.prompts) - 1; i >= 0; i-- {
		for _, m := range c.prompts[i].messages {
			if m.Status == chat.StatusStreaming {
				return m, true
			}
		}
	}
	return chat.Message{}, false
}
