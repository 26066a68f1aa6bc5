package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
)

const Name = "ark"

// Transport streams completions straight from the chat model through an eino chain. It has no
// server-side task, so cancelling only aborts the local stream.
type Transport struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	system       string
	historyLimit int
	logger       zerolog.Logger
}

// NewTransport compiles the prompt + model chain. system is the rendered system prompt.
func NewTransport(ctx context.Context, chatModel model.BaseChatModel, system string, historyLimit int, logger zerolog.Logger) (*Transport, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Transport{
		chain:        runnable,
		system:       system,
		historyLimit: historyLimit,
		logger:       logger,
	}, nil
}

func (t *Transport) Name() string { return Name }

// Open streams one completion. Each delta becomes a partial event and the concatenation is
// delivered as the final event.
func (t *Transport) Open(ctx context.Context, req stream.Request) (stream.Source, error) {
	reader, err := t.chain.Stream(ctx, t.buildChainInput(req))
	if err != nil {
		return nil, &stream.TransportError{Transport: Name, Err: fmt.Errorf("failed to stream AI chain output: %w", err)}
	}

	taskID := uuid.NewString()
	t.logger.Debug().Str("task_id", taskID).Int("history", len(req.History)).Msg("ark stream opened")
	return &source{reader: reader, taskID: taskID}, nil
}

func (t *Transport) buildChainInput(req stream.Request) map[string]any {
	system := t.system
	if req.Mode != "" {
		system += "\n\n当前咨询模式：" + req.Mode
	}
	return map[string]any{
		"system":  system,
		"history": t.buildHistoryMessages(req.History),
		"query":   req.Text,
	}
}

func (t *Transport) buildHistoryMessages(turns []stream.Turn) []*schema.Message {
	if len(turns) == 0 || t.historyLimit == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > t.historyLimit {
		startIdx = len(turns) - t.historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case "user":
			history = append(history, schema.UserMessage(turn.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}

type source struct {
	reader *schema.StreamReader[*schema.Message]
	taskID string
	full   strings.Builder
	done   bool
}

func (s *source) Next() (stream.Event, error) {
	if s.done {
		return stream.Event{}, io.EOF
	}
	for {
		msg, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			return stream.Event{Type: stream.EventFinal, Text: s.full.String(), TaskID: s.taskID}, nil
		}
		if err != nil {
			return stream.Event{}, err
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		s.full.WriteString(msg.Content)
		return stream.Event{Type: stream.EventPartial, Text: msg.Content, TaskID: s.taskID}, nil
	}
}

func (s *source) Close() error {
	s.reader.Close()
	return nil
}
