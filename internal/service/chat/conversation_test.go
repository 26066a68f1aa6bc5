package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/travel-assistant/backend/internal/model/chat"
)

func TestConversationStreamingLifecycle(t *testing.T) {
	conv := newConversation()
	p := conv.CreatePrompt("Plan Kyoto", "Plan Kyoto")

	m, err := conv.CreateMessage(p.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusStreaming, m.Status)
	assert.Empty(t, m.Content)

	assert.True(t, conv.AppendChunk(p.ID, m.ID, "Day 1"))
	assert.True(t, conv.AppendChunk(p.ID, m.ID, ": temples"))

	live, ok := conv.Live()
	require.True(t, ok)
	assert.Equal(t, "Day 1: temples", live.Content)

	assert.True(t, conv.SetContent(p.ID, m.ID, "cleaned"))
	assert.True(t, conv.SetStatus(p.ID, m.ID, chat.StatusComplete))

	got, ok := conv.Get(p.ID, m.ID)
	require.True(t, ok)
	assert.Equal(t, "cleaned", got.Content)
	assert.Equal(t, chat.StatusComplete, got.Status)

	_, ok = conv.Live()
	assert.False(t, ok)
}

func TestConversationTerminalMessagesAreFrozen(t *testing.T) {
	for _, status := range []chat.Status{chat.StatusComplete, chat.StatusStopped, chat.StatusError} {
		t.Run(string(status), func(t *testing.T) {
			conv := newConversation()
			p := conv.CreatePrompt("q", "q")
			m, _ := conv.CreateMessage(p.ID)
			conv.AppendChunk(p.ID, m.ID, "partial")
			require.True(t, conv.SetStatus(p.ID, m.ID, status))

			assert.False(t, conv.AppendChunk(p.ID, m.ID, " late chunk"))
			assert.False(t, conv.SetContent(p.ID, m.ID, "late content"))
			assert.False(t, conv.SetStatus(p.ID, m.ID, chat.StatusComplete))
			assert.False(t, conv.SetError(p.ID, m.ID, "late error"))

			got, _ := conv.Get(p.ID, m.ID)
			assert.Equal(t, "partial", got.Content)
			assert.Equal(t, status, got.Status)
			assert.Empty(t, got.Error)
		})
	}
}

func TestConversationRejectsNonTerminalStatus(t *testing.T) {
	conv := newConversation()
	p := conv.CreatePrompt("q", "q")
	m, _ := conv.CreateMessage(p.ID)

	assert.False(t, conv.SetStatus(p.ID, m.ID, chat.StatusStreaming))
	assert.False(t, conv.SetStatus(p.ID, m.ID, chat.Status("bogus")))
}

func TestConversationSetError(t *testing.T) {
	conv := newConversation()
	p := conv.CreatePrompt("q", "q")
	m, _ := conv.CreateMessage(p.ID)

	require.True(t, conv.SetError(p.ID, m.ID, "upstream returned 502"))

	got, _ := conv.Get(p.ID, m.ID)
	assert.Equal(t, chat.StatusError, got.Status)
	assert.Equal(t, "upstream returned 502", got.Error)
}

func TestConversationSingleStreamingMessagePerPrompt(t *testing.T) {
	conv := newConversation()
	p := conv.CreatePrompt("q", "q")
	first, err := conv.CreateMessage(p.ID)
	require.NoError(t, err)

	_, err = conv.CreateMessage(p.ID)
	assert.ErrorIs(t, err, ErrStreamInFlight)

	conv.SetStatus(p.ID, first.ID, chat.StatusStopped)
	second, err := conv.CreateMessage(p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, conv.Messages(p.ID), 2)
}

func TestConversationUnknownIDs(t *testing.T) {
	conv := newConversation()
	p := conv.CreatePrompt("q", "q")

	_, err := conv.CreateMessage("missing")
	assert.ErrorIs(t, err, ErrPromptNotFound)
	assert.False(t, conv.AppendChunk(p.ID, "missing", "x"))
	assert.False(t, conv.AppendChunk("missing", "missing", "x"))
	_, ok := conv.Get(p.ID, "missing")
	assert.False(t, ok)
	assert.Nil(t, conv.Messages("missing"))
}

func TestConversationPreservesOrder(t *testing.T) {
	conv := newConversation()
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, conv.CreatePrompt(fmt.Sprintf("q%d", i), "").ID)
	}

	prompts := conv.Prompts()
	require.Len(t, prompts, 5)
	for i, p := range prompts {
		assert.Equal(t, ids[i], p.ID)
	}
	assert.Len(t, conv.Exchanges(), 5)
}

func TestConversationConcurrentChunks(t *testing.T) {
	conv := newConversation()
	p := conv.CreatePrompt("q", "q")
	m, _ := conv.CreateMessage(p.ID)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv.AppendChunk(p.ID, m.ID, "x")
			conv.Exchanges()
		}()
	}
	wg.Wait()

	got, _ := conv.Get(p.ID, m.ID)
	assert.Len(t, got.Content, 50)
}

func TestConversationComplete(t *testing.T) {
	conv := newConversation()
	p := conv.CreatePrompt("q", "q")
	m, _ := conv.CreateMessage(p.ID)
	conv.AppendChunk(p.ID, m.ID, "raw <DIRECTIVE>")

	require.True(t, conv.Complete(p.ID, m.ID, "raw"))
	assert.False(t, conv.Complete(p.ID, m.ID, "again"))

	got, _ := conv.Get(p.ID, m.ID)
	assert.Equal(t, "raw", got.Content)
	assert.Equal(t, chat.StatusComplete, got.Status)
}
