package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/travel-assistant/backend/internal/analysis/directive"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/render"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
)

func runCLI(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	flagLegacy = false

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestDecodeCommand(t *testing.T) {
	reply := "Go here.<DIRECTIVE kind=\"MAP_MARKERS\">[{\"name\":\"Bund\",\"lat\":31.24,\"long\":121.49}]</DIRECTIVE>"

	var got decodeOutput
	require.NoError(t, json.Unmarshal([]byte(runCLI(t, reply, "decode")), &got))

	assert.Equal(t, "Go here.", got.CleanedText)
	require.Len(t, got.Directives, 1)
	assert.Equal(t, directive.MapMarkers, got.Directives[0].Kind)
	assert.Len(t, got.Routed[render.TargetMap], 1)
	assert.Empty(t, got.Errors)
}

func TestDecodeCommandLegacyMarkup(t *testing.T) {
	reply := "Costs:<TSX type=\"BAR_CHART\">{\"xAxis\":[\"a\"],\"yAxis\":[{\"label\":\"x\",\"value\":[1]}]}</TSX><TSX type=\"LINE_CHART\">oops</TSX>"

	var got decodeOutput
	require.NoError(t, json.Unmarshal([]byte(runCLI(t, reply, "decode", "--legacy")), &got))

	assert.Equal(t, "Costs:", got.CleanedText)
	assert.Len(t, got.Directives, 1)
	assert.Len(t, got.Errors, 1)
}

type chunkTransport struct{ events []stream.Event }

func (chunkTransport) Name() string { return "chunks" }

func (t chunkTransport) Open(context.Context, stream.Request) (stream.Source, error) {
	return &chunkSource{events: t.events}, nil
}

type chunkSource struct{ events []stream.Event }

func (s *chunkSource) Next() (stream.Event, error) {
	if len(s.events) == 0 {
		return stream.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *chunkSource) Close() error { return nil }

func TestStreamAnswerPrintsChunks(t *testing.T) {
	controller := stream.NewController(chunkTransport{events: []stream.Event{
		{Type: stream.EventPartial, Text: "Day 1, "},
		{Type: stream.EventPartial, Text: "Day 2"},
	}}, zerolog.Nop())

	var out bytes.Buffer
	answer, err := streamAnswer(context.Background(), controller, stream.Request{Text: "q"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "Day 1, Day 2", answer)
	assert.Equal(t, "Day 1, Day 2", out.String())
}

func TestStreamAnswerPrefersFinalText(t *testing.T) {
	controller := stream.NewController(chunkTransport{events: []stream.Event{
		{Type: stream.EventPartial, Text: "draft"},
		{Type: stream.EventFinal, Text: "final answer"},
	}}, zerolog.Nop())

	answer, err := streamAnswer(context.Background(), controller, stream.Request{}, io.Discard)

	require.NoError(t, err)
	assert.Equal(t, "final answer", answer)
}

func TestStreamAnswerReportsUpstreamError(t *testing.T) {
	controller := stream.NewController(chunkTransport{events: []stream.Event{
		{Type: stream.EventError, Err: "quota exceeded"},
	}}, zerolog.Nop())

	_, err := streamAnswer(context.Background(), controller, stream.Request{}, io.Discard)

	var te *stream.TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "quota exceeded")
}

// stallTransport sends its events, then holds the stream open until cancelled.
type stallTransport struct {
	events []stream.Event
	stops  *atomic.Int32
}

func (t stallTransport) Name() string { return "stall" }

func (t stallTransport) Open(ctx context.Context, _ stream.Request) (stream.Source, error) {
	return &stallSource{ctx: ctx, events: t.events}, nil
}

func (t stallTransport) Stop(context.Context, string) error {
	t.stops.Add(1)
	return nil
}

type stallSource struct {
	ctx    context.Context
	events []stream.Event
}

func (s *stallSource) Next() (stream.Event, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	<-s.ctx.Done()
	return stream.Event{}, s.ctx.Err()
}

func (s *stallSource) Close() error { return nil }

type cancelOnWrite struct {
	bytes.Buffer
	cancel context.CancelFunc
}

func (w *cancelOnWrite) Write(p []byte) (int, error) {
	n, err := w.Buffer.Write(p)
	w.cancel()
	return n, err
}

func TestStreamAnswerCancelReturnsPartialAfterStop(t *testing.T) {
	stops := &atomic.Int32{}
	controller := stream.NewController(stallTransport{
		events: []stream.Event{{Type: stream.EventPartial, Text: "Day 1 <DIRECTIVE kind=\"MAP_MARKERS\">{}</DIRECTIVE>", TaskID: "task-1"}},
		stops:  stops,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Ctrl-C right after the first chunk is printed
	out := &cancelOnWrite{cancel: cancel}

	answer, err := streamAnswer(ctx, controller, stream.Request{}, out)

	require.ErrorIs(t, err, errStopped)
	assert.Equal(t, "Day 1 <DIRECTIVE kind=\"MAP_MARKERS\">{}</DIRECTIVE>", answer)
	assert.EqualValues(t, 1, stops.Load())
}

func TestPrintPartialKeepsRawText(t *testing.T) {
	var out bytes.Buffer
	printPartial(&out, "Day 1 <DIRECTIVE kind=\"MAP_MARKERS\">{}</DIRECTIVE>")

	text := out.String()
	assert.Contains(t, text, "stopped, partial reply:")
	assert.Contains(t, text, "<DIRECTIVE kind=\"MAP_MARKERS\">{}</DIRECTIVE>")
	assert.Contains(t, text, "only rendered for finished replies")
}

func TestPrintAnswerSummarisesDirectives(t *testing.T) {
	res := directive.Decode("Plan<DIRECTIVE kind=\"LINE_CHART\">{\"xAxis\":[\"Mon\",\"Tue\"],\"yAxis\":[{\"label\":\"temp\",\"value\":[12,1500]}]}</DIRECTIVE>" +
		"<DIRECTIVE kind=\"MAP_MARKERS\">{\"name\":\"West Lake\",\"lat\":30.25,\"long\":120.15}</DIRECTIVE>")
	routed := render.NewDispatcher(zerolog.Nop()).Dispatch(context.Background(), res.Directives)

	var out bytes.Buffer
	printAnswer(&out, res, routed, true)

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "Plan\n"))
	assert.Contains(t, text, "line chart")
	assert.Contains(t, text, "Tue=1.5K")
	assert.Contains(t, text, "West Lake")
	assert.Contains(t, text, "(30.2500, 120.1500)")
}
