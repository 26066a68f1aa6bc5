package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-assistant/backend/internal/model/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/model/profile"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/assistant"
	chatservice "github.com/zhouzirui/travel-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/events"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/settings"
	svcstream "github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
	"github.com/zhouzirui/travel-assistant/backend/pkg/sse"
)

const reply = "Visit West Lake.<DIRECTIVE kind=\"MAP_MARKERS\">{\"name\":\"West Lake\",\"lat\":30.25,\"long\":120.15}</DIRECTIVE>"

// replayTransport answers every request with the same short reply.
type replayTransport struct{}

func (replayTransport) Name() string { return "replay" }

func (replayTransport) Open(context.Context, svcstream.Request) (svcstream.Source, error) {
	return &replaySource{events: []svcstream.Event{
		{Type: svcstream.EventPartial, Text: "Visit ", TaskID: "t1"},
		{Type: svcstream.EventPartial, Text: "West Lake.", TaskID: "t1"},
		{Type: svcstream.EventFinal, Text: reply, TaskID: "t1"},
	}}, nil
}

type replaySource struct {
	events []svcstream.Event
}

func (s *replaySource) Next() (svcstream.Event, error) {
	if len(s.events) == 0 {
		return svcstream.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *replaySource) Close() error { return nil }

type testEnv struct {
	server    *httptest.Server
	assistant *assistant.Service
	hub       *events.Hub
	session   chat.Session
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	defaults, err := settings.LoadDefaults("", settings.AppConfig{APIURL: "http://upstream.test", APIKey: "k"})
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}

	hub := events.NewHub(zerolog.Nop())
	chatSvc := chatservice.NewService()
	svc := assistant.NewService(
		chatSvc,
		profile.NewMemoryStore(profile.Seed()),
		settings.NewService(settings.NewMemoryStore(), defaults),
		hub,
		func(context.Context, settings.AppConfig, profile.Profile) (svcstream.Transport, error) {
			return replayTransport{}, nil
		},
		assistant.Options{UserID: "user"},
		zerolog.Nop(),
	)
	t.Cleanup(svc.Close)

	session, err := svc.StartSession(context.Background(), "client", "")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	h := New(svc, chatSvc, hub, zerolog.Nop())
	h.heartbeat = 20 * time.Millisecond
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &testEnv{server: server, assistant: svc, hub: hub, session: session}
}

func waitForSubscriber(t *testing.T, hub *events.Hub, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(sessionID) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("relay never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readUpdates(t *testing.T, body io.Reader, until events.Type) []events.Update {
	t.Helper()
	reader := sse.NewReader(body)
	var got []events.Update
	for {
		ev, err := reader.Next()
		if err != nil {
			t.Fatalf("reading sse: %v (got %d updates)", err, len(got))
		}
		if ev.Type != "" {
			continue
		}
		var u events.Update
		if err := json.Unmarshal([]byte(ev.Data), &u); err != nil {
			t.Fatalf("decode update %q: %v", ev.Data, err)
		}
		got = append(got, u)
		if u.Type == until {
			return got
		}
	}
}

func types(updates []events.Update) string {
	var parts []string
	for _, u := range updates {
		parts = append(parts, string(u.Type))
	}
	return strings.Join(parts, ",")
}

func TestEventsRelaysConversationUpdates(t *testing.T) {
	env := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/session/"+env.session.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	waitForSubscriber(t, env.hub, env.session.ID)
	if _, _, err := env.assistant.Submit(ctx, env.session.ID, assistant.SubmitInput{Text: "Hangzhou?"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	updates := readUpdates(t, resp.Body, events.TypeClosed)
	if got := types(updates); got != "open,chunk,chunk,complete,render,closed" {
		t.Fatalf("unexpected update sequence %s", got)
	}
	if updates[3].Content != "Visit West Lake." {
		t.Fatalf("complete update should carry cleaned text, got %q", updates[3].Content)
	}
	if updates[4].Target != "map" {
		t.Fatalf("expected map render, got %+v", updates[4])
	}
}

func TestEventsEndWithResyncWhenHubCloses(t *testing.T) {
	env := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/session/"+env.session.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	waitForSubscriber(t, env.hub, env.session.ID)
	env.hub.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "event: resync") {
		t.Fatalf("expected a resync event before the relay ended, got %q", body)
	}
}

func TestEventsUnknownSession(t *testing.T) {
	env := setup(t)

	resp, err := http.Get(env.server.URL + "/session/missing/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAskStreamsOneReply(t *testing.T) {
	env := setup(t)

	resp, err := http.Get(env.server.URL + "/stream/" + env.session.ID + "?message=Hangzhou%3F")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	// the handler ends the response after the closed update
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "event: submitted") {
		t.Fatalf("missing submitted event in %q", body)
	}
	if !strings.Contains(string(body), `"type":"closed"`) {
		t.Fatalf("missing closed update in %q", body)
	}
}

func TestAskRequiresMessage(t *testing.T) {
	env := setup(t)

	resp, err := http.Get(env.server.URL + "/stream/" + env.session.ID)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebSocketSubmitAndRelay(t *testing.T) {
	env := setup(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/session/" + env.session.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello outgoingMessage
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != "connected" {
		t.Fatalf("expected connected message, got %+v (%v)", hello, err)
	}

	waitForSubscriber(t, env.hub, env.session.ID)
	if err := conn.WriteJSON(map[string]any{"type": "submit", "data": map[string]string{"text": "Hangzhou?"}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	submitted, closed := false, false
	for !submitted || !closed {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch msg.Type {
		case "submitted":
			submitted = true
		case "update":
			var u events.Update
			if err := json.Unmarshal(msg.Data, &u); err != nil {
				t.Fatalf("decode update: %v", err)
			}
			closed = closed || u.Type == events.TypeClosed
		case "error":
			t.Fatalf("unexpected error message %s", msg.Data)
		}
	}
	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var msg outgoingMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "error" {
		t.Fatalf("expected error for unknown type, got %+v (%v)", msg, err)
	}
}
