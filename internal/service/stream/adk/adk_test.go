package adk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
)

func drain(t *testing.T, src stream.Source) []stream.Event {
	t.Helper()
	defer src.Close()
	var out []stream.Event
	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestOpenMapsAgentEvents(t *testing.T) {
	var got runRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/run_sse", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"invocationId":"inv-1","partial":true,"content":{"parts":[{"text":"Day 1"}]}}`+"\n\n")
		fmt.Fprint(w, `data: {"invocationId":"inv-1","actions":{"stateDelta":{}}}`+"\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, `data: {"invocationId":"inv-1","partial":true,"content":{"parts":[{"text":": Kyoto"}]}}`+"\n\n")
		fmt.Fprint(w, `data: {"invocationId":"inv-1","content":{"parts":[{"text":"Day 1: Kyoto"}]}}`+"\n\n")
	}))
	defer srv.Close()

	src, err := New(srv.URL+"/", srv.Client()).Open(context.Background(), stream.Request{
		Text:      "plan kyoto",
		SessionID: "s-1",
		UserID:    "user",
		AppName:   "travel_agent",
		Streaming: true,
	})
	require.NoError(t, err)
	events := drain(t, src)

	assert.Equal(t, "travel_agent", got.AppName)
	assert.Equal(t, "s-1", got.SessionID)
	assert.Equal(t, "user", got.NewMessage.Role)
	assert.Equal(t, "plan kyoto", got.NewMessage.Parts[0].Text)
	assert.True(t, got.Streaming)

	require.Len(t, events, 3)
	assert.Equal(t, stream.Event{Type: stream.EventPartial, Text: "Day 1", TaskID: "inv-1"}, events[0])
	assert.Equal(t, stream.Event{Type: stream.EventPartial, Text: ": Kyoto", TaskID: "inv-1"}, events[1])
	assert.Equal(t, stream.EventFinal, events[2].Type)
	assert.Equal(t, "Day 1: Kyoto", events[2].Text)
}

func TestOpenMapsErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		fmt.Fprint(w, `data: {"error":"quota exceeded"}`+"\n\n")
	}))
	defer srv.Close()

	src, err := New(srv.URL, srv.Client()).Open(context.Background(), stream.Request{Text: "x"})
	require.NoError(t, err)
	events := drain(t, src)

	require.Len(t, events, 1)
	assert.Equal(t, stream.EventError, events[0].Type)
	assert.Equal(t, "quota exceeded", events[0].Err)
}

func TestOpenRejectsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client()).Open(context.Background(), stream.Request{Text: "x"})

	var te *stream.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.Equal(t, "session not found", te.Message)
}

func TestOpenRejectsNonStreamResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client()).Open(context.Background(), stream.Request{Text: "x"})

	var te *stream.TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "application/json")
}

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/apps/travel_agent/users/user/sessions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"sess-42","appName":"travel_agent","userId":"user"}`)
	}))
	defer srv.Close()

	id, err := New(srv.URL, srv.Client()).CreateSession(context.Background(), "travel_agent", "user")
	require.NoError(t, err)
	assert.Equal(t, "sess-42", id)
}

func TestCreateSessionRequiresID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client()).CreateSession(context.Background(), "travel_agent", "user")
	require.Error(t, err)
}

func TestTransportImplementsSessionCreator(t *testing.T) {
	var tr stream.Transport = New("http://localhost", nil)
	_, ok := tr.(stream.SessionCreator)
	assert.True(t, ok)
	_, ok = tr.(stream.Stopper)
	assert.False(t, ok)
}
