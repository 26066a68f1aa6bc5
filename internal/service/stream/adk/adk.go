// Package adk streams responses from an agent server exposing the run_sse API.
package adk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
	"github.com/zhouzirui/travel-assistant/backend/pkg/sse"
)

const Name = "adk"

// Transport talks to POST {base}/api/run_sse.
type Transport struct {
	baseURL string
	client  *http.Client
}

// New returns a transport rooted at baseURL. A nil client uses http.DefaultClient.
func New(baseURL string, client *http.Client) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (t *Transport) Name() string { return Name }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type runRequest struct {
	AppName    string  `json:"appName"`
	UserID     string  `json:"userId"`
	SessionID  string  `json:"sessionId"`
	NewMessage content `json:"newMessage"`
	Streaming  bool    `json:"streaming"`
}

// Open starts a run. The agent keeps its own history, so req.History is not sent.
func (t *Transport) Open(ctx context.Context, req stream.Request) (stream.Source, error) {
	body := runRequest{
		AppName:   req.AppName,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		NewMessage: content{
			Role:  "user",
			Parts: []part{{Text: req.Text}},
		},
		Streaming: req.Streaming,
	}
	return stream.OpenSSE(ctx, t.client, Name, t.baseURL+"/api/run_sse", nil, body, decodeEvent)
}

// CreateSession creates an agent session and returns its id.
func (t *Transport) CreateSession(ctx context.Context, appName, userID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/apps/%s/users/%s/sessions",
		t.baseURL, url.PathEscape(appName), url.PathEscape(userID))

	var out struct {
		ID string `json:"id"`
	}
	if err := stream.PostJSON(ctx, t.client, Name, endpoint, nil, nil, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &stream.TransportError{Transport: Name, Message: "session response without id"}
	}
	return out.ID, nil
}

// decodeEvent maps an agent event. Events without text (tool calls, state deltas) and
// unparsable payloads are skipped.
func decodeEvent(raw sse.Event) (stream.Event, bool, error) {
	if !gjson.Valid(raw.Data) {
		return stream.Event{}, false, nil
	}
	data := gjson.Parse(raw.Data)

	if msg := data.Get("error"); msg.Exists() && msg.String() != "" {
		return stream.Event{Type: stream.EventError, Err: msg.String()}, true, nil
	}

	text := data.Get("content.parts.0.text").String()
	if text == "" {
		return stream.Event{}, false, nil
	}

	if data.Get("partial").Bool() {
		return stream.Event{
			Type:   stream.EventPartial,
			Text:   text,
			TaskID: data.Get("invocationId").String(),
		}, true, nil
	}
	return stream.Event{Type: stream.EventFinal, Text: text, TaskID: data.Get("invocationId").String()}, true, nil
}
