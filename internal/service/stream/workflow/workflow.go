// Package workflow streams responses from a workflow-app API (bearer key auth, task based stop).
package workflow

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
	"github.com/zhouzirui/travel-assistant/backend/pkg/sse"
)

const Name = "workflow"

// Transport posts to {base}/workflows/run and stops tasks via {base}/workflows/tasks/{id}/stop.
type Transport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func New(baseURL, apiKey string, client *http.Client) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (t *Transport) Name() string { return Name }

type runRequest struct {
	Inputs       map[string]string `json:"inputs"`
	ResponseMode string            `json:"response_mode"`
	User         string            `json:"user"`
}

func (t *Transport) Open(ctx context.Context, req stream.Request) (stream.Source, error) {
	inputs := map[string]string{"query": req.Text}
	if req.Mode != "" {
		inputs["mode"] = req.Mode
	}
	responseMode := "blocking"
	if req.Streaming {
		responseMode = "streaming"
	}
	body := runRequest{Inputs: inputs, ResponseMode: responseMode, User: req.UserID}
	return stream.OpenSSE(ctx, t.client, Name, t.baseURL+"/workflows/run", t.header(), body, decodeEvent)
}

// Stop asks the upstream to stop generating the task.
func (t *Transport) Stop(ctx context.Context, taskID string) error {
	endpoint := t.baseURL + "/workflows/tasks/" + url.PathEscape(taskID) + "/stop"
	return stream.PostJSON(ctx, t.client, Name, endpoint, t.header(), map[string]string{"user": "user"}, nil)
}

func (t *Transport) header() http.Header {
	h := http.Header{}
	if t.apiKey != "" {
		h.Set("Authorization", "Bearer "+t.apiKey)
	}
	return h
}

func decodeEvent(raw sse.Event) (stream.Event, bool, error) {
	if !gjson.Valid(raw.Data) {
		return stream.Event{}, false, nil
	}
	data := gjson.Parse(raw.Data)
	taskID := data.Get("task_id").String()

	switch data.Get("event").String() {
	case "text_chunk":
		text := data.Get("data.text").String()
		if text == "" {
			return stream.Event{}, false, nil
		}
		return stream.Event{Type: stream.EventPartial, Text: text, TaskID: taskID}, true, nil
	case "workflow_finished":
		// a failed run finishes with an error instead of outputs
		if msg := data.Get("data.error").String(); msg != "" {
			return stream.Event{Type: stream.EventError, Err: msg, TaskID: taskID}, true, nil
		}
		return stream.Event{
			Type:   stream.EventFinal,
			Text:   data.Get("data.outputs.answer").String(),
			TaskID: taskID,
		}, true, nil
	case "message_end":
		return stream.Event{Type: stream.EventEnd, TaskID: taskID}, true, nil
	case "error":
		msg := data.Get("message").String()
		if msg == "" {
			msg = "upstream error"
		}
		return stream.Event{Type: stream.EventError, Err: msg, TaskID: taskID}, true, nil
	default:
		return stream.Event{}, false, nil
	}
}
