package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/zhouzirui/travel-assistant/backend/pkg/sse"
)

// DecodeFunc maps one raw server-sent event to a transport-neutral event. Returning false skips
// the event.
type DecodeFunc func(sse.Event) (Event, bool, error)

// OpenSSE posts body as JSON to url and returns a Source over the text/event-stream response.
// Non-2xx responses and other content types are reported as *TransportError.
func OpenSSE(ctx context.Context, client *http.Client, transport, url string, header http.Header, body any, decode DecodeFunc) (Source, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", transport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Transport: transport, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Transport: transport, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{
			Transport:  transport,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, &TransportError{
			Transport:  transport,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected content type %q", mediaType),
		}
	}

	return &sseSource{body: resp.Body, reader: sse.NewReader(resp.Body), decode: decode}, nil
}

type sseSource struct {
	body   io.ReadCloser
	reader *sse.Reader
	decode DecodeFunc
}

func (s *sseSource) Next() (Event, error) {
	for {
		raw, err := s.reader.Next()
		if err != nil {
			return Event{}, err
		}
		ev, ok, err := s.decode(raw)
		if err != nil {
			return Event{}, err
		}
		if ok {
			return ev, nil
		}
	}
}

func (s *sseSource) Close() error {
	return s.body.Close()
}

// PostJSON sends body as JSON and decodes a JSON response into out when out is non-nil.
func PostJSON(ctx context.Context, client *http.Client, transport, url string, header http.Header, body, out any) error {
	var payload io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", transport, err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return &TransportError{Transport: transport, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &TransportError{Transport: transport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{
			Transport:  transport,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Transport: transport, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
