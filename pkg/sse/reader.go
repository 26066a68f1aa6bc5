// Package sse parses text/event-stream bodies on the client side.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Event is one dispatched server-sent event.
type Event struct {
	ID    string
	Type  string
	Data  string
	Retry int
}

// Reader reads events from a stream body. It is not safe for concurrent use.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 32*1024)}
}

// Next blocks until a complete event is available. It returns io.EOF once the stream ends; a
// trailing event without its terminating blank line is discarded.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    strings.Builder
		hasData bool
	)

	for {
		line, err := r.r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		eof := err != nil

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if hasData {
				ev.Data = data.String()
				return ev, nil
			}
			ev = Event{}
			if eof {
				return Event{}, io.EOF
			}
			continue
		}

		if !strings.HasPrefix(line, ":") {
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")

			switch field {
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			case "event":
				ev.Type = value
			case "id":
				if !strings.ContainsRune(value, 0) {
					ev.ID = value
				}
			case "retry":
				if n, convErr := strconv.Atoi(value); convErr == nil {
					ev.Retry = n
				}
			}
		}

		if eof {
			return Event{}, io.EOF
		}
	}
}
