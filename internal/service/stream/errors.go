package stream

import (
	"errors"
	"fmt"
)

// ErrStopUnsupported is returned by transports that cannot stop a task server-side.
var ErrStopUnsupported = errors.New("stop not supported by transport")

// TransportError is a network, HTTP or upstream stream failure. It always terminates the
// current message.
type TransportError struct {
	Transport  string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: upstream returned %d: %s", e.Transport, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream returned %d", e.Transport, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Transport, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Transport, e.Message)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
