package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// EventWriter writes server-sent events, flushing after each one.
type EventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewEventWriter sends the event-stream headers and a 200 status. The write
// deadline is cleared because a stream outlives the server's WriteTimeout.
func NewEventWriter(w http.ResponseWriter) (*EventWriter, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, ErrStreamingUnsupported
	}
	rc := http.NewResponseController(w)
	// Not every writer supports deadlines (httptest does not); that is fine.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ew := &EventWriter{w: w, rc: rc}
	return ew, ew.flush()
}

// Event writes one `event: <name>\ndata: <json>\n\n` frame.
func (e *EventWriter) Event(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return e.flush()
}

// Comment writes a comment line, used as a keepalive.
func (e *EventWriter) Comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	return e.flush()
}

func (e *EventWriter) flush() error {
	return e.rc.Flush()
}
