package dispatch

import (
	"fmt"
	"io"
	"net/http"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// encodeError is returned by sseWriter.write when an event cannot be
// serialized. Nothing has been written in that case.
type encodeError struct{ err error }

func (e *encodeError) Error() string { return "encode event: " + e.err.Error() }
func (e *encodeError) Unwrap() error { return e.err }

// sseWriter writes AG-UI events as SSE frames: event: TYPE\ndata: JSON\n\n.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (s *sseWriter) write(ev events.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return &encodeError{err: err}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type(), data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) raw(frame string) {
	if _, err := io.WriteString(s.w, frame); err == nil {
		s.flusher.Flush()
	}
}
