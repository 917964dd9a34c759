// Package sse writes Server-Sent Events frames for streaming turn responses.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/convoflow/convoflow/server/chat"
)

// Writer serializes events as SSE frames and flushes each one immediately.
// String payloads (the encoding version header and the terminal sentinel) are
// written literally; every other payload is JSON-encoded.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter creates a writer over the response stream. flusher may be nil when
// the underlying writer does not buffer.
func NewWriter(w io.Writer, flusher http.Flusher) *Writer {
	return &Writer{w: w, flusher: flusher}
}

// PrepareHeaders sets the response headers an event stream requires.
func PrepareHeaders(header http.Header) {
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	// Disable nginx buffering.
	header.Set("X-Accel-Buffering", "no")
}

// WriteEvent writes one event frame and flushes it. A write error means the
// client connection is gone.
func (w *Writer) WriteEvent(event *chat.Event) error {
	if event.Name != "" {
		if _, err := fmt.Fprintf(w.w, "event: %s\n", event.Name); err != nil {
			return errors.Wrap(err, "write event name")
		}
	}

	data, err := encodeData(event.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		return errors.Wrap(err, "write event data")
	}

	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// WriteComment writes an SSE comment line, used for keep-alive pings. Clients
// ignore comment frames.
func (w *Writer) WriteComment(text string) error {
	if _, err := fmt.Fprintf(w.w, ": %s\n\n", text); err != nil {
		return errors.Wrap(err, "write comment")
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

func encodeData(data any) ([]byte, error) {
	if s, ok := data.(string); ok {
		return []byte(s), nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "encode event data")
	}
	return encoded, nil
}
