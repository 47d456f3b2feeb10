// Package sse writes the named-event stream the grading engine drives:
// start, thinking, token, result, error. Grounded on the teacher's
// events.CloudEvent.SSEFormat and handlers.HandleSSEStream.
package sse

import (
	"fmt"
	"log/slog"
	"net/http"
)

// Writer wraps an http.ResponseWriter/Flusher pair. A write failure
// (client disconnect) is swallowed, matching the spec's IOException
// semantics: forwarding becomes best-effort and silently drops.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// New prepares w for an SSE stream, setting the standard headers. Returns
// nil if w does not support flushing.
func New(w http.ResponseWriter) *Writer {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}
}

func (s *Writer) send(event, data string) {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		slog.Debug("sse: write failed, dropping", "event", event, "error", err)
		return
	}
	s.flusher.Flush()
}

func (s *Writer) Start() { s.send("start", "{}") }

func (s *Writer) Thinking(message string) { s.send("thinking", message) }

func (s *Writer) Token(fragment string) { s.send("token", fragment) }

// Result sends the terminal result event with a pre-serialized JSON
// payload.
func (s *Writer) Result(jsonPayload string) { s.send("result", jsonPayload) }

// Error sends the terminal error event.
func (s *Writer) Error(message string) { s.send("error", message) }
