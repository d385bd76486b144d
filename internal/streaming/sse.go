package streaming

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// SSEWriter writes events as Server-Sent Events and flushes after each one.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	seq     uint64
	wrote   bool
	logger  *zap.Logger
}

// NewSSEWriter sets the event-stream headers. Nothing is written until the first event.
func NewSSEWriter(w http.ResponseWriter, logger *zap.Logger) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &SSEWriter{w: w, flusher: flusher, logger: logger}, nil
}

// Emit writes one event. It fails once ctx is done so producers stop promptly on disconnect.
func (s *SSEWriter) Emit(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, evt.Type, evt.Marshal()); err != nil {
		s.logger.Debug("SSE write failed", zap.Error(err))
		return err
	}
	s.wrote = true
	s.flusher.Flush()
	return nil
}

// Started reports whether anything, heartbeats included, has been written. After that
// the status code is fixed and failures can only be reported in-band.
func (s *SSEWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wrote
}

// Heartbeat writes comment lines every interval until ctx is done, keeping proxies from
// closing an idle connection while the planner or search is running. Callers must wait
// for it to return before releasing the ResponseWriter.
func (s *SSEWriter) Heartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	hb := time.NewTicker(interval)
	defer hb.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hb.C:
			s.mu.Lock()
			if ctx.Err() != nil {
				s.mu.Unlock()
				return
			}
			_, err := fmt.Fprint(s.w, ": ping\n\n")
			if err == nil {
				s.wrote = true
				s.flusher.Flush()
			}
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
