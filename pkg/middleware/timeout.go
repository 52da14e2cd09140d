package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout cuts off handlers that outlive the given budget, answering with
// a JSON 504 when nothing has been written yet. The handler keeps running
// until it observes its cancelled context; any writes it makes after the
// cutoff are discarded rather than interleaved with the timeout response.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			gw := &guardedWriter{ResponseWriter: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if gw.cutOff() {
					slog.Warn("request deadline exceeded",
						"method", r.Method,
						"path", r.URL.Path,
						"timeout", timeout,
						"request_id", GetRequestID(r.Context()),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					w.Write([]byte(`{"error":"request timed out"}`))
				}
			}
		})
	}
}

// guardedWriter serialises access to the response so the timeout path and
// a still-running handler never write concurrently.
type guardedWriter struct {
	http.ResponseWriter
	mu       sync.Mutex
	started  bool
	timedOut bool
}

func (gw *guardedWriter) WriteHeader(code int) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.timedOut {
		return
	}
	gw.started = true
	gw.ResponseWriter.WriteHeader(code)
}

func (gw *guardedWriter) Write(b []byte) (int, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.timedOut {
		return len(b), nil
	}
	gw.started = true
	return gw.ResponseWriter.Write(b)
}

func (gw *guardedWriter) Unwrap() http.ResponseWriter {
	return gw.ResponseWriter
}

// cutOff claims the response for the timeout path. It reports false when
// the handler wrote first, in which case the response is left alone.
func (gw *guardedWriter) cutOff() bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.started {
		return false
	}
	gw.timedOut = true
	return true
}
