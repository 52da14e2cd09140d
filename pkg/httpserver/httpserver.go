// Package httpserver runs the platform's HTTP listeners with one shared
// lifecycle: serve until the context is cancelled, then drain in-flight
// requests within a deadline. Every service binary hands its listeners
// to an errgroup through Run, so a failed bind or a signal winds the
// whole process down the same way.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Options bounds a listener. Zero timeouts mean unlimited, as in net/http.
type Options struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Run serves handler on opts.Port until ctx is cancelled, then shuts
// down gracefully. It returns nil after a clean drain and the bind,
// serve, or drain error otherwise, so a non-nil return always means
// something actually broke.
func Run(ctx context.Context, name string, handler http.Handler, opts Options) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.Port))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return serve(ctx, name, ln, handler, opts)
}

func serve(ctx context.Context, name string, ln net.Listener, handler http.Handler, opts Options) error {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	done := make(chan error, 1)
	go func() { done <- server.Serve(ln) }()
	slog.Info("http server listening", "name", name, "addr", ln.Addr())

	select {
	case err := <-done:
		return fmt.Errorf("%s: %w", name, err)
	case <-ctx.Done():
	}

	drainCtx := context.Background()
	if opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(drainCtx, opts.ShutdownTimeout)
		defer cancel()
	}
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("%s: draining: %w", name, err)
	}
	if err := <-done; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", name, err)
	}
	slog.Info("http server stopped", "name", name)
	return nil
}
