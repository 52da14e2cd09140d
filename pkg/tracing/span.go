// Package tracing records lightweight in-process span trees. A scan
// request opens a root span keyed by its request ID, fan-out work hangs
// child spans off it, and the finished tree is written to slog. Sampling
// is process-wide and set once at startup via Configure.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

type spanKey struct{}

type settings struct {
	enabled    bool
	sampleRate float64
}

// Recording defaults to on with no sampling, so tests and tools that never
// call Configure still get spans.
var current atomic.Pointer[settings]

func init() {
	current.Store(&settings{enabled: true, sampleRate: 1})
}

// Configure sets process-wide span recording. With enabled false, or for
// requests that fall outside sampleRate, Start functions return a nil
// span; all Span methods tolerate a nil receiver, so call sites stay
// unconditional.
func Configure(enabled bool, sampleRate float64) {
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1
	}
	current.Store(&settings{enabled: enabled, sampleRate: sampleRate})
}

func sampled() bool {
	s := current.Load()
	if !s.enabled {
		return false
	}
	return s.sampleRate >= 1 || rand.Float64() < s.sampleRate
}

// Span is one timed operation in a trace tree.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
}

// StartSpan opens a root span and stores it in the returned context.
// TraceID is caller-supplied; the request ID is the usual choice. The
// sampling decision for the whole trace is made here.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	if !sampled() {
		return ctx, nil
	}
	span := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey{}, span), span
}

// StartChildSpan hangs a child span off the one in ctx. Inside a recorded
// trace the child is always recorded; without a parent it becomes a
// detached root subject to its own sampling decision.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return StartSpan(ctx, name, "")
	}

	child := newSpan(name, parent.TraceID)
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey{}).(*Span); ok {
		return span
	}
	return nil
}

// End stamps the span once; later calls keep the first result.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.EndTime.IsZero() {
		return
	}
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// SetAttr attaches one key-value attribute.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// Elapsed returns the recorded duration, or time since start for a span
// that has not ended.
func (s *Span) Elapsed() time.Duration {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.Duration
}

// Log writes the span tree to slog at debug level, one record per span,
// parents before children.
func (s *Span) Log() {
	if s == nil {
		return
	}
	type item struct {
		span  *Span
		depth int
	}
	stack := []item{{span: s, depth: 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		attrs := []any{
			"trace_id", it.span.TraceID,
			"span", it.span.Name,
			"duration_ms", it.span.Elapsed().Milliseconds(),
			"depth", it.depth,
		}
		it.span.mu.Lock()
		for k, v := range it.span.Attrs {
			attrs = append(attrs, k, v)
		}
		children := it.span.Children
		it.span.mu.Unlock()

		slog.Debug("span", attrs...)

		// Push in reverse so children log in creation order.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, item{span: children[i], depth: it.depth + 1})
		}
	}
}
