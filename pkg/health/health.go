// Package health aggregates dependency probes into liveness and readiness
// endpoints. Services register a Check per dependency; the Checker fans the
// probes out concurrently, bounds each one, and reports the worst status.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/respond"
)

// Status is the health of a component or of the service overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// checkTimeout bounds each probe so one stuck dependency cannot stall the
// whole report.
const checkTimeout = 3 * time.Second

// Check probes a single dependency and returns its status.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is the result of one probe. Latency is filled in by the
// Checker.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report aggregates all probes. Status is the worst component status.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker runs registered probes concurrently on demand.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	started time.Time
}

// NewChecker creates a Checker with no probes registered.
func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]Check),
		started: time.Now(),
	}
}

// Register adds a named probe. Registering the same name twice replaces
// the earlier probe.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all probes concurrently, each under its own deadline, and
// aggregates them into a Report.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	probes := make([]Check, 0, len(c.checks))
	for name, probe := range c.checks {
		names = append(names, name)
		probes = append(probes, probe)
	}
	c.mu.RUnlock()

	type outcome struct {
		name   string
		result ComponentHealth
	}
	results := make(chan outcome, len(probes))
	for i := range probes {
		go func(name string, probe Check) {
			probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			r := probe(probeCtx)
			r.Latency = time.Since(start).Round(time.Millisecond).String()
			results <- outcome{name: name, result: r}
		}(names[i], probes[i])
	}

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(probes)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for range probes {
		out := <-results
		report.Components[out.name] = out.result
		if severity(out.result.Status) > severity(report.Status) {
			report.Status = out.result.Status
		}
	}
	return report
}

func severity(s Status) int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// LiveHandler returns the liveness endpoint. It only proves the process is
// serving requests; dependency state belongs to readiness.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler returns the readiness endpoint. Degraded components keep
// the service ready: a scanner without its cache still serves scans, so
// only a hard dependency failure takes the service out of rotation.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)

		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(w, status, report)
	}
}
