// Package doctor runs environment diagnostics for the generation pipeline:
// backend availability, output directory writability, endpoint reachability,
// and leftover scratch directories. Probes run concurrently and each outcome
// is reported individually, so one slow endpoint never hides the rest.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gameforge/forge/internal/events"
)

const (
	defaultInterval    = 30 * time.Second
	maxConcurrentRuns  = 4
	defaultProbePrefix = "doctor-probe-"
)

// Status classifies the outcome of one diagnostic probe.
type Status string

const (
	// StatusPass marks a probe that found nothing wrong.
	StatusPass Status = "pass"
	// StatusWarn marks a degraded but non-fatal condition.
	StatusWarn Status = "warn"
	// StatusFail marks a condition that prevents normal operation.
	StatusFail Status = "fail"
)

// Finding is the outcome of one probe.
type Finding struct {
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Check is a single named diagnostic probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) Finding
}

// Result pairs a probe name with its outcome.
type Result struct {
	Name string `json:"name"`
	Finding
}

// Report aggregates one full diagnostic pass. Results keep check
// registration order. Healthy is false only when a probe failed;
// warnings alone leave the report healthy.
type Report struct {
	Healthy bool      `json:"healthy"`
	Checks  []Result  `json:"checks"`
	RanAt   time.Time `json:"ran_at"`
}

// Warnings counts probes that reported StatusWarn.
func (r Report) Warnings() int {
	count := 0
	for _, check := range r.Checks {
		if check.Status == StatusWarn {
			count++
		}
	}
	return count
}

// Failures counts probes that reported StatusFail.
func (r Report) Failures() int {
	count := 0
	for _, check := range r.Checks {
		if check.Status == StatusFail {
			count++
		}
	}
	return count
}

// EventBus publishes health and alert events.
type EventBus interface {
	Publish(event events.Event)
}

// Config controls the watch-mode probe cadence.
type Config struct {
	Interval time.Duration
}

// Runner executes diagnostic probes, once or on a periodic ticker.
type Runner struct {
	checks    []Check
	bus       EventBus
	interval  time.Duration
	now       func() time.Time
	newTicker func(time.Duration) *time.Ticker
}

// NewRunner builds a diagnostics runner over a fixed set of checks.
func NewRunner(bus EventBus, cfg Config, checks ...Check) (*Runner, error) {
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	if len(checks) == 0 {
		return nil, errors.New("at least one check is required")
	}
	for _, check := range checks {
		if check.Name == "" || check.Run == nil {
			return nil, errors.New("every check needs a name and a run function")
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Runner{
		checks:    checks,
		bus:       bus,
		interval:  cfg.Interval,
		now:       time.Now,
		newTicker: time.NewTicker,
	}, nil
}

// Start repeats diagnostic passes until context cancellation.
func (r *Runner) Start(ctx context.Context) {
	if r == nil {
		return
	}
	ticker := r.newTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.bus.Publish(events.Event{
					Type:       events.EventTypeSystemAlert,
					Timestamp:  r.now().UTC(),
					EntityType: "health",
					EntityID:   "doctor",
					Payload: map[string]string{
						"error": err.Error(),
					},
					Severity: events.SeverityError,
				})
			}
		}
	}
}

// RunOnce executes every probe concurrently and publishes the aggregated
// report on the event bus. Probe failures surface in the report; the error
// return is reserved for an aborted pass.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	if r == nil {
		return Report{}, errors.New("doctor runner is nil")
	}

	results := make([]Result, len(r.checks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentRuns)
	for i, check := range r.checks {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			results[i] = Result{Name: check.Name, Finding: check.Run(groupCtx)}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Report{}, fmt.Errorf("diagnostics aborted: %w", err)
	}

	report := Report{
		Healthy: true,
		Checks:  results,
		RanAt:   r.now().UTC(),
	}
	for _, result := range results {
		if result.Status == StatusFail {
			report.Healthy = false
			break
		}
	}

	severity := events.SeverityInfo
	if !report.Healthy {
		severity = events.SeverityError
	}
	r.bus.Publish(events.Event{
		Type:       events.EventTypeHealthCheck,
		Timestamp:  report.RanAt,
		EntityType: "health",
		EntityID:   "doctor",
		Payload:    report,
		Severity:   severity,
	})

	return report, nil
}
