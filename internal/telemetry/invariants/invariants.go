// Package invariants emits telemetry events when a runtime invariant of the
// generation pipeline is violated. Checks never change control flow; they
// return false so the caller can decide, and record an invariant.violation
// event on the active span for later correlation.
package invariants

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InvariantFallbackOrderRespected requires backend attempts to follow the
	// resolved priority order with no backend skipped or repeated.
	InvariantFallbackOrderRespected = "fallback_order_respected"
	// InvariantTurnOrderPreserved requires session turns to append in
	// chronological order.
	InvariantTurnOrderPreserved = "turn_order_preserved"
	// InvariantResultComplete requires a successful generation to carry code
	// or at least a summary.
	InvariantResultComplete = "result_complete"
	// InvariantScratchReleased requires bridge scratch directories to be
	// removed once an invocation finishes.
	InvariantScratchReleased = "scratch_released"
)

const (
	// SeverityWarn is used for non-fatal invariant violations.
	SeverityWarn = "warn"
	// SeverityError is used for fatal invariant violations.
	SeverityError = "error"
)

var invariantChecksEnabled atomic.Bool

func init() {
	invariantChecksEnabled.Store(true)
}

// ViolationDetails captures invariant violation context for telemetry events.
type ViolationDetails struct {
	WhatInvariant string
	WhereDetected string
	WhyViolated   string
	StackTrace    string
	Additional    map[string]string
}

// SetEnabled globally enables or disables invariant checks.
func SetEnabled(enabled bool) {
	invariantChecksEnabled.Store(enabled)
}

// Enabled reports whether invariant checks are currently enabled.
func Enabled() bool {
	return invariantChecksEnabled.Load()
}

// InvariantViolation emits an invariant.violation telemetry event on the active span.
// If the context has no active span, a short synthetic span is created for observability.
func InvariantViolation(
	ctx context.Context,
	invariantName string,
	severity string,
	details ViolationDetails,
) {
	if !Enabled() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	invariantName = strings.TrimSpace(invariantName)
	if invariantName == "" {
		invariantName = "unknown_invariant"
	}
	severity = normalizeSeverity(severity)

	attrs := []attribute.KeyValue{
		attribute.String("invariant_name", invariantName),
		attribute.String("severity", severity),
		attribute.String("what_invariant", strings.TrimSpace(details.WhatInvariant)),
		attribute.String("where_detected", strings.TrimSpace(details.WhereDetected)),
		attribute.String("why_violated", strings.TrimSpace(details.WhyViolated)),
	}
	if stack := strings.TrimSpace(details.StackTrace); stack != "" {
		attrs = append(attrs, attribute.String("stack_trace", stack))
	}

	if len(details.Additional) > 0 {
		keys := make([]string, 0, len(details.Additional))
		for key := range details.Additional {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := strings.TrimSpace(details.Additional[key])
			if value == "" {
				continue
			}
			attrs = append(attrs, attribute.String("context."+key, value))
		}
	}

	span := trace.SpanFromContext(ctx)
	if span != nil && span.SpanContext().IsValid() {
		span.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
		return
	}

	tracedCtx, temporarySpan := otel.Tracer("forge/invariants").Start(ctx, "invariant.violation")
	defer temporarySpan.End()
	temporarySpan.AddEvent("invariant.violation", trace.WithAttributes(attrs...))
	_ = tracedCtx
}

// CheckFallbackOrderRespected validates the fallback_order_respected
// invariant. Attempted names must be a prefix of the resolved order.
func CheckFallbackOrderRespected(
	ctx context.Context,
	whereDetected string,
	resolved []string,
	attempted []string,
) bool {
	mismatch := ""
	switch {
	case len(attempted) > len(resolved):
		mismatch = fmt.Sprintf("attempted %d backends but only %d were resolved", len(attempted), len(resolved))
	default:
		for i, name := range attempted {
			if name != resolved[i] {
				mismatch = fmt.Sprintf("attempt %d hit %q, resolved order expected %q", i+1, name, resolved[i])
				break
			}
		}
	}
	if mismatch == "" {
		return true
	}

	InvariantViolation(ctx, InvariantFallbackOrderRespected, SeverityError, ViolationDetails{
		WhatInvariant: "backend attempts follow the resolved priority order",
		WhereDetected: whereDetected,
		WhyViolated:   mismatch,
		Additional: map[string]string{
			"resolved":  strings.Join(resolved, ","),
			"attempted": strings.Join(attempted, ","),
		},
	})
	return false
}

// CheckTurnOrderPreserved validates the turn_order_preserved invariant.
func CheckTurnOrderPreserved(
	ctx context.Context,
	whereDetected string,
	sessionID string,
	previous time.Time,
	next time.Time,
) bool {
	if previous.IsZero() || !next.Before(previous) {
		return true
	}
	InvariantViolation(ctx, InvariantTurnOrderPreserved, SeverityWarn, ViolationDetails{
		WhatInvariant: "session turns append in chronological order",
		WhereDetected: whereDetected,
		WhyViolated: fmt.Sprintf("turn at %s precedes the stored tail at %s",
			next.UTC().Format(time.RFC3339Nano), previous.UTC().Format(time.RFC3339Nano)),
		Additional: map[string]string{
			"session_id": strings.TrimSpace(sessionID),
		},
	})
	return false
}

// CheckResultComplete validates the result_complete invariant.
func CheckResultComplete(
	ctx context.Context,
	whereDetected string,
	backendName string,
	hasCode bool,
	hasSummary bool,
) bool {
	if hasCode || hasSummary {
		return true
	}
	InvariantViolation(ctx, InvariantResultComplete, SeverityWarn, ViolationDetails{
		WhatInvariant: "a successful generation carries code or a summary",
		WhereDetected: whereDetected,
		WhyViolated:   "backend reported success with neither code nor summary",
		Additional: map[string]string{
			"backend": strings.TrimSpace(backendName),
		},
	})
	return false
}

// CheckScratchReleased validates the scratch_released invariant.
func CheckScratchReleased(
	ctx context.Context,
	whereDetected string,
	path string,
	released bool,
	why string,
) bool {
	if released {
		return true
	}
	InvariantViolation(ctx, InvariantScratchReleased, SeverityWarn, ViolationDetails{
		WhatInvariant: "scratch directories are removed when an invocation finishes",
		WhereDetected: whereDetected,
		WhyViolated:   firstNonEmpty(why, "scratch directory still present after invocation"),
		Additional: map[string]string{
			"path": strings.TrimSpace(path),
		},
	})
	return false
}

func normalizeSeverity(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case SeverityWarn:
		return SeverityWarn
	case SeverityError:
		return SeverityError
	default:
		return SeverityError
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
