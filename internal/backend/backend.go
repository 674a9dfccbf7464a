package backend

import (
	"context"
	"time"
)

// Request carries one generation or review exchange to a backend. It is
// immutable once constructed; review requests additionally carry the code
// under review and the reviewer's feedback.
type Request struct {
	Prompt       string
	ExistingCode string
	Feedback     string
	GameName     string
	MaxTurns     int
	SessionID    string
}

// Review reports whether the request asks for an improvement pass over
// existing code rather than a fresh generation.
func (r Request) Review() bool {
	return r.ExistingCode != ""
}

// TraceEvent is one ordered backend-side observation attached to a result.
// Trace events exist for observability only and are never parsed downstream.
type TraceEvent struct {
	Time    time.Time
	Kind    string
	Message string
}

// Result is the typed outcome of a successful generation or review.
type Result struct {
	Code     string
	Filename string
	Summary  string
	Backend  string
	Trace    []TraceEvent
}

// Descriptor identifies one configured backend within the fallback order.
type Descriptor struct {
	Name           string
	Priority       int
	SupportsReview bool
	Available      bool
}

// Backend is one interchangeable generator implementation. Availability is
// resolved once at construction time, not probed per call; Generate on an
// unavailable backend returns an Error with KindUnavailable.
type Backend interface {
	Name() string
	SupportsReview() bool
	Available() bool
	Generate(ctx context.Context, req Request) (*Result, error)
}
