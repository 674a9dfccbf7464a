package backend

import (
	"errors"
	"fmt"
)

// Kind classifies a backend failure for the fallback policy.
type Kind string

const (
	// KindUnavailable means the backend cannot be invoked at all, for
	// instance a missing executable or credential.
	KindUnavailable Kind = "unavailable"
	// KindTimeout means the bounded wait for the backend was exceeded.
	KindTimeout Kind = "timeout"
	// KindNonZeroExit means the subprocess ran and signaled failure.
	KindNonZeroExit Kind = "non_zero_exit"
	// KindMalformedOutput means the backend's output could not be parsed
	// into the expected envelope.
	KindMalformedOutput Kind = "malformed_output"
	// KindUpstreamRejected means the backend ran and returned a well-formed
	// failure payload of its own.
	KindUpstreamRejected Kind = "upstream_rejected"
)

// Routine reports whether the kind is an expected, low-noise condition that
// triggers fallback without elevated logging.
func (k Kind) Routine() bool {
	return k == KindUnavailable || k == KindUpstreamRejected
}

// Error is a classified backend failure. Raw carries captured output for
// diagnostics and is never shown to end users.
type Error struct {
	Backend string
	Kind    Kind
	Message string
	Raw     string
}

func (e *Error) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("backend %s: %s: %s", e.Backend, e.Kind, e.Message)
}

// AsError extracts a classified backend failure from an error chain.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
