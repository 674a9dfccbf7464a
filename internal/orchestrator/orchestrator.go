package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gameforge/forge/internal/backend"
	"github.com/gameforge/forge/internal/events"
	"github.com/gameforge/forge/internal/session"
	"github.com/gameforge/forge/internal/telemetry"
	"github.com/gameforge/forge/internal/telemetry/invariants"
)

// Options carries optional generation parameters.
type Options struct {
	GameName string
	MaxTurns int
}

// ErrNoReviewBackends reports a ReviewGame call against an order in
// which no backend supports review.
var ErrNoReviewBackends = errors.New("no review-capable backends configured")

// ExhaustionError reports that every candidate backend failed for one
// request. Attempted lists backend names in attempt order.
type ExhaustionError struct {
	Attempted   []string
	LastKind    backend.Kind
	LastMessage string
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("all backends failed (attempted: %s); last error %s: %s",
		strings.Join(e.Attempted, ", "), e.LastKind, e.LastMessage)
}

// EventPublisher publishes lifecycle events for generation flows.
type EventPublisher interface {
	Publish(event events.Event)
}

// Orchestrator routes generation requests through a fixed, priority-ordered
// backend list with deterministic fallback. It owns the backend order and
// records every flow in the session store.
type Orchestrator struct {
	order    []backend.Backend
	sessions session.Store
	bus      EventPublisher
	logger   *log.Logger
	now      func() time.Time
}

// New creates an Orchestrator over an already-resolved backend order.
func New(order []backend.Backend, sessions session.Store, bus EventPublisher, logger *log.Logger) (*Orchestrator, error) {
	if len(order) == 0 {
		return nil, errors.New("at least one backend is required")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if bus == nil {
		return nil, errors.New("event publisher is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		order:    order,
		sessions: sessions,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Describe reports the configured backend order for health and doctor output.
func (o *Orchestrator) Describe() []backend.Descriptor {
	return backend.Describe(o.order)
}

// History returns the recorded turns for a session.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	return o.sessions.History(ctx, sessionID)
}

// GenerateGame turns a natural-language prompt into game source by trying
// each backend in priority order until one succeeds. The user turn is
// recorded before any attempt; an assistant turn is recorded only on
// success.
func (o *Orchestrator) GenerateGame(ctx context.Context, sessionID, prompt string, opts Options) (*backend.Result, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id must not be empty")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt must not be empty")
	}
	req := backend.Request{
		Prompt:    prompt,
		GameName:  opts.GameName,
		MaxTurns:  opts.MaxTurns,
		SessionID: sessionID,
	}
	return o.run(ctx, "generate", sessionID, prompt, req, o.order)
}

// ReviewGame reruns generation over existing code plus feedback, restricted
// to review-capable backends.
func (o *Orchestrator) ReviewGame(ctx context.Context, sessionID, code, feedback string) (*backend.Result, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id must not be empty")
	}
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("code must not be empty")
	}
	if strings.TrimSpace(feedback) == "" {
		return nil, errors.New("feedback must not be empty")
	}

	candidates := make([]backend.Backend, 0, len(o.order))
	for _, candidate := range o.order {
		if candidate.SupportsReview() {
			candidates = append(candidates, candidate)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoReviewBackends
	}

	req := backend.Request{
		ExistingCode: code,
		Feedback:     feedback,
		SessionID:    sessionID,
	}
	return o.run(ctx, "review", sessionID, feedback, req, candidates)
}

func (o *Orchestrator) run(
	ctx context.Context,
	operation string,
	sessionID string,
	userText string,
	req backend.Request,
	candidates []backend.Backend,
) (*backend.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := o.sessions.Append(ctx, sessionID, session.Turn{
		Role: session.RoleUser,
		Text: userText,
		Time: o.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("record user turn: %w", err)
	}

	o.bus.Publish(events.Event{
		Type:       events.EventTypeGenerationStarted,
		EntityType: events.EntitySession,
		EntityID:   sessionID,
		Payload:    events.GenerationStarted{SessionID: sessionID, Operation: operation},
		Severity:   events.SeverityInfo,
	})

	callCtx, call := telemetry.StartGenerationCall(ctx, telemetry.GenerationCallRequest{
		Operation: operation,
		Prompt:    userText,
	})

	resolved := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		resolved = append(resolved, candidate.Name())
	}

	attempted := make([]string, 0, len(candidates))
	var lastErr *backend.Error

	for _, candidate := range candidates {
		name := candidate.Name()
		attempted = append(attempted, name)

		startedAt := o.now()
		result, err := candidate.Generate(callCtx, req)
		elapsed := o.now().Sub(startedAt)

		if err == nil && result != nil {
			call.RecordAttempt(name, elapsed, true)
			o.bus.Publish(attemptEvent(sessionID, name, elapsed, nil))
			invariants.CheckFallbackOrderRespected(callCtx, "orchestrator.run", resolved, attempted)
			return o.finish(ctx, call, sessionID, name, result)
		}

		berr := classify(name, err)
		lastErr = berr
		call.RecordAttempt(name, elapsed, false)
		call.RecordError(string(berr.Kind), berr.Message)
		o.bus.Publish(attemptEvent(sessionID, name, elapsed, berr))

		if berr.Kind == backend.KindUnavailable {
			o.logger.Debug("backend unavailable, falling through",
				"backend", name,
				"session_id", sessionID,
				"reason", berr.Message,
			)
			continue
		}

		logAttempt := o.logger.Error
		if berr.Kind.Routine() {
			logAttempt = o.logger.Warn
		}
		logAttempt("backend attempt failed",
			"backend", name,
			"session_id", sessionID,
			"kind", string(berr.Kind),
			"error", berr.Message,
			"raw", berr.Raw,
		)
	}

	invariants.CheckFallbackOrderRespected(callCtx, "orchestrator.run", resolved, attempted)

	failure := &ExhaustionError{Attempted: attempted}
	if lastErr != nil {
		failure.LastKind = lastErr.Kind
		failure.LastMessage = lastErr.Message
	}
	call.End("", nil, failure)

	o.bus.Publish(events.Event{
		Type:       events.EventTypeGenerationFailed,
		EntityType: events.EntitySession,
		EntityID:   sessionID,
		Payload: events.GenerationFailed{
			SessionID: sessionID,
			Attempted: attempted,
			Kind:      string(failure.LastKind),
			Message:   failure.LastMessage,
		},
		Severity: events.SeverityError,
	})
	o.logger.Error("all backends exhausted",
		"session_id", sessionID,
		"attempted", strings.Join(attempted, ","),
		"last_kind", string(failure.LastKind),
		"last_error", failure.LastMessage,
	)
	return nil, failure
}

func (o *Orchestrator) finish(
	ctx context.Context,
	call *telemetry.GenerationCall,
	sessionID string,
	backendName string,
	result *backend.Result,
) (*backend.Result, error) {
	result.Backend = backendName
	invariants.CheckResultComplete(ctx, "orchestrator.finish", backendName,
		strings.TrimSpace(result.Code) != "", strings.TrimSpace(result.Summary) != "")

	if err := o.sessions.Append(ctx, sessionID, session.Turn{
		Role:    session.RoleAssistant,
		Text:    result.Summary,
		Backend: backendName,
		Time:    o.now().UTC(),
	}); err != nil {
		call.End(result.Summary, nil, err)
		return nil, fmt.Errorf("record assistant turn: %w", err)
	}
	call.End(result.Summary, nil, nil)

	o.bus.Publish(events.Event{
		Type:       events.EventTypeGenerationCompleted,
		EntityType: events.EntitySession,
		EntityID:   sessionID,
		Payload: events.GenerationCompleted{
			SessionID: sessionID,
			Backend:   backendName,
			Filename:  result.Filename,
			Summary:   result.Summary,
		},
		Severity: events.SeverityInfo,
	})
	o.logger.Info("generation completed",
		"backend", backendName,
		"session_id", sessionID,
		"filename", result.Filename,
	)
	return result, nil
}

// classify normalizes whatever a backend returned into a typed error. A
// backend that breaks the contract (untyped error, or nil result with nil
// error) is treated as malformed output so it logs loudly.
func classify(name string, err error) *backend.Error {
	if berr, ok := backend.AsError(err); ok {
		return berr
	}
	if err != nil {
		return &backend.Error{Backend: name, Kind: backend.KindMalformedOutput, Message: err.Error()}
	}
	return &backend.Error{Backend: name, Kind: backend.KindMalformedOutput, Message: "backend returned no result"}
}

func attemptEvent(sessionID, name string, elapsed time.Duration, berr *backend.Error) events.Event {
	payload := events.BackendAttempt{
		SessionID: sessionID,
		Backend:   name,
		Duration:  elapsed,
		Success:   berr == nil,
	}
	severity := events.SeverityInfo
	if berr != nil {
		payload.Kind = string(berr.Kind)
		payload.Message = berr.Message
		if berr.Kind != backend.KindUnavailable {
			severity = events.SeverityWarn
		}
	}
	return events.Event{
		Type:       events.EventTypeBackendAttempt,
		EntityType: events.EntityBackend,
		EntityID:   name,
		Payload:    payload,
		Severity:   severity,
	}
}
