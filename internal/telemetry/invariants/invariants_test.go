package invariants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInvariantViolationAddsEventToActiveSpan(t *testing.T) {
	previous := Enabled()
	SetEnabled(true)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	recorder, restore := installTracerProvider()
	defer restore()

	ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
	InvariantViolation(ctx, InvariantFallbackOrderRespected, SeverityError, ViolationDetails{
		WhatInvariant: "attempts follow resolved order",
		WhereDetected: "orchestrator.run",
		WhyViolated:   "chat attempted before bridge",
		StackTrace:    "trace",
		Additional: map[string]string{
			"session_id": "session-1",
		},
	})
	span.End()

	events := spanEventsByName(recorder, "operation")
	require.Len(t, events, 1)
	assert.Equal(t, "invariant.violation", events[0].Name)
	assert.Equal(t, InvariantFallbackOrderRespected, eventAttr(events[0], "invariant_name"))
	assert.Equal(t, SeverityError, eventAttr(events[0], "severity"))
	assert.Equal(t, "orchestrator.run", eventAttr(events[0], "where_detected"))
	assert.Equal(t, "session-1", eventAttr(events[0], "context.session_id"))
}

func TestInvariantViolationDisabledSkipsEmission(t *testing.T) {
	previous := Enabled()
	SetEnabled(false)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	recorder, restore := installTracerProvider()
	defer restore()

	ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
	InvariantViolation(ctx, InvariantFallbackOrderRespected, SeverityError, ViolationDetails{
		WhereDetected: "orchestrator.run",
	})
	span.End()

	events := spanEventsByName(recorder, "operation")
	require.Len(t, events, 0)
}

func TestPredefinedInvariantChecksEmitExpectedNames(t *testing.T) {
	previous := Enabled()
	SetEnabled(true)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	tests := []struct {
		name          string
		wantInvariant string
		run           func(ctx context.Context) bool
	}{
		{
			name:          "fallback_order_respected",
			wantInvariant: InvariantFallbackOrderRespected,
			run: func(ctx context.Context) bool {
				return CheckFallbackOrderRespected(ctx, "orchestrator.run",
					[]string{"bridge", "chat"}, []string{"chat"})
			},
		},
		{
			name:          "turn_order_preserved",
			wantInvariant: InvariantTurnOrderPreserved,
			run: func(ctx context.Context) bool {
				tail := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
				return CheckTurnOrderPreserved(ctx, "session.memory.append", "session-1",
					tail, tail.Add(-time.Minute))
			},
		},
		{
			name:          "result_complete",
			wantInvariant: InvariantResultComplete,
			run: func(ctx context.Context) bool {
				return CheckResultComplete(ctx, "orchestrator.finish", "chat", false, false)
			},
		},
		{
			name:          "scratch_released",
			wantInvariant: InvariantScratchReleased,
			run: func(ctx context.Context) bool {
				return CheckScratchReleased(ctx, "bridge.invoke", "/tmp/forge-bridge-1", false, "remove failed")
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			recorder, restore := installTracerProvider()
			defer restore()

			ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
			assert.False(t, tt.run(ctx))
			span.End()

			events := spanEventsByName(recorder, "operation")
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantInvariant, eventAttr(events[0], "invariant_name"))
		})
	}
}

func TestChecksPassWithoutEmission(t *testing.T) {
	previous := Enabled()
	SetEnabled(true)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	recorder, restore := installTracerProvider()
	defer restore()

	ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
	tail := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, CheckFallbackOrderRespected(ctx, "orchestrator.run",
		[]string{"bridge", "chat"}, []string{"bridge", "chat"}))
	assert.True(t, CheckFallbackOrderRespected(ctx, "orchestrator.run",
		[]string{"bridge", "chat"}, []string{"bridge"}))
	assert.True(t, CheckTurnOrderPreserved(ctx, "session.memory.append", "session-1",
		tail, tail.Add(time.Second)))
	assert.True(t, CheckTurnOrderPreserved(ctx, "session.memory.append", "session-1",
		time.Time{}, tail))
	assert.True(t, CheckResultComplete(ctx, "orchestrator.finish", "chat", true, false))
	assert.True(t, CheckScratchReleased(ctx, "bridge.invoke", "/tmp/forge-bridge-1", true, ""))
	span.End()

	events := spanEventsByName(recorder, "operation")
	require.Len(t, events, 0)
}

func TestCheckTurnOrderPreservedUsesWarnSeverity(t *testing.T) {
	previous := Enabled()
	SetEnabled(true)
	t.Cleanup(func() {
		SetEnabled(previous)
	})

	recorder, restore := installTracerProvider()
	defer restore()

	ctx, span := otel.Tracer("test/invariants").Start(context.Background(), "operation")
	tail := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, CheckTurnOrderPreserved(ctx, "session.memory.append", "session-1",
		tail, tail.Add(-time.Second)))
	span.End()

	events := spanEventsByName(recorder, "operation")
	require.Len(t, events, 1)
	assert.Equal(t, SeverityWarn, eventAttr(events[0], "severity"))
}

func installTracerProvider() (*tracetest.SpanRecorder, func()) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)

	return recorder, func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			otel.Handle(err)
		}
		otel.SetTracerProvider(previous)
	}
}

func spanEventsByName(recorder *tracetest.SpanRecorder, spanName string) []sdktrace.Event {
	for _, finished := range recorder.Ended() {
		if finished.Name() != spanName {
			continue
		}
		return finished.Events()
	}
	return nil
}

func eventAttr(event sdktrace.Event, key string) string {
	for _, attr := range event.Attributes {
		if string(attr.Key) != key {
			continue
		}
		return attr.Value.AsString()
	}
	return ""
}
