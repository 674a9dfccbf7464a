package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorMessageBytes = 512

var (
	sensitiveInlinePattern = regexp.MustCompile(`(?i)(api[_-]?key|token|password|secret|authorization)\s*[:=]\s*([^\s,;]+)`)
	bearerTokenPattern     = regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._\-]+`)
	apiTokenPattern        = regexp.MustCompile(`\bsk-[A-Za-z0-9]{10,}\b`)
)

// GenerationCallRequest defines telemetry metadata for one generation
// exchange routed through a backend.
type GenerationCallRequest struct {
	Operation    string
	Model        string
	Backend      string
	Prompt       string
	PromptTokens int
}

// GenerationCall tracks one generation.call span lifecycle.
type GenerationCall struct {
	span         trace.Span
	startedAt    time.Time
	promptTokens int

	mu       sync.Mutex
	attempts int
	ended    bool
}

type generationCallContextKey struct{}

// StartGenerationCall starts a generation.call span and returns a context
// carrying the tracker. The prompt itself never lands in the span; only its
// hash and a token estimate do.
func StartGenerationCall(ctx context.Context, req GenerationCallRequest) (context.Context, *GenerationCall) {
	if ctx == nil {
		ctx = context.Background()
	}

	model := normalizeOrUnknown(req.Model)
	backendName := normalizeOrUnknown(req.Backend)
	promptTokens := req.PromptTokens
	if promptTokens < 0 {
		promptTokens = 0
	}
	if promptTokens == 0 {
		promptTokens = EstimateTokenCount(req.Prompt)
	}

	attrs := []attribute.KeyValue{
		attribute.String("model_name", model),
		attribute.String("backend", backendName),
		attribute.Int("prompt_tokens", promptTokens),
		attribute.String("prompt_hash", hashPrompt(req.Prompt)),
	}
	if operation := strings.TrimSpace(req.Operation); operation != "" {
		attrs = append(attrs, attribute.String("operation", operation))
	}

	spanCtx, span := otel.Tracer("forge/telemetry").Start(
		ctx,
		"generation.call",
		trace.WithAttributes(attrs...),
	)

	call := &GenerationCall{
		span:         span,
		startedAt:    time.Now(),
		promptTokens: promptTokens,
	}

	return context.WithValue(spanCtx, generationCallContextKey{}, call), call
}

// GenerationCallFromContext returns the call tracker if one exists on the
// context.
func GenerationCallFromContext(ctx context.Context) *GenerationCall {
	if ctx == nil {
		return nil
	}
	call, ok := ctx.Value(generationCallContextKey{}).(*GenerationCall)
	if !ok {
		return nil
	}
	return call
}

// RecordAttempt adds a backend-attempt event to the active span.
func (c *GenerationCall) RecordAttempt(backendName string, duration time.Duration, success bool) {
	if c == nil || c.span == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.attempts++

	durationMS := duration.Milliseconds()
	if durationMS < 0 {
		durationMS = 0
	}

	c.span.AddEvent(
		"generation.attempt",
		trace.WithAttributes(
			attribute.String("backend", normalizeOrUnknown(backendName)),
			attribute.Int64("duration_ms", durationMS),
			attribute.Bool("success", success),
		),
	)
}

// RecordError adds a redacted error event to the active span.
func (c *GenerationCall) RecordError(errorKind string, errorMessage string) {
	if c == nil || c.span == nil {
		return
	}

	c.span.AddEvent(
		"generation.error",
		trace.WithAttributes(
			attribute.String("error_kind", normalizeOrUnknown(errorKind)),
			attribute.String("error_message", redactSecrets(errorMessage)),
		),
	)
	c.span.SetStatus(codes.Error, normalizeOrUnknown(errorKind))
}

// End finalizes the span with latency, token counts, and attempt count.
func (c *GenerationCall) End(responseText string, responseTokens *int, err error) {
	if c == nil || c.span == nil {
		return
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	attempts := c.attempts
	promptTokens := c.promptTokens
	c.mu.Unlock()

	durationMS := time.Since(c.startedAt).Milliseconds()
	if durationMS < 0 {
		durationMS = 0
	}

	resolvedResponseTokens, includeResponseTokens := resolveResponseTokens(responseText, responseTokens)
	totalTokens := promptTokens + resolvedResponseTokens

	attrs := []attribute.KeyValue{
		attribute.Int64("latency_ms", durationMS),
		attribute.Int("attempt_count", attempts),
		attribute.Int("total_tokens", totalTokens),
	}
	if includeResponseTokens {
		attrs = append(attrs, attribute.Int("response_tokens", resolvedResponseTokens))
	}
	c.span.SetAttributes(attrs...)

	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, redactSecrets(err.Error()))
	} else {
		c.span.SetStatus(codes.Ok, "generation call completed")
	}
	c.span.End()
}

// EstimateTokenCount estimates token count using a deterministic
// words-to-tokens heuristic.
func EstimateTokenCount(text string) int {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return 0
	}
	estimated := (len(fields)*4 + 2) / 3
	if estimated < 1 {
		return 1
	}
	return estimated
}

func resolveResponseTokens(responseText string, responseTokens *int) (int, bool) {
	if responseTokens != nil {
		if *responseTokens < 0 {
			return 0, false
		}
		return *responseTokens, true
	}

	estimated := EstimateTokenCount(responseText)
	if estimated <= 0 {
		return 0, false
	}
	return estimated, true
}

func hashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(redactSecrets(prompt)))
	return hex.EncodeToString(sum[:])
}

func redactSecrets(input string) string {
	redacted := strings.TrimSpace(input)
	if redacted == "" {
		return ""
	}
	redacted = sensitiveInlinePattern.ReplaceAllString(redacted, "$1=<redacted>")
	redacted = bearerTokenPattern.ReplaceAllString(redacted, "bearer <redacted>")
	redacted = apiTokenPattern.ReplaceAllString(redacted, "<redacted>")
	if len(redacted) > maxErrorMessageBytes {
		return redacted[:maxErrorMessageBytes-len("...[truncated]")] + "...[truncated]"
	}
	return redacted
}

func normalizeOrUnknown(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
