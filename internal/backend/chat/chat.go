package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gameforge/forge/internal/backend"
	"github.com/gameforge/forge/internal/extract"
)

const (
	// Name identifies the hosted chat-completion backend within the
	// fallback order.
	Name = "chat"
	// DefaultBaseURL targets the standard chat-completion API surface.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used when configuration does not pick one.
	DefaultModel = "gpt-4o"
	// CredentialEnv names the environment variable carrying the API key.
	CredentialEnv = "OPENAI_API_KEY"
	// DefaultTimeout bounds one completion call.
	DefaultTimeout = 2 * time.Minute
)

const systemPrompt = `You are an expert web game developer. You build complete, self-contained HTML5 games using the Phaser 3 engine loaded from its CDN. Reply with the full game document inside a single ` + "```html" + ` fence, followed by a JSON object with "filename" and "summary" fields.`

// Config controls the hosted chat-completion backend.
type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Backend calls a hosted chat-completion service and extracts the generated
// document from its free-form reply. Availability is the presence of a
// credential, resolved at construction.
type Backend struct {
	baseURL string
	model   string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// New builds the backend, filling unset config fields with defaults. An
// empty API key yields a constructed but unavailable backend.
func New(cfg Config) *Backend {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Backend{
		baseURL: baseURL,
		model:   model,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		timeout: timeout,
		client:  client,
	}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) SupportsReview() bool { return true }

func (b *Backend) Available() bool { return b.apiKey != "" }

// Reason explains an unavailable resolution; empty when available.
func (b *Backend) Reason() string {
	if b.Available() {
		return ""
	}
	return fmt.Sprintf("credential %s not set", CredentialEnv)
}

// Model reports the configured completion model, for health reporting.
func (b *Backend) Model() string { return b.model }

func (b *Backend) Generate(ctx context.Context, req backend.Request) (*backend.Result, error) {
	if !b.Available() {
		return nil, &backend.Error{Backend: Name, Kind: backend.KindUnavailable, Message: b.Reason()}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	text, berr := b.complete(ctx, requestPrompt(req))
	if berr != nil {
		return nil, berr
	}

	code, filename, found := extract.Code(text)
	summary, extra := extract.SummaryAndStructured(text)
	if name, ok := extract.StringField(extra, "filename"); ok {
		filename = name
	}

	result := &backend.Result{
		Code:     code,
		Filename: filename,
		Summary:  summary,
		Backend:  Name,
	}
	if !found {
		result.Trace = append(result.Trace, backend.TraceEvent{
			Time:    time.Now(),
			Kind:    "extract",
			Message: "reply carried no document",
		})
	}
	return result, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chatResponse struct {
	Choices []chatChoice  `json:"choices"`
	Error   *chatAPIError `json:"error"`
}

func (b *Backend) complete(ctx context.Context, userPrompt string) (string, *backend.Error) {
	body := chatRequest{
		Model: b.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &backend.Error{Backend: Name, Kind: backend.KindMalformedOutput, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &backend.Error{Backend: Name, Kind: backend.KindUnavailable, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			return "", &backend.Error{Backend: Name, Kind: backend.KindTimeout, Message: fmt.Sprintf("completion did not finish within %s", b.timeout)}
		case errors.Is(ctx.Err(), context.Canceled):
			return "", &backend.Error{Backend: Name, Kind: backend.KindTimeout, Message: "completion canceled"}
		default:
			return "", &backend.Error{Backend: Name, Kind: backend.KindUnavailable, Message: fmt.Sprintf("completion request failed: %v", err)}
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &backend.Error{Backend: Name, Kind: backend.KindMalformedOutput, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &backend.Error{Backend: Name, Kind: backend.KindUpstreamRejected, Message: "rate limited (429)", Raw: string(data)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &backend.Error{
			Backend: Name,
			Kind:    backend.KindUpstreamRejected,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, upstreamMessage(data)),
			Raw:     string(data),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", &backend.Error{Backend: Name, Kind: backend.KindMalformedOutput, Message: fmt.Sprintf("decode response: %v", err), Raw: string(data)}
	}
	if decoded.Error != nil {
		return "", &backend.Error{Backend: Name, Kind: backend.KindUpstreamRejected, Message: decoded.Error.Message, Raw: string(data)}
	}
	if len(decoded.Choices) == 0 {
		return "", &backend.Error{Backend: Name, Kind: backend.KindMalformedOutput, Message: "no completion choices in response", Raw: string(data)}
	}

	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", &backend.Error{Backend: Name, Kind: backend.KindMalformedOutput, Message: "empty completion", Raw: string(data)}
	}
	return text, nil
}

func upstreamMessage(data []byte) string {
	var decoded chatResponse
	if err := json.Unmarshal(data, &decoded); err == nil && decoded.Error != nil && decoded.Error.Message != "" {
		return decoded.Error.Message
	}
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}

// requestPrompt flattens the request for the completion service; review
// requests use a dedicated prompt carrying the code under review.
func requestPrompt(req backend.Request) string {
	if !req.Review() {
		return req.Prompt
	}
	var b strings.Builder
	b.WriteString("Review this game code and improve it based on the feedback provided.\n\n")
	b.WriteString("FEEDBACK:\n")
	b.WriteString(req.Feedback)
	b.WriteString("\n\nCURRENT CODE:\n")
	b.WriteString(req.ExistingCode)
	b.WriteString("\n\nReturn the complete improved game document in a ```html fence, followed by a JSON object with \"filename\" and \"summary\" describing the changes.")
	return b.String()
}

var _ backend.Backend = (*Backend)(nil)
