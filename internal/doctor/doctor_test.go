package doctor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gameforge/forge/internal/backend"
	"github.com/gameforge/forge/internal/events"
)

func staticCheck(name string, status Status) Check {
	return Check{
		Name: name,
		Run: func(context.Context) Finding {
			return Finding{Status: status, Detail: string(status)}
		},
	}
}

func TestNewRunnerValidatesInputsAndDefaults(t *testing.T) {
	bus := &fakeEventBus{}

	if _, err := NewRunner(nil, Config{}, staticCheck("a", StatusPass)); err == nil {
		t.Fatal("expected error for nil bus")
	}
	if _, err := NewRunner(bus, Config{}); err == nil {
		t.Fatal("expected error for empty check list")
	}
	if _, err := NewRunner(bus, Config{}, Check{Name: "nameless"}); err == nil {
		t.Fatal("expected error for check without run function")
	}

	runner, err := NewRunner(bus, Config{}, staticCheck("a", StatusPass))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if runner.interval != defaultInterval {
		t.Fatalf("interval = %s, want %s", runner.interval, defaultInterval)
	}
}

func TestRunOnceAggregatesFindingsInOrder(t *testing.T) {
	bus := &fakeEventBus{}
	runner, err := NewRunner(bus, Config{},
		staticCheck("first", StatusPass),
		staticCheck("second", StatusWarn),
		staticCheck("third", StatusFail),
	)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	runner.now = func() time.Time { return now }

	report, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}

	if report.Healthy {
		t.Fatal("report healthy despite a failed check")
	}
	if len(report.Checks) != 3 {
		t.Fatalf("checks = %d, want 3", len(report.Checks))
	}
	for i, want := range []string{"first", "second", "third"} {
		if report.Checks[i].Name != want {
			t.Fatalf("checks[%d] = %s, want %s", i, report.Checks[i].Name, want)
		}
	}
	if report.Warnings() != 1 || report.Failures() != 1 {
		t.Fatalf("warnings = %d failures = %d, want 1 and 1", report.Warnings(), report.Failures())
	}
	if !report.RanAt.Equal(now) {
		t.Fatalf("RanAt = %s, want %s", report.RanAt, now)
	}

	published := bus.byType(events.EventTypeHealthCheck)
	if len(published) != 1 {
		t.Fatalf("health check events = %d, want 1", len(published))
	}
	if published[0].Severity != events.SeverityError {
		t.Fatalf("severity = %s, want %s", published[0].Severity, events.SeverityError)
	}
}

func TestRunOnceHealthyPublishesInfo(t *testing.T) {
	bus := &fakeEventBus{}
	runner, err := NewRunner(bus, Config{},
		staticCheck("a", StatusPass),
		staticCheck("b", StatusWarn),
	)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	report, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !report.Healthy {
		t.Fatal("warnings alone should leave the report healthy")
	}
	published := bus.byType(events.EventTypeHealthCheck)
	if len(published) != 1 || published[0].Severity != events.SeverityInfo {
		t.Fatalf("published = %+v, want one info event", published)
	}
}

func TestRunOnceAbortsWhenCancelled(t *testing.T) {
	bus := &fakeEventBus{}
	runner, err := NewRunner(bus, Config{}, staticCheck("a", StatusPass))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runner.RunOnce(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestStartRunsUntilCancelled(t *testing.T) {
	bus := &fakeEventBus{}
	runner, err := NewRunner(bus, Config{Interval: 20 * time.Millisecond}, staticCheck("a", StatusPass))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Start(ctx)
	}()

	time.Sleep(75 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("doctor start did not stop on context cancellation")
	}
	if count := len(bus.byType(events.EventTypeHealthCheck)); count < 2 {
		t.Fatalf("health check event count = %d, want at least 2", count)
	}
}

func TestBackendChecksReportAvailability(t *testing.T) {
	checks := BackendChecks([]backend.Backend{
		&fakeBackend{name: "bridge", available: true, review: true},
		&fakeBackend{name: "chat", available: false, reason: "credential OPENAI_API_KEY not set"},
	})
	if len(checks) != 2 {
		t.Fatalf("checks = %d, want 2", len(checks))
	}

	first := checks[0].Run(context.Background())
	if first.Status != StatusPass || !strings.Contains(first.Detail, "priority 1") {
		t.Fatalf("bridge finding = %+v", first)
	}
	if !strings.Contains(first.Detail, "generate and review") {
		t.Fatalf("bridge detail = %q", first.Detail)
	}

	second := checks[1].Run(context.Background())
	if second.Status != StatusWarn {
		t.Fatalf("chat status = %s, want warn", second.Status)
	}
	if second.Detail != "credential OPENAI_API_KEY not set" {
		t.Fatalf("chat detail = %q", second.Detail)
	}
}

func TestOutputDirCheck(t *testing.T) {
	dir := t.TempDir()
	finding := OutputDirCheck(dir).Run(context.Background())
	if finding.Status != StatusPass {
		t.Fatalf("finding = %+v, want pass", finding)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("probe file left behind: %v", entries)
	}

	blocked := filepath.Join(dir, "occupied")
	if err := os.WriteFile(blocked, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	finding = OutputDirCheck(blocked).Run(context.Background())
	if finding.Status != StatusFail {
		t.Fatalf("finding = %+v, want fail for file in place of directory", finding)
	}

	finding = OutputDirCheck("  ").Run(context.Background())
	if finding.Status != StatusFail {
		t.Fatalf("finding = %+v, want fail for blank directory", finding)
	}
}

func TestEndpointCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	finding := EndpointCheck("chat-endpoint", server.URL, server.Client()).Run(context.Background())
	if finding.Status != StatusPass {
		t.Fatalf("finding = %+v, want pass for responding endpoint", finding)
	}
	if !strings.Contains(finding.Detail, "401") {
		t.Fatalf("detail = %q, want status code recorded", finding.Detail)
	}

	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()
	finding = EndpointCheck("chat-endpoint", deadURL, nil).Run(context.Background())
	if finding.Status != StatusFail {
		t.Fatalf("finding = %+v, want fail for closed endpoint", finding)
	}

	finding = EndpointCheck("otel-collector", "", nil).Run(context.Background())
	if finding.Status != StatusWarn {
		t.Fatalf("finding = %+v, want warn for unset endpoint", finding)
	}
}

func TestScratchCheck(t *testing.T) {
	clean := ScratchCheck(func(context.Context) ([]string, error) {
		return nil, nil
	}).Run(context.Background())
	if clean.Status != StatusPass {
		t.Fatalf("finding = %+v, want pass for no orphans", clean)
	}

	cluttered := ScratchCheck(func(context.Context) ([]string, error) {
		return []string{"/tmp/forge-bridge-1", "/tmp/forge-bridge-2"}, nil
	}).Run(context.Background())
	if cluttered.Status != StatusWarn || !strings.Contains(cluttered.Detail, "2 orphan") {
		t.Fatalf("finding = %+v, want warn naming two orphans", cluttered)
	}

	broken := ScratchCheck(func(context.Context) ([]string, error) {
		return nil, errors.New("temp dir unreadable")
	}).Run(context.Background())
	if broken.Status != StatusFail {
		t.Fatalf("finding = %+v, want fail on scan error", broken)
	}
}

func TestArchiveCheck(t *testing.T) {
	finding := ArchiveCheck(nil).Run(context.Background())
	if finding.Status != StatusWarn {
		t.Fatalf("finding = %+v, want warn when archive absent", finding)
	}

	finding = ArchiveCheck(func(context.Context) error { return nil }).Run(context.Background())
	if finding.Status != StatusPass {
		t.Fatalf("finding = %+v, want pass", finding)
	}

	finding = ArchiveCheck(func(context.Context) error {
		return errors.New("database is locked")
	}).Run(context.Background())
	if finding.Status != StatusFail {
		t.Fatalf("finding = %+v, want fail", finding)
	}
}

func TestConfigFileCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	finding := ConfigFileCheck(path).Run(context.Background())
	if finding.Status != StatusPass || !strings.Contains(finding.Detail, "using defaults") {
		t.Fatalf("finding = %+v, want pass mentioning defaults", finding)
	}

	if err := os.WriteFile(path, []byte("output_dir = \"games\"\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	finding = ConfigFileCheck(path).Run(context.Background())
	if finding.Status != StatusPass || !strings.Contains(finding.Detail, "loaded") {
		t.Fatalf("finding = %+v, want pass mentioning loaded file", finding)
	}

	finding = ConfigFileCheck(dir).Run(context.Background())
	if finding.Status != StatusFail {
		t.Fatalf("finding = %+v, want fail for directory", finding)
	}
}

type fakeBackend struct {
	name      string
	available bool
	review    bool
	reason    string
}

func (f *fakeBackend) Name() string         { return f.name }
func (f *fakeBackend) SupportsReview() bool { return f.review }
func (f *fakeBackend) Available() bool      { return f.available }
func (f *fakeBackend) Reason() string       { return f.reason }

func (f *fakeBackend) Generate(context.Context, backend.Request) (*backend.Result, error) {
	return nil, errors.New("not implemented")
}

type fakeEventBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakeEventBus) Publish(event events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEventBus) byType(eventType string) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []events.Event
	for _, event := range f.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}
