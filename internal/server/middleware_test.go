package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/gameforge/forge/internal/backend"
	"github.com/gameforge/forge/internal/store"
	"github.com/gameforge/forge/internal/templates"
)

func TestRequestIDMintedAndEchoed(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeGenerator{descriptors: []backend.Descriptor{{Name: "chat", Available: true}}})
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("no request id minted")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-7")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-7" {
		t.Errorf("request id = %q, want req-7", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeGenerator{})
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/generate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost) {
		t.Errorf("Allow-Methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestCORSUnknownOriginPassesThrough(t *testing.T) {
	gen := &fakeGenerator{descriptors: []backend.Descriptor{{Name: "chat", Available: true}}}
	srv, _, _ := newTestServer(t, gen)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("CORS headers set for unknown origin")
	}
}

func TestCORSWildcardOrigin(t *testing.T) {
	files, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	library, err := templates.Load()
	if err != nil {
		t.Fatalf("templates.Load: %v", err)
	}
	var buf bytes.Buffer
	srv, err := New(Config{AllowedOrigins: []string{"*"}},
		&fakeGenerator{descriptors: []backend.Descriptor{{Name: "chat", Available: true}}},
		files, library, &captureBus{}, log.New(&buf))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://anywhere.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestAccessLogRecordsRequests(t *testing.T) {
	files, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	library, err := templates.Load()
	if err != nil {
		t.Fatalf("templates.Load: %v", err)
	}
	var buf bytes.Buffer
	srv, err := New(Config{},
		&fakeGenerator{descriptors: []backend.Descriptor{{Name: "chat", Available: true}}},
		files, library, &captureBus{}, log.New(&buf))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	logged := buf.String()
	if !strings.Contains(logged, "request handled") || !strings.Contains(logged, "/health") {
		t.Errorf("access log = %q", logged)
	}
	if !strings.Contains(logged, "200") {
		t.Errorf("access log missing status: %q", logged)
	}
}
