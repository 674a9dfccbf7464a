package backend

import (
	"context"
	"strings"
	"testing"
)

type stubBackend struct {
	name      string
	review    bool
	available bool
}

func (s *stubBackend) Name() string         { return s.name }
func (s *stubBackend) SupportsReview() bool { return s.review }
func (s *stubBackend) Available() bool      { return s.available }
func (s *stubBackend) Generate(context.Context, Request) (*Result, error) {
	return &Result{Backend: s.name}, nil
}

func TestResolveOrderKeepsConfiguredPriority(t *testing.T) {
	bridge := &stubBackend{name: "bridge", available: true}
	chat := &stubBackend{name: "chat", review: true, available: true}

	order, warnings, err := ResolveOrder([]string{"chat", "bridge"}, []Backend{bridge, chat})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(order) != 2 || order[0].Name() != "chat" || order[1].Name() != "bridge" {
		t.Fatalf("unexpected order: %v", names(order))
	}
}

func TestResolveOrderSkipsUnknownWithWarning(t *testing.T) {
	bridge := &stubBackend{name: "bridge"}

	order, warnings, err := ResolveOrder([]string{"bridge", "hosted-v2"}, []Backend{bridge})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 1 || order[0].Name() != "bridge" {
		t.Fatalf("unexpected order: %v", names(order))
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "hosted-v2") {
		t.Fatalf("expected unknown-backend warning, got %v", warnings)
	}
}

func TestResolveOrderDropsDuplicates(t *testing.T) {
	bridge := &stubBackend{name: "bridge"}
	chat := &stubBackend{name: "chat"}

	order, warnings, err := ResolveOrder([]string{"bridge", "chat", "bridge"}, []Backend{bridge, chat})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("expected duplicate dropped, got %v", names(order))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
}

func TestResolveOrderNormalizesNames(t *testing.T) {
	bridge := &stubBackend{name: "bridge"}

	order, _, err := ResolveOrder([]string{"  Bridge "}, []Backend{bridge})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 1 || order[0].Name() != "bridge" {
		t.Fatalf("expected case-insensitive match, got %v", names(order))
	}
}

func TestResolveOrderEmptyFails(t *testing.T) {
	if _, _, err := ResolveOrder([]string{"missing"}, []Backend{&stubBackend{name: "bridge"}}); err == nil {
		t.Fatal("expected error when no configured backend resolves")
	}
}

func TestDescribe(t *testing.T) {
	order := []Backend{
		&stubBackend{name: "bridge", available: true},
		&stubBackend{name: "chat", review: true},
	}
	descriptors := Describe(order)
	if len(descriptors) != 2 {
		t.Fatalf("expected two descriptors, got %d", len(descriptors))
	}
	if descriptors[0].Priority != 1 || descriptors[1].Priority != 2 {
		t.Fatalf("unexpected priorities: %+v", descriptors)
	}
	if !descriptors[0].Available || descriptors[1].Available {
		t.Fatalf("availability not carried through: %+v", descriptors)
	}
	if descriptors[0].SupportsReview || !descriptors[1].SupportsReview {
		t.Fatalf("review capability not carried through: %+v", descriptors)
	}
}

func names(order []Backend) []string {
	out := make([]string, 0, len(order))
	for _, b := range order {
		out = append(out, b.Name())
	}
	return out
}
