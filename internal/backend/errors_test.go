package backend

import (
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := &Error{Backend: "bridge", Kind: KindNonZeroExit, Message: "exit status 2"}
	want := "backend bridge: non_zero_exit: exit status 2"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}

	bare := &Error{Kind: KindTimeout, Message: "deadline exceeded"}
	if bare.Error() != "timeout: deadline exceeded" {
		t.Fatalf("unexpected bare format %q", bare.Error())
	}
}

func TestAsErrorUnwrapsChain(t *testing.T) {
	inner := &Error{Backend: "chat", Kind: KindUpstreamRejected, Message: "rate limited"}
	wrapped := fmt.Errorf("generate: %w", inner)

	be, ok := AsError(wrapped)
	if !ok {
		t.Fatal("expected backend error in chain")
	}
	if be.Kind != KindUpstreamRejected || be.Backend != "chat" {
		t.Fatalf("unexpected error %+v", be)
	}
}

func TestAsErrorRejectsForeignErrors(t *testing.T) {
	if _, ok := AsError(fmt.Errorf("plain failure")); ok {
		t.Fatal("expected no backend error in a plain chain")
	}
}

func TestKindRoutine(t *testing.T) {
	routine := []Kind{KindUnavailable, KindUpstreamRejected}
	for _, k := range routine {
		if !k.Routine() {
			t.Fatalf("expected %s to be routine", k)
		}
	}
	loud := []Kind{KindTimeout, KindNonZeroExit, KindMalformedOutput}
	for _, k := range loud {
		if k.Routine() {
			t.Fatalf("expected %s to be logged loudly", k)
		}
	}
}

func TestRequestReview(t *testing.T) {
	if (Request{Prompt: "make pong"}).Review() {
		t.Fatal("fresh prompt misclassified as review")
	}
	if !(Request{ExistingCode: "<html></html>", Feedback: "add sound"}).Review() {
		t.Fatal("review request not recognized")
	}
}
