package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/gameforge/forge/internal/backend"
)

// Backend exposes the subprocess bridge through the uniform generation
// contract. Availability is resolved once at construction: the interpreter
// must be on PATH and the generator module must exist on disk.
type Backend struct {
	bridge    *ProcessBridge
	available bool
	reason    string
}

// NewBackend resolves availability against the real PATH and filesystem.
func NewBackend(generatorPath string, timeout time.Duration) (*Backend, error) {
	pb, err := New(generatorPath, timeout)
	if err != nil {
		return nil, err
	}
	return NewBackendWith(pb, exec.LookPath, os.Stat)
}

// NewBackendWith wires explicit probe functions, used by tests and by
// configuration-driven startup.
func NewBackendWith(
	pb *ProcessBridge,
	lookPath func(file string) (string, error),
	stat func(name string) (os.FileInfo, error),
) (*Backend, error) {
	if pb == nil {
		return nil, errors.New("process bridge is required")
	}
	if lookPath == nil {
		return nil, errors.New("lookPath function is required")
	}
	if stat == nil {
		return nil, errors.New("stat function is required")
	}

	b := &Backend{bridge: pb, available: true}
	if _, err := lookPath(pb.tool); err != nil {
		b.available = false
		b.reason = fmt.Sprintf("%s not found on PATH", pb.tool)
	} else if _, err := stat(pb.generatorPath); err != nil {
		b.available = false
		b.reason = fmt.Sprintf("generator module not found at %s", pb.generatorPath)
	}
	return b, nil
}

func (b *Backend) Name() string { return Name }

// SupportsReview is true: review requests degrade to a re-generation prompt
// that embeds the original code, so the bridge can always serve them.
func (b *Backend) SupportsReview() bool { return true }

func (b *Backend) Available() bool { return b.available }

// Reason explains an unavailable resolution; empty when available.
func (b *Backend) Reason() string { return b.reason }

func (b *Backend) Generate(ctx context.Context, req backend.Request) (*backend.Result, error) {
	if !b.available {
		return nil, &backend.Error{Backend: Name, Kind: backend.KindUnavailable, Message: b.reason}
	}
	return b.bridge.Invoke(ctx, req)
}

var _ backend.Backend = (*Backend)(nil)
