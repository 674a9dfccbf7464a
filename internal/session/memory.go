package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gameforge/forge/internal/telemetry/invariants"
)

// Memory is a thread-safe in-memory session store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]Turn
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]Turn)}
}

func (m *Memory) Append(ctx context.Context, sessionID string, turn Turn) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session: id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.data[sessionID]
	if n := len(turns); n > 0 {
		invariants.CheckTurnOrderPreserved(ctx, "session.memory.append", sessionID, turns[n-1].Time, turn.Time)
	}
	m.data[sessionID] = append(turns, turn)
	return nil
}

func (m *Memory) History(ctx context.Context, sessionID string) ([]Turn, error) {
	_ = ctx
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session: id is required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns, ok := m.data[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

var _ Store = (*Memory)(nil)
