package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound reports a session id with no recorded history.
var ErrNotFound = errors.New("session: not found")

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a session's conversation history. Backend names the
// producing backend on assistant turns and is empty otherwise.
type Turn struct {
	Role    Role
	Text    string
	Backend string
	Time    time.Time
}

// Store keeps per-session conversation history. Sessions are created on
// first append and turns are never reordered.
type Store interface {
	Append(ctx context.Context, sessionID string, turn Turn) error
	History(ctx context.Context, sessionID string) ([]Turn, error)
}

// NewID mints a fresh session id.
func NewID() string {
	return uuid.NewString()
}
