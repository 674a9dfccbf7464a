package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	archiveDriver = "sqlite"
	archiveDSNOpt = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)"
)

// Archive wraps a Store and writes every appended turn through to a SQLite
// database, so history survives the process for post-hoc inspection. Archive
// failures never fail the append.
type Archive struct {
	inner Store
	db    *sql.DB
	mu    sync.Mutex
}

func NewArchive(inner Store, path string) (*Archive, error) {
	if inner == nil {
		return nil, fmt.Errorf("session archive: inner store is required")
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session archive: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("session archive: create dir: %w", err)
	}
	db, err := sql.Open(archiveDriver, path+archiveDSNOpt)
	if err != nil {
		return nil, fmt.Errorf("session archive: open db: %w", err)
	}
	a := &Archive{inner: inner, db: db}
	if err := a.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Ping verifies the archive database is reachable.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Archive) Append(ctx context.Context, sessionID string, turn Turn) error {
	if err := a.inner.Append(ctx, sessionID, turn); err != nil {
		return err
	}
	_ = a.record(ctx, sessionID, turn)
	return nil
}

func (a *Archive) History(ctx context.Context, sessionID string) ([]Turn, error) {
	return a.inner.History(ctx, sessionID)
}

func (a *Archive) record(ctx context.Context, sessionID string, turn Turn) error {
	if turn.Time.IsZero() {
		turn.Time = time.Now()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	const q = `
INSERT INTO session_turns (session_id, role, text, backend, created_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := a.db.ExecContext(ctx, q,
		sessionID, string(turn.Role), turn.Text, turn.Backend, turn.Time.UnixMilli(),
	)
	return err
}

// Turns reads archived turns straight from the database, in insertion order.
func (a *Archive) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session archive: id is required")
	}
	const q = `
SELECT role, text, backend, created_at
FROM session_turns
WHERE session_id = ?
ORDER BY seq ASC`
	rows, err := a.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Turn
	for rows.Next() {
		var turn Turn
		var role string
		var createdAt int64
		if err := rows.Scan(&role, &turn.Text, &turn.Backend, &createdAt); err != nil {
			return nil, err
		}
		turn.Role = Role(role)
		turn.Time = time.UnixMilli(createdAt)
		out = append(out, turn)
	}
	return out, rows.Err()
}

func (a *Archive) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS session_turns (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	backend TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_turns_session
ON session_turns(session_id, seq);`
	_, err := a.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("session archive: migrate: %w", err)
	}
	return nil
}

var _ Store = (*Archive)(nil)
