// Package recovery sweeps scratch directories orphaned by interrupted
// generations. The bridge backend stages each invocation in a throwaway
// directory under the system temp root; a crash between staging and cleanup
// leaves the directory behind. The sweep is age-gated so directories that
// belong to a generation still in flight are never touched.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gameforge/forge/internal/backend/bridge"
	"github.com/gameforge/forge/internal/events"
)

const (
	// DefaultMinAge is how old a scratch directory must be before the sweep
	// considers it orphaned. Bridge invocations are bounded well below this.
	DefaultMinAge = time.Hour
)

// EventBus publishes sweep audit events.
type EventBus interface {
	Publish(event events.Event)
}

// Config configures the scratch sweep.
type Config struct {
	TempDir  string
	Prefix   string
	MinAge   time.Duration
	EventBus EventBus
}

// Result captures one sweep pass.
type Result struct {
	Removed  []string
	Skipped  int
	Duration time.Duration
}

// Janitor finds and removes orphaned scratch directories.
type Janitor struct {
	tempDir string
	prefix  string
	minAge  time.Duration
	bus     EventBus
	now     func() time.Time
	remove  func(path string) error
}

// NewJanitor constructs a scratch sweep with defaults for the bridge layout.
func NewJanitor(cfg Config) (*Janitor, error) {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = bridge.ScratchPrefix
	}
	if cfg.MinAge < 0 {
		return nil, errors.New("min age must not be negative")
	}
	if cfg.MinAge == 0 {
		cfg.MinAge = DefaultMinAge
	}
	return &Janitor{
		tempDir: cfg.TempDir,
		prefix:  cfg.Prefix,
		minAge:  cfg.MinAge,
		bus:     cfg.EventBus,
		now:     time.Now,
		remove:  os.RemoveAll,
	}, nil
}

// Scan returns the orphaned scratch directories a sweep would remove,
// oldest first. Directories younger than the age gate are not reported.
func (j *Janitor) Scan(ctx context.Context) ([]string, error) {
	if j == nil {
		return nil, errors.New("janitor is nil")
	}
	entries, err := os.ReadDir(j.tempDir)
	if err != nil {
		return nil, fmt.Errorf("scan scratch directories in %s: %w", j.tempDir, err)
	}

	cutoff := j.now().Add(-j.minAge)
	orphans := make([]string, 0)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), j.prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		orphans = append(orphans, filepath.Join(j.tempDir, entry.Name()))
	}
	return orphans, nil
}

// Sweep removes every orphaned scratch directory and publishes an audit
// event per removal plus a summary. A directory that cannot be removed is
// skipped and counted rather than aborting the pass.
func (j *Janitor) Sweep(ctx context.Context) (Result, error) {
	if j == nil {
		return Result{}, errors.New("janitor is nil")
	}
	started := j.now()
	auditTimestamp := started.UTC()

	orphans, err := j.Scan(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{Removed: make([]string, 0, len(orphans))}
	for _, path := range orphans {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := j.remove(path); err != nil {
			result.Skipped++
			continue
		}
		result.Removed = append(result.Removed, path)
		j.publish(events.Event{
			Type:       events.EventTypeHealthCheck,
			Timestamp:  auditTimestamp,
			EntityType: "recovery",
			EntityID:   filepath.Base(path),
			Payload: map[string]string{
				"action": "remove_scratch_dir",
				"path":   path,
			},
			Severity: events.SeverityInfo,
		})
	}

	result.Duration = j.now().Sub(started)
	j.publish(events.Event{
		Type:       events.EventTypeHealthCheck,
		Timestamp:  auditTimestamp,
		EntityType: "recovery",
		EntityID:   "scratch-sweep",
		Payload: map[string]any{
			"removed":       append([]string(nil), result.Removed...),
			"skipped":       result.Skipped,
			"duration_msec": result.Duration.Milliseconds(),
		},
		Severity: events.SeverityInfo,
	})

	return result, nil
}

func (j *Janitor) publish(event events.Event) {
	if j == nil || j.bus == nil {
		return
	}
	j.bus.Publish(event)
}
