package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/gameforge/forge/internal/backend"
	"github.com/gameforge/forge/internal/backend/bridge"
	"github.com/gameforge/forge/internal/backend/chat"
	"github.com/gameforge/forge/internal/config"
	"github.com/gameforge/forge/internal/events"
	"github.com/gameforge/forge/internal/orchestrator"
	"github.com/gameforge/forge/internal/session"
	"github.com/gameforge/forge/internal/store"
	"github.com/gameforge/forge/internal/templates"
	"github.com/gameforge/forge/internal/tracing"
)

// pipeline bundles the wired generation stack shared by the commands.
type pipeline struct {
	backends     []backend.Backend
	orchestrator *orchestrator.Orchestrator
	sessions     session.Store
	archive      *session.Archive
	files        *store.Store
	library      *templates.Library
	bus          *events.InMemoryBus
}

func buildPipeline(cfg *config.Config, logger *log.Logger) (*pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	bus := events.New(events.WithLogger(logger))
	bus.SubscribeAll(func(event events.Event) {
		logger.Debug("event",
			"type", event.Type,
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
			"severity", event.Severity,
		)
	})

	order, err := buildBackends(cfg, logger)
	if err != nil {
		return nil, err
	}

	memory := session.NewMemory()
	var sessions session.Store = memory
	var archive *session.Archive
	if home, homeErr := os.UserHomeDir(); homeErr == nil {
		archivePath := filepath.Join(home, ".forge", "sessions.db")
		opened, archiveErr := session.NewArchive(memory, archivePath)
		if archiveErr != nil {
			logger.Warn("session archive unavailable", "path", archivePath, "error", archiveErr)
		} else {
			archive = opened
			sessions = opened
		}
	}

	orch, err := orchestrator.New(order, sessions, bus, logger)
	if err != nil {
		return nil, err
	}

	files, err := store.New(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("open output directory: %w", err)
	}
	library, err := templates.Load()
	if err != nil {
		return nil, err
	}

	return &pipeline{
		backends:     order,
		orchestrator: orch,
		sessions:     sessions,
		archive:      archive,
		files:        files,
		library:      library,
		bus:          bus,
	}, nil
}

func (p *pipeline) Close() {
	if p == nil || p.archive == nil {
		return
	}
	_ = p.archive.Close()
}

// buildBackends registers every configured backend implementation and maps
// the configured priority order onto them. The bridge is only registered
// when a generator module is configured; the chat backend always registers
// and resolves unavailable without a credential.
func buildBackends(cfg *config.Config, logger *log.Logger) ([]backend.Backend, error) {
	registered := make([]backend.Backend, 0, 2)

	if cfg.Bridge.GeneratorPath == "" {
		logger.Warn("bridge backend not registered", "reason", "bridge.generator_path is unset")
	} else {
		pb, err := bridge.NewWithExecutor(
			cfg.Bridge.Tool,
			cfg.Bridge.GeneratorPath,
			cfg.Bridge.Timeout,
			tracing.ExecuteGenerator,
		)
		if err != nil {
			return nil, fmt.Errorf("configure bridge backend: %w", err)
		}
		bridgeBackend, err := bridge.NewBackendWith(pb, exec.LookPath, os.Stat)
		if err != nil {
			return nil, fmt.Errorf("probe bridge backend: %w", err)
		}
		registered = append(registered, bridgeBackend)
	}

	registered = append(registered, chat.New(chat.Config{
		BaseURL: cfg.Chat.BaseURL,
		Model:   cfg.Chat.Model,
		APIKey:  os.Getenv(chat.CredentialEnv),
		Timeout: cfg.Chat.Timeout,
	}))

	order, warnings, err := backend.ResolveOrder(cfg.BackendOrder, registered)
	if err != nil {
		return nil, err
	}
	for _, warning := range warnings {
		logger.Warn("backend priority order", "warning", warning)
	}
	return order, nil
}
