package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gameforge/forge/internal/config"
	"github.com/gameforge/forge/internal/recovery"
	"github.com/gameforge/forge/internal/server"
	"github.com/gameforge/forge/internal/telemetry"
)

func newServeCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP generation API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Telemetry.Enabled {
				if cfg.Telemetry.Endpoint != "" {
					telemetry.SetEndpointOverride(cfg.Telemetry.Endpoint)
				}
				shutdown, err := telemetry.Init(cmd.Context())
				if err != nil {
					return fmt.Errorf("initialize telemetry: %w", err)
				}
				defer shutdown()
			}

			pipe, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer pipe.Close()

			sweepScratch(cmd, pipe, logger)

			if addr != "" {
				cfg.Server.Addr = addr
			}
			srv, err := server.New(server.Config{
				Addr:           cfg.Server.Addr,
				Version:        Version,
				AllowedOrigins: cfg.Server.AllowedOrigins,
				MaxTurns:       cfg.Bridge.MaxTurns,
			}, pipe.orchestrator, pipe.files, pipe.library, pipe.bus, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (host:port)")
	return cmd
}

// sweepScratch clears orphaned bridge scratch directories on startup. A
// failed sweep is logged and never blocks serving.
func sweepScratch(cmd *cobra.Command, pipe *pipeline, logger *log.Logger) {
	janitor, err := recovery.NewJanitor(recovery.Config{EventBus: pipe.bus})
	if err != nil {
		logger.Warn("scratch sweep unavailable", "error", err)
		return
	}
	result, err := janitor.Sweep(cmd.Context())
	if err != nil {
		logger.Warn("scratch sweep failed", "error", err)
		return
	}
	if len(result.Removed) > 0 || result.Skipped > 0 {
		logger.Info("scratch sweep finished",
			"removed", len(result.Removed),
			"skipped", result.Skipped,
		)
	}
}
