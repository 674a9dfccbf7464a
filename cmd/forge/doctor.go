package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gameforge/forge/internal/config"
	"github.com/gameforge/forge/internal/doctor"
	"github.com/gameforge/forge/internal/events"
	"github.com/gameforge/forge/internal/recovery"
)

func newDoctorCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var (
		watch bool
		sweep bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose backends, storage, and endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pipe, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer pipe.Close()

			janitor, err := recovery.NewJanitor(recovery.Config{EventBus: pipe.bus})
			if err != nil {
				return fmt.Errorf("configure scratch sweep: %w", err)
			}

			out := cmd.OutOrStdout()
			if sweep {
				result, err := janitor.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				for _, path := range result.Removed {
					fmt.Fprintf(out, "removed %s\n", path)
				}
				fmt.Fprintf(out, "%d scratch directories removed, %d skipped\n",
					len(result.Removed), result.Skipped)
				return nil
			}

			runner, err := doctor.NewRunner(pipe.bus, doctor.Config{}, doctorChecks(cfg, pipe, janitor)...)
			if err != nil {
				return err
			}

			if watch {
				pipe.bus.Subscribe(events.EventTypeHealthCheck, func(event events.Event) {
					if report, ok := event.Payload.(doctor.Report); ok {
						renderReport(out, report)
					}
				})
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				runner.Start(ctx)
				return nil
			}

			report, err := runner.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			renderReport(out, report)
			if !report.Healthy {
				return errors.New("diagnostics found failures")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "repeat diagnostics until interrupted")
	cmd.Flags().BoolVar(&sweep, "sweep", false, "remove orphaned scratch directories and exit")
	return cmd
}

func doctorChecks(cfg *config.Config, pipe *pipeline, janitor *recovery.Janitor) []doctor.Check {
	checks := doctor.BackendChecks(pipe.backends)
	checks = append(checks,
		doctor.OutputDirCheck(cfg.OutputDir),
		doctor.EndpointCheck("chat-endpoint", cfg.Chat.BaseURL, nil),
		doctor.ScratchCheck(janitor.Scan),
	)
	if home, err := os.UserHomeDir(); err == nil {
		checks = append(checks, doctor.ConfigFileCheck(filepath.Join(home, ".forge", "config.toml")))
	}
	if cfg.Telemetry.Enabled {
		checks = append(checks, doctor.EndpointCheck("otel-collector", cfg.Telemetry.Endpoint, nil))
	}
	if pipe.archive != nil {
		checks = append(checks, doctor.ArchiveCheck(func(ctx context.Context) error {
			return pipe.archive.Ping(ctx)
		}))
	}
	return checks
}

func renderReport(out io.Writer, report doctor.Report) {
	marks := map[doctor.Status]string{
		doctor.StatusPass: "ok",
		doctor.StatusWarn: "warn",
		doctor.StatusFail: "FAIL",
	}
	for _, check := range report.Checks {
		fmt.Fprintf(out, "%-5s %-18s %s\n", marks[check.Status], check.Name, check.Detail)
	}
	fmt.Fprintf(out, "%d checks, %d warnings, %d failures\n",
		len(report.Checks), report.Warnings(), report.Failures())
}
