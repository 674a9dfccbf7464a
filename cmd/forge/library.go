package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gameforge/forge/internal/config"
	"github.com/gameforge/forge/internal/store"
	"github.com/gameforge/forge/internal/templates"
)

func newTemplatesCommand(logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "templates [game-type]",
		Short: "List available game templates or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			library, err := templates.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range library.Types() {
					fmt.Fprintf(out, "%-12s %s\n", name, library.Get(name).Description)
				}
				return nil
			}

			resolved := library.Get(args[0])
			if !library.Has(args[0]) {
				logger.Warn("unknown game type, falling back",
					"requested", args[0],
					"resolved", resolved.Name,
				)
				fmt.Fprintf(cmd.ErrOrStderr(), "unknown game type %q, showing %s\n", args[0], resolved.Name)
			}
			fmt.Fprintln(out, resolved.Markup)
			return nil
		},
	}
}

func newProjectsCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List created game projects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := store.New(cfg.OutputDir)
			if err != nil {
				return fmt.Errorf("open output directory: %w", err)
			}

			projects, err := files.Projects()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(projects) == 0 {
				fmt.Fprintln(out, "No projects yet.")
				return nil
			}
			for _, info := range projects {
				created := "-"
				if !info.Created.IsZero() {
					created = info.Created.UTC().Format(time.RFC3339)
				}
				kind := info.Type
				if kind == "" {
					kind = "-"
				}
				fmt.Fprintf(out, "%-24s %-14s %s\n", info.Name, kind, created)
			}
			logger.Debug("projects listed", "count", len(projects))
			return nil
		},
	}
}
