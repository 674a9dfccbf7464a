package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gameforge/forge/internal/config"
	"github.com/gameforge/forge/internal/orchestrator"
	"github.com/gameforge/forge/internal/session"
	"github.com/gameforge/forge/internal/store"
)

func newGenerateCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var (
		project   string
		sessionID string
		maxTurns  int
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a Phaser game from a natural-language prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("prompt must not be empty")
			}

			pipe, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer pipe.Close()

			id := strings.TrimSpace(sessionID)
			if id == "" {
				id = session.NewID()
			}

			result, err := pipe.orchestrator.GenerateGame(cmd.Context(), id, prompt, orchestrator.Options{
				GameName: project,
				MaxTurns: maxTurns,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Code == "" {
				fmt.Fprintln(out, result.Summary)
				fmt.Fprintf(out, "Session: %s\n", id)
				return nil
			}

			saved, err := pipe.files.Save(result.Filename, result.Code, project)
			if err != nil {
				return fmt.Errorf("save generated game: %w", err)
			}
			fmt.Fprintf(out, "Saved %s (%s)\n", saved.Path, store.FormatSize(saved.Size))
			if result.Summary != "" {
				fmt.Fprintln(out, result.Summary)
			}
			fmt.Fprintf(out, "Session: %s\n", id)
			return nil
		},
	}

	defaultTurns := 0
	if cfg != nil {
		defaultTurns = cfg.Bridge.MaxTurns
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project directory to save into")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue a conversation")
	cmd.Flags().IntVar(&maxTurns, "max-turns", defaultTurns, "bridge conversation turn cap")
	return cmd
}

func newReviewCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var (
		feedback  string
		sessionID string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "review <file>",
		Short: "Improve an existing game file based on feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(feedback) == "" {
				return errors.New("feedback must not be empty")
			}

			// #nosec G304 -- the file to review is named on the command line.
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read game file: %w", err)
			}

			pipe, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer pipe.Close()

			id := strings.TrimSpace(sessionID)
			if id == "" {
				id = session.NewID()
			}

			result, err := pipe.orchestrator.ReviewGame(cmd.Context(), id, string(code), feedback)
			if err != nil {
				return err
			}

			improved := result.Code
			if improved == "" {
				improved = string(code)
			}
			target := strings.TrimSpace(output)
			if target == "" {
				target = args[0]
			}
			if err := os.WriteFile(target, []byte(improved), 0o600); err != nil {
				return fmt.Errorf("write reviewed game: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", target)
			if result.Summary != "" {
				fmt.Fprintln(out, result.Summary)
			}
			fmt.Fprintf(out, "Session: %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&feedback, "feedback", "f", "", "what to change about the game")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue a conversation")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the improved game here instead of in place")
	_ = cmd.MarkFlagRequired("feedback")
	return cmd
}
