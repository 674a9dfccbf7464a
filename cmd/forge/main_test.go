package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/gameforge/forge/internal/config"
	"github.com/gameforge/forge/internal/doctor"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		BackendOrder: []string{"bridge", "chat"},
		OutputDir:    filepath.Join(t.TempDir(), "generated_games"),
		LogLevel:     "info",
		Bridge: config.BridgeConfig{
			Tool:     "node",
			Timeout:  time.Minute,
			MaxTurns: 10,
		},
		Chat: config.ChatConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
			Timeout: time.Minute,
		},
		Server: config.ServerConfig{
			Addr:           ":8001",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

func TestRootCommandVersionFlag(t *testing.T) {
	cmd := newRootCommand(testConfig(t), testLogger())
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, Version+"\n", out.String())
}

func TestRootCommandHelpListsSubcommands(t *testing.T) {
	cmd := newRootCommand(testConfig(t), testLogger())
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	for _, name := range []string{
		"generate",
		"review",
		"serve",
		"templates",
		"projects",
		"doctor",
		"bugreport",
	} {
		require.Contains(t, out.String(), name)
	}
}

func TestBuildBackendsSkipsBridgeWithoutGeneratorPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bridge.GeneratorPath = ""

	order, err := buildBackends(cfg, testLogger())
	require.NoError(t, err)
	require.Len(t, order, 1)
	require.Equal(t, "chat", order[0].Name())
}

func TestBuildBackendsResolvesConfiguredOrder(t *testing.T) {
	generator := filepath.Join(t.TempDir(), "index.js")
	require.NoError(t, os.WriteFile(generator, []byte("// generator entry\n"), 0o600))

	cfg := testConfig(t)
	cfg.Bridge.GeneratorPath = generator
	cfg.BackendOrder = []string{"chat", "bridge"}

	order, err := buildBackends(cfg, testLogger())
	require.NoError(t, err)
	require.Len(t, order, 2)
	require.Equal(t, "chat", order[0].Name())
	require.Equal(t, "bridge", order[1].Name())
}

func TestRenderReport(t *testing.T) {
	report := doctor.Report{
		Healthy: false,
		Checks: []doctor.Result{
			{Name: "output-dir", Finding: doctor.Finding{Status: doctor.StatusPass, Detail: "writable at /tmp/games"}},
			{Name: "backend-chat", Finding: doctor.Finding{Status: doctor.StatusWarn, Detail: "credential not set"}},
			{Name: "archive", Finding: doctor.Finding{Status: doctor.StatusFail, Detail: "archive unreachable"}},
		},
	}

	out := &bytes.Buffer{}
	renderReport(out, report)

	text := out.String()
	require.Contains(t, text, "ok")
	require.Contains(t, text, "warn")
	require.Contains(t, text, "FAIL")
	require.Contains(t, text, "output-dir")
	require.Contains(t, text, "3 checks, 1 warnings, 1 failures")
}
