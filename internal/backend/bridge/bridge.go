package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gameforge/forge/internal/backend"
	"github.com/gameforge/forge/internal/telemetry/invariants"
	"github.com/gameforge/forge/internal/tracing"
)

const (
	// Name identifies the subprocess bridge within the fallback order.
	Name = "bridge"
	// DefaultTool is the interpreter that runs generated scripts.
	DefaultTool = "node"
	// DefaultMaxTurns bounds the generator's internal iteration count when
	// the request does not specify one.
	DefaultMaxTurns = 10
	// DefaultTimeout bounds one generator invocation.
	DefaultTimeout = 5 * time.Minute

	// ScratchPrefix names per-invocation scratch directories; the startup
	// recovery sweep matches on it to remove orphans.
	ScratchPrefix = "forge-bridge-"

	scriptName = "generate.js"
)

// Executor runs the generator tool inside a working directory and reports
// the exit code plus captured stdout and stderr.
type Executor func(ctx context.Context, tool string, args []string, cwd string) (int, string, string, error)

// ProcessBridge invokes the externally implemented generator as a subprocess:
// one fresh scratch directory per call, a bounded lifetime, and a
// sentinel-framed stdout wire contract. The scratch directory is removed on
// every return path.
type ProcessBridge struct {
	tool          string
	generatorPath string
	timeout       time.Duration
	maxTurns      int

	execute   Executor
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	now       func() time.Time
}

// New builds a bridge around the default interpreter and traced execution.
func New(generatorPath string, timeout time.Duration) (*ProcessBridge, error) {
	return NewWithExecutor(DefaultTool, generatorPath, timeout, tracing.ExecuteGenerator)
}

// NewWithExecutor builds a bridge with explicit tool and executor, used by
// configuration-driven wiring and tests.
func NewWithExecutor(tool, generatorPath string, timeout time.Duration, execute Executor) (*ProcessBridge, error) {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		tool = DefaultTool
	}
	generatorPath = strings.TrimSpace(generatorPath)
	if generatorPath == "" {
		return nil, errors.New("generator path is required")
	}
	if execute == nil {
		return nil, errors.New("executor is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ProcessBridge{
		tool:          tool,
		generatorPath: generatorPath,
		timeout:       timeout,
		maxTurns:      DefaultMaxTurns,
		execute:       execute,
		mkdirTemp:     os.MkdirTemp,
		removeAll:     os.RemoveAll,
		now:           time.Now,
	}, nil
}

// Invoke runs one generation exchange end to end: script into scratch
// directory, bounded subprocess execution, wire parse, artifact selection.
func (b *ProcessBridge) Invoke(ctx context.Context, req backend.Request) (*backend.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	workdir, err := b.mkdirTemp("", ScratchPrefix+"*")
	if err != nil {
		return nil, &backend.Error{
			Backend: Name,
			Kind:    backend.KindUnavailable,
			Message: fmt.Sprintf("create scratch directory: %v", err),
		}
	}
	defer func() {
		if err := b.removeAll(workdir); err != nil {
			invariants.CheckScratchReleased(ctx, "bridge.invoke", workdir, false, err.Error())
		}
	}()

	trace := []backend.TraceEvent{{Time: b.now(), Kind: "scratch", Message: workdir}}

	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = b.maxTurns
	}
	script := buildScript(b.generatorPath, requestPrompt(req), maxTurns)
	scriptPath := filepath.Join(workdir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(script), 0o600); err != nil {
		return nil, &backend.Error{
			Backend: Name,
			Kind:    backend.KindUnavailable,
			Message: fmt.Sprintf("write generator script: %v", err),
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	exitCode, stdout, stderr, runErr := b.execute(runCtx, b.tool, []string{scriptPath}, workdir)
	trace = append(trace, backend.TraceEvent{
		Time:    b.now(),
		Kind:    "exec",
		Message: fmt.Sprintf("%s exit %d", tracing.FormatCommand(b.tool, []string{scriptName}), exitCode),
	})

	if runErr != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return nil, &backend.Error{
				Backend: Name,
				Kind:    backend.KindTimeout,
				Message: fmt.Sprintf("generator did not finish within %s", b.timeout),
				Raw:     stdout,
			}
		case errors.Is(runCtx.Err(), context.Canceled):
			return nil, &backend.Error{
				Backend: Name,
				Kind:    backend.KindTimeout,
				Message: "generator invocation canceled",
				Raw:     stdout,
			}
		case errors.Is(runErr, exec.ErrNotFound):
			return nil, &backend.Error{
				Backend: Name,
				Kind:    backend.KindUnavailable,
				Message: fmt.Sprintf("%s not found on PATH", b.tool),
			}
		case exitCode != 0:
			return nil, &backend.Error{
				Backend: Name,
				Kind:    backend.KindNonZeroExit,
				Message: fmt.Sprintf("generator exited %d: %s", exitCode, stderr),
				Raw:     stdout,
			}
		default:
			return nil, &backend.Error{
				Backend: Name,
				Kind:    backend.KindNonZeroExit,
				Message: fmt.Sprintf("run generator: %v", runErr),
				Raw:     stdout,
			}
		}
	}

	result, berr := assembleResult(stdout)
	if berr != nil {
		berr.Backend = Name
		return nil, berr
	}
	result.Backend = Name
	result.Trace = trace
	return result, nil
}

// assembleResult turns parsed stdout into a typed result: envelope decode,
// ordered file recovery, primary artifact selection, summary defaulting.
func assembleResult(stdout string) (*backend.Result, *backend.Error) {
	payload, perr := parseStdout(stdout)
	if perr != nil {
		return nil, perr
	}
	if !payload.Success {
		msg := payload.Error
		if msg == "" {
			msg = "generator reported failure without detail"
		}
		return nil, &backend.Error{Kind: backend.KindUpstreamRejected, Message: msg, Raw: stdout}
	}
	files, err := decodeFiles(payload.Files)
	if err != nil {
		return nil, &backend.Error{Kind: backend.KindMalformedOutput, Message: err.Error(), Raw: stdout}
	}
	artifact, ok := selectArtifact(files)
	if !ok {
		return nil, &backend.Error{Kind: backend.KindMalformedOutput, Message: "result payload contains no files", Raw: stdout}
	}
	summary := payload.Summary
	if summary == "" {
		summary = "Generated " + artifact.Name
	}
	return &backend.Result{Code: artifact.Content, Filename: artifact.Name, Summary: summary}, nil
}
