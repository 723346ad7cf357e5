// Package process runs one-shot interpreter invocations and captures their output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/specvital/pyadapter/pkg/logging"
)

// DefaultWaitDelay bounds how long Run waits for output pipes to drain
// after the child has been told to stop.
const DefaultWaitDelay = 5 * time.Second

// ErrStart is returned when the interpreter could not be launched.
var ErrStart = errors.New("failed to start interpreter")

// Request describes a single `<interpreter> -c <script> <args...>` invocation.
type Request struct {
	Interpreter string
	Script      string
	Args        []string
	Cwd         string
	// Env is overlaid on the inherited environment. Overlay values win.
	Env map[string]string
}

// Runner runs a request and returns its standard output.
type Runner interface {
	Run(ctx context.Context, req Request) (string, error)
}

// ProcessError is returned when the child exits with a non-zero code.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Stdout   string
}

// Error returns the captured standard error, or standard output when the
// child wrote nothing to standard error.
func (e *ProcessError) Error() string {
	if strings.TrimSpace(e.Stderr) != "" {
		return e.Stderr
	}
	if strings.TrimSpace(e.Stdout) != "" {
		return e.Stdout
	}
	return fmt.Sprintf("interpreter exited with code %d", e.ExitCode)
}

// Executor is the os/exec backed Runner.
type Executor struct {
	logger    *slog.Logger
	waitDelay time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for invocation traces.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithWaitDelay overrides DefaultWaitDelay. Non-positive values are ignored.
func WithWaitDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.waitDelay = d
		}
	}
}

// NewExecutor returns an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger:    logging.Nop(),
		waitDelay: DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.Component(e.logger, "process")
	return e
}

// Run starts exactly one process and waits for it.
//
// When ctx is cancelled the whole process group is terminated and the
// returned error wraps ctx.Err().
func (e *Executor) Run(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	args := append([]string{"-c", req.Script}, req.Args...)
	cmd := exec.CommandContext(ctx, req.Interpreter, args...)
	cmd.Dir = req.Cwd
	cmd.Env = mergeEnv(os.Environ(), req.Env)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = e.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("starting interpreter",
		"interpreter", req.Interpreter,
		"args", strings.Join(req.Args, " "),
		"cwd", req.Cwd,
	)
	started := time.Now()

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrStart, req.Interpreter, err)
	}

	err := cmd.Wait()
	e.logger.Debug("interpreter exited",
		"interpreter", req.Interpreter,
		"duration", time.Since(started),
		"code", cmd.ProcessState.ExitCode(),
	)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("interpreter interrupted: %w", ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ProcessError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
				Stdout:   stdout.String(),
			}
		}
		return "", fmt.Errorf("wait for interpreter: %w", err)
	}

	return stdout.String(), nil
}

// mergeEnv overlays env on base. Overlay keys are appended in sorted order
// so the resulting environment is deterministic.
func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}

	merged := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overlay[key]; ok {
			continue
		}
		merged = append(merged, kv)
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+overlay[k])
	}
	return merged
}
