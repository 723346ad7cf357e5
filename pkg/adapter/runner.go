package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/specvital/pyadapter/pkg/config"
	"github.com/specvital/pyadapter/pkg/domain"
	"github.com/specvital/pyadapter/pkg/process"
	"github.com/specvital/pyadapter/pkg/scripts"
)

// TestRunner discovers and runs tests for one framework.
type TestRunner interface {
	// ID is the id of the root suite returned by Load. Running it runs everything.
	ID() string
	Framework() domain.Framework
	// Load returns the discovered tree, or nil when the runner is disabled or
	// found no tests.
	Load(ctx context.Context, cfg *config.Config) (*domain.Node, error)
	// Run executes the subtree rooted at testID and returns the reported states.
	Run(ctx context.Context, cfg *config.Config, testID string) ([]domain.TestEvent, error)
}

// SelectRunner returns the pytest runner when pytest is enabled and the
// unittest runner otherwise.
func SelectRunner(cfg *config.Config, proc process.Runner, logger *slog.Logger) TestRunner {
	if cfg.Pytest.Enabled {
		return NewPytestRunner(RunnerID(domain.FrameworkPytest, cfg), proc, logger)
	}
	return NewUnittestRunner(RunnerID(domain.FrameworkUnittest, cfg), proc, logger)
}

// RunnerID derives a root id that cannot collide with test ids.
func RunnerID(fw domain.Framework, cfg *config.Config) string {
	return fmt.Sprintf("%s:%s", fw, cfg.Workspace)
}

// invoke runs script with the configured interpreter, cwd and env file.
func invoke(ctx context.Context, proc process.Runner, cfg *config.Config, script string, args []string) (string, error) {
	env, err := cfg.EnvOverlay()
	if err != nil {
		return "", err
	}
	return proc.Run(ctx, process.Request{
		Interpreter: cfg.Interpreter,
		Script:      script,
		Args:        args,
		Cwd:         cfg.Cwd,
		Env:         env,
	})
}

func runArgs(rootID, testID string, extra ...string) []string {
	args := append([]string{scripts.ActionRun}, extra...)
	if testID != rootID {
		args = append(args, testID)
	}
	return args
}
