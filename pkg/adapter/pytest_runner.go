package adapter

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/specvital/pyadapter/pkg/config"
	"github.com/specvital/pyadapter/pkg/domain"
	"github.com/specvital/pyadapter/pkg/labels"
	"github.com/specvital/pyadapter/pkg/logging"
	"github.com/specvital/pyadapter/pkg/parser/pytest"
	"github.com/specvital/pyadapter/pkg/process"
	"github.com/specvital/pyadapter/pkg/scripts"
)

// PytestRunner drives pytest in-process through the rendered script.
type PytestRunner struct {
	id     string
	proc   process.Runner
	logger *slog.Logger
}

// NewPytestRunner returns a runner whose root suite has the given id.
func NewPytestRunner(id string, proc process.Runner, logger *slog.Logger) *PytestRunner {
	return &PytestRunner{
		id:     id,
		proc:   proc,
		logger: logging.Component(logger, "pytest"),
	}
}

func (r *PytestRunner) ID() string { return r.id }

func (r *PytestRunner) Framework() domain.Framework { return domain.FrameworkPytest }

func (r *PytestRunner) Load(ctx context.Context, cfg *config.Config) (*domain.Node, error) {
	if !cfg.Pytest.Enabled {
		r.logger.Info("pytest discovery is disabled")
		return nil, nil
	}

	r.logger.Info("discovering tests", "interpreter", cfg.Interpreter, "cwd", cfg.Cwd, "args", len(cfg.Pytest.Args))

	script, err := scripts.Pytest()
	if err != nil {
		return nil, err
	}
	args := append([]string{scripts.ActionDiscover}, cfg.Pytest.Args...)
	output, err := invoke(ctx, r.proc, cfg, script, args)
	if err != nil {
		return nil, err
	}

	suites := pytest.ParseSuites(output, cfg.Cwd)
	if len(suites) == 0 {
		r.logger.Warn("no tests discovered")
		return nil, nil
	}
	labels.EnsureDifferent(suites, string(filepath.Separator))

	root := domain.NewSuite(r.id, "Pytest tests", "", domain.KindRoot)
	root.Append(suites...)
	return root, nil
}

func (r *PytestRunner) Run(ctx context.Context, cfg *config.Config, testID string) ([]domain.TestEvent, error) {
	r.logger.Info("running tests", "test", testID, "interpreter", cfg.Interpreter, "cwd", cfg.Cwd)

	script, err := scripts.Pytest()
	if err != nil {
		return nil, err
	}
	output, err := invoke(ctx, r.proc, cfg, script, runArgs(r.id, testID, cfg.Pytest.Args...))
	if err != nil {
		return nil, err
	}
	return pytest.ParseStates(output), nil
}
