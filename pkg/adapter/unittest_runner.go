package adapter

import (
	"context"
	"log/slog"

	"github.com/specvital/pyadapter/pkg/config"
	"github.com/specvital/pyadapter/pkg/domain"
	"github.com/specvital/pyadapter/pkg/labels"
	"github.com/specvital/pyadapter/pkg/logging"
	"github.com/specvital/pyadapter/pkg/parser/unittest"
	"github.com/specvital/pyadapter/pkg/process"
	"github.com/specvital/pyadapter/pkg/scripts"
)

// UnittestRunner drives the standard library unittest loader.
type UnittestRunner struct {
	id     string
	proc   process.Runner
	logger *slog.Logger
}

// NewUnittestRunner returns a runner whose root suite has the given id.
func NewUnittestRunner(id string, proc process.Runner, logger *slog.Logger) *UnittestRunner {
	return &UnittestRunner{
		id:     id,
		proc:   proc,
		logger: logging.Component(logger, "unittest"),
	}
}

func (r *UnittestRunner) ID() string { return r.id }

func (r *UnittestRunner) Framework() domain.Framework { return domain.FrameworkUnittest }

func (r *UnittestRunner) Load(ctx context.Context, cfg *config.Config) (*domain.Node, error) {
	if !cfg.Unittest.Enabled {
		r.logger.Info("unittest discovery is disabled")
		return nil, nil
	}

	startDir := cfg.StartDir()
	r.logger.Info("discovering tests",
		"interpreter", cfg.Interpreter,
		"cwd", cfg.Cwd,
		"startDirectory", startDir,
		"pattern", cfg.Unittest.Pattern,
	)

	script, err := r.script(cfg)
	if err != nil {
		return nil, err
	}
	output, err := invoke(ctx, r.proc, cfg, script, []string{scripts.ActionDiscover})
	if err != nil {
		return nil, err
	}

	suites := unittest.ParseSuites(output, startDir)
	if len(suites) == 0 {
		r.logger.Warn("no tests discovered")
		return nil, nil
	}
	labels.EnsureDifferent(suites, unittest.Separator)

	root := domain.NewSuite(r.id, "Unittest tests", "", domain.KindRoot)
	root.Append(suites...)
	return root, nil
}

func (r *UnittestRunner) Run(ctx context.Context, cfg *config.Config, testID string) ([]domain.TestEvent, error) {
	r.logger.Info("running tests", "test", testID, "interpreter", cfg.Interpreter, "cwd", cfg.Cwd)

	script, err := r.script(cfg)
	if err != nil {
		return nil, err
	}
	output, err := invoke(ctx, r.proc, cfg, script, runArgs(r.id, testID))
	if err != nil {
		return nil, err
	}
	return unittest.ParseStates(output), nil
}

func (r *UnittestRunner) script(cfg *config.Config) (string, error) {
	return scripts.Unittest(scripts.UnittestParams{
		StartDirectory: cfg.StartDir(),
		Pattern:        cfg.Unittest.Pattern,
	})
}
