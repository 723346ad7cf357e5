// Command pyadapter discovers and runs Python unittest or pytest suites the
// way an IDE test explorer would, printing the tree or the results.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/specvital/pyadapter/pkg/adapter"
	"github.com/specvital/pyadapter/pkg/config"
	"github.com/specvital/pyadapter/pkg/detect"
	"github.com/specvital/pyadapter/pkg/events"
	"github.com/specvital/pyadapter/pkg/logging"
	"github.com/specvital/pyadapter/pkg/process"
	"github.com/specvital/pyadapter/pkg/report"
)

var Version = "dev"

const configFileName = ".pyadapter.yaml"

var (
	workspaceFlag = &cli.StringFlag{
		Name:    "workspace",
		Aliases: []string{"w"},
		EnvVars: []string{"PYADAPTER_WORKSPACE"},
		Usage:   "Workspace folder (default: current directory)",
	}
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		EnvVars: []string{"PYADAPTER_CONFIG"},
		Usage:   "Settings file (default: <workspace>/" + configFileName + " when present)",
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: []string{"PYADAPTER_LOG_LEVEL"},
		Usage:   "debug, info, warn or error",
	}
	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "Print events as JSON lines instead of tables",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Limit for each discovery or run (0 disables)",
	}
)

func main() {
	app := &cli.App{
		Name:    "pyadapter",
		Usage:   "Discover and run Python tests",
		Version: Version,
		Flags:   []cli.Flag{workspaceFlag, configFlag, logLevelFlag, jsonFlag, timeoutFlag},
		Commands: []*cli.Command{
			{
				Name:   "discover",
				Usage:  "Print the discovered test tree",
				Action: discover,
			},
			{
				Name:      "run",
				Usage:     "Run tests by id (everything when no id is given)",
				ArgsUsage: "[id...]",
				Action:    run,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		var exitErr cli.ExitCoder
		if !errors.As(err, &exitErr) {
			err = cli.Exit(err.Error(), 2)
		}
		cli.HandleExitCoder(err)
	}
}

// setup builds an adapter from the global flags.
func setup(c *cli.Context) (*adapter.Adapter, *slog.Logger, error) {
	level, err := logging.ParseLevel(c.String(logLevelFlag.Name))
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(c.App.ErrWriter, level)

	ws := c.String(workspaceFlag.Name)
	if ws == "" {
		if ws, err = os.Getwd(); err != nil {
			return nil, nil, err
		}
	}
	if ws, err = filepath.Abs(ws); err != nil {
		return nil, nil, err
	}

	path := c.String(configFlag.Name)
	if path == "" {
		if candidate := filepath.Join(ws, configFileName); fileExists(candidate) {
			path = candidate
		}
	}
	cfg, err := config.Load(path, ws)
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		// No settings: let the workspace layout pick the framework.
		if found := detect.Framework(ws); !found.IsFallback() {
			logger.Info("using pytest", "reason", found.Reason)
			cfg.Unittest.Enabled = false
			cfg.Pytest.Enabled = true
		}
	}
	logger.Debug("settings loaded", "file", path, "workspace", ws, "interpreter", cfg.Interpreter)

	proc := process.NewExecutor(process.WithLogger(logger))
	runner := adapter.SelectRunner(cfg, proc, logger)
	a := adapter.New(cfg, runner,
		adapter.WithLogger(logger),
		adapter.WithTimeout(c.Duration(timeoutFlag.Name)),
	)
	return a, logger, nil
}

func discover(c *cli.Context) error {
	a, _, err := setup(c)
	if err != nil {
		return err
	}
	defer a.Dispose()

	out := c.App.Writer
	if c.Bool(jsonFlag.Name) {
		unsubscribe := a.Tests().Subscribe(jsonLines[events.LoadEvent](out))
		defer unsubscribe()
	}

	root, err := a.Load(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("discovery failed: %v", err), 2)
	}
	if !c.Bool(jsonFlag.Name) {
		report.Tree(out, root)
	}
	return nil
}

func run(c *cli.Context) error {
	a, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer a.Dispose()

	root, err := a.Load(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("discovery failed: %v", err), 2)
	}
	if root == nil {
		logger.Warn("nothing to run")
		return nil
	}

	ids := c.Args().Slice()
	if len(ids) == 0 {
		ids = []string{root.ID}
	}

	out := c.App.Writer
	summary := report.NewSummary()
	unsubscribe := a.TestStates().Subscribe(summary.Observe)
	defer unsubscribe()
	if c.Bool(jsonFlag.Name) {
		stopJSON := a.TestStates().Subscribe(jsonLines[events.RunEvent](out))
		defer stopJSON()
	}

	if err := a.Run(c.Context, ids); err != nil {
		return cli.Exit(fmt.Sprintf("run interrupted: %v", err), 2)
	}
	if !c.Bool(jsonFlag.Name) {
		summary.Render(out, root)
	}
	if summary.Failed() {
		return cli.Exit("", 1)
	}
	return nil
}

func jsonLines[T any](w io.Writer) func(T) {
	enc := json.NewEncoder(w)
	return func(ev T) {
		_ = enc.Encode(ev)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
