// Package adapter connects a framework runner to an IDE host. It owns the
// discovered tree and turns runner output into ordered load and run events.
package adapter

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/specvital/pyadapter/pkg/config"
	"github.com/specvital/pyadapter/pkg/domain"
	"github.com/specvital/pyadapter/pkg/events"
	"github.com/specvital/pyadapter/pkg/logging"
)

var (
	ErrDisposed  = errors.New("adapter: disposed")
	ErrNotLoaded = errors.New("adapter: no tests loaded")
)

// pytest's default python_files.
var pytestFilePatterns = []string{"test_*.py", "*_test.py"}

// Adapter serves discovery and execution requests for one workspace.
type Adapter struct {
	runner TestRunner
	opts   *Options
	logger *slog.Logger

	tests  *events.Emitter[events.LoadEvent]
	states *events.Emitter[events.RunEvent]

	mu       sync.Mutex
	cfg      *config.Config
	index    *domain.Index
	base     context.Context
	cancel   context.CancelFunc
	disposed bool
	inflight sync.WaitGroup
}

// New returns an Adapter serving cfg through runner. The default options
// annotate source lines and use random run ids.
func New(cfg *config.Config, runner TestRunner, opts ...Option) *Adapter {
	o := defaultOptions(logging.Nop())
	for _, opt := range opts {
		opt(o)
	}
	o.finish()
	base, cancel := context.WithCancel(context.Background())
	return &Adapter{
		runner: runner,
		opts:   o,
		logger: logging.Component(o.Logger, "adapter"),
		tests:  events.NewEmitter[events.LoadEvent](),
		states: events.NewEmitter[events.RunEvent](),
		cfg:    cfg,
		base:   base,
		cancel: cancel,
	}
}

// Tests is the discovery event stream.
func (a *Adapter) Tests() *events.Emitter[events.LoadEvent] { return a.tests }

// TestStates is the execution event stream.
func (a *Adapter) TestStates() *events.Emitter[events.RunEvent] { return a.states }

// Reconfigure swaps the settings used by subsequent operations.
func (a *Adapter) Reconfigure(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

// Tree returns the last successfully loaded tree, or nil.
func (a *Adapter) Tree() *domain.Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index == nil {
		return nil
	}
	return a.index.Root()
}

// Load discovers the workspace tests and replaces the current tree.
// The result is always published on Tests; the error is returned as well.
func (a *Adapter) Load(ctx context.Context) (*domain.Node, error) {
	ctx, done, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	a.tests.Publish(events.LoadStarted())

	root, err := a.runner.Load(ctx, a.config())
	if err != nil {
		a.setIndex(nil)
		a.logger.Error("test discovery failed", "runner", a.runner.ID(), "err", err)
		a.tests.Publish(events.LoadFinished(nil, err))
		return nil, err
	}

	if root == nil {
		a.setIndex(nil)
		a.tests.Publish(events.LoadFinished(nil, nil))
		return nil, nil
	}

	domain.SortChildren(root)
	if a.opts.Locator != nil {
		a.opts.Locator.Annotate(ctx, root)
	}
	a.setIndex(domain.NewIndex(root))

	a.logger.Info("test discovery finished", "runner", a.runner.ID(), "tests", root.CountTests())
	a.tests.Publish(events.LoadFinished(root, nil))
	return root, nil
}

// Run executes the requested ids and publishes their states on TestStates.
// Ids missing from the current tree are skipped. Started and finished are
// always published, even when nothing runs.
func (a *Adapter) Run(ctx context.Context, ids []string) error {
	ctx, done, err := a.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	runID := a.opts.NewRunID()
	a.states.Publish(events.RunStarted(runID, ids))
	defer a.states.Publish(events.RunFinished(runID))

	a.mu.Lock()
	idx, cfg := a.index, a.cfg
	a.mu.Unlock()
	if idx == nil {
		a.logger.Warn("run requested before discovery", "tests", len(ids))
		return ErrNotLoaded
	}

	sem := semaphore.NewWeighted(int64(max(cfg.MaxParallel, 1)))
	g, gCtx := errgroup.WithContext(ctx)

	for _, id := range ids {
		node, ok := idx.Node(id)
		if !ok {
			a.logger.Warn("ignoring unknown test id", "id", id)
			continue
		}
		g.Go(func() error {
			if err := sem.Acquire(gCtx, 1); err != nil {
				// Never started: a deadline still fails the subtree.
				if errors.Is(err, context.DeadlineExceeded) {
					a.failLeaves(runID, node, err.Error())
				}
				return nil
			}
			defer sem.Release(1)
			a.runNode(gCtx, cfg, runID, idx, node)
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}

func (a *Adapter) runNode(ctx context.Context, cfg *config.Config, runID string, idx *domain.Index, node *domain.Node) {
	leaves := node.Leaves()
	for _, leaf := range leaves {
		a.publishState(runID, leaf.ID, domain.StateRunning, "")
	}

	results, err := a.runner.Run(ctx, cfg, node.ID)
	if errors.Is(ctx.Err(), context.Canceled) {
		a.logger.Info("run cancelled", "id", node.ID)
		return
	}
	if err != nil {
		a.logger.Error("test run failed", "id", node.ID, "err", err)
		a.failLeaves(runID, node, err.Error())
		return
	}

	inSubtree := make(map[string]bool, len(leaves))
	for _, leaf := range leaves {
		inSubtree[leaf.ID] = true
	}
	reported := make(map[string]bool, len(results))
	for _, r := range results {
		leaf, ok := idx.Leaf(r.Test)
		if !ok {
			a.logger.Debug("dropping result for unknown test", "id", r.Test, "state", r.State)
			continue
		}
		if inSubtree[leaf.ID] {
			reported[leaf.ID] = true
		}
		a.states.Publish(events.TestState(runID, r))
	}

	// Nothing attributable to the subtree: all of it failed.
	gap := len(reported) == 0
	if gap {
		a.logger.Warn("runner reported no known tests", "id", node.ID, "results", len(results))
	}
	for _, leaf := range leaves {
		switch {
		case reported[leaf.ID]:
		case leaf.Errored:
			a.publishState(runID, leaf.ID, domain.StateFailed, leaf.Message)
		case gap:
			a.publishState(runID, leaf.ID, domain.StateFailed, "no result reported")
		default:
			a.publishState(runID, leaf.ID, domain.StateSkipped, "no result reported")
		}
	}
}

func (a *Adapter) failLeaves(runID string, node *domain.Node, message string) {
	for _, leaf := range node.Leaves() {
		a.publishState(runID, leaf.ID, domain.StateFailed, message)
	}
}

func (a *Adapter) publishState(runID, id string, state domain.State, message string) {
	a.states.Publish(events.TestState(runID, domain.NewTestEvent(id, state, message)))
}

// IsTestFile reports whether a changed file should trigger rediscovery.
func (a *Adapter) IsTestFile(path string) bool {
	cfg := a.config()
	if filepath.Ext(path) != ".py" {
		return false
	}
	name := filepath.Base(path)

	patterns := pytestFilePatterns
	if !cfg.Pytest.Enabled {
		patterns = []string{cfg.Unittest.Pattern}
	}
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Cancel interrupts every in-flight Load and Run. Later operations are not
// affected.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel()
	a.base, a.cancel = context.WithCancel(context.Background())
}

// Dispose cancels in-flight work and waits for it to return. Operations
// started afterwards fail with ErrDisposed.
func (a *Adapter) Dispose() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.disposed = true
	a.cancel()
	a.mu.Unlock()

	a.inflight.Wait()
}

// begin derives an operation context that ends with ctx, Cancel or Dispose.
func (a *Adapter) begin(ctx context.Context) (context.Context, func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return nil, nil, ErrDisposed
	}

	var cancel context.CancelFunc
	if a.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(a.base, cancel)
	a.inflight.Add(1)

	return ctx, func() {
		stop()
		cancel()
		a.inflight.Done()
	}, nil
}

func (a *Adapter) config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *Adapter) setIndex(idx *domain.Index) {
	a.mu.Lock()
	a.index = idx
	a.mu.Unlock()
}
