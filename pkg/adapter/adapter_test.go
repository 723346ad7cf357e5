package adapter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specvital/pyadapter/pkg/config"
	"github.com/specvital/pyadapter/pkg/domain"
	"github.com/specvital/pyadapter/pkg/events"
	"github.com/specvital/pyadapter/pkg/locator"
)

// fakeRunner serves a fixed tree and per-id results.
type fakeRunner struct {
	tree    func() *domain.Node
	loadErr error
	results map[string][]domain.TestEvent
	runErr  error
	block   bool

	mu     sync.Mutex
	ran    []string
	loaded *config.Config
}

func (f *fakeRunner) ID() string                  { return "root" }
func (f *fakeRunner) Framework() domain.Framework { return domain.FrameworkUnittest }

func (f *fakeRunner) Load(_ context.Context, cfg *config.Config) (*domain.Node, error) {
	f.mu.Lock()
	f.loaded = cfg
	f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.tree == nil {
		return nil, nil
	}
	return f.tree(), nil
}

func (f *fakeRunner) Run(ctx context.Context, _ *config.Config, id string) ([]domain.TestEvent, error) {
	f.mu.Lock()
	f.ran = append(f.ran, id)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.results[id], f.runErr
}

func (f *fakeRunner) runs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.ran...)
	sort.Strings(out)
	return out
}

// sampleTree:
//
//	root
//	  suite1 (c.Case)
//	    c.Case.test_b
//	    c.Case.test_a
//	  broken (errored module)
func sampleTree() *domain.Node {
	suite := domain.NewSuite("c.Case", "Case", "", domain.KindClass)
	suite.Append(domain.NewTest("c.Case.test_b", "test_b"), domain.NewTest("c.Case.test_a", "test_a"))

	broken := domain.NewSuite("broken", "broken", "", domain.KindModule)
	broken.Append(domain.NewErroredTest("broken", "Discovery error in broken", "ImportError: boom"))

	root := domain.NewSuite("root", "Unittest tests", "", domain.KindRoot)
	root.Append(suite, broken)
	return root
}

func newAdapter(t *testing.T, r TestRunner, opts ...Option) *Adapter {
	t.Helper()
	opts = append([]Option{WithLocator(nil), WithRunIDs(func() string { return "run-1" })}, opts...)
	a := New(config.Default(t.TempDir()), r, opts...)
	t.Cleanup(a.Dispose)
	return a
}

func states(evs []events.RunEvent) []domain.TestEvent {
	var out []domain.TestEvent
	for _, ev := range evs {
		if ev.Type == events.KindTest {
			out = append(out, *ev.State)
		}
	}
	return out
}

func finalStates(evs []events.RunEvent) map[string]domain.TestEvent {
	out := make(map[string]domain.TestEvent)
	for _, s := range states(evs) {
		out[s.Test] = s
	}
	return out
}

func TestAdapter_Load(t *testing.T) {
	t.Parallel()

	t.Run("should publish started then finished with a sorted tree", func(t *testing.T) {
		t.Parallel()

		a := newAdapter(t, &fakeRunner{tree: sampleTree})

		root, err := a.Load(context.Background())

		require.NoError(t, err)
		evs := a.Tests().History()
		require.Len(t, evs, 2)
		assert.Equal(t, events.KindStarted, evs[0].Type)
		assert.Equal(t, events.KindFinished, evs[1].Type)
		assert.Same(t, root, evs[1].Suite)
		assert.Empty(t, evs[1].ErrorMessage)

		// Byte order: upper case sorts first.
		assert.Equal(t, "c.Case", root.Children[0].ID)
		assert.Equal(t, "broken", root.Children[1].ID)
		assert.Equal(t, []string{"c.Case.test_a", "c.Case.test_b"}, []string{
			root.Children[0].Children[0].ID, root.Children[0].Children[1].ID,
		})
		assert.Same(t, root, a.Tree())
	})

	t.Run("should report no tests without an error", func(t *testing.T) {
		t.Parallel()

		a := newAdapter(t, &fakeRunner{})

		root, err := a.Load(context.Background())

		require.NoError(t, err)
		assert.Nil(t, root)
		assert.Equal(t, []events.LoadEvent{
			{Type: events.KindStarted},
			{Type: events.KindFinished},
		}, a.Tests().History())
	})

	t.Run("should publish the failure and drop the previous tree", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree}
		a := newAdapter(t, r)
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		r.loadErr = errors.New("No module named pytest")
		_, err = a.Load(context.Background())

		require.Error(t, err)
		evs := a.Tests().History()
		require.Len(t, evs, 4)
		assert.Equal(t, events.LoadEvent{Type: events.KindFinished, ErrorMessage: "No module named pytest"}, evs[3])
		assert.Nil(t, a.Tree())
	})

	t.Run("should annotate source lines", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		file := filepath.Join(dir, "c.py")
		require.NoError(t, os.WriteFile(file, []byte("import unittest\n\nclass Case(unittest.TestCase):\n    def test_a(self):\n        pass\n"), 0o644))

		tree := func() *domain.Node {
			suite := domain.NewSuite("c.Case", "Case", file, domain.KindClass)
			suite.Append(domain.NewTest("c.Case.test_a", "test_a"))
			root := domain.NewSuite("root", "Unittest tests", "", domain.KindRoot)
			root.Append(suite)
			return root
		}
		a := New(config.Default(dir), &fakeRunner{tree: tree}, WithLocator(locator.New()))
		t.Cleanup(a.Dispose)

		root, err := a.Load(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 3, root.Children[0].Line)
		assert.Equal(t, 4, root.Children[0].Children[0].Line)
	})
}

func TestAdapter_Run(t *testing.T) {
	t.Parallel()

	t.Run("should map results onto leaves", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree, results: map[string][]domain.TestEvent{
			"c.Case": {
				domain.NewTestEvent("c.Case.test_a", domain.StatePassed, ""),
				domain.NewTestEvent("c.Case.test_b", domain.StateFailed, "AssertionError"),
				domain.NewTestEvent("elsewhere.test_x", domain.StatePassed, ""),
			},
		}}
		a := newAdapter(t, r)
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		require.NoError(t, a.Run(context.Background(), []string{"c.Case"}))

		evs := a.TestStates().History()
		assert.Equal(t, events.RunStarted("run-1", []string{"c.Case"}), evs[0])
		assert.Equal(t, events.RunFinished("run-1"), evs[len(evs)-1])
		assert.Equal(t, []domain.TestEvent{
			domain.NewTestEvent("c.Case.test_a", domain.StateRunning, ""),
			domain.NewTestEvent("c.Case.test_b", domain.StateRunning, ""),
			domain.NewTestEvent("c.Case.test_a", domain.StatePassed, ""),
			domain.NewTestEvent("c.Case.test_b", domain.StateFailed, "AssertionError"),
		}, states(evs))
	})

	t.Run("should fail every leaf of the subtree when the runner fails", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree, runErr: errors.New("boom")}
		a := newAdapter(t, r)
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		require.NoError(t, a.Run(context.Background(), []string{"c.Case"}))

		assert.Equal(t, map[string]domain.TestEvent{
			"c.Case.test_a": domain.NewTestEvent("c.Case.test_a", domain.StateFailed, "boom"),
			"c.Case.test_b": domain.NewTestEvent("c.Case.test_b", domain.StateFailed, "boom"),
		}, finalStates(a.TestStates().History()))
	})

	t.Run("should fail the subtree when no result is attributable", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree, results: map[string][]domain.TestEvent{
			"c.Case": {domain.NewTestEvent("other.test", domain.StatePassed, "")},
		}}
		a := newAdapter(t, r)
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		require.NoError(t, a.Run(context.Background(), []string{"c.Case"}))

		got := finalStates(a.TestStates().History())
		require.Len(t, got, 2)
		for _, s := range got {
			assert.Equal(t, domain.StateFailed, s.State)
		}
	})

	t.Run("should skip leaves without a result", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree, results: map[string][]domain.TestEvent{
			"c.Case": {domain.NewTestEvent("c.Case.test_a", domain.StatePassed, "")},
		}}
		a := newAdapter(t, r)
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		require.NoError(t, a.Run(context.Background(), []string{"c.Case"}))

		got := finalStates(a.TestStates().History())
		assert.Equal(t, domain.StatePassed, got["c.Case.test_a"].State)
		assert.Equal(t, domain.StateSkipped, got["c.Case.test_b"].State)
	})

	t.Run("should fail errored leaves with the discovery message", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree, results: map[string][]domain.TestEvent{
			"root": {
				domain.NewTestEvent("c.Case.test_a", domain.StatePassed, ""),
				domain.NewTestEvent("c.Case.test_b", domain.StatePassed, ""),
			},
		}}
		a := newAdapter(t, r)
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		require.NoError(t, a.Run(context.Background(), []string{"root"}))

		assert.Equal(t, []string{"root"}, r.runs())
		got := finalStates(a.TestStates().History())
		assert.Equal(t, domain.NewTestEvent("broken", domain.StateFailed, "ImportError: boom"), got["broken"])
	})

	t.Run("should ignore unknown ids", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree, results: map[string][]domain.TestEvent{
			"c.Case.test_a": {domain.NewTestEvent("c.Case.test_a", domain.StatePassed, "")},
		}}
		a := newAdapter(t, r)
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		require.NoError(t, a.Run(context.Background(), []string{"nope", "c.Case.test_a"}))

		assert.Equal(t, []string{"c.Case.test_a"}, r.runs())
		evs := a.TestStates().History()
		assert.Equal(t, []string{"nope", "c.Case.test_a"}, evs[0].Tests)
		assert.Len(t, states(evs), 2)
	})

	t.Run("should bracket a run before discovery", func(t *testing.T) {
		t.Parallel()

		a := newAdapter(t, &fakeRunner{})

		err := a.Run(context.Background(), []string{"c.Case"})

		require.ErrorIs(t, err, ErrNotLoaded)
		assert.Equal(t, []events.RunEvent{
			events.RunStarted("run-1", []string{"c.Case"}),
			events.RunFinished("run-1"),
		}, a.TestStates().History())
	})

	t.Run("should stop without fan-out on cancel", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree, block: true}
		a := newAdapter(t, r)
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() { done <- a.Run(context.Background(), []string{"c.Case"}) }()

		require.Eventually(t, func() bool { return len(r.runs()) == 1 }, time.Second, time.Millisecond)
		a.Cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("run did not return after cancel")
		}

		evs := a.TestStates().History()
		assert.Equal(t, events.KindFinished, evs[len(evs)-1].Type)
		for _, s := range states(evs) {
			assert.Equal(t, domain.StateRunning, s.State)
		}

		// Later operations use a fresh context.
		r.block = false
		require.NoError(t, a.Run(context.Background(), []string{"c.Case"}))
	})

	t.Run("should fail the subtree on timeout", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree, block: true}
		a := newAdapter(t, r, WithTimeout(10*time.Millisecond))
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		err = a.Run(context.Background(), []string{"c.Case"})

		require.ErrorIs(t, err, context.DeadlineExceeded)
		got := finalStates(a.TestStates().History())
		require.Len(t, got, 2)
		for _, s := range got {
			assert.Equal(t, domain.StateFailed, s.State)
		}
	})

	t.Run("should fail queued subtrees on timeout", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree, block: true}
		a := newAdapter(t, r, WithTimeout(50*time.Millisecond))
		cfg := config.Default(t.TempDir())
		cfg.MaxParallel = 1
		a.Reconfigure(cfg)
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		err = a.Run(context.Background(), []string{"c.Case", "broken"})

		require.ErrorIs(t, err, context.DeadlineExceeded)
		got := finalStates(a.TestStates().History())
		require.Len(t, got, 3)
		for id, s := range got {
			assert.Equal(t, domain.StateFailed, s.State, id)
			assert.Equal(t, context.DeadlineExceeded.Error(), s.Message, id)
		}
	})

	t.Run("should fail the subtree when results only cover other tests", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{tree: sampleTree, results: map[string][]domain.TestEvent{
			"c.Case": {domain.NewTestEvent("broken", domain.StateFailed, "ImportError: boom")},
		}}
		a := newAdapter(t, r)
		_, err := a.Load(context.Background())
		require.NoError(t, err)

		require.NoError(t, a.Run(context.Background(), []string{"c.Case"}))

		got := finalStates(a.TestStates().History())
		assert.Equal(t, domain.NewTestEvent("c.Case.test_a", domain.StateFailed, "no result reported"), got["c.Case.test_a"])
		assert.Equal(t, domain.NewTestEvent("c.Case.test_b", domain.StateFailed, "no result reported"), got["c.Case.test_b"])
	})
}

func TestAdapter_Reconfigure(t *testing.T) {
	t.Parallel()

	ws := t.TempDir()
	r := &fakeRunner{tree: sampleTree}
	a := New(config.Default(ws), r, WithLocator(nil))
	t.Cleanup(a.Dispose)
	path := filepath.Join(ws, "cart_test.py")
	require.False(t, a.IsTestFile(path))

	next := config.Default(ws)
	next.Unittest.Enabled = false
	next.Pytest.Enabled = true
	a.Reconfigure(next)

	assert.True(t, a.IsTestFile(path))
	_, err := a.Load(context.Background())
	require.NoError(t, err)
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Same(t, next, r.loaded)
}

func TestAdapter_Dispose(t *testing.T) {
	t.Parallel()

	a := New(config.Default(t.TempDir()), &fakeRunner{tree: sampleTree}, WithLocator(nil))
	a.Dispose()
	a.Dispose()

	_, err := a.Load(context.Background())
	require.ErrorIs(t, err, ErrDisposed)
	require.ErrorIs(t, a.Run(context.Background(), nil), ErrDisposed)
	assert.Empty(t, a.Tests().History())
}

func TestAdapter_IsTestFile(t *testing.T) {
	t.Parallel()

	ws := t.TempDir()
	unittestCfg := config.Default(ws)
	pytestCfg := config.Default(ws)
	pytestCfg.Pytest.Enabled = true

	tests := []struct {
		name string
		cfg  *config.Config
		path string
		want bool
	}{
		{"unittest pattern", unittestCfg, "/w/pkg/test_math.py", true},
		{"unittest non-matching", unittestCfg, "/w/pkg/math_test.py", false},
		{"not python", unittestCfg, "/w/test_data.json", false},
		{"pytest prefix", pytestCfg, "/w/test_cart.py", true},
		{"pytest suffix", pytestCfg, "/w/cart_test.py", true},
		{"pytest helper", pytestCfg, "/w/conftest.py", false},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := New(tt.cfg, &fakeRunner{}, WithLocator(nil))
			assert.Equal(t, tt.want, a.IsTestFile(filepath.FromSlash(tt.path)))
		})
	}
}
