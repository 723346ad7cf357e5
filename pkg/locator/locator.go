// Package locator resolves the source line of discovered suites and tests.
package locator

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/specvital/pyadapter/pkg/domain"
	"github.com/specvital/pyadapter/pkg/logging"
)

// DefaultMaxFileSize skips files larger than this (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// Locator fills Node.Line from Python sources.
type Locator struct {
	logger      *slog.Logger
	workers     int
	maxFileSize int64
	readFile    func(string) ([]byte, error)
}

// Option configures a Locator.
type Option func(*Locator)

// WithLogger sets the logger for skipped files.
func WithLogger(l *slog.Logger) Option {
	return func(loc *Locator) {
		loc.logger = l
	}
}

// WithWorkers sets how many files are parsed concurrently.
// Zero or negative values use runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(loc *Locator) {
		loc.workers = n
	}
}

// New returns a Locator reading from the local filesystem.
func New(opts ...Option) *Locator {
	loc := &Locator{
		logger:      logging.Nop(),
		maxFileSize: DefaultMaxFileSize,
		readFile:    os.ReadFile,
	}
	for _, opt := range opts {
		opt(loc)
	}
	loc.logger = logging.Component(loc.logger, "locator")
	return loc
}

// target is a node together with its symbol path inside file.
type target struct {
	node *domain.Node
	file string
	path string
}

// Annotate sets Line on every suite and test whose definition can be found,
// and File on tests. Files that cannot be read or parsed are skipped; the
// tree is otherwise left unchanged.
func (l *Locator) Annotate(ctx context.Context, root *domain.Node) {
	targets := collectTargets(root)
	if len(targets) == 0 {
		return
	}

	var files []string
	seen := make(map[string]bool)
	for _, t := range targets {
		if !seen[t.file] {
			seen[t.file] = true
			files = append(files, t.file)
		}
	}

	symbols := l.parseFiles(ctx, files)
	for _, t := range targets {
		if !t.node.IsSuite() && t.node.File == "" {
			t.node.File = t.file
		}
		if line, ok := symbols[t.file][t.path]; ok {
			t.node.Line = line
		}
	}
}

func (l *Locator) parseFiles(ctx context.Context, files []string) map[string]map[string]int {
	workers := l.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	sem := semaphore.NewWeighted(int64(workers))
	g, gCtx := errgroup.WithContext(ctx)

	var (
		mu      sync.Mutex
		symbols = make(map[string]map[string]int, len(files))
	)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := sem.Acquire(gCtx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			lines := l.parseFile(gCtx, file)
			if lines == nil {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			symbols[file] = lines
			return nil
		})
	}
	_ = g.Wait()

	return symbols
}

func (l *Locator) parseFile(ctx context.Context, file string) map[string]int {
	if ctx.Err() != nil {
		return nil
	}

	source, err := l.readFile(file)
	if err != nil {
		l.logger.Debug("skipping unreadable source", "file", file, "err", err)
		return nil
	}
	if int64(len(source)) > l.maxFileSize {
		l.logger.Debug("skipping large source", "file", file, "size", len(source))
		return nil
	}

	tree, err := parse(ctx, source)
	if err != nil {
		l.logger.Debug("skipping unparseable source", "file", file, "err", err)
		return nil
	}
	defer tree.Close()

	return symbolLines(tree.RootNode(), source)
}

// collectTargets walks the tree and computes each node's symbol path within
// its file. A node whose File differs from its parent's starts a new file
// scope; module and package suites contribute no symbol of their own.
func collectTargets(root *domain.Node) []target {
	type frame struct {
		node *domain.Node
		file string
		path string
	}

	var targets []target
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := f.node

		file, path := f.file, f.path
		if n.IsSuite() && n.File != file {
			file, path = n.File, ""
		}

		switch {
		case n.Kind == domain.KindError:
			continue
		case n.Kind == domain.KindRoot, n.Kind == domain.KindPackage, n.Kind == domain.KindModule:
		default:
			if file != "" {
				if name := symbolName(n.ID); name != "" {
					if path != "" {
						path += "."
					}
					path += name
					targets = append(targets, target{node: n, file: file, path: path})
				}
			}
		}

		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: n.Children[i], file: file, path: path})
		}
	}
	return targets
}

// symbolName returns the Python name a node id ends with, without any
// parametrisation: both "/w/test_a.py::TestX::test_b[1-2]" and
// "pkg.test_a.TestX.test_b" yield "test_b".
func symbolName(id string) string {
	if i := strings.LastIndex(id, "::"); i >= 0 {
		id = id[i+2:]
	} else if i := strings.LastIndex(id, "."); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.IndexByte(id, '['); i > 0 {
		id = id[:i]
	}
	return id
}
