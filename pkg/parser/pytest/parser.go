// Package pytest turns `pytest --collect-only` output into suite trees.
//
// Ids follow pytest node ids with the file part made absolute:
// /abs/dir for packages, /abs/dir/test_x.py for modules and
// /abs/dir/test_x.py::Class::test_y below them. These are the ids the run
// script prints, so results can be matched back to discovered nodes.
package pytest

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/specvital/pyadapter/pkg/domain"
	"github.com/specvital/pyadapter/pkg/parser/results"
)

// Separator joins names below a module.
const Separator = "::"

var (
	itemPattern    = regexp.MustCompile(`^(\s*)<(\w+) (.+)>\s*$`)
	rootdirPattern = regexp.MustCompile(`^rootdir: (.+?)(?:, .*)?$`)
)

type rawNode struct {
	collector collector
	name      string
	children  []*rawNode
}

type parser struct {
	// root resolves relative names that have no enclosing directory.
	root string
}

// ParseSuites returns the top-level suites in encounter order. cwd is the
// directory pytest ran in; the rootdir reported by pytest takes precedence
// when present. Output with no recognisable listing yields no suites.
func ParseSuites(output, cwd string) []*domain.Node {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")
	listing, errorLines := splitErrors(lines)

	p := &parser{root: cwd}
	for _, line := range listing {
		if m := rootdirPattern.FindStringSubmatch(line); m != nil {
			p.root = strings.TrimSpace(m[1])
			break
		}
	}

	top := domain.NewSuite("", "", "", domain.KindRoot)
	p.build(top, parseListing(listing))
	for _, e := range parseErrors(errorLines) {
		p.attachError(top, e)
	}
	return top.Children
}

// ParseStates parses run-mode result lines.
func ParseStates(output string) []domain.TestEvent {
	return results.ParseStates(output)
}

// parseListing rebuilds the indentation tree. A line at depth d closes every
// open frame at depth >= d before it is attached.
func parseListing(lines []string) []*rawNode {
	type frame struct {
		indent int
		node   *rawNode
	}

	var (
		roots []*rawNode
		stack []frame
	)
	for _, line := range lines {
		m := itemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent := len(m[1])
		n := &rawNode{collector: parseCollector(m[2]), name: unquote(m[3])}

		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, n)
		} else {
			parent := stack[len(stack)-1].node
			parent.children = append(parent.children, n)
		}
		stack = append(stack, frame{indent: indent, node: n})
	}
	return roots
}

// scope is the context inherited by a node's children.
type scope struct {
	dir  string
	file string
	id   string
}

// build converts raw nodes to output nodes with an explicit work stack.
func (p *parser) build(top *domain.Node, roots []*rawNode) {
	type work struct {
		raw    *rawNode
		parent *domain.Node
		scope  scope
	}

	stack := make([]work, 0, len(roots))
	push := func(nodes []*rawNode, parent *domain.Node, s scope) {
		for i := len(nodes) - 1; i >= 0; i-- {
			stack = append(stack, work{raw: nodes[i], parent: parent, scope: s})
		}
	}
	push(roots, top, scope{})

	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		r := w.raw

		var (
			n    *domain.Node
			next scope
		)
		switch roleOf(r.collector, len(r.children) > 0) {
		case roleTransparent:
			push(r.children, w.parent, w.scope)
			continue
		case roleDirectory:
			dir := p.resolveDir(r.name, w.scope)
			n = domain.NewSuite(dir, filepath.Base(dir), "", r.collector.nodeKind())
			next = scope{dir: dir}
		case roleFile:
			file := p.resolve(r.name, w.scope.dir)
			n = domain.NewSuite(file, filepath.Base(file), file, domain.KindModule)
			next = scope{dir: w.scope.dir, file: file, id: file}
		case roleGroup:
			id := p.join(w.scope, r.name)
			n = domain.NewSuite(id, r.name, w.scope.file, r.collector.nodeKind())
			next = scope{dir: w.scope.dir, file: w.scope.file, id: id}
		case roleTest:
			n = domain.NewTest(p.join(w.scope, r.name), r.name)
		}

		if existing := w.parent.Child(n.ID); existing != nil {
			// Repeated listings of the same node merge into the first one.
			if existing.IsSuite() && n.IsSuite() {
				push(r.children, existing, next)
			}
			continue
		}
		w.parent.Append(n)
		if n.IsSuite() {
			push(r.children, n, next)
		}
	}
}

func (p *parser) join(s scope, name string) string {
	if s.id == "" {
		return p.resolve(name, s.dir)
	}
	return s.id + Separator + name
}

// resolve makes a reported path absolute against dir, or the root when
// there is no enclosing directory.
func (p *parser) resolve(name, dir string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	if dir == "" {
		dir = p.root
	}
	return filepath.Join(dir, filepath.FromSlash(name))
}

// resolveDir is resolve for directory collectors. A top-level directory named
// after the root is the root itself.
func (p *parser) resolveDir(name string, s scope) string {
	if s.dir == "" && !filepath.IsAbs(name) && name == filepath.Base(p.root) {
		return filepath.Clean(p.root)
	}
	return p.resolve(name, s.dir)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
