// Package report renders discovered trees and run results for a terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/specvital/pyadapter/pkg/domain"
	"github.com/specvital/pyadapter/pkg/events"
)

// Tree writes root as an indented outline. Errored leaves are marked with !.
func Tree(w io.Writer, root *domain.Node) {
	if root == nil {
		fmt.Fprintln(w, "no tests discovered")
		return
	}

	l := list.NewWriter()
	l.SetOutputMirror(w)
	l.SetStyle(list.StyleConnectedRounded)

	type frame struct {
		node  *domain.Node
		depth int
	}
	depth := 0
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for ; depth < f.depth; depth++ {
			l.Indent()
		}
		for ; depth > f.depth; depth-- {
			l.UnIndent()
		}
		l.AppendItem(itemText(f.node))

		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: f.node.Children[i], depth: f.depth + 1})
		}
	}
	l.Render()
}

func itemText(n *domain.Node) string {
	var b strings.Builder
	if n.Errored {
		b.WriteString("! ")
	}
	b.WriteString(n.Label)
	if n.IsSuite() && n.Kind != domain.KindRoot {
		fmt.Fprintf(&b, " (%d)", n.CountTests())
	}
	if n.Line > 0 {
		fmt.Fprintf(&b, " :%d", n.Line)
	}
	return b.String()
}

// Summary holds the last reported state of every test in one run.
type Summary struct {
	order  []string
	states map[string]domain.TestEvent
	// color overrides terminal detection when set.
	color *bool
}

// NewSummary returns an empty summary. Render colors its table only when
// writing to a terminal unless SetUseColor says otherwise.
func NewSummary() *Summary {
	return &Summary{states: make(map[string]domain.TestEvent)}
}

// Observe records a run event. Only test events change the summary.
func (s *Summary) Observe(ev events.RunEvent) {
	if ev.Type != events.KindTest || ev.State == nil {
		return
	}
	id := ev.State.Test
	if _, ok := s.states[id]; !ok {
		s.order = append(s.order, id)
	}
	s.states[id] = *ev.State
}

// Count returns how many tests ended in state.
func (s *Summary) Count(state domain.State) int {
	n := 0
	for _, ev := range s.states {
		if ev.State == state {
			n++
		}
	}
	return n
}

// SetUseColor overrides terminal detection.
func (s *Summary) SetUseColor(useColor bool) {
	s.color = &useColor
}

// Failed reports whether any test ended failed.
func (s *Summary) Failed() bool {
	return s.Count(domain.StateFailed) > 0
}

// Render writes one row per test and a totals footer.
func (s *Summary) Render(w io.Writer, root *domain.Node) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"TEST", "STATE", "MESSAGE"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TEST", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "MESSAGE", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	idx := domain.NewIndex(root)
	for _, id := range s.order {
		ev := s.states[id]
		name := id
		if leaf, ok := idx.Leaf(id); ok {
			name = leaf.Label
		}
		t.AppendRow(table.Row{name, ev.State, firstLine(ev.Message)})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("TOTAL %d", len(s.order)),
		fmt.Sprintf("%d passed / %d failed / %d skipped",
			s.Count(domain.StatePassed), s.Count(domain.StateFailed), s.Count(domain.StateSkipped)),
		"",
	})

	switch {
	case !s.useColor(w):
		t.SetStyle(table.StyleLight)
	case s.Failed():
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case s.Count(domain.StateSkipped) > 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	t.Render()
}

func (s *Summary) useColor(w io.Writer) bool {
	if s.color != nil {
		return *s.color
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
