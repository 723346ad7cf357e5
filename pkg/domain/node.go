package domain

import (
	"sort"
	"strings"
)

// NodeType discriminates suites from test leaves in the host tree.
type NodeType string

const (
	NodeTypeSuite NodeType = "suite"
	NodeTypeTest  NodeType = "test"
)

// NodeKind records what a node stood for in the runner output.
// It is not part of the host contract.
type NodeKind string

const (
	KindRoot     NodeKind = "root"
	KindPackage  NodeKind = "package"
	KindModule   NodeKind = "module"
	KindClass    NodeKind = "class"
	KindFunction NodeKind = "function"
	// KindError is a placeholder leaf for a module or class that failed to collect.
	KindError NodeKind = "error"
)

// Node is a suite or a test in the discovered tree.
// Once a tree has been handed to the adapter it is treated as read-only.
type Node struct {
	// Type is "suite" or "test".
	Type NodeType `json:"type"`
	// ID is unique among siblings and stable across discovery passes.
	ID string `json:"id"`
	// Label is the display name. It is not required to be unique.
	Label string `json:"label"`
	// File is the source file, when known.
	File string `json:"file,omitempty"`
	// Line is the 1-based definition line, when resolved.
	Line int `json:"line,omitempty"`
	// Errored marks a collection failure placeholder; Message holds the failure text.
	Errored bool   `json:"errored,omitempty"`
	Message string `json:"message,omitempty"`
	// Children is ordered by discovery until SortChildren is applied.
	Children []*Node `json:"children,omitempty"`

	Kind NodeKind `json:"-"`
}

// NewSuite creates a suite node.
func NewSuite(id, label, file string, kind NodeKind) *Node {
	return &Node{
		Type:  NodeTypeSuite,
		ID:    id,
		Label: label,
		File:  file,
		Kind:  kind,
	}
}

// NewTest creates a test leaf.
func NewTest(id, label string) *Node {
	return &Node{
		Type:  NodeTypeTest,
		ID:    id,
		Label: label,
		Kind:  KindFunction,
	}
}

// NewErroredTest creates a permanently failed leaf for a collection failure.
func NewErroredTest(id, label, message string) *Node {
	return &Node{
		Type:    NodeTypeTest,
		ID:      id,
		Label:   label,
		Errored: true,
		Message: message,
		Kind:    KindError,
	}
}

// IsSuite reports whether n can hold children.
func (n *Node) IsSuite() bool {
	return n.Type == NodeTypeSuite
}

// Append adds children in order.
func (n *Node) Append(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// Child returns the direct child with the given id.
func (n *Node) Child(id string) *Node {
	for _, c := range n.Children {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Walk visits n and its descendants in pre-order.
// The visitor returns false to skip the children of the visited node.
func Walk(n *Node, visit func(*Node) bool) {
	if n == nil {
		return
	}
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(cur) {
			continue
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
}

// Leaves returns every test leaf under n (n itself when it is a test).
func (n *Node) Leaves() []*Node {
	var leaves []*Node
	Walk(n, func(c *Node) bool {
		if !c.IsSuite() {
			leaves = append(leaves, c)
		}
		return true
	})
	return leaves
}

// CountTests returns the number of test leaves under n.
func (n *Node) CountTests() int {
	return len(n.Leaves())
}

// SortChildren orders every suite's children alphabetically by label.
// The sort is stable so equal labels keep discovery order.
func SortChildren(n *Node) {
	Walk(n, func(c *Node) bool {
		if len(c.Children) > 1 {
			sort.SliceStable(c.Children, func(i, j int) bool {
				return naturalLess(c.Children[i].Label, c.Children[j].Label)
			})
		}
		return true
	})
}

// naturalLess compares labels so that embedded numbers sort by value
// (test_demo2 before test_demo10).
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := leadingDigits(a), leadingDigits(b)
		if da != "" && db != "" {
			na, nb := strings.TrimLeft(da, "0"), strings.TrimLeft(db, "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			a, b = a[len(da):], b[len(db):]
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}
