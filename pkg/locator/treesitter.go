package locator

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// maxTreeDepth bounds AST traversal on pathological nesting.
const maxTreeDepth = 1000

// Python AST node types.
const (
	nodeClassDefinition     = "class_definition"
	nodeDecoratedDefinition = "decorated_definition"
	nodeFunctionDefinition  = "function_definition"
)

var (
	pyLang   *sitter.Language
	langOnce sync.Once
)

func language() *sitter.Language {
	langOnce.Do(func() {
		pyLang = python.GetLanguage()
	})
	return pyLang
}

// parse uses a fresh parser per call. Reusing a parser after a cancelled
// ParseCtx leaves its cancel flag set, so parsers are never pooled.
// Caller must Close the returned tree.
func parse(ctx context.Context, source []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(language())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse python: %w", err)
	}
	return tree, nil
}

// unwrapDecorated returns the class or function inside a decorated_definition.
func unwrapDecorated(node *sitter.Node) *sitter.Node {
	if def := node.ChildByFieldName("definition"); def != nil {
		return def
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if t := child.Type(); t == nodeFunctionDefinition || t == nodeClassDefinition {
			return child
		}
	}
	return nil
}

// nodeText returns the source text of node, or "" when its byte range does
// not fit source.
func nodeText(node *sitter.Node, source []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if start > end || end > uint32(len(source)) {
		return ""
	}
	return string(source[start:end])
}

// symbolLines maps dotted definition paths ("Class.Nested.test_x") to
// 1-based lines. Functions are descended into as well, since describe-style
// plugins nest test functions inside functions. The first definition of a
// path wins.
func symbolLines(root *sitter.Node, source []byte) map[string]int {
	type frame struct {
		node   *sitter.Node
		prefix string
		depth  int
	}

	lines := make(map[string]int)
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > maxTreeDepth {
			continue
		}

		node := f.node
		if node.Type() == nodeDecoratedDefinition {
			if def := unwrapDecorated(node); def != nil {
				node = def
			}
		}

		prefix := f.prefix
		switch node.Type() {
		case nodeClassDefinition, nodeFunctionDefinition:
			name := node.ChildByFieldName("name")
			if name == nil {
				continue
			}
			path := prefix + nodeText(name, source)
			if _, ok := lines[path]; !ok {
				lines[path] = int(node.StartPoint().Row) + 1
			}
			body := node.ChildByFieldName("body")
			if body == nil {
				continue
			}
			stack = append(stack, frame{node: body, prefix: path + ".", depth: f.depth + 1})
			continue
		}

		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: node.NamedChild(i), prefix: prefix, depth: f.depth + 1})
		}
	}
	return lines
}
