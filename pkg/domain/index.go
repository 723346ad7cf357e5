package domain

// Index is a read-only id lookup over a discovered tree.
//
// A collection failure placeholder can share its id with the module suite
// that contains it, so suites and leaves are indexed separately: Node answers
// "what subtree does this request cover" and Leaf answers "which test does
// this result belong to".
type Index struct {
	root   *Node
	nodes  map[string]*Node
	leaves map[string]*Node
}

// NewIndex indexes root. The first node in pre-order wins on duplicate ids.
func NewIndex(root *Node) *Index {
	idx := &Index{
		root:   root,
		nodes:  make(map[string]*Node),
		leaves: make(map[string]*Node),
	}
	Walk(root, func(n *Node) bool {
		if _, ok := idx.nodes[n.ID]; !ok {
			idx.nodes[n.ID] = n
		}
		if !n.IsSuite() {
			if _, ok := idx.leaves[n.ID]; !ok {
				idx.leaves[n.ID] = n
			}
		}
		return true
	})
	return idx
}

// Root returns the indexed tree.
func (idx *Index) Root() *Node {
	return idx.root
}

// Node returns the outermost node with the given id.
func (idx *Index) Node(id string) (*Node, bool) {
	n, ok := idx.nodes[id]
	return n, ok
}

// Leaf returns the test leaf with the given id.
func (idx *Index) Leaf(id string) (*Node, bool) {
	n, ok := idx.leaves[id]
	return n, ok
}

// Len returns the number of distinct ids.
func (idx *Index) Len() int {
	return len(idx.nodes)
}
