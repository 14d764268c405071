package document

// Point is a (row, column) position in source.
type Point struct {
	Row    int
	Column int
}

// Node is one syntax node inside one CodeTree.
type Node struct {
	codeTreeKey string
	preorder    int
	start       Point
	end         Point
	named       bool
	typ         string
}

// NewNode creates a Node.
func NewNode(codeTreeKey string, preorder int, start, end Point, named bool, typ string) Node {
	return Node{
		codeTreeKey: codeTreeKey,
		preorder:    preorder,
		start:       start,
		end:         end,
		named:       named,
		typ:         typ,
	}
}

// Collection implements Document.
func (n Node) Collection() string { return string(KindNode) }

// Key implements Document.
func (n Node) Key() string { return NodeKey(n.codeTreeKey, n.preorder) }

// CodeTreeKey returns the key of the owning CodeTree.
func (n Node) CodeTreeKey() string { return n.codeTreeKey }

// Preorder returns the depth-first index within the tree; the root is 0.
func (n Node) Preorder() int { return n.preorder }

// Start returns the start position.
func (n Node) Start() Point { return n.start }

// End returns the end position.
func (n Node) End() Point { return n.end }

// Named reports whether the grammar names this node.
func (n Node) Named() bool { return n.named }

// Type returns the node type.
func (n Node) Type() string { return n.typ }

// Payload implements Document.
func (n Node) Payload() map[string]any {
	return map[string]any{
		"_key":     n.Key(),
		"x1":       n.start.Row,
		"y1":       n.start.Column,
		"x2":       n.end.Row,
		"y2":       n.end.Column,
		"preorder": n.preorder,
		"named":    n.named,
		"type":     n.typ,
	}
}
