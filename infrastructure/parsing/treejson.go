package parsing

import (
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// TreeNode is the nested JSON form of a syntax tree.
type TreeNode struct {
	Type     string      `json:"type"`
	Named    bool        `json:"named"`
	X1       int         `json:"x1"`
	Y1       int         `json:"y1"`
	X2       int         `json:"x2"`
	Y2       int         `json:"y2"`
	Preorder int         `json:"preorder"`
	Text     *string     `json:"text,omitempty"`
	Children []*TreeNode `json:"children"`
}

// TreeOptions selects what TreeJSON includes.
type TreeOptions struct {
	NamedOnly   bool
	IncludeText bool
}

// TreeJSON builds the nested form of tree. Preorder numbers count only the
// included nodes.
func TreeJSON(tree *Tree, opts TreeOptions) (*TreeNode, error) {
	cursor := NewTreeCursor(tree)
	defer cursor.Close()

	var walkerOpts []WalkerOption[*sitter.Node]
	if opts.NamedOnly {
		walkerOpts = append(walkerOpts, WithFilter[*sitter.Node](func(n *sitter.Node) bool { return n.IsNamed() }))
	}

	var nodes []*TreeNode
	var root *TreeNode
	err := NewWalker[*sitter.Node](cursor, walkerOpts...).Walk(func(v Visit[*sitter.Node]) error {
		start, end := v.Node.StartPoint(), v.Node.EndPoint()
		n := &TreeNode{
			Type:     v.Node.Type(),
			Named:    v.Node.IsNamed(),
			X1:       int(start.Row),
			Y1:       int(start.Column),
			X2:       int(end.Row),
			Y2:       int(end.Column),
			Preorder: v.Preorder,
			Children: []*TreeNode{},
		}
		if opts.IncludeText {
			if text := tree.Text(v.Node); utf8.Valid(text) {
				s := string(text)
				n.Text = &s
			}
		}
		nodes = append(nodes, n)
		if v.Parent < 0 {
			if root != nil {
				return fmt.Errorf("tree json: second root at preorder %d", v.Preorder)
			}
			root = n
			return nil
		}
		parent := nodes[v.Parent]
		parent.Children = append(parent.Children, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}
