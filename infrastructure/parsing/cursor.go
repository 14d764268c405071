package parsing

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// SitterCursor adapts a tree-sitter cursor to Cursor.
type SitterCursor struct {
	cursor *sitter.TreeCursor
}

// NewSitterCursor creates a cursor bounded to the subtree rooted at node.
func NewSitterCursor(node *sitter.Node) *SitterCursor {
	return &SitterCursor{cursor: sitter.NewTreeCursor(node)}
}

// NewTreeCursor creates a fresh cursor at the root of tree.
func NewTreeCursor(tree *Tree) *SitterCursor {
	return NewSitterCursor(tree.Root())
}

// Current implements Cursor.
func (c *SitterCursor) Current() *sitter.Node { return c.cursor.CurrentNode() }

// GotoFirstChild implements Cursor.
func (c *SitterCursor) GotoFirstChild() bool { return c.cursor.GoToFirstChild() }

// GotoNextSibling implements Cursor.
func (c *SitterCursor) GotoNextSibling() bool { return c.cursor.GoToNextSibling() }

// GotoParent implements Cursor.
func (c *SitterCursor) GotoParent() bool { return c.cursor.GoToParent() }

// Close releases the cursor.
func (c *SitterCursor) Close() { c.cursor.Close() }

var _ Cursor[*sitter.Node] = (*SitterCursor)(nil)
