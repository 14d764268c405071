package parsing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/syntree/domain/document"
)

type fakeNode struct {
	name     string
	named    bool
	children []*fakeNode
}

func leaf(name string) *fakeNode { return &fakeNode{name: name, named: true} }

func anon(name string) *fakeNode { return &fakeNode{name: name} }

func branch(name string, children ...*fakeNode) *fakeNode {
	return &fakeNode{name: name, named: true, children: children}
}

// fakeCursor walks a fakeNode tree by keeping the path of child indexes.
type fakeCursor struct {
	root *fakeNode
	path []*fakeNode
	idx  []int
	// extraParents makes GotoParent succeed this many times at the root.
	extraParents int
}

func newFakeCursor(root *fakeNode) *fakeCursor {
	return &fakeCursor{root: root, path: []*fakeNode{root}, idx: []int{0}}
}

func (c *fakeCursor) Current() *fakeNode { return c.path[len(c.path)-1] }

func (c *fakeCursor) GotoFirstChild() bool {
	cur := c.Current()
	if len(cur.children) == 0 {
		return false
	}
	c.path = append(c.path, cur.children[0])
	c.idx = append(c.idx, 0)
	return true
}

func (c *fakeCursor) GotoNextSibling() bool {
	if len(c.path) < 2 {
		return false
	}
	parent := c.path[len(c.path)-2]
	next := c.idx[len(c.idx)-1] + 1
	if next >= len(parent.children) {
		return false
	}
	c.path[len(c.path)-1] = parent.children[next]
	c.idx[len(c.idx)-1] = next
	return true
}

func (c *fakeCursor) GotoParent() bool {
	if len(c.path) < 2 {
		if c.extraParents > 0 {
			c.extraParents--
			return true
		}
		return false
	}
	c.path = c.path[:len(c.path)-1]
	c.idx = c.idx[:len(c.idx)-1]
	return true
}

func sampleFakeTree() *fakeNode {
	return branch("module",
		branch("function",
			anon("def"),
			leaf("identifier"),
			branch("block", leaf("return")),
		),
		leaf("comment"),
	)
}

func collect(t *testing.T, w *Walker[*fakeNode]) []Visit[*fakeNode] {
	t.Helper()
	var out []Visit[*fakeNode]
	require.NoError(t, w.Walk(func(v Visit[*fakeNode]) error {
		out = append(out, v)
		return nil
	}))
	return out
}

func TestWalker_Preorder(t *testing.T) {
	w := NewWalker[*fakeNode](newFakeCursor(sampleFakeTree()))
	visits := collect(t, w)

	var names []string
	var parents, depths []int
	for i, v := range visits {
		assert.Equal(t, i, v.Preorder)
		names = append(names, v.Node.name)
		parents = append(parents, v.Parent)
		depths = append(depths, v.Depth)
	}
	assert.Equal(t, []string{"module", "function", "def", "identifier", "block", "return", "comment"}, names)
	assert.Equal(t, []int{-1, 0, 1, 1, 1, 4, 0}, parents)
	assert.Equal(t, []int{0, 1, 2, 2, 2, 3, 1}, depths)
	assert.Equal(t, 7, w.Preorder())
	assert.Equal(t, 0, w.Depth())

	_, err := w.Next()
	assert.ErrorIs(t, err, ErrIterationExhausted)
	_, err = w.Next()
	assert.ErrorIs(t, err, ErrIterationExhausted)
}

func TestWalker_SingleNode(t *testing.T) {
	w := NewWalker[*fakeNode](newFakeCursor(leaf("module")))
	assert.Equal(t, "module", w.Peek().name)

	v, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, -1, v.Parent)

	_, err = w.Next()
	assert.ErrorIs(t, err, ErrIterationExhausted)
}

func TestWalker_Filter(t *testing.T) {
	tree := branch("module",
		anon("wrapper_open"),
		&fakeNode{name: "group", children: []*fakeNode{leaf("inner")}},
		leaf("tail"),
	)
	w := NewWalker[*fakeNode](newFakeCursor(tree), WithFilter(func(n *fakeNode) bool { return n.named }))
	visits := collect(t, w)

	require.Len(t, visits, 3)
	assert.Equal(t, "inner", visits[1].Node.name)
	assert.Equal(t, 1, visits[1].Preorder)
	// inner's unnamed parent is skipped; its nearest yielded ancestor is the root.
	assert.Equal(t, 0, visits[1].Parent)
	assert.Equal(t, 2, visits[1].Depth)
	assert.Equal(t, "tail", visits[2].Node.name)
	assert.Equal(t, 2, visits[2].Preorder)
	assert.Equal(t, 3, w.Preorder())
}

func TestWalker_BadTreeIteration(t *testing.T) {
	cursor := newFakeCursor(branch("module", leaf("x")))
	cursor.extraParents = 1
	w := NewWalker[*fakeNode](cursor)

	_, err := w.Next()
	require.NoError(t, err)
	_, err = w.Next()
	require.NoError(t, err)
	_, err = w.Next()
	assert.ErrorIs(t, err, document.ErrBadTreeIteration)
	assert.False(t, errors.Is(err, ErrIterationExhausted))
}

func TestWalker_WalkStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	w := NewWalker[*fakeNode](newFakeCursor(sampleFakeTree()))
	seen := 0
	err := w.Walk(func(Visit[*fakeNode]) error {
		seen++
		if seen == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, seen)
}
