// Package parsing turns source files into concrete syntax trees and walks
// them in preorder.
package parsing

import (
	"errors"
	"fmt"

	"github.com/helixml/syntree/domain/document"
)

// ErrIterationExhausted is returned by Walker.Next once every node has been
// visited.
var ErrIterationExhausted = errors.New("iteration exhausted")

// Cursor moves over a tree one node at a time.
type Cursor[N any] interface {
	Current() N
	GotoFirstChild() bool
	GotoNextSibling() bool
	GotoParent() bool
}

// Visit is one node yielded by a Walker.
type Visit[N any] struct {
	Node     N
	Preorder int
	Depth    int
	// Parent is the preorder of the nearest yielded ancestor, or -1 for the
	// first node.
	Parent int
}

// WalkerOption configures a Walker.
type WalkerOption[N any] func(*Walker[N])

// WithFilter skips nodes for which keep returns false. Skipped nodes are
// still descended into but are not counted.
func WithFilter[N any](keep func(N) bool) WalkerOption[N] {
	return func(w *Walker[N]) {
		w.keep = keep
	}
}

// frame is one ancestor on the path from the start node to the cursor.
type frame struct {
	// nearest is the preorder of this node if it was yielded, otherwise of
	// its nearest yielded ancestor.
	nearest int
}

// Walker iterates a Cursor in preorder without recursion. A Walker is single
// pass; walk again with a fresh cursor.
type Walker[N any] struct {
	cursor   Cursor[N]
	keep     func(N) bool
	stack    []frame
	depth    int
	preorder int
	started  bool
	done     bool
}

// NewWalker creates a Walker positioned at the cursor's current node.
func NewWalker[N any](cursor Cursor[N], opts ...WalkerOption[N]) *Walker[N] {
	w := &Walker[N]{cursor: cursor}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Peek returns the node under the cursor without advancing.
func (w *Walker[N]) Peek() N {
	return w.cursor.Current()
}

// Depth returns the depth of the cursor relative to the start node.
func (w *Walker[N]) Depth() int {
	return w.depth
}

// Preorder returns the number of nodes yielded so far.
func (w *Walker[N]) Preorder() int {
	return w.preorder
}

// Next advances to the next node that passes the filter.
func (w *Walker[N]) Next() (Visit[N], error) {
	for {
		if w.done {
			return Visit[N]{}, ErrIterationExhausted
		}
		if err := w.advance(); err != nil {
			if errors.Is(err, ErrIterationExhausted) {
				w.done = true
			}
			return Visit[N]{}, err
		}
		if visit, ok := w.yield(); ok {
			return visit, nil
		}
	}
}

// Walk calls fn for every remaining node.
func (w *Walker[N]) Walk(fn func(Visit[N]) error) error {
	for {
		visit, err := w.Next()
		if errors.Is(err, ErrIterationExhausted) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(visit); err != nil {
			return err
		}
	}
}

// advance moves the cursor and the frame stack to the next node in
// preorder: first child, else next sibling, else the sibling of the
// closest ancestor that has one.
func (w *Walker[N]) advance() error {
	if !w.started {
		w.started = true
		return nil
	}
	if w.cursor.GotoFirstChild() {
		w.depth++
		return nil
	}
	if w.cursor.GotoNextSibling() {
		return w.pop()
	}
	for {
		if err := w.pop(); err != nil {
			return err
		}
		if !w.cursor.GotoParent() {
			if w.depth != 0 || len(w.stack) != 0 {
				return fmt.Errorf("%w: finished at depth %d", document.ErrBadTreeIteration, w.depth)
			}
			return ErrIterationExhausted
		}
		w.depth--
		if w.depth < 0 {
			return fmt.Errorf("%w: ascended past the start node", document.ErrBadTreeIteration)
		}
		if w.cursor.GotoNextSibling() {
			return w.pop()
		}
	}
}

// yield records the frame for the node under the cursor.
func (w *Walker[N]) yield() (Visit[N], bool) {
	parent := -1
	if n := len(w.stack); n > 0 {
		parent = w.stack[n-1].nearest
	}
	node := w.cursor.Current()
	if w.keep != nil && !w.keep(node) {
		w.stack = append(w.stack, frame{nearest: parent})
		return Visit[N]{}, false
	}
	visit := Visit[N]{
		Node:     node,
		Preorder: w.preorder,
		Depth:    w.depth,
		Parent:   parent,
	}
	w.stack = append(w.stack, frame{nearest: w.preorder})
	w.preorder++
	return visit, true
}

func (w *Walker[N]) pop() error {
	if len(w.stack) == 0 {
		return fmt.Errorf("%w: ascended past the start node", document.ErrBadTreeIteration)
	}
	w.stack = w.stack[:len(w.stack)-1]
	return nil
}
