package parsing

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pySource = `def add(a, b):
    return a + b


def sub(x, y):
    return x + y
`

func parsePython(t *testing.T, src string) *Tree {
	t.Helper()
	lang, ok := DefaultLanguages().ByName("python")
	require.True(t, ok)
	tree, err := NewParser().Parse(context.Background(), lang, []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

func TestParser_Parse(t *testing.T) {
	tree := parsePython(t, pySource)
	assert.Equal(t, "module", tree.Root().Type())
	assert.False(t, tree.RootFailed())
	assert.Equal(t, "python", tree.Language().Name())
}

func TestParser_RootFailure(t *testing.T) {
	lang, ok := DefaultLanguages().ByName("python")
	require.True(t, ok)

	var seen string
	parser := NewParser(WithRootFailure(func(root *sitter.Node) bool {
		seen = root.Type()
		return true
	}))
	tree, err := parser.Parse(context.Background(), lang, []byte(pySource))
	require.NoError(t, err)
	defer tree.Close()

	assert.True(t, tree.RootFailed())
	assert.Equal(t, "module", seen)

	// A nil check keeps the default.
	tree, err = NewParser(WithRootFailure(nil)).Parse(context.Background(), lang, []byte(pySource))
	require.NoError(t, err)
	defer tree.Close()
	assert.False(t, tree.RootFailed())
}

func TestParser_NoGrammar(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), NewLanguage("none", nil, nil, nil), []byte("x"))
	assert.ErrorIs(t, err, ErrNoGrammar)
}

func TestWalker_SitterTreeIsContiguous(t *testing.T) {
	tree := parsePython(t, pySource)
	cursor := NewTreeCursor(tree)
	defer cursor.Close()

	count := 0
	w := NewWalker[*sitter.Node](cursor)
	for {
		v, err := w.Next()
		if err != nil {
			assert.ErrorIs(t, err, ErrIterationExhausted)
			break
		}
		assert.Equal(t, count, v.Preorder)
		if count == 0 {
			assert.Equal(t, -1, v.Parent)
		} else {
			assert.Less(t, v.Parent, v.Preorder)
		}
		count++
	}
	assert.Greater(t, count, 10)
	assert.Equal(t, 0, w.Depth())
}

func TestHashNodesOfType_IgnoresNames(t *testing.T) {
	tree := parsePython(t, pySource)
	hashes, err := HashNodesOfType(tree, "calc.py", "function_definition")
	require.NoError(t, err)
	require.Len(t, hashes, 2)

	assert.Equal(t, hashes[0].SHA512, hashes[1].SHA512)
	assert.Equal(t, 0, hashes[0].X1)
	assert.Equal(t, 4, hashes[1].X1)
	assert.Equal(t, "calc.py", hashes[1].File)
	assert.Len(t, hashes[0].SHA512, 128)
}

func TestTreeJSON(t *testing.T) {
	tree := parsePython(t, "x = 1\n")

	root, err := TreeJSON(tree, TreeOptions{IncludeText: true})
	require.NoError(t, err)
	assert.Equal(t, "module", root.Type)
	assert.Equal(t, 0, root.Preorder)
	require.NotNil(t, root.Text)
	assert.Contains(t, *root.Text, "x = 1")
	require.Len(t, root.Children, 1)
	assert.Equal(t, "expression_statement", root.Children[0].Type)

	named, err := TreeJSON(tree, TreeOptions{NamedOnly: true})
	require.NoError(t, err)
	assign := named.Children[0].Children[0]
	assert.Equal(t, "assignment", assign.Type)
	// The "=" token is unnamed and dropped.
	require.Len(t, assign.Children, 2)
	assert.Equal(t, "identifier", assign.Children[0].Type)
	assert.Equal(t, "integer", assign.Children[1].Type)
	assert.Nil(t, assign.Text)
}
