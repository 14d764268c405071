package parsing

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrNoGrammar indicates a language without a grammar.
var ErrNoGrammar = errors.New("no grammar for language")

// Tree is a parsed source file.
type Tree struct {
	tree     *sitter.Tree
	source   []byte
	language Language
	failed   func(root *sitter.Node) bool
}

// Root returns the root node.
func (t *Tree) Root() *sitter.Node { return t.tree.RootNode() }

// Source returns the parsed bytes.
func (t *Tree) Source() []byte { return t.source }

// Language returns the language the tree was parsed with.
func (t *Tree) Language() Language { return t.language }

// Text returns the source bytes spanned by n.
func (t *Tree) Text(n *sitter.Node) []byte {
	return t.source[n.StartByte():n.EndByte()]
}

// RootFailed reports whether the parser could not recognise the file at all.
func (t *Tree) RootFailed() bool {
	root := t.Root()
	if root == nil {
		return true
	}
	if t.failed == nil {
		return rootIsError(root)
	}
	return t.failed(root)
}

func rootIsError(root *sitter.Node) bool {
	return root.Type() == "ERROR"
}

// Close releases the tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
	}
}

// Parser parses source with tree-sitter. It is safe for concurrent use;
// each call gets its own tree-sitter parser.
type Parser struct {
	failed func(root *sitter.Node) bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithRootFailure replaces the check deciding that a root node means the
// file was not recognised. The default accepts any root but ERROR.
func WithRootFailure(fn func(root *sitter.Node) bool) ParserOption {
	return func(p *Parser) {
		if fn != nil {
			p.failed = fn
		}
	}
}

// NewParser creates a Parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{failed: rootIsError}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses src as lang.
func (p *Parser) Parse(ctx context.Context, lang Language, src []byte) (*Tree, error) {
	grammar := lang.Grammar()
	if grammar == nil {
		return nil, fmt.Errorf("parse %s: %w", lang.Name(), ErrNoGrammar)
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", lang.Name(), err)
	}
	return &Tree{tree: tree, source: src, language: lang, failed: p.failed}, nil
}
