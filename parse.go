package syntree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/helixml/syntree/infrastructure/parsing"
)

// resolveLanguage picks the named language, or the one matching path.
func resolveLanguage(languages parsing.Languages, path, name string) (parsing.Language, error) {
	if name != "" {
		lang, ok := languages.ByName(name)
		if !ok {
			return parsing.Language{}, fmt.Errorf("%w: %s", ErrUnknownLanguage, name)
		}
		return lang, nil
	}
	lang, ok := languages.ByPath(filepath.ToSlash(path))
	if !ok {
		return parsing.Language{}, fmt.Errorf("%w for %s", ErrUnknownLanguage, path)
	}
	return lang, nil
}

func parseFile(ctx context.Context, languages parsing.Languages, path, langName string) (*parsing.Tree, error) {
	lang, err := resolveLanguage(languages, path, langName)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parsing.NewParser().Parse(ctx, lang, src)
}

// ParseFile parses the file at path and returns its nested tree. langName
// overrides detection by path when set.
func ParseFile(ctx context.Context, path, langName string, opts parsing.TreeOptions) (*parsing.TreeNode, error) {
	tree, err := parseFile(ctx, parsing.DefaultLanguages(), path, langName)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	return parsing.TreeJSON(tree, opts)
}

// HashNodes returns the shape hash of every node of type nodeType in the
// file at path.
func HashNodes(ctx context.Context, path, nodeType, langName string) ([]parsing.NodeHash, error) {
	tree, err := parseFile(ctx, parsing.DefaultLanguages(), path, langName)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	return parsing.HashNodesOfType(tree, path, nodeType)
}
