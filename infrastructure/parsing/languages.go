package parsing

import (
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
)

// Language is a grammar together with the paths it applies to.
type Language struct {
	name    string
	include []string
	exclude []string
	grammar func() *sitter.Language
}

// NewLanguage creates a Language. Patterns are doublestar globs matched
// against slash-separated repository paths.
func NewLanguage(name string, grammar func() *sitter.Language, include, exclude []string) Language {
	return Language{
		name:    name,
		include: slices.Clone(include),
		exclude: slices.Clone(exclude),
		grammar: grammar,
	}
}

// Name returns the language name.
func (l Language) Name() string { return l.name }

// Grammar returns the tree-sitter grammar.
func (l Language) Grammar() *sitter.Language {
	if l.grammar == nil {
		return nil
	}
	return l.grammar()
}

// Include returns the include globs.
func (l Language) Include() []string { return slices.Clone(l.include) }

// Exclude returns the exclude globs.
func (l Language) Exclude() []string { return slices.Clone(l.exclude) }

// Extensions returns the file extensions named by the include globs.
func (l Language) Extensions() []string {
	var out []string
	for _, glob := range l.include {
		if ext := path.Ext(glob); ext != "" && !slices.Contains(out, ext) {
			out = append(out, ext)
		}
	}
	return out
}

// Matches reports whether the language applies to p.
func (l Language) Matches(p string) bool {
	p = strings.TrimPrefix(p, "/")
	for _, glob := range l.exclude {
		if ok, _ := doublestar.Match(glob, p); ok {
			return false
		}
	}
	for _, glob := range l.include {
		if ok, _ := doublestar.Match(glob, p); ok {
			return true
		}
	}
	return false
}

// Languages is an ordered registry of languages.
type Languages struct {
	languages []Language
}

// NewLanguages creates a registry. The first language matching a path wins.
func NewLanguages(languages ...Language) Languages {
	return Languages{languages: slices.Clone(languages)}
}

// DefaultLanguages returns the languages with grammars compiled in.
func DefaultLanguages() Languages {
	return NewLanguages(
		NewLanguage("python", python.GetLanguage, []string{"**/*.py"}, nil),
		NewLanguage("javascript", javascript.GetLanguage, []string{"**/*.js"}, []string{"**/*.min.js"}),
		NewLanguage("rust", rust.GetLanguage, []string{"**/*.rs"}, nil),
	)
}

// ByPath returns the language for a repository path.
func (l Languages) ByPath(p string) (Language, bool) {
	for _, lang := range l.languages {
		if lang.Matches(p) {
			return lang, true
		}
	}
	return Language{}, false
}

// ByName returns the language with the given name.
func (l Languages) ByName(name string) (Language, bool) {
	for _, lang := range l.languages {
		if lang.name == name {
			return lang, true
		}
	}
	return Language{}, false
}

// Names returns every language name in registration order.
func (l Languages) Names() []string {
	names := make([]string, len(l.languages))
	for i, lang := range l.languages {
		names[i] = lang.name
	}
	return names
}
