package document

// CodeTree is one parsed syntax tree for a (language, content) pair. Any
// number of Files with equal content share it.
type CodeTree struct {
	key         string
	language    string
	langVersion string
	contentHash string
	gitOID      string
	errText     string
}

// NewCodeTree creates a CodeTree.
func NewCodeTree(language, langVersion, contentHash, gitOID string) CodeTree {
	return CodeTree{
		language:    language,
		langVersion: langVersion,
		contentHash: contentHash,
		gitOID:      gitOID,
	}
}

// ReconstructCodeTree rebuilds a CodeTree from storage.
func ReconstructCodeTree(key, language, langVersion, contentHash, gitOID, errText string) CodeTree {
	return CodeTree{
		key:         key,
		language:    language,
		langVersion: langVersion,
		contentHash: contentHash,
		gitOID:      gitOID,
		errText:     errText,
	}
}

// Collection implements Document.
func (c CodeTree) Collection() string { return string(KindCodeTree) }

// Key implements Document.
func (c CodeTree) Key() string {
	if c.key != "" {
		return c.key
	}
	return CodeTreeKey(c.language, c.contentHash)
}

// Language returns the parser language.
func (c CodeTree) Language() string { return c.language }

// LangVersion returns the grammar version used to parse.
func (c CodeTree) LangVersion() string { return c.langVersion }

// ContentHash returns the SHA-512 of the parsed content.
func (c CodeTree) ContentHash() string { return c.contentHash }

// GitOID returns the blob id of the first file parsed into this tree.
func (c CodeTree) GitOID() string { return c.gitOID }

// Error returns the recorded error, if any.
func (c CodeTree) Error() string { return c.errText }

// WithError returns a copy with the error set.
func (c CodeTree) WithError(e string) CodeTree {
	c.errText = e
	return c
}

// WithKey returns a copy stored under an explicit key.
func (c CodeTree) WithKey(key string) CodeTree {
	c.key = key
	return c
}

// Payload implements Document.
func (c CodeTree) Payload() map[string]any {
	return map[string]any{
		"_key":         c.Key(),
		"language":     c.language,
		"lang_version": nullable(c.langVersion),
		"content_hash": c.contentHash,
		"git_oid":      nullable(c.gitOID),
		"error":        nullable(c.errText),
	}
}
