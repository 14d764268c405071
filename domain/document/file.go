package document

// FileMode is a git tree entry mode.
type FileMode uint32

// Supported git modes.
const (
	ModeBlob       FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeLink       FileMode = 0o120000
)

// IsSupported reports whether files of this mode are ingested.
func (m FileMode) IsSupported() bool {
	return m == ModeBlob || m == ModeExecutable || m == ModeLink
}

// IsLink reports whether the mode is a symbolic link.
func (m FileMode) IsLink() bool { return m == ModeLink }

// Symlink holds the target of a link file.
type Symlink struct {
	Target string
	// Relative is the resolved target relative to the checkout root, empty
	// when the target leaves the checkout.
	Relative string
}

// File is one path at one commit.
type File struct {
	key         string
	path        string
	mode        FileMode
	size        int64
	gitOID      string
	language    string
	contentHash string
	errText     string
	symlink     *Symlink
}

// NewFile creates a File with the attributes known before hashing.
func NewFile(path string, mode FileMode, size int64, gitOID string) File {
	return File{
		path:   path,
		mode:   mode,
		size:   size,
		gitOID: gitOID,
	}
}

// ReconstructFile rebuilds a File from storage.
func ReconstructFile(
	key, path string,
	mode FileMode,
	size int64,
	gitOID, language, contentHash, errText string,
	symlink *Symlink,
) File {
	return File{
		key:         key,
		path:        path,
		mode:        mode,
		size:        size,
		gitOID:      gitOID,
		language:    language,
		contentHash: contentHash,
		errText:     errText,
		symlink:     symlink,
	}
}

// Collection implements Document.
func (f File) Collection() string { return string(KindFile) }

// Key implements Document.
func (f File) Key() string {
	if f.key != "" {
		return f.key
	}
	return FileKey(f.path, f.mode, f.contentHash)
}

// Path returns the path within the repository.
func (f File) Path() string { return f.path }

// Mode returns the git mode.
func (f File) Mode() FileMode { return f.mode }

// Size returns the size in bytes.
func (f File) Size() int64 { return f.size }

// GitOID returns the git blob id recorded in the commit.
func (f File) GitOID() string { return f.gitOID }

// Language returns the detected language, empty when none matched.
func (f File) Language() string { return f.language }

// ContentHash returns the SHA-512 of the content.
func (f File) ContentHash() string { return f.contentHash }

// Error returns the recorded error, if any.
func (f File) Error() string { return f.errText }

// Symlink returns the link target, nil for regular files.
func (f File) Symlink() *Symlink {
	if f.symlink == nil {
		return nil
	}
	s := *f.symlink
	return &s
}

// WithContentHash returns a copy with the content hash set.
func (f File) WithContentHash(h string) File {
	f.contentHash = h
	return f
}

// WithLanguage returns a copy with the language set.
func (f File) WithLanguage(lang string) File {
	f.language = lang
	return f
}

// WithError returns a copy with the error set.
func (f File) WithError(e string) File {
	f.errText = e
	return f
}

// WithSymlink returns a copy with the link target set.
func (f File) WithSymlink(s Symlink) File {
	f.symlink = &s
	return f
}

// Payload implements Document.
func (f File) Payload() map[string]any {
	var symlink any
	if f.symlink != nil {
		symlink = map[string]any{
			"target":   f.symlink.Target,
			"relative": nullable(f.symlink.Relative),
		}
	}
	return map[string]any{
		"_key":         f.Key(),
		"path":         f.path,
		"mode":         int64(f.mode),
		"size":         f.size,
		"git_oid":      f.gitOID,
		"language":     nullable(f.language),
		"content_hash": f.contentHash,
		"error":        nullable(f.errText),
		"symlink":      symlink,
	}
}
