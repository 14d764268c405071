package document

// Commit is one git commit snapshot.
type Commit struct {
	sha        string
	commitTime int64
	offset     int
	parents    []string
	tree       string
}

// NewCommit creates a Commit. offset is the committer timezone in minutes.
func NewCommit(sha string, commitTime int64, offset int, parents []string, tree string) Commit {
	p := make([]string, len(parents))
	copy(p, parents)
	return Commit{
		sha:        sha,
		commitTime: commitTime,
		offset:     offset,
		parents:    p,
		tree:       tree,
	}
}

// Collection implements Document.
func (c Commit) Collection() string { return string(KindCommit) }

// Key implements Document. A commit is keyed by its own hash.
func (c Commit) Key() string { return c.sha }

// SHA returns the commit hash.
func (c Commit) SHA() string { return c.sha }

// CommitTime returns the commit time in unix seconds.
func (c Commit) CommitTime() int64 { return c.commitTime }

// Offset returns the timezone offset in minutes.
func (c Commit) Offset() int { return c.offset }

// Parents returns the parent hashes.
func (c Commit) Parents() []string {
	p := make([]string, len(c.parents))
	copy(p, c.parents)
	return p
}

// Tree returns the root tree id.
func (c Commit) Tree() string { return c.tree }

// Payload implements Document.
func (c Commit) Payload() map[string]any {
	parents := make([]any, len(c.parents))
	for i, p := range c.parents {
		parents[i] = p
	}
	return map[string]any{
		"_key":               c.sha,
		"commit_time":        c.commitTime,
		"commit_time_offset": c.offset,
		"parents":            parents,
		"tree":               c.tree,
	}
}
