package document

// InsertMode selects how a collection handles an insert under an existing key.
type InsertMode int

// InsertMode values.
const (
	// ModeCompare fetches the existing document and fails on any difference.
	ModeCompare InsertMode = iota
	// ModeOverwrite replaces the stored document. Used where an equal key
	// implies byte-identical content.
	ModeOverwrite
	// ModeIgnore keeps the stored document without comparing.
	ModeIgnore
)

// Relation declares that documents of one kind may point at another.
type Relation struct {
	From       Kind
	To         Kind
	Collection string
}

// Edge collections.
const (
	EdgeRepoCommit   = "wst_repo_commit"
	EdgeCommitFile   = "wst_commit_file"
	EdgeFileCodeTree = "wst_file_codetree"
	EdgeCodeTreeRoot = "wst_codetree_root"
	EdgeNodeParent   = "wst_node_parent"
	EdgeNodeText     = "wst_node_text"
)

// Table is the static registration table of collections and relations.
type Table struct {
	kinds     []Kind
	relations []Relation
	mutable   map[string][]string
	modes     map[string]InsertMode
}

var table = Table{
	kinds: []Kind{
		KindRepository,
		KindCommit,
		KindFile,
		KindCodeTree,
		KindNode,
		KindText,
	},
	relations: []Relation{
		{From: KindRepository, To: KindCommit, Collection: EdgeRepoCommit},
		{From: KindCommit, To: KindFile, Collection: EdgeCommitFile},
		{From: KindFile, To: KindCodeTree, Collection: EdgeFileCodeTree},
		{From: KindCodeTree, To: KindNode, Collection: EdgeCodeTreeRoot},
		{From: KindNode, To: KindNode, Collection: EdgeNodeParent},
		{From: KindNode, To: KindText, Collection: EdgeNodeText},
	},
	mutable: map[string][]string{
		string(KindRepository): {"status", "analyzed_time", "extra", "path"},
		string(KindFile):       {"error"},
		string(KindCodeTree):   {"error"},
	},
	modes: map[string]InsertMode{
		string(KindText): ModeOverwrite,
	},
}

// Registry returns the registration table.
func Registry() Table {
	return table
}

// Kinds returns every vertex collection.
func (t Table) Kinds() []Kind {
	out := make([]Kind, len(t.kinds))
	copy(out, t.kinds)
	return out
}

// Relations returns every declared relation.
func (t Table) Relations() []Relation {
	out := make([]Relation, len(t.relations))
	copy(out, t.relations)
	return out
}

// EdgeCollections returns every edge collection name.
func (t Table) EdgeCollections() []string {
	out := make([]string, 0, len(t.relations))
	for _, r := range t.relations {
		out = append(out, r.Collection)
	}
	return out
}

// Collections returns vertex collections followed by edge collections.
func (t Table) Collections() []string {
	out := make([]string, 0, len(t.kinds)+len(t.relations))
	for _, k := range t.kinds {
		out = append(out, string(k))
	}
	return append(out, t.EdgeCollections()...)
}

// KindByCollection returns the vertex kind stored in collection.
func (t Table) KindByCollection(collection string) (Kind, bool) {
	for _, k := range t.kinds {
		if string(k) == collection {
			return k, true
		}
	}
	return "", false
}

// EdgeCollection returns the edge collection linking from to to.
func (t Table) EdgeCollection(from, to Kind) (string, bool) {
	for _, r := range t.relations {
		if r.From == from && r.To == to {
			return r.Collection, true
		}
	}
	return "", false
}

// RelationFor returns the relation stored in an edge collection.
func (t Table) RelationFor(collection string) (Relation, bool) {
	for _, r := range t.relations {
		if r.Collection == collection {
			return r, true
		}
	}
	return Relation{}, false
}

// IsVertex reports whether collection is a vertex collection.
func (t Table) IsVertex(collection string) bool {
	_, ok := t.KindByCollection(collection)
	return ok
}

// IsEdge reports whether collection is an edge collection.
func (t Table) IsEdge(collection string) bool {
	_, ok := t.RelationFor(collection)
	return ok
}

// MutableFields returns payload fields excluded from dedup comparison.
func (t Table) MutableFields(collection string) []string {
	return t.mutable[collection]
}

// Mode returns the insert mode of a collection.
func (t Table) Mode(collection string) InsertMode {
	if t.IsEdge(collection) {
		return ModeIgnore
	}
	if m, ok := t.modes[collection]; ok {
		return m
	}
	return ModeCompare
}
