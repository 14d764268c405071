package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type repositoryWire struct {
	Key          string         `json:"_key"`
	URL          string         `json:"url"`
	Path         *string        `json:"path"`
	Commit       *string        `json:"commit"`
	Status       string         `json:"status"`
	AnalyzedTime *int64         `json:"analyzed_time"`
	Extra        map[string]any `json:"extra"`
}

type commitWire struct {
	Key        string   `json:"_key"`
	CommitTime int64    `json:"commit_time"`
	Offset     int      `json:"commit_time_offset"`
	Parents    []string `json:"parents"`
	Tree       string   `json:"tree"`
}

type symlinkWire struct {
	Target   string  `json:"target"`
	Relative *string `json:"relative"`
}

type fileWire struct {
	Key         string       `json:"_key"`
	Path        string       `json:"path"`
	Mode        uint32       `json:"mode"`
	Size        int64        `json:"size"`
	GitOID      string       `json:"git_oid"`
	Language    *string      `json:"language"`
	ContentHash string       `json:"content_hash"`
	Error       *string      `json:"error"`
	Symlink     *symlinkWire `json:"symlink"`
}

type codeTreeWire struct {
	Key         string  `json:"_key"`
	Language    string  `json:"language"`
	LangVersion *string `json:"lang_version"`
	ContentHash string  `json:"content_hash"`
	GitOID      *string `json:"git_oid"`
	Error       *string `json:"error"`
}

type nodeWire struct {
	Key      string `json:"_key"`
	X1       int    `json:"x1"`
	Y1       int    `json:"y1"`
	X2       int    `json:"x2"`
	Y2       int    `json:"y2"`
	Preorder int    `json:"preorder"`
	Named    bool   `json:"named"`
	Type     string `json:"type"`
}

type textWire struct {
	Key    string `json:"_key"`
	Length int    `json:"length"`
	Text   string `json:"text"`
}

type edgeWire struct {
	Key  string `json:"_key"`
	From string `json:"_from"`
	To   string `json:"_to"`
}

// Decode parses one JSON payload belonging to collection.
func Decode(collection string, data []byte) (Document, error) {
	switch collection {
	case string(KindRepository):
		var w repositoryWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		var analyzed time.Time
		if w.AnalyzedTime != nil {
			analyzed = time.Unix(*w.AnalyzedTime, 0).UTC()
		}
		return ReconstructRepository(w.Key, w.URL, deref(w.Path), deref(w.Commit), Status(w.Status), analyzed, w.Extra), nil
	case string(KindCommit):
		var w commitWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		return NewCommit(w.Key, w.CommitTime, w.Offset, w.Parents, w.Tree), nil
	case string(KindFile):
		var w fileWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		var link *Symlink
		if w.Symlink != nil {
			link = &Symlink{Target: w.Symlink.Target, Relative: deref(w.Symlink.Relative)}
		}
		return ReconstructFile(w.Key, w.Path, FileMode(w.Mode), w.Size, w.GitOID,
			deref(w.Language), w.ContentHash, deref(w.Error), link), nil
	case string(KindCodeTree):
		var w codeTreeWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		return ReconstructCodeTree(w.Key, w.Language, deref(w.LangVersion), w.ContentHash,
			deref(w.GitOID), deref(w.Error)), nil
	case string(KindNode):
		var w nodeWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		suffix := fmt.Sprintf("-%d", w.Preorder)
		if !strings.HasSuffix(w.Key, suffix) {
			return nil, fmt.Errorf("decode %s: key %q does not end in preorder %d", collection, w.Key, w.Preorder)
		}
		return NewNode(strings.TrimSuffix(w.Key, suffix), w.Preorder,
			Point{Row: w.X1, Column: w.Y1}, Point{Row: w.X2, Column: w.Y2}, w.Named, w.Type), nil
	case string(KindText):
		var w textWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		return NewText(w.Text), nil
	}

	rel, ok := Registry().RelationFor(collection)
	if !ok {
		return nil, fmt.Errorf("decode: unknown collection %q", collection)
	}
	var w edgeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	from, err := ParseRef(w.From)
	if err != nil {
		return nil, err
	}
	to, err := ParseRef(w.To)
	if err != nil {
		return nil, err
	}
	if from.Kind != rel.From || to.Kind != rel.To {
		return nil, fmt.Errorf("decode %s: %w: %s -> %s", collection, ErrInvalidRelation, from.Kind, to.Kind)
	}
	return Edge{collection: collection, from: from, to: to}, nil
}

// FromPayload converts a payload map back into a typed document.
func FromPayload(collection string, payload map[string]any) (Document, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", collection, err)
	}
	return Decode(collection, data)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
