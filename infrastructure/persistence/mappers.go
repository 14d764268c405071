package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixml/syntree/domain/document"
)

// RepositoryMapper maps between document.Repository and RepositoryModel.
type RepositoryMapper struct{}

// ToDomain converts a RepositoryModel to a document.Repository.
func (RepositoryMapper) ToDomain(e RepositoryModel) (document.Repository, error) {
	var analyzed time.Time
	if e.AnalyzedTime != nil {
		analyzed = time.Unix(*e.AnalyzedTime, 0).UTC()
	}
	var extra map[string]any
	if e.Extra != nil {
		if err := json.Unmarshal([]byte(*e.Extra), &extra); err != nil {
			return document.Repository{}, fmt.Errorf("decode extra: %w", err)
		}
	}
	return document.ReconstructRepository(
		e.Key, e.URL, deref(e.Path), deref(e.Commit),
		document.Status(e.Status), analyzed, extra,
	), nil
}

// ToModel converts a document.Repository to a RepositoryModel.
func (RepositoryMapper) ToModel(r document.Repository) RepositoryModel {
	var analyzed *int64
	if t := r.AnalyzedTime(); !t.IsZero() {
		sec := t.Unix()
		analyzed = &sec
	}
	var extra *string
	if x := r.Extra(); len(x) > 0 {
		if b, err := json.Marshal(x); err == nil {
			s := string(b)
			extra = &s
		}
	}
	return RepositoryModel{
		Key:          r.Key(),
		URL:          r.URL(),
		Path:         ptr(r.Path()),
		Commit:       ptr(r.Commit()),
		Status:       string(r.Status()),
		AnalyzedTime: analyzed,
		Extra:        extra,
	}
}

// CommitMapper maps between document.Commit and CommitModel.
type CommitMapper struct{}

// ToDomain converts a CommitModel to a document.Commit.
func (CommitMapper) ToDomain(e CommitModel) (document.Commit, error) {
	var parents []string
	if e.Parents != "" {
		if err := json.Unmarshal([]byte(e.Parents), &parents); err != nil {
			return document.Commit{}, fmt.Errorf("decode parents: %w", err)
		}
	}
	return document.NewCommit(e.Key, e.CommitTime, e.CommitTimeOffset, parents, e.Tree), nil
}

// ToModel converts a document.Commit to a CommitModel.
func (CommitMapper) ToModel(c document.Commit) CommitModel {
	parents := c.Parents()
	if parents == nil {
		parents = []string{}
	}
	b, _ := json.Marshal(parents)
	return CommitModel{
		Key:              c.SHA(),
		CommitTime:       c.CommitTime(),
		CommitTimeOffset: c.Offset(),
		Parents:          string(b),
		Tree:             c.Tree(),
	}
}

// FileMapper maps between document.File and FileModel.
type FileMapper struct{}

// ToDomain converts a FileModel to a document.File.
func (FileMapper) ToDomain(e FileModel) (document.File, error) {
	var link *document.Symlink
	if e.SymlinkTarget != nil {
		link = &document.Symlink{Target: *e.SymlinkTarget, Relative: deref(e.SymlinkRelative)}
	}
	return document.ReconstructFile(
		e.Key, e.Path, document.FileMode(e.Mode), e.Size, e.GitOID,
		deref(e.Language), e.ContentHash, deref(e.Error), link,
	), nil
}

// ToModel converts a document.File to a FileModel.
func (FileMapper) ToModel(f document.File) FileModel {
	m := FileModel{
		Key:         f.Key(),
		Path:        f.Path(),
		Mode:        uint32(f.Mode()),
		Size:        f.Size(),
		GitOID:      f.GitOID(),
		Language:    ptr(f.Language()),
		ContentHash: f.ContentHash(),
		Error:       ptr(f.Error()),
	}
	if link := f.Symlink(); link != nil {
		target := link.Target
		m.SymlinkTarget = &target
		m.SymlinkRelative = ptr(link.Relative)
	}
	return m
}

// CodeTreeMapper maps between document.CodeTree and CodeTreeModel.
type CodeTreeMapper struct{}

// ToDomain converts a CodeTreeModel to a document.CodeTree.
func (CodeTreeMapper) ToDomain(e CodeTreeModel) (document.CodeTree, error) {
	return document.ReconstructCodeTree(
		e.Key, e.Language, deref(e.LangVersion), e.ContentHash, deref(e.GitOID), deref(e.Error),
	), nil
}

// ToModel converts a document.CodeTree to a CodeTreeModel.
func (CodeTreeMapper) ToModel(c document.CodeTree) CodeTreeModel {
	return CodeTreeModel{
		Key:         c.Key(),
		Language:    c.Language(),
		LangVersion: ptr(c.LangVersion()),
		ContentHash: c.ContentHash(),
		GitOID:      ptr(c.GitOID()),
		Error:       ptr(c.Error()),
	}
}

// NodeMapper maps between document.Node and NodeModel.
type NodeMapper struct{}

// ToDomain converts a NodeModel to a document.Node.
func (NodeMapper) ToDomain(e NodeModel) (document.Node, error) {
	return document.NewNode(
		e.CodeTreeKey, e.Preorder,
		document.Point{Row: e.X1, Column: e.Y1},
		document.Point{Row: e.X2, Column: e.Y2},
		e.Named, e.Type,
	), nil
}

// ToModel converts a document.Node to a NodeModel.
func (NodeMapper) ToModel(n document.Node) NodeModel {
	return NodeModel{
		Key:         n.Key(),
		CodeTreeKey: n.CodeTreeKey(),
		X1:          n.Start().Row,
		Y1:          n.Start().Column,
		X2:          n.End().Row,
		Y2:          n.End().Column,
		Preorder:    n.Preorder(),
		Named:       n.Named(),
		Type:        n.Type(),
	}
}

// TextMapper maps between document.Text and TextModel.
type TextMapper struct{}

// ToDomain converts a TextModel to a document.Text.
func (TextMapper) ToDomain(e TextModel) (document.Text, error) {
	return document.NewText(e.Text), nil
}

// ToModel converts a document.Text to a TextModel.
func (TextMapper) ToModel(t document.Text) TextModel {
	return TextModel{Key: t.Key(), Length: t.Length(), Text: t.Text()}
}

// EdgeMapper maps between document.Edge and EdgeModel.
type EdgeMapper struct{}

// ToDomain converts an EdgeModel to a document.Edge.
func (EdgeMapper) ToDomain(e EdgeModel) (document.Edge, error) {
	from, err := document.ParseRef(e.From)
	if err != nil {
		return document.Edge{}, err
	}
	to, err := document.ParseRef(e.To)
	if err != nil {
		return document.Edge{}, err
	}
	return document.LinkRefs(from, to)
}

// ToModel converts a document.Edge to an EdgeModel.
func (EdgeMapper) ToModel(e document.Edge) EdgeModel {
	return EdgeModel{Key: e.Key(), From: e.From().ID(), To: e.To().ID()}
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
