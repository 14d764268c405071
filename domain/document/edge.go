package document

import (
	"fmt"
	"strings"
)

// Ref points at a vertex document.
type Ref struct {
	Kind Kind
	Key  string
}

// ID returns the collection-qualified identifier.
func (r Ref) ID() string { return string(r.Kind) + "/" + r.Key }

// ParseRef parses a collection-qualified identifier.
func ParseRef(id string) (Ref, error) {
	coll, key, ok := strings.Cut(id, "/")
	if !ok || key == "" || !Registry().IsVertex(coll) {
		return Ref{}, fmt.Errorf("parse reference %q: %w", id, ErrInvalidRelation)
	}
	return Ref{Kind: Kind(coll), Key: key}, nil
}

// Edge is a directed relation between two vertex documents.
type Edge struct {
	collection string
	from       Ref
	to         Ref
}

// Link creates the edge from -> to. The relation must be declared in the
// registration table.
func Link(from, to Document) (Edge, error) {
	return LinkRefs(
		Ref{Kind: Kind(from.Collection()), Key: from.Key()},
		Ref{Kind: Kind(to.Collection()), Key: to.Key()},
	)
}

// LinkRefs creates an edge between references.
func LinkRefs(from, to Ref) (Edge, error) {
	collection, ok := Registry().EdgeCollection(from.Kind, to.Kind)
	if !ok {
		return Edge{}, fmt.Errorf("%w: %s -> %s", ErrInvalidRelation, from.Kind, to.Kind)
	}
	return Edge{collection: collection, from: from, to: to}, nil
}

// MustLink is Link for relations known to be declared.
func MustLink(from, to Document) Edge {
	e, err := Link(from, to)
	if err != nil {
		panic(err)
	}
	return e
}

// Collection implements Document.
func (e Edge) Collection() string { return e.collection }

// Key implements Document.
func (e Edge) Key() string { return EdgeKey(e.from.Key, e.to.Key) }

// From returns the source reference.
func (e Edge) From() Ref { return e.from }

// To returns the target reference.
func (e Edge) To() Ref { return e.to }

// Payload implements Document.
func (e Edge) Payload() map[string]any {
	return map[string]any{
		"_key":  e.Key(),
		"_from": e.from.ID(),
		"_to":   e.to.ID(),
	}
}
