// Package document defines the content-addressed documents and edges that
// make up a stored syntax graph.
package document

import (
	"bytes"
	"crypto/sha1"
	"encoding/json"
)

// Kind identifies a vertex collection.
type Kind string

// Vertex collections.
const (
	KindRepository Kind = "wstrepos"
	KindCommit     Kind = "wstcommits"
	KindFile       Kind = "wstfiles"
	KindCodeTree   Kind = "wstcodetrees"
	KindNode       Kind = "wstnodes"
	KindText       Kind = "wsttexts"
)

// String returns the collection name.
func (k Kind) String() string { return string(k) }

// Document is a record stored under a deterministic key.
type Document interface {
	// Collection returns the vertex or edge collection the document lives in.
	Collection() string
	// Key returns the document key, deriving it from content when unset.
	Key() string
	// Payload returns the insert payload, including _key.
	Payload() map[string]any
}

// ID returns the collection-qualified identifier of a document.
func ID(doc Document) string {
	return doc.Collection() + "/" + doc.Key()
}

// Equal reports whether two documents carry the same immutable content.
// Fields that may legitimately change after insertion (status, error) are
// ignored.
func Equal(a, b Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Collection() != b.Collection() {
		return false
	}
	ca, err := canonical(immutablePayload(a))
	if err != nil {
		return false
	}
	cb, err := canonical(immutablePayload(b))
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// MarshalPayload encodes a document payload as compact JSON with sorted keys.
func MarshalPayload(doc Document) ([]byte, error) {
	return canonical(doc.Payload())
}

// Fingerprint digests the immutable content of a document. Two documents of
// one collection are Equal exactly when their fingerprints match.
func Fingerprint(doc Document) ([sha1.Size]byte, error) {
	data, err := canonical(immutablePayload(doc))
	if err != nil {
		return [sha1.Size]byte{}, err
	}
	return sha1.Sum(data), nil
}

func immutablePayload(doc Document) map[string]any {
	payload := doc.Payload()
	for _, field := range Registry().MutableFields(doc.Collection()) {
		delete(payload, field)
	}
	return payload
}

// canonical encodes maps with sorted keys and no HTML escaping.
func canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
