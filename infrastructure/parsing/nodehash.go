package parsing

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

const nodeHashV1Prefix = "WSTNodeHashV1<"

// HashedNode is the part of a node that NodeHashV1 covers.
type HashedNode struct {
	Named bool   `json:"named"`
	Type  string `json:"type"`
}

// HashNodesV1 hashes a subtree given as its nodes in preorder.
func HashNodesV1(nodes []HashedNode) (string, error) {
	if nodes == nil {
		nodes = []HashedNode{}
	}
	var buf bytes.Buffer
	buf.WriteString(nodeHashV1Prefix)
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(nodes); err != nil {
		return "", fmt.Errorf("encode node hash: %w", err)
	}
	buf.Truncate(buf.Len() - 1)
	buf.WriteByte('>')

	sum := sha512.Sum512(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// NodeHashV1 hashes the shape of the subtree rooted at node: the named
// flag and type of every node in preorder. Text and positions are not
// covered, so renamed identifiers hash alike.
func NodeHashV1(node *sitter.Node) (string, error) {
	cursor := NewSitterCursor(node)
	defer cursor.Close()

	var nodes []HashedNode
	err := NewWalker[*sitter.Node](cursor).Walk(func(v Visit[*sitter.Node]) error {
		nodes = append(nodes, HashedNode{Named: v.Node.IsNamed(), Type: v.Node.Type()})
		return nil
	})
	if err != nil {
		return "", err
	}
	return HashNodesV1(nodes)
}

// NodeHash locates one hashed node.
type NodeHash struct {
	SHA512 string `json:"sha512"`
	File   string `json:"file"`
	X1     int    `json:"x1"`
	Y1     int    `json:"y1"`
}

// HashNodesOfType hashes every node of type nodeType in tree.
func HashNodesOfType(tree *Tree, file, nodeType string) ([]NodeHash, error) {
	cursor := NewTreeCursor(tree)
	defer cursor.Close()

	var out []NodeHash
	err := NewWalker[*sitter.Node](cursor).Walk(func(v Visit[*sitter.Node]) error {
		if v.Node.Type() != nodeType {
			return nil
		}
		sum, err := NodeHashV1(v.Node)
		if err != nil {
			return err
		}
		start := v.Node.StartPoint()
		out = append(out, NodeHash{
			SHA512: sum,
			File:   file,
			X1:     int(start.Row),
			Y1:     int(start.Column),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
