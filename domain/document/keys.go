package document

import (
	"crypto/sha1" //nolint:gosec // keys are identifiers, not security boundaries
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"unicode/utf8"
)

// hashKey is the key hash used for every derived key.
func hashKey(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// SHA512Hex returns the lowercase hex SHA-512 of b.
func SHA512Hex(b []byte) string {
	sum := sha512.Sum512(b)
	return hex.EncodeToString(sum[:])
}

// RepositoryKey derives a Repository key from its clone URL.
func RepositoryKey(url string) string {
	return hashKey(url)
}

// FileKey derives a File key from its path, git mode and content hash.
func FileKey(path string, mode FileMode, contentHash string) string {
	return hashKey(fmt.Sprintf("%s\x00%o\x00%s", path, uint32(mode), contentHash))
}

// CodeTreeKey derives a CodeTree key from language and content hash.
func CodeTreeKey(language, contentHash string) string {
	return language + "-" + contentHash
}

// NodeKey derives a Node key from its CodeTree key and preorder index.
func NodeKey(codeTreeKey string, preorder int) string {
	return fmt.Sprintf("%s-%d", codeTreeKey, preorder)
}

// TextLength returns the length recorded for a text: its code point count.
func TextLength(text string) int {
	return utf8.RuneCountInString(text)
}

// TextKey derives a Text key from length and the SHA-512 of the UTF-8 bytes.
func TextKey(text string) string {
	return hashKey(fmt.Sprintf("%d:%s", TextLength(text), SHA512Hex([]byte(text))))
}

// EdgeKey derives an edge key from its endpoint keys.
func EdgeKey(fromKey, toKey string) string {
	return hashKey(fromKey + "+" + toKey)
}
