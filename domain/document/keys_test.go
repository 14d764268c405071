package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextKey(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"ascii", "hello", "a0e1a39c61c06e10706cebfb31886ef83fb47f71"},
		{"length counts code points", "héllo", "2d9fb939432460dd27ec4328061fdeb64646ddea"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextKey(tt.text))
			assert.Equal(t, TextKey(tt.text), NewText(tt.text).Key(), "key derivation must be idempotent")
		})
	}
}

func TestTextLength(t *testing.T) {
	assert.Equal(t, 5, TextLength("héllo"))
	assert.Equal(t, 0, TextLength(""))
}

func TestRepositoryKey(t *testing.T) {
	assert.Equal(t, "4128e5172756b3cf9764dbd784f45489cdf6a3f3", RepositoryKey("https://github.com/psf/requests"))
}

func TestFileKey(t *testing.T) {
	assert.Equal(t, "0b4405723a46e08d52ffd998e68d8adeec10e715", FileKey("main.py", ModeBlob, "abc"))
	assert.NotEqual(t, FileKey("main.py", ModeBlob, "abc"), FileKey("main.py", ModeExecutable, "abc"))
}

func TestEdgeKey(t *testing.T) {
	assert.Equal(t, "afa946870010d69b09370dc6996d26677a63e345", EdgeKey("a", "b"))
	assert.NotEqual(t, EdgeKey("a", "b"), EdgeKey("b", "a"))
}

func TestCodeTreeAndNodeKeys(t *testing.T) {
	ct := CodeTreeKey("python", "ff00")
	assert.Equal(t, "python-ff00", ct)
	assert.Equal(t, "python-ff00-12", NodeKey(ct, 12))
}

func TestSHA512Hex_Empty(t *testing.T) {
	assert.Equal(t,
		"cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e",
		SHA512Hex(nil))
}
