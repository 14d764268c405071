package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLanguages_ByPath(t *testing.T) {
	langs := DefaultLanguages()

	tests := []struct {
		path string
		want string
	}{
		{"main.py", "python"},
		{"pkg/sub/mod.py", "python"},
		{"web/app.js", "javascript"},
		{"src/lib.rs", "rust"},
		{"web/app.min.js", ""},
		{"README.rst", ""},
		{"Makefile", ""},
		{"script.pyc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			lang, ok := langs.ByPath(tt.path)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, lang.Name())
		})
	}
}

func TestDefaultLanguages_ByName(t *testing.T) {
	langs := DefaultLanguages()
	assert.Equal(t, []string{"python", "javascript", "rust"}, langs.Names())

	lang, ok := langs.ByName("rust")
	require.True(t, ok)
	assert.Equal(t, []string{".rs"}, lang.Extensions())
	assert.NotNil(t, lang.Grammar())

	_, ok = langs.ByName("cobol")
	assert.False(t, ok)
}
