package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ns   Namespace
		want string
	}{
		{"simple", NewNamespace("openai", "text-embedding-3-small", 1536), "openai:text-embedding-3-small:v2:1536"},
		{"model with colon", NewNamespace("ollama", "nomic-embed:latest", 768), "ollama:nomic-embed:latest:v2:768"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ns.String())
			parsed, err := ParseNamespace(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.ns, parsed)
		})
	}
}

func TestParseNamespace_Invalid(t *testing.T) {
	for _, s := range []string{"", "openai", "openai:model:2:10", "openai:model:v2:x", ":model:v2:10"} {
		_, err := ParseNamespace(s)
		assert.ErrorIs(t, err, ErrInvalidNamespace, s)
	}
}

func TestNamespacePrefix(t *testing.T) {
	ns := NewNamespace("jina", "jina-embeddings-v3", 1024)
	assert.Equal(t, "jina:jina-embeddings-v3:", ns.Prefix())

	older := ns
	older.SchemaVersion = 1
	assert.True(t, ns.SameModel(older))
	assert.NotEqual(t, ns.String(), older.String())
}

func TestVectorID(t *testing.T) {
	ns := "local:hash:v2:384"
	id := VectorID(ns, "dir/note#1.md", 3)
	assert.Equal(t, "local:hash:v2:384::dir/note#1.md#3", id)

	gotNS, path, idx, err := ParseVectorID(id)
	require.NoError(t, err)
	assert.Equal(t, ns, gotNS)
	assert.Equal(t, "dir/note#1.md", path)
	assert.Equal(t, 3, idx)

	_, _, _, err = ParseVectorID("nonsense")
	assert.ErrorIs(t, err, ErrInvalidVectorID)
}
