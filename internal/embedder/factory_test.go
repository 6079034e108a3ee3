package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name           string
		provider       string
		jinaKey        string
		openaiKey      string
		expectedResult string
	}{
		{"explicit provider wins", "OpenAI", "j", "", ProviderOpenAI},
		{"jina key", "", "j", "o", ProviderJina},
		{"openai key", "", "", "o", ProviderOpenAI},
		{"fallback to local", "", "", "", ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvJinaAPIKey, tt.jinaKey)
			t.Setenv(EnvOpenAIAPIKey, tt.openaiKey)
			assert.Equal(t, tt.expectedResult, DetectProvider())
		})
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Run("local provider (no keys)", func(t *testing.T) {
		t.Setenv(EnvProvider, "")
		t.Setenv(EnvJinaAPIKey, "")
		t.Setenv(EnvOpenAIAPIKey, "")

		p, err := NewFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, p.ID())
	})

	t.Run("jina with api key", func(t *testing.T) {
		t.Setenv(EnvProvider, "jina")
		t.Setenv(EnvJinaAPIKey, "test-jina-key")

		p, err := NewFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ProviderJina, p.ID())
		assert.Equal(t, DefaultJinaModel, p.Model())
	})

	t.Run("openai without api key", func(t *testing.T) {
		t.Setenv(EnvProvider, "openai")
		t.Setenv(EnvOpenAIAPIKey, "")

		_, err := NewFromEnv()
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})
}

func TestNew(t *testing.T) {
	t.Run("openai with model and dimensions", func(t *testing.T) {
		p, err := New(Config{Provider: "openai", APIKey: "k", Model: "text-embedding-3-large", Dimensions: 256})
		require.NoError(t, err)
		assert.Equal(t, "text-embedding-3-large", p.Model())

		dim, ok := ExpectedDimensionOf(p)
		assert.True(t, ok)
		assert.Equal(t, 256, dim)
		assert.Equal(t, OpenAIMaxBatchSize, MaxBatchSizeOf(p))
	})

	t.Run("local", func(t *testing.T) {
		p, err := New(Config{Provider: "local", Dimensions: 64})
		require.NoError(t, err)
		dim, ok := ExpectedDimensionOf(p)
		assert.True(t, ok)
		assert.Equal(t, 64, dim)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "nope"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})
}
