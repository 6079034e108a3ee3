package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds provider configuration
type Config struct {
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model,omitempty"`
	APIKey     string        `yaml:"api_key" json:"apiKey,omitempty"`
	BaseURL    string        `yaml:"base_url" json:"baseUrl,omitempty"`
	Dimensions int           `yaml:"dimensions" json:"dimensions,omitempty"`
	CacheSize  int           `yaml:"cache_size" json:"cacheSize,omitempty"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

// NewFromEnv creates a provider based on environment variables
// Priority:
// 1. SEMINDEX_EMBEDDING_PROVIDER (jina, openai, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Provider, error) {
	return New(Config{Provider: DetectProvider(), CacheSize: 10000})
}

// New creates a provider with explicit configuration. An empty Provider
// field falls back to DetectProvider.
func New(cfg Config) (Provider, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	opts := ProviderOptions{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Dimensions: cfg.Dimensions,
		Timeout:    cfg.Timeout,
		Cache:      cache,
	}

	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = DetectProvider()
	}
	switch name {
	case ProviderJina:
		return NewJinaProvider(opts)
	case ProviderOpenAI:
		return NewOpenAIProvider(opts)
	case ProviderLocal:
		p := NewLocalProvider(cfg.Dimensions)
		if cfg.Model != "" {
			p.model = cfg.Model
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
