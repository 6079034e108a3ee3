package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// DefaultMaxBatchSize applies to providers that do not implement BatchSizer.
const DefaultMaxBatchSize = 64

// InputType tells the provider whether it is embedding stored content or a query.
type InputType string

const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
)

// BatchMetadata describes one request for diagnostics.
type BatchMetadata struct {
	ID              string   `json:"id"`
	Items           int      `json:"items"`
	EstimatedTokens int      `json:"estimatedTokens"`
	TruncatedItems  []int    `json:"truncatedItems,omitempty"`
	Paths           []string `json:"paths,omitempty"`
}

// GenerateOptions accompanies every embedding request.
type GenerateOptions struct {
	InputType InputType
	Batch     *BatchMetadata
	// Admit is called before every retry a provider makes on its own, so
	// retries go through the caller's rate limit. The first attempt is
	// admitted by the caller.
	Admit func(ctx context.Context) error
}

// Provider generates embeddings. Output order matches input order and there
// is exactly one vector per input text. Failures should be returned as
// *ProviderError; anything else is classified by Classify.
type Provider interface {
	ID() string
	Model() string
	GenerateEmbeddings(ctx context.Context, texts []string, opts GenerateOptions) ([][]float32, error)
}

// BatchSizer is implemented by providers with a texts-per-request limit.
type BatchSizer interface {
	MaxBatchSize() int
}

// DimensionReporter is implemented by providers that know their output
// dimension without a network call.
type DimensionReporter interface {
	ExpectedDimension() int
}

// ContentScreener is implemented by providers that refuse some content
// before it is sent.
type ContentScreener interface {
	ScreenContent(text string) (ok bool, signals []string)
}

// RiskAnalyzer labels text that a transport may reject. Labels are opaque
// to callers and only reported for diagnosis.
type RiskAnalyzer interface {
	RiskSignals(text string) []string
}

// MaxBatchSizeOf returns the provider's batch limit or DefaultMaxBatchSize.
func MaxBatchSizeOf(p Provider) int {
	if bs, ok := p.(BatchSizer); ok && bs.MaxBatchSize() > 0 {
		return bs.MaxBatchSize()
	}
	return DefaultMaxBatchSize
}

// ExpectedDimensionOf returns the declared dimension, if any.
func ExpectedDimensionOf(p Provider) (int, bool) {
	if dr, ok := p.(DimensionReporter); ok && dr.ExpectedDimension() > 0 {
		return dr.ExpectedDimension(), true
	}
	return 0, false
}

// Cache provides in-memory LRU caching of embeddings keyed by model, input
// type and content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector.
func (c *Cache) Get(key string) ([]float32, bool) {
	vec, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores a copy of vec.
func (c *Cache) Set(key string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Add(key, stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// CacheKey builds the cache key for one text.
func CacheKey(model string, inputType InputType, text string) string {
	return model + "|" + string(inputType) + "|" + ComputeHash(text)
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ValidateTexts rejects empty batches and empty texts.
func ValidateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
