package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/searcher"
)

// queryCache holds recent query embeddings. Concurrent misses for the same
// key share one provider call, which runs detached from any single caller
// so one caller giving up does not fail the others.
type queryCache struct {
	lru     *expirable.LRU[string, []float32]
	group   singleflight.Group
	timeout time.Duration
}

func newQueryCache(cfg Config) *queryCache {
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &queryCache{
		lru:     expirable.NewLRU[string, []float32](cfg.QueryCacheSize, nil, cfg.QueryCacheTTL),
		timeout: timeout,
	}
}

func queryKey(provider, model string, inputType embedder.InputType, text string) string {
	sum := sha256.Sum256([]byte(text))
	return strings.Join([]string{provider, model, string(inputType), hex.EncodeToString(sum[:])}, "|")
}

// embed returns the unit-length embedding of a query, from the cache when possible.
func (q *queryCache) embed(ctx context.Context, p embedder.Provider, dim int, text string) ([]float32, error) {
	key := queryKey(p.ID(), p.Model(), embedder.InputQuery, text)
	if v, ok := q.lru.Get(key); ok {
		return v, nil
	}

	ch := q.group.DoChan(key, func() (interface{}, error) {
		if v, ok := q.lru.Get(key); ok {
			return v, nil
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
		defer cancel()
		vectors, err := p.GenerateEmbeddings(callCtx, []string{text}, embedder.GenerateOptions{InputType: embedder.InputQuery})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, &embedder.ProviderError{
				Code:    embedder.CodeInvalidResponse,
				Message: fmt.Sprintf("expected 1 query embedding, got %d", len(vectors)),
			}
		}
		if len(vectors[0]) != dim {
			return nil, &embedder.ProviderError{
				Code:    embedder.CodeInvalidResponse,
				Message: fmt.Sprintf("query embedding has dimension %d, namespace expects %d", len(vectors[0]), dim),
			}
		}
		normalized, err := searcher.Normalize(vectors[0])
		if err != nil {
			return nil, &embedder.ProviderError{Code: embedder.CodeInvalidResponse, Message: "query embedding: " + err.Error(), Err: err}
		}
		q.lru.Add(key, normalized)
		return normalized, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}

func (q *queryCache) purge() {
	q.lru.Purge()
}

func (q *queryCache) len() int {
	return q.lru.Len()
}
