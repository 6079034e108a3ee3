package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/health"
	"github.com/dshills/semindex/internal/searcher"
	"github.com/dshills/semindex/internal/vault"
	"github.com/dshills/semindex/pkg/types"
)

// SearchSimilar embeds query and returns at most limit documents, one per
// path, by descending score. A provider failure puts the query scope into
// cooldown and is returned; the index is never touched.
func (m *Manager) SearchSimilar(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if err := m.scheduler.check(health.ScopeQuery); err != nil {
		return nil, err
	}
	if _, _, err := m.activeFor(ctx, health.ScopeQuery); err != nil {
		return nil, err
	}
	p, ns := m.current()

	vec, err := m.queries.embed(ctx, p, ns.Dimension, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// abandoned or timed out, not a verdict on the provider
			return nil, fmt.Errorf("embed query: %w", err)
		}
		pe := embedder.Classify(err)
		m.health.RecordFailure(health.ScopeQuery, pe.Code, pe.Error())
		until := m.scheduler.fail(health.ScopeQuery, pe)
		m.logger.Warn("query embedding failed",
			zap.String("code", pe.Code),
			zap.Time("cooldown_until", until),
			zap.Error(err))
		return nil, fmt.Errorf("embed query: %w", pe)
	}

	results, err := m.searcher.Search(ctx, searcher.Request{
		Namespace:     ns.String(),
		Queries:       [][]float32{vec},
		Text:          query,
		Limit:         limit,
		Exclude:       m.vault.IsExcluded,
		RRFConstant:   m.cfg.RRFConstant,
		RawWeight:     m.cfg.RawWeight,
		LexicalWeight: m.cfg.lexicalWeight(),
	})
	if err != nil {
		return nil, err
	}
	m.health.RecordSuccess(health.ScopeQuery)
	return results, nil
}

// FindSimilar returns documents similar to the one at path, using its
// stored vectors: the root chunk plus the longest other chunks. The
// document itself is never part of the result.
func (m *Manager) FindSimilar(ctx context.Context, path string, limit int) ([]types.SearchResult, error) {
	path = vault.Clean(path)
	_, ns, err := m.active(ctx)
	if err != nil {
		return nil, err
	}

	stored, err := m.store.GetVectorsByPath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	reps := representatives(stored, ns.String(), m.cfg.MaxRepresentativeChunks)
	if len(reps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, path)
	}

	queries := make([][]float32, len(reps))
	for i, v := range reps {
		queries[i] = v.Vector
	}

	results, err := m.searcher.Search(ctx, searcher.Request{
		Namespace: ns.String(),
		Queries:   queries,
		Text:      reps[0].Metadata.Title,
		Limit:     limit,
		Exclude: func(p string) bool {
			return p == path || m.vault.IsExcluded(p)
		},
		RRFConstant:   m.cfg.RRFConstant,
		RawWeight:     m.cfg.RawWeight,
		LexicalWeight: m.cfg.lexicalWeight(),
	})
	if err != nil {
		return nil, err
	}
	m.health.RecordSuccess(health.ScopeQuery)
	return results, nil
}

// representatives picks the root chunk followed by the longest other
// chunks of the namespace, up to max in total. It returns nothing unless
// the root carries a vector.
func representatives(vectors []*types.EmbeddingVector, ns string, max int) []*types.EmbeddingVector {
	var root *types.EmbeddingVector
	var rest []*types.EmbeddingVector
	for _, v := range vectors {
		if v.Metadata.Namespace != ns || v.Metadata.IsEmpty || len(v.Vector) == 0 {
			continue
		}
		if v.IsRoot() {
			root = v
		} else {
			rest = append(rest, v)
		}
	}
	if root == nil {
		return nil
	}

	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].Metadata.TextLength != rest[j].Metadata.TextLength {
			return rest[i].Metadata.TextLength > rest[j].Metadata.TextLength
		}
		return rest[i].ChunkIndex < rest[j].ChunkIndex
	})
	out := []*types.EmbeddingVector{root}
	for _, v := range rest {
		if len(out) >= max {
			break
		}
		out = append(out, v)
	}
	return out
}
