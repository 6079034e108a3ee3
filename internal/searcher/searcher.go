package searcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/storage"
	"github.com/dshills/semindex/pkg/types"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Request describes one similarity query over a namespace.
type Request struct {
	Namespace string
	// Queries holds one or more query vectors. More than one triggers
	// reciprocal rank fusion.
	Queries [][]float32
	// Text is used for the lexical boost only.
	Text  string
	Limit int

	// Exclude drops documents by path (excluded folders, the query document).
	Exclude func(path string) bool

	RRFConstant   float64
	RawWeight     float64
	LexicalWeight float64
	MinScore      float64
}

// Searcher runs brute-force similarity queries over stored vectors.
type Searcher struct {
	store  storage.VectorStore
	logger *zap.Logger
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.VectorStore, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{store: store, logger: logger}
}

// Search ranks the namespace's chunks against every query vector and
// returns at most Limit documents, one per path, sorted by descending
// score. Only documents whose root chunk is complete and non-empty are
// returned.
func (s *Searcher) Search(ctx context.Context, req Request) ([]types.SearchResult, error) {
	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	candidates, err := s.store.GetVectorsByNamespace(ctx, req.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	roots := make(map[string]*types.EmbeddingVector)
	for _, c := range candidates {
		if c.Eligible() && (req.Exclude == nil || !req.Exclude(c.Path)) {
			roots[c.Path] = c
		}
	}

	opts := RankOptions{
		MinScore: req.MinScore,
		Filter: func(v *types.EmbeddingVector) bool {
			_, ok := roots[v.Path]
			return ok
		},
	}

	rankings := make([][]ScoredChunk, 0, len(req.Queries))
	for _, q := range req.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rankings = append(rankings, BestPerDocument(Rank(q, candidates, opts)))
	}

	var fused []Fused
	if len(rankings) == 1 {
		fused = make([]Fused, 0, len(rankings[0]))
		for _, sc := range rankings[0] {
			fused = append(fused, Fused{Path: sc.Path(), Best: sc, RawScore: sc.Score, Score: sc.Score})
		}
	} else {
		fused = FuseRRF(rankings, req.RRFConstant, req.RawWeight)
	}
	for i := range fused {
		fused[i].Root = roots[fused[i].Path]
	}
	ApplyLexicalBoost(fused, req.Text, req.LexicalWeight)

	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}

	s.logger.Debug("search complete",
		zap.String("namespace", req.Namespace),
		zap.Int("queries", len(req.Queries)),
		zap.Int("candidates", len(candidates)),
		zap.Int("eligible", len(roots)),
		zap.Int("results", len(fused)))

	return toResults(fused), nil
}

func toResults(fused []Fused) []types.SearchResult {
	results := make([]types.SearchResult, 0, len(fused))
	for i, f := range fused {
		meta := f.Root.Metadata
		results = append(results, types.SearchResult{
			Path:         f.Path,
			Title:        meta.Title,
			Excerpt:      meta.Excerpt,
			Score:        f.Score,
			RawScore:     f.RawScore,
			ChunkIndex:   f.Best.Vector.ChunkIndex,
			SectionTitle: f.Best.Vector.Metadata.SectionTitle,
			Rank:         i + 1,
		})
	}
	return results
}

// validateRequest ensures search request is valid
func validateRequest(req *Request) error {
	if req.Namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if len(req.Queries) == 0 {
		return fmt.Errorf("at least one query vector is required")
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFConstant
	}
	if req.RawWeight == 0 {
		req.RawWeight = DefaultRawWeight
	}
	return nil
}
