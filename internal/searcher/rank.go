package searcher

import (
	"sort"

	"github.com/dshills/semindex/pkg/types"
)

const (
	// DefaultRRFConstant is the smoothing constant k in 1/(k+rank+1).
	DefaultRRFConstant = 60.0
	// DefaultRawWeight favors raw similarity over rank agreement when fusing.
	DefaultRawWeight = 0.7
	// DefaultLexicalWeight scales the title/excerpt overlap boost.
	DefaultLexicalWeight = 0.1
)

// ScoredChunk is a stored chunk scored against one query vector.
type ScoredChunk struct {
	Vector *types.EmbeddingVector
	Score  float64
}

// Path returns the document path of the scored chunk.
func (s ScoredChunk) Path() string {
	return s.Vector.Path
}

// RankOptions filters the candidate pool before scoring.
type RankOptions struct {
	// Filter drops candidates for which it returns false.
	Filter func(v *types.EmbeddingVector) bool
	// MinScore drops chunks scoring below it.
	MinScore float64
	// Limit caps the returned chunks; 0 keeps all.
	Limit int
}

// Rank scores every candidate against query by brute-force cosine
// similarity. Candidates without a vector or with a different dimension are
// skipped. The result is sorted by descending score, ties broken by id.
func Rank(query []float32, candidates []*types.EmbeddingVector, opts RankOptions) []ScoredChunk {
	qnorm := Norm(query)
	if qnorm == 0 {
		return nil
	}

	scored := make([]ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) == 0 || len(c.Vector) != len(query) {
			continue
		}
		if opts.Filter != nil && !opts.Filter(c) {
			continue
		}
		score, err := CosineSimilarity(query, c.Vector)
		if err != nil || score < opts.MinScore {
			continue
		}
		scored = append(scored, ScoredChunk{Vector: c, Score: score})
	}

	sortScored(scored)
	if opts.Limit > 0 && len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}
	return scored
}

// BestPerDocument keeps the highest-scoring chunk of every path. The input
// must already be sorted by Rank.
func BestPerDocument(scored []ScoredChunk) []ScoredChunk {
	seen := make(map[string]struct{}, len(scored))
	out := make([]ScoredChunk, 0, len(scored))
	for _, s := range scored {
		if _, ok := seen[s.Path()]; ok {
			continue
		}
		seen[s.Path()] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Fused is one document after merging several per-query rankings.
type Fused struct {
	Path     string
	Best     ScoredChunk // best raw match across all rankings
	Root     *types.EmbeddingVector
	RawScore float64
	RRF      float64 // normalized to [0,1]
	Score    float64
}

// FuseRRF merges per-document rankings with reciprocal rank fusion. Each
// document accumulates 1/(k+rank+1) for its 0-based rank in every ranking
// it appears in; the sum is normalized by the best achievable value
// len(rankings)/(k+1) and blended with the document's best raw score as
// rawWeight*raw + (1-rawWeight)*rrf.
func FuseRRF(rankings [][]ScoredChunk, k, rawWeight float64) []Fused {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if rawWeight < 0 || rawWeight > 1 {
		rawWeight = DefaultRawWeight
	}

	byPath := make(map[string]*Fused)
	for _, ranking := range rankings {
		for rank, s := range ranking {
			f, ok := byPath[s.Path()]
			if !ok {
				f = &Fused{Path: s.Path(), Best: s, RawScore: s.Score}
				byPath[s.Path()] = f
			}
			f.RRF += 1.0 / (k + float64(rank) + 1)
			if s.Score > f.RawScore {
				f.Best = s
				f.RawScore = s.Score
			}
		}
	}

	maxRRF := float64(len(rankings)) / (k + 1)
	fused := make([]Fused, 0, len(byPath))
	for _, f := range byPath {
		if maxRRF > 0 {
			f.RRF /= maxRRF
		}
		f.Score = rawWeight*f.RawScore + (1-rawWeight)*f.RRF
		fused = append(fused, *f)
	}

	SortFused(fused)
	return fused
}

// SortFused orders by descending Score, ties broken by path.
func SortFused(fused []Fused) {
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Path < fused[j].Path
	})
}

func sortScored(scored []ScoredChunk) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Vector.ID < scored[j].Vector.ID
	})
}
