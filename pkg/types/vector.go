package types

import (
	"fmt"
	"math"
)

// NormTolerance is the allowed deviation from unit length for stored vectors.
const NormTolerance = 1e-3

// VectorMetadata is stored alongside every vector. Complete and ChunkCount
// are only meaningful on the root chunk.
type VectorMetadata struct {
	Title        string   `json:"title,omitempty"`
	Excerpt      string   `json:"excerpt,omitempty"`
	SourceMTime  int64    `json:"mtime"`
	ContentHash  string   `json:"contentHash,omitempty"`
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Dimension    int      `json:"dimension"`
	CreatedAt    int64    `json:"createdAt"`
	Namespace    string   `json:"namespace"`
	SectionTitle string   `json:"sectionTitle,omitempty"`
	HeadingPath  []string `json:"headingPath,omitempty"`
	TextLength   int      `json:"textLength"`
	IsEmpty      bool     `json:"isEmpty,omitempty"`

	Complete   bool `json:"complete,omitempty"`
	ChunkCount int  `json:"chunkCount,omitempty"`
}

// EmbeddingVector is one stored record per (namespace, path, chunk index).
type EmbeddingVector struct {
	ID         string
	Path       string
	ChunkIndex int
	Vector     []float32
	Metadata   VectorMetadata
}

// IsRoot reports whether this is chunk 0 of its document.
func (v *EmbeddingVector) IsRoot() bool {
	return v.ChunkIndex == 0
}

// Eligible reports whether the vector may anchor a search result.
func (v *EmbeddingVector) Eligible() bool {
	return v.IsRoot() && v.Metadata.Complete && !v.Metadata.IsEmpty && len(v.Vector) > 0
}

// Validate checks the vector before it is persisted. Non-sentinel vectors
// must match the declared dimension and be unit length.
func (v *EmbeddingVector) Validate() error {
	if v.ID == "" {
		return ErrMissingVectorID
	}
	if v.Path == "" {
		return ErrMissingPath
	}

	if v.Metadata.IsEmpty {
		if len(v.Vector) != 0 {
			return ErrUnexpectedVector
		}
		return nil
	}

	if v.Metadata.Dimension > 0 && len(v.Vector) != v.Metadata.Dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v.Vector), v.Metadata.Dimension)
	}

	var sum float64
	for _, x := range v.Vector {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return fmt.Errorf("%s: %w", v.ID, ErrZeroVector)
	}
	if math.Abs(norm-1) > NormTolerance {
		return fmt.Errorf("%s: %w (norm %.4f)", v.ID, ErrNotNormalized, norm)
	}
	return nil
}

// Clone returns a deep copy.
func (v *EmbeddingVector) Clone() *EmbeddingVector {
	c := *v
	if v.Vector != nil {
		c.Vector = append([]float32(nil), v.Vector...)
	}
	if v.Metadata.HeadingPath != nil {
		c.Metadata.HeadingPath = append([]string(nil), v.Metadata.HeadingPath...)
	}
	return &c
}
