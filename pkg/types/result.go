package types

// SearchResult is one ranked document returned by a similarity query.
type SearchResult struct {
	Path         string  `json:"path"`
	Title        string  `json:"title"`
	Excerpt      string  `json:"excerpt,omitempty"`
	Score        float64 `json:"score"`
	RawScore     float64 `json:"rawScore"`
	ChunkIndex   int     `json:"chunkIndex"`
	SectionTitle string  `json:"sectionTitle,omitempty"`
	Rank         int     `json:"rank"` // 1-based
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Path == "" {
		return ErrMissingPath
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	return nil
}
