package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Chunk is one heading-aware segment of a document.
type Chunk struct {
	Index        int
	Text         string
	Hash         string // hex SHA-256 of Text
	HeadingPath  []string
	SectionTitle string
	Length       int // rune count of Text
}

// ValidateContent checks if the chunk content is valid
func (c *Chunk) ValidateContent() error {
	if strings.TrimSpace(c.Text) == "" {
		return ErrEmptyContent
	}
	return nil
}

// ComputeContentHash sets Hash from the chunk text.
func (c *Chunk) ComputeContentHash() {
	c.Hash = ContentHash(c.Text)
}

// ContentHash returns the hex SHA-256 digest of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Document is a vault entry as enumerated by the file collaborator.
type Document struct {
	Path  string
	MTime time.Time
	Size  int64
}

// PreparedDocument is a document read and chunked, ready for diffing.
type PreparedDocument struct {
	Path    string
	Title   string
	Excerpt string
	MTime   int64 // unix milliseconds
	Chunks  []*Chunk
}

// IsEmpty reports whether the document was too small to chunk.
func (d *PreparedDocument) IsEmpty() bool {
	return len(d.Chunks) == 0
}
