package types

import "errors"

// Domain errors for type validation
var (
	// Vector errors
	ErrZeroVector        = errors.New("vector has zero magnitude")
	ErrNotNormalized     = errors.New("vector is not unit length")
	ErrDimensionMismatch = errors.New("vector dimension does not match metadata")
	ErrMissingVectorID   = errors.New("vector id is required")
	ErrMissingPath       = errors.New("document path is required")
	ErrUnexpectedVector  = errors.New("empty sentinel must not carry a vector")

	// Identifier errors
	ErrInvalidNamespace = errors.New("invalid namespace")
	ErrInvalidVectorID  = errors.New("invalid vector id")

	// Chunk errors
	ErrEmptyContent = errors.New("content cannot be empty")
)

// ErrInvalidRank is returned for a search result with rank below 1.
var ErrInvalidRank = errors.New("rank must be >= 1")
