package storage

import (
	"context"
	"time"

	"github.com/dshills/semindex/pkg/types"
)

// VectorStore persists embedding vectors and the failed-files ledger.
// Upserts are idempotent by vector id, and StoreVectors is atomic so a root
// chunk never lands without the rest of its batch.
type VectorStore interface {
	Initialize(ctx context.Context) error

	// Reads
	GetVectorsByPath(ctx context.Context, path string) ([]*types.EmbeddingVector, error)
	GetVector(ctx context.Context, id string) (*types.EmbeddingVector, error)
	GetVectorsByNamespace(ctx context.Context, namespace string) ([]*types.EmbeddingVector, error)
	GetVectorsByNamespacePrefix(ctx context.Context, prefix string) ([]*types.EmbeddingVector, error)
	GetVectorsByContentHash(ctx context.Context, hash string) ([]*types.EmbeddingVector, error)
	GetRootVectors(ctx context.Context, namespace string) ([]*types.EmbeddingVector, error)
	GetDistinctPaths(ctx context.Context) ([]string, error)
	CountVectors(ctx context.Context, namespace string) (int, error)

	// Writes
	StoreVectors(ctx context.Context, vectors []*types.EmbeddingVector) error
	RemoveByPath(ctx context.Context, path string) (int, error)
	RemoveByPathExceptIDs(ctx context.Context, path string, keep []string) (int, error)
	RemoveByDirectory(ctx context.Context, dir string) (int, error)
	RemoveByNamespacePrefix(ctx context.Context, prefix string) (int, error)
	MoveVectorID(ctx context.Context, oldID, newID string) error
	RenameByPath(ctx context.Context, oldPath, newPath string) (int, error)
	RenameByDirectory(ctx context.Context, oldDir, newDir string) (int, error)

	// Failed-files ledger
	UpsertFailedFile(ctx context.Context, f *FailedFile) error
	GetFailedFile(ctx context.Context, path string) (*FailedFile, error)
	DeleteFailedFile(ctx context.Context, path string) error
	ListFailedFiles(ctx context.Context) ([]*FailedFile, error)
	RenameFailedFiles(ctx context.Context, oldPath, newPath string, directory bool) (int, error)

	Close() error
}

// FailedFile is one entry of the failed-files ledger.
type FailedFile struct {
	Path         string    `json:"path"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	Retryable    bool      `json:"retryable"`
	Signals      []string  `json:"signals,omitempty"`
	ChunkIndices []int     `json:"chunkIndices,omitempty"`
	FailedAt     time.Time `json:"failedAt"`
}
