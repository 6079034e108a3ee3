package indexer

import (
	"time"

	"github.com/dshills/semindex/internal/embedder"
)

// Failure codes produced by the processor itself, alongside the provider codes.
const (
	CodeReadError      = "READ_ERROR"
	CodeStorageError   = "STORAGE_ERROR"
	CodeContentBlocked = "CONTENT_REJECTED"
	CodeInvalidVector  = "INVALID_VECTOR"
)

// File statuses reported through FileEvent.
const (
	FileCompleted = "completed"
	FileFailed    = "failed"
	FileEmpty     = "empty"
	FileSkipped   = "skipped"
	FileUnchanged = "unchanged"
)

// FileFailure describes why a document did not complete.
type FileFailure struct {
	Path         string   `json:"path"`
	Code         string   `json:"code"`
	Status       int      `json:"status,omitempty"` // provider HTTP status, when known
	Message      string   `json:"message"`
	Retryable    bool     `json:"retryable"`
	Signals      []string `json:"signals,omitempty"`
	ChunkIndices []int    `json:"chunkIndices,omitempty"`
}

// Result summarizes one ProcessFiles call.
type Result struct {
	RunID          string   `json:"runId"`
	Completed      int      `json:"completed"`
	Failed         int      `json:"failed"`
	CompletedPaths []string `json:"completedPaths"`
	FailedPaths    []string `json:"failedPaths"`
	// SkippedPaths were refused by the provider's content screen. They count
	// as completed.
	SkippedPaths []string      `json:"skippedPaths,omitempty"`
	Failures     []FileFailure `json:"failures,omitempty"`

	// Fatal is set when the run was aborted by a non-transient error, a
	// license error, a provider-wide rejection or too many transient errors.
	Fatal     *embedder.ProviderError `json:"fatal,omitempty"`
	Cancelled bool                    `json:"cancelled"`

	EmbeddedChunks    int `json:"embeddedChunks"`
	ReusedChunks      int `json:"reusedChunks"`
	MetadataRefreshes int `json:"metadataRefreshes"`
	Requests          int `json:"requests"`
	Batches           int `json:"batches"`

	Duration time.Duration `json:"duration"`
}

// BatchEvent is reported after each top-level batch resolves.
type BatchEvent struct {
	RunID     string
	BatchID   string
	Items     int
	Succeeded int
	Failed    int
	Done      int // batches resolved so far
	Total     int
	Err       error
}

// FileEvent is reported when a document is finalized.
type FileEvent struct {
	RunID  string
	Path   string
	Status string
	Done   int // documents finalized so far
	Total  int
}

// Progress receives checkpoints of a run. Calls are serialized.
type Progress interface {
	OnBatchComplete(BatchEvent)
	OnFileComplete(FileEvent)
}

// NopProgress ignores every event.
type NopProgress struct{}

func (NopProgress) OnBatchComplete(BatchEvent) {}
func (NopProgress) OnFileComplete(FileEvent)   {}
