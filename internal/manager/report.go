package manager

import (
	"fmt"
	"time"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/health"
	"github.com/dshills/semindex/internal/indexer"
)

// RunStatus summarizes how a run ended.
type RunStatus string

const (
	RunSuccess   RunStatus = "success"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
	RunNoop      RunStatus = "noop"
)

// RunReport is what a processing call returns to the user.
type RunReport struct {
	RunID     string       `json:"runId,omitempty"`
	Scope     health.Scope `json:"scope"`
	Namespace string       `json:"namespace"`
	Status    RunStatus    `json:"status"`

	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	// Removed counts paths whose vectors were dropped because the file
	// vanished or became excluded.
	Removed int `json:"removed"`
	// Purged counts vectors deleted by a forced refresh.
	Purged int `json:"purged,omitempty"`

	FailedPaths   []string                `json:"failedPaths,omitempty"`
	Failures      []indexer.FileFailure   `json:"failures,omitempty"`
	Fatal         *embedder.ProviderError `json:"fatal,omitempty"`
	CooldownUntil time.Time               `json:"cooldownUntil,omitempty"`

	EmbeddedChunks int           `json:"embeddedChunks"`
	ReusedChunks   int           `json:"reusedChunks"`
	Duration       time.Duration `json:"duration"`
}

func noopReport(scope health.Scope, ns string) *RunReport {
	return &RunReport{Scope: scope, Namespace: ns, Status: RunNoop}
}

func newReport(scope health.Scope, ns string, res *indexer.Result) *RunReport {
	r := &RunReport{
		RunID:          res.RunID,
		Scope:          scope,
		Namespace:      ns,
		Processed:      res.Completed,
		Failed:         res.Failed,
		Skipped:        len(res.SkippedPaths),
		FailedPaths:    res.FailedPaths,
		Failures:       res.Failures,
		Fatal:          res.Fatal,
		EmbeddedChunks: res.EmbeddedChunks,
		ReusedChunks:   res.ReusedChunks,
		Duration:       res.Duration,
	}
	switch {
	case res.Cancelled:
		r.Status = RunCancelled
	case res.Fatal != nil:
		r.Status = RunFailed
	case res.Failed == 0:
		r.Status = RunSuccess
	case res.Completed == 0:
		r.Status = RunFailed
	default:
		r.Status = RunPartial
	}
	return r
}

// Summary is a one-line description for logs and the CLI.
func (r *RunReport) Summary() string {
	switch r.Status {
	case RunNoop:
		if r.Removed > 0 {
			return fmt.Sprintf("nothing to process, removed %d stale documents", r.Removed)
		}
		return "nothing to process"
	case RunSuccess:
		return fmt.Sprintf("processed %d documents (%d chunks embedded, %d reused)", r.Processed, r.EmbeddedChunks, r.ReusedChunks)
	case RunPartial:
		return fmt.Sprintf("partial success: %d processed, %d failed; retry failed files to try again", r.Processed, r.Failed)
	case RunCancelled:
		return fmt.Sprintf("cancelled after %d documents", r.Processed+r.Failed)
	default:
		if r.Fatal != nil {
			return fmt.Sprintf("run failed: %s", r.Fatal.Error())
		}
		return fmt.Sprintf("run failed: %d documents failed", r.Failed)
	}
}
