package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/semindex/internal/health"
	"github.com/dshills/semindex/internal/storage"
	"github.com/dshills/semindex/pkg/types"
)

// inventory is a snapshot of what is stored, used to derive document states.
type inventory struct {
	ns     string
	roots  map[string]*types.EmbeddingVector
	stored map[string]struct{} // paths with vectors in any namespace
	ledger map[string]*storage.FailedFile
}

func (m *Manager) inventory(ctx context.Context, ns types.Namespace) (*inventory, error) {
	roots, err := m.store.GetRootVectors(ctx, ns.String())
	if err != nil {
		return nil, fmt.Errorf("load root vectors: %w", err)
	}
	paths, err := m.store.GetDistinctPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored paths: %w", err)
	}
	failed, err := m.store.ListFailedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list failed files: %w", err)
	}

	inv := &inventory{
		ns:     ns.String(),
		roots:  make(map[string]*types.EmbeddingVector, len(roots)),
		stored: make(map[string]struct{}, len(paths)),
		ledger: make(map[string]*storage.FailedFile, len(failed)),
	}
	for _, r := range roots {
		inv.roots[r.Path] = r
	}
	for _, p := range paths {
		inv.stored[p] = struct{}{}
	}
	for _, f := range failed {
		inv.ledger[f.Path] = f
	}
	return inv, nil
}

// state derives the processing state of a vault document.
func (inv *inventory) state(doc types.Document) types.DocumentState {
	mtime := doc.MTime.UnixMilli()

	// a failure that retrying cannot fix stays failed until the file changes
	if f := inv.ledger[doc.Path]; f != nil && !f.Retryable && mtime <= f.FailedAt.UnixMilli() {
		return types.StateFailed
	}

	root := inv.roots[doc.Path]
	if root == nil {
		if _, ok := inv.stored[doc.Path]; ok {
			return types.StateSchemaMismatch
		}
		return types.StateMissing
	}

	meta := root.Metadata
	switch {
	case meta.SourceMTime < mtime:
		return types.StateModified
	case meta.Namespace != inv.ns:
		return types.StateSchemaMismatch
	case meta.IsEmpty:
		return types.StateEmpty
	case !meta.Complete:
		return types.StateIncomplete
	case meta.ContentHash == "" || meta.ChunkCount == 0:
		return types.StateMetadataMissing
	default:
		return types.StateUpToDate
	}
}

// Stats summarizes the index against the vault.
type Stats struct {
	Namespace       string                      `json:"namespace"`
	Total           int                         `json:"total"`
	NeedsProcessing int                         `json:"needsProcessing"`
	UpToDate        int                         `json:"upToDate"`
	Empty           int                         `json:"empty"`
	Failed          int                         `json:"failed"`
	States          map[types.DocumentState]int `json:"states"`
	// Vectors counts the current namespace, StoredVectors every namespace.
	Vectors       int `json:"vectors"`
	StoredVectors int `json:"storedVectors"`
	// PendingUpdates counts debounced changes not yet processed.
	PendingUpdates int `json:"pendingUpdates"`
}

// GetStats counts vault documents by processing state.
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	_, ns, err := m.active(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := m.vault.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vault: %w", err)
	}
	inv, err := m.inventory(ctx, ns)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Namespace:      ns.String(),
		Total:          len(docs),
		States:         make(map[types.DocumentState]int),
		PendingUpdates: len(m.debounce.pending()),
	}
	for _, doc := range docs {
		s := inv.state(doc)
		st.States[s]++
		switch {
		case s.NeedsProcessing():
			st.NeedsProcessing++
		case s == types.StateUpToDate:
			st.UpToDate++
		case s == types.StateEmpty:
			st.Empty++
		case s == types.StateFailed:
			st.Failed++
		}
	}

	if st.Vectors, err = m.store.CountVectors(ctx, ns.String()); err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	if st.StoredVectors, err = m.store.CountVectors(ctx, ""); err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	return st, nil
}

// PendingFile is a document that the next run would process, or one that
// failed and waits for a retry.
type PendingFile struct {
	Path      string              `json:"path"`
	State     types.DocumentState `json:"state"`
	Code      string              `json:"code,omitempty"`
	Message   string              `json:"message,omitempty"`
	Retryable bool                `json:"retryable,omitempty"`
	Signals   []string            `json:"signals,omitempty"`
	FailedAt  time.Time           `json:"failedAt,omitempty"`
}

// ListPendingFiles returns documents that need processing, with ledger
// details for those that failed before.
func (m *Manager) ListPendingFiles(ctx context.Context) ([]PendingFile, error) {
	_, ns, err := m.active(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := m.vault.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vault: %w", err)
	}
	inv, err := m.inventory(ctx, ns)
	if err != nil {
		return nil, err
	}

	pending := make([]PendingFile, 0)
	for _, doc := range docs {
		s := inv.state(doc)
		if !s.NeedsProcessing() && s != types.StateFailed {
			continue
		}
		pf := PendingFile{Path: doc.Path, State: s}
		if f := inv.ledger[doc.Path]; f != nil {
			pf.Code = f.Code
			pf.Message = f.Message
			pf.Retryable = f.Retryable
			pf.Signals = f.Signals
			pf.FailedAt = f.FailedAt
		}
		pending = append(pending, pf)
	}
	return pending, nil
}

// ScopeStatus is the health of one scope plus its scheduling state.
type ScopeStatus struct {
	Status        Status             `json:"status"`
	CooldownUntil time.Time          `json:"cooldownUntil,omitempty"`
	Remaining     time.Duration      `json:"remaining,omitempty"`
	CooldownCode  string             `json:"cooldownCode,omitempty"`
	RetryAt       time.Time          `json:"retryAt,omitempty"`
	Health        health.ScopeHealth `json:"health"`
}

// HealthSnapshot is returned by GetHealthSnapshot. DeferredUpdates wait
// for the file scope cooldown to end. PendingRemovals are removed paths
// whose vectors are held in case a create completes a rename.
type HealthSnapshot struct {
	Namespace       string                       `json:"namespace,omitempty"`
	Provider        string                       `json:"provider"`
	Model           string                       `json:"model"`
	LastRunID       string                       `json:"lastRunId,omitempty"`
	RunInProgress   bool                         `json:"runInProgress"`
	PendingUpdates  int                          `json:"pendingUpdates"`
	DeferredUpdates int                          `json:"deferredUpdates"`
	PendingRemovals int                          `json:"pendingRemovals"`
	QueryCacheSize  int                          `json:"queryCacheSize"`
	Scopes          map[health.Scope]ScopeStatus `json:"scopes"`
}

// GetHealthSnapshot reports every scope without touching the store or the provider.
func (m *Manager) GetHealthSnapshot() HealthSnapshot {
	m.mu.RLock()
	snap := HealthSnapshot{
		Provider:  m.provider.ID(),
		Model:     m.provider.Model(),
		LastRunID: m.lastRunID,
	}
	if !m.ns.IsZero() {
		snap.Namespace = m.ns.String()
	}
	m.mu.RUnlock()

	snap.RunInProgress = m.gate.Busy()
	snap.PendingUpdates = len(m.debounce.pending())
	snap.DeferredUpdates = m.retries.deferred()
	snap.PendingRemovals = m.removals.len()
	snap.QueryCacheSize = m.queries.len()
	snap.Scopes = make(map[health.Scope]ScopeStatus, len(health.Scopes))

	counters := m.health.Snapshot()
	now := m.now()
	for _, scope := range health.Scopes {
		st := m.scheduler.get(scope)
		ss := ScopeStatus{Status: st.status, Health: counters[scope]}
		if st.status == StatusCooldown {
			ss.CooldownUntil = st.until
			ss.Remaining = st.until.Sub(now)
			ss.CooldownCode = st.code
		}
		if at, ok := m.retries.armed(scope); ok {
			ss.RetryAt = at
		}
		snap.Scopes[scope] = ss
	}
	return snap
}
