package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/health"
	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/searcher"
	"github.com/dshills/semindex/internal/storage"
	"github.com/dshills/semindex/internal/vault"
	"github.com/dshills/semindex/pkg/types"
)

// Options wires a Manager.
type Options struct {
	Config   Config
	Store    storage.VectorStore
	Vault    vault.Vault
	Provider embedder.Provider
	Logger   *zap.Logger
	Progress indexer.Progress
	Clock    func() time.Time
}

// Manager is the public API of the index. It owns the run gate, the
// cooldowns, the per-path debounce timers and the query cache, and it is
// the only writer of exclusion decisions and of the failed-files ledger.
type Manager struct {
	cfg      Config
	store    storage.VectorStore
	vault    vault.Vault
	logger   *zap.Logger
	progress indexer.Progress
	now      func() time.Time

	gate      *Gate
	health    *health.Monitor
	scheduler *scheduler
	debounce  *debouncer
	retries   *retrier
	removals  *removals
	searcher  *searcher.Searcher
	queries   *queryCache

	mu        sync.RWMutex // guards provider, ns, processor and lastRunID
	provider  embedder.Provider
	ns        types.Namespace
	processor *indexer.Processor
	lastRunID string

	// background runs started by debounce timers
	bg       context.Context
	stopBg   context.CancelFunc
	inflight sync.WaitGroup
	closed   bool
}

// New creates a Manager. The provider's namespace is resolved on first use.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil || opts.Vault == nil || opts.Provider == nil {
		return nil, errors.New("manager requires a store, a vault and a provider")
	}

	cfg := opts.Config
	cfg.ApplyDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		cfg:      cfg,
		store:    opts.Store,
		vault:    opts.Vault,
		logger:   logger,
		progress: opts.Progress,
		now:      now,
		gate:     NewGate(),
		health:   health.NewMonitor(logger, health.WithClock(now)),
		debounce: newDebouncer(),
		retries:  newRetrier(),
		removals: newRemovals(),
		searcher: searcher.NewSearcher(opts.Store, logger),
		provider: opts.Provider,
	}
	m.scheduler = newScheduler(&m.cfg, now)
	m.queries = newQueryCache(cfg)
	m.bg, m.stopBg = context.WithCancel(context.Background())
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Namespace returns the active namespace, resolving it if needed.
func (m *Manager) Namespace(ctx context.Context) (types.Namespace, error) {
	_, ns, err := m.active(ctx)
	return ns, err
}

// active returns the processor of the current provider.
func (m *Manager) active(ctx context.Context) (*indexer.Processor, types.Namespace, error) {
	m.mu.RLock()
	proc, ns := m.processor, m.ns
	m.mu.RUnlock()
	if proc != nil {
		return proc, ns, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, types.Namespace{}, ErrClosed
	}
	if m.processor != nil {
		return m.processor, m.ns, nil
	}
	ns, err := resolveNamespace(ctx, m.provider)
	if err != nil {
		return nil, types.Namespace{}, err
	}
	proc, err = m.newProcessor(m.provider, ns)
	if err != nil {
		return nil, types.Namespace{}, err
	}
	m.ns, m.processor = ns, proc
	m.logger.Info("namespace resolved", zap.String("namespace", ns.String()))
	return proc, ns, nil
}

func (m *Manager) newProcessor(p embedder.Provider, ns types.Namespace) (*indexer.Processor, error) {
	return indexer.New(indexer.Options{
		Store:     m.store,
		Reader:    m.vault,
		Provider:  p,
		Namespace: ns,
		Config:    m.cfg.Processor,
		Logger:    m.logger,
		Progress:  m.progress,
		Clock:     m.now,
	})
}

func (m *Manager) current() (embedder.Provider, types.Namespace) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.provider, m.ns
}

// SetProvider makes p the active provider. Stored vectors of the previous
// namespace are left in place; documents show up as schema-mismatch until
// reprocessed. The query cache and every cooldown are reset.
func (m *Manager) SetProvider(ctx context.Context, p embedder.Provider) error {
	ns, err := resolveNamespace(ctx, p)
	if err != nil {
		return fmt.Errorf("switch provider: %w", err)
	}
	proc, err := m.newProcessor(p, ns)
	if err != nil {
		return fmt.Errorf("switch provider: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old, oldNS := m.provider, m.ns
	m.provider, m.ns, m.processor = p, ns, proc
	m.mu.Unlock()

	if old != p {
		closeProvider(old, m.logger)
	}
	m.queries.purge()
	m.scheduler.clear(health.Scopes...)

	m.logger.Info("provider switched",
		zap.String("from", oldNS.String()),
		zap.String("to", ns.String()))
	return nil
}

// SwitchProvider builds a provider from cfg and activates it.
func (m *Manager) SwitchProvider(ctx context.Context, cfg embedder.Config) error {
	p, err := embedder.New(cfg)
	if err != nil {
		return fmt.Errorf("switch provider: %w", err)
	}
	if err := m.SetProvider(ctx, p); err != nil {
		closeProvider(p, m.logger)
		return err
	}
	return nil
}

// ProcessVault brings every document of the vault up to date. It is
// rejected with ErrRunInProgress while another run holds the gate.
func (m *Manager) ProcessVault(ctx context.Context) (*RunReport, error) {
	if !m.gate.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer m.gate.Release()

	if err := m.scheduler.check(health.ScopeVault); err != nil {
		return nil, err
	}
	proc, ns, err := m.activeFor(ctx, health.ScopeVault)
	if err != nil {
		return nil, err
	}

	docs, err := m.vault.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vault: %w", err)
	}
	removed, err := m.pruneVanished(ctx, docs)
	if err != nil {
		return nil, err
	}

	inv, err := m.inventory(ctx, ns)
	if err != nil {
		return nil, err
	}
	var pending []types.Document
	for _, doc := range docs {
		if inv.state(doc).NeedsProcessing() {
			pending = append(pending, doc)
		}
	}

	m.logger.Info("processing vault",
		zap.Int("documents", len(docs)),
		zap.Int("pending", len(pending)),
		zap.Int("removed", removed))

	report := m.run(ctx, health.ScopeVault, proc, ns, pending)
	report.Removed = removed
	return report, nil
}

// ProcessFile brings one document up to date, waiting for any run in
// progress. A missing or excluded document has its vectors removed.
func (m *Manager) ProcessFile(ctx context.Context, path string) (*RunReport, error) {
	path = vault.Clean(path)
	if err := m.scheduler.check(health.ScopeFile); err != nil {
		return nil, err
	}
	if err := m.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer m.gate.Release()

	proc, ns, err := m.activeFor(ctx, health.ScopeFile)
	if err != nil {
		return nil, err
	}

	doc, err := m.vault.Stat(ctx, path)
	if m.vault.IsExcluded(path) || (err != nil && errors.Is(err, os.ErrNotExist)) {
		report := noopReport(health.ScopeFile, ns.String())
		n, rmErr := m.forget(ctx, path)
		if rmErr != nil {
			return nil, rmErr
		}
		if n > 0 {
			report.Removed = 1
		}
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return m.run(ctx, health.ScopeFile, proc, ns, []types.Document{doc}), nil
}

// RetryFailedFiles reprocesses every document in the failed-files ledger.
// It is an explicit user action, so it clears processing cooldowns first.
func (m *Manager) RetryFailedFiles(ctx context.Context) (*RunReport, error) {
	if !m.gate.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer m.gate.Release()

	m.scheduler.clear(health.ScopeVault, health.ScopeFile)
	proc, ns, err := m.activeFor(ctx, health.ScopeVault)
	if err != nil {
		return nil, err
	}

	ledger, err := m.store.ListFailedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list failed files: %w", err)
	}

	var docs []types.Document
	removed := 0
	for _, f := range ledger {
		doc, err := m.vault.Stat(ctx, f.Path)
		if err != nil || m.vault.IsExcluded(f.Path) {
			if _, rmErr := m.forget(ctx, f.Path); rmErr != nil {
				return nil, rmErr
			}
			removed++
			continue
		}
		docs = append(docs, doc)
	}

	m.logger.Info("retrying failed files", zap.Int("documents", len(docs)), zap.Int("removed", removed))
	report := m.run(ctx, health.ScopeVault, proc, ns, docs)
	report.Removed = removed
	return report, nil
}

// ForceRefreshCurrentNamespace deletes every vector of the current
// provider and model, across schema versions and dimensions, then
// reprocesses the whole vault.
func (m *Manager) ForceRefreshCurrentNamespace(ctx context.Context) (*RunReport, error) {
	if !m.gate.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer m.gate.Release()

	if err := m.scheduler.check(health.ScopeVault); err != nil {
		return nil, err
	}
	proc, ns, err := m.activeFor(ctx, health.ScopeVault)
	if err != nil {
		return nil, err
	}

	docs, err := m.vault.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vault: %w", err)
	}
	purged, err := m.store.RemoveByNamespacePrefix(ctx, ns.Prefix())
	if err != nil {
		return nil, fmt.Errorf("purge namespace: %w", err)
	}
	removed, err := m.pruneVanished(ctx, docs)
	if err != nil {
		return nil, err
	}
	m.queries.purge()

	m.logger.Info("forced refresh",
		zap.String("prefix", ns.Prefix()),
		zap.Int("purged", purged),
		zap.Int("documents", len(docs)))

	report := m.run(ctx, health.ScopeVault, proc, ns, docs)
	report.Purged = purged
	report.Removed = removed
	return report, nil
}

// activeFor resolves the processor, treating a failed resolution as a
// provider failure of scope.
func (m *Manager) activeFor(ctx context.Context, scope health.Scope) (*indexer.Processor, types.Namespace, error) {
	proc, ns, err := m.active(ctx)
	if err == nil || ctx.Err() != nil || errors.Is(err, ErrClosed) {
		return proc, ns, err
	}
	pe := embedder.Classify(err)
	m.health.RecordFailure(scope, pe.Code, pe.Error())
	m.coolDown(scope, pe)
	return nil, types.Namespace{}, err
}

// run hands docs to the processor and applies the outcome to the ledger,
// the health monitor and the scope state.
func (m *Manager) run(ctx context.Context, scope health.Scope, proc *indexer.Processor, ns types.Namespace, docs []types.Document) *RunReport {
	if len(docs) == 0 {
		m.health.RecordSuccess(scope)
		m.scheduler.set(scope, StatusSuccess)
		return noopReport(scope, ns.String())
	}

	m.scheduler.set(scope, StatusRunning)
	res, err := proc.ProcessFiles(ctx, docs)
	if err != nil {
		// ProcessFiles only fails before any work started
		pe := embedder.Classify(err)
		m.health.RecordFailure(scope, pe.Code, pe.Error())
		m.scheduler.set(scope, StatusIdle)
		return &RunReport{Scope: scope, Namespace: ns.String(), Status: RunFailed, Fatal: pe}
	}

	m.mu.Lock()
	m.lastRunID = res.RunID
	m.mu.Unlock()

	m.recordLedger(m.bg, res)
	report := newReport(scope, ns.String(), res)

	switch {
	case res.Fatal != nil:
		m.health.RecordFailure(scope, res.Fatal.Code, res.Fatal.Error())
		report.CooldownUntil = m.coolDown(scope, res.Fatal)
		if res.Fatal.LicenseRelated {
			// credentials are shared by every processing scope
			for _, other := range []health.Scope{health.ScopeVault, health.ScopeFile} {
				if other != scope {
					m.scheduler.fail(other, res.Fatal)
				}
			}
		}
	case res.Cancelled:
		m.scheduler.set(scope, StatusIdle)
	case report.Status == RunFailed:
		f := res.Failures[0]
		m.health.RecordFailure(scope, f.Code, f.Message)
		if pe := providerFailure(res); pe != nil {
			report.CooldownUntil = m.coolDown(scope, pe)
		} else {
			m.scheduler.set(scope, StatusIdle)
		}
	default:
		m.health.RecordSuccess(scope)
		m.scheduler.set(scope, StatusSuccess)
		if pe := providerFailure(res); pe != nil && scope == health.ScopeVault {
			// the provider works but dropped some documents
			m.armRetry(scope, m.now().Add(m.cfg.cooldownFor(pe)))
		}
	}

	m.logger.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.String("scope", string(scope)),
		zap.String("status", string(report.Status)),
		zap.String("summary", report.Summary()))
	return report
}

// recordLedger writes per-document failures and clears entries of
// documents that completed. It runs even when ctx was cancelled.
func (m *Manager) recordLedger(ctx context.Context, res *indexer.Result) {
	now := m.now()
	for _, f := range res.Failures {
		entry := &storage.FailedFile{
			Path:         f.Path,
			Code:         f.Code,
			Message:      f.Message,
			Retryable:    f.Retryable,
			Signals:      f.Signals,
			ChunkIndices: f.ChunkIndices,
			FailedAt:     now,
		}
		if err := m.store.UpsertFailedFile(ctx, entry); err != nil {
			m.logger.Warn("failed to record failure", zap.String("path", f.Path), zap.Error(err))
		}
	}
	done := append(append([]string(nil), res.CompletedPaths...), res.SkippedPaths...)
	for _, path := range done {
		if err := m.store.DeleteFailedFile(ctx, path); err != nil {
			m.logger.Warn("failed to clear ledger entry", zap.String("path", path), zap.Error(err))
		}
	}
}

// pruneVanished removes vectors of stored paths that are no longer vault
// documents, because they were deleted or became excluded.
func (m *Manager) pruneVanished(ctx context.Context, docs []types.Document) (int, error) {
	live := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		live[d.Path] = struct{}{}
	}
	stored, err := m.store.GetDistinctPaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored paths: %w", err)
	}

	removed := 0
	for _, path := range stored {
		if _, ok := live[path]; ok {
			continue
		}
		if _, err := m.forget(ctx, path); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("removed stale documents", zap.Int("count", removed))
	}
	return removed, nil
}

// forget drops every vector and the ledger entry of a path.
func (m *Manager) forget(ctx context.Context, path string) (int, error) {
	n, err := m.store.RemoveByPath(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", path, err)
	}
	if err := m.store.DeleteFailedFile(ctx, path); err != nil {
		return n, fmt.Errorf("clear ledger for %s: %w", path, err)
	}
	return n, nil
}

// Close stops pending debounce, retry and removal timers, waits for
// background runs and closes the provider. The store is owned by the caller.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	p := m.provider
	m.mu.Unlock()

	m.debounce.stop()
	m.retries.stop()
	m.removals.stop()
	m.stopBg()
	m.inflight.Wait()
	closeProvider(p, m.logger)
	return nil
}

func closeProvider(p embedder.Provider, logger *zap.Logger) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Debug("failed to close provider", zap.Error(err))
		}
	}
}
