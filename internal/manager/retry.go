package manager

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/health"
	"github.com/dshills/semindex/internal/indexer"
)

// retrier holds the work a cooldown deferred: one timer per scope, due
// when the cooldown ends, and the document updates waiting on the file
// scope.
type retrier struct {
	mu     sync.Mutex
	timers map[health.Scope]*retryTimer
	paths  map[string]struct{}
	closed bool
}

type retryTimer struct {
	timer *time.Timer
	until time.Time
}

func newRetrier() *retrier {
	return &retrier{
		timers: make(map[health.Scope]*retryTimer),
		paths:  make(map[string]struct{}),
	}
}

// arm runs fn after delay unless a retry due at or after until is already
// armed for scope.
func (r *retrier) arm(scope health.Scope, until time.Time, delay time.Duration, fn func(until time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if cur, ok := r.timers[scope]; ok {
		if !cur.until.Before(until) {
			return
		}
		cur.timer.Stop()
	}

	rt := &retryTimer{until: until}
	rt.timer = time.AfterFunc(max(delay, 0), func() {
		r.mu.Lock()
		if r.timers[scope] != rt {
			r.mu.Unlock()
			return
		}
		delete(r.timers, scope)
		r.mu.Unlock()
		fn(until)
	})
	r.timers[scope] = rt
}

func (r *retrier) armed(scope health.Scope) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.timers[scope]
	if !ok {
		return time.Time{}, false
	}
	return rt.until, true
}

func (r *retrier) deferred() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func (r *retrier) deferPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.paths[path] = struct{}{}
	}
}

func (r *retrier) drop(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, path)
}

// take returns the deferred paths and forgets them.
func (r *retrier) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = make(map[string]struct{})
	sort.Strings(paths)
	return paths
}

func (r *retrier) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for scope, rt := range r.timers {
		rt.timer.Stop()
		delete(r.timers, scope)
	}
}

// coolDown puts scope into cooldown after pe. Processing scopes also get a
// retry armed for the end of the cooldown, except after license errors,
// which only the user can fix.
func (m *Manager) coolDown(scope health.Scope, pe *embedder.ProviderError) time.Time {
	until := m.scheduler.fail(scope, pe)
	if scope != health.ScopeQuery && !pe.LicenseRelated {
		m.armRetry(scope, until)
	}
	return until
}

func (m *Manager) armRetry(scope health.Scope, until time.Time) {
	m.retries.arm(scope, until, until.Sub(m.now()), func(until time.Time) {
		m.retry(scope, until)
	})
}

// retry ends the cooldown that was due at until and runs the deferred
// work: a vault pass for the vault scope, the waiting updates for the file
// scope.
func (m *Manager) retry(scope health.Scope, until time.Time) {
	if !m.startBackground() {
		return
	}
	defer m.inflight.Done()
	m.scheduler.expire(scope, until)

	switch scope {
	case health.ScopeVault:
		report, err := m.ProcessVault(m.bg)
		var cooldown *CooldownError
		switch {
		case errors.Is(err, ErrRunInProgress):
			m.armRetry(scope, m.now().Add(m.cfg.CreateDelay))
		case errors.As(err, &cooldown):
			m.logger.Debug("vault retry deferred by cooldown", zap.Duration("remaining", cooldown.Remaining))
		case err != nil:
			if m.bg.Err() == nil {
				m.logger.Warn("vault retry failed", zap.Error(err))
			}
		default:
			m.logger.Info("vault retry finished",
				zap.String("status", string(report.Status)),
				zap.String("summary", report.Summary()))
		}
	case health.ScopeFile:
		for _, path := range m.retries.take() {
			m.update(path)
		}
	}
}

// update processes a changed document for a debounce timer or a retry. An
// update refused or failed while the file scope cools down is deferred
// until the cooldown ends.
func (m *Manager) update(path string) {
	report, err := m.ProcessFile(m.bg, path)
	if m.bg.Err() != nil {
		return
	}
	if err != nil || report.Status == RunFailed {
		if st := m.scheduler.get(health.ScopeFile); st.status == StatusCooldown && !st.license {
			m.retries.deferPath(path)
			m.armRetry(health.ScopeFile, st.until)
			m.logger.Debug("update deferred by cooldown",
				zap.String("path", path),
				zap.Time("until", st.until))
			return
		}
	}

	if err != nil {
		m.logger.Warn("update failed", zap.String("path", path), zap.Error(err))
		return
	}
	m.logger.Debug("document updated",
		zap.String("path", path),
		zap.String("status", string(report.Status)))
}

// startBackground registers a timer-driven run. It reports false once the
// manager is closing, so Close never waits on a run it could not see.
func (m *Manager) startBackground() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.inflight.Add(1)
	return true
}

// providerFailure returns the first retryable failure the provider caused,
// or nil when every failure came from the documents or the store.
func providerFailure(res *indexer.Result) *embedder.ProviderError {
	for _, f := range res.Failures {
		if !f.Retryable {
			continue
		}
		switch f.Code {
		case indexer.CodeReadError, indexer.CodeStorageError, indexer.CodeInvalidVector:
			continue
		}
		return &embedder.ProviderError{Code: f.Code, Status: f.Status, Message: f.Message, Transient: true}
	}
	return nil
}
