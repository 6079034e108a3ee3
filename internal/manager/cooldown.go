package manager

import (
	"sync"
	"time"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/health"
)

// Status is the state of a processing scope.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusCooldown Status = "cooldown"
)

type scopeState struct {
	status  Status
	until   time.Time
	code    string
	license bool
}

// scheduler holds the idle -> running -> success|cooldown machine of every scope.
type scheduler struct {
	mu     sync.Mutex
	cfg    *Config
	now    func() time.Time
	scopes map[health.Scope]*scopeState
}

func newScheduler(cfg *Config, now func() time.Time) *scheduler {
	s := &scheduler{cfg: cfg, now: now, scopes: make(map[health.Scope]*scopeState)}
	for _, scope := range health.Scopes {
		s.scopes[scope] = &scopeState{status: StatusIdle}
	}
	return s
}

// check returns a *CooldownError while the scope is cooling down.
func (s *scheduler) check(scope health.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.scopes[scope]
	if st.status != StatusCooldown {
		return nil
	}
	now := s.now()
	if !now.Before(st.until) {
		st.status = StatusIdle
		return nil
	}
	return &CooldownError{Scope: scope, Remaining: st.until.Sub(now), Until: st.until, Code: st.code}
}

func (s *scheduler) set(scope health.Scope, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope].status = status
}

// fail puts the scope into cooldown and returns the deadline.
func (s *scheduler) fail(scope health.Scope, pe *embedder.ProviderError) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	until := s.now().Add(s.cfg.cooldownFor(pe))
	st := s.scopes[scope]
	if st.status == StatusCooldown && st.until.After(until) {
		return st.until
	}
	*st = scopeState{status: StatusCooldown, until: until, code: pe.Code, license: pe.LicenseRelated}
	return until
}

// expire ends a cooldown that was due at or before until. A cooldown
// extended past until by a later failure is left alone.
func (s *scheduler) expire(scope health.Scope, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.scopes[scope]; st.status == StatusCooldown && !st.until.After(until) {
		*st = scopeState{status: StatusIdle}
	}
}

// clear ends any cooldown of the given scopes.
func (s *scheduler) clear(scopes ...health.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, scope := range scopes {
		if st := s.scopes[scope]; st.status == StatusCooldown {
			*st = scopeState{status: StatusIdle}
		}
	}
}

func (s *scheduler) get(scope health.Scope) scopeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := *s.scopes[scope]
	if st.status == StatusCooldown && !s.now().Before(st.until) {
		st.status = StatusIdle
	}
	return st
}

// cooldownFor picks the retry delay for a failure. License errors wait
// longest since only the user can fix them.
func (c Config) cooldownFor(pe *embedder.ProviderError) time.Duration {
	switch {
	case pe.LicenseRelated:
		return c.LicenseCooldown
	case !pe.Transient:
		return c.ErrorCooldown
	case pe.IsUpstreamOutage():
		return max(c.OutageCooldown, pe.RetryAfter)
	default:
		return max(c.TransientCooldown, pe.RetryAfter)
	}
}
