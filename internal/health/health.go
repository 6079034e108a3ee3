// Package health tracks consecutive successes and failures per processing
// scope.
package health

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scope names a processing scope.
type Scope string

const (
	ScopeVault Scope = "vault"
	ScopeFile  Scope = "file"
	ScopeQuery Scope = "query"
)

// Scopes lists every scope in reporting order.
var Scopes = []Scope{ScopeVault, ScopeFile, ScopeQuery}

// DefaultWarnThreshold is the consecutive failure count that triggers a warning log.
const DefaultWarnThreshold = 3

// ScopeHealth is the counters of one scope.
type ScopeHealth struct {
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	ConsecutiveSuccesses int       `json:"consecutiveSuccesses"`
	TotalFailures        int       `json:"totalFailures"`
	TotalSuccesses       int       `json:"totalSuccesses"`
	LastSuccessAt        time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt        time.Time `json:"lastFailureAt,omitempty"`
	LastErrorCode        string    `json:"lastErrorCode,omitempty"`
	LastErrorMessage     string    `json:"lastErrorMessage,omitempty"`
}

// Healthy reports whether the most recent outcome was not a failure.
func (h ScopeHealth) Healthy() bool {
	return h.ConsecutiveFailures == 0
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu            sync.Mutex
	scopes        map[Scope]*ScopeHealth
	now           func() time.Time
	warnThreshold int
	logger        *zap.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithWarnThreshold sets the consecutive failure count that is logged as a warning.
func WithWarnThreshold(n int) Option {
	return func(m *Monitor) { m.warnThreshold = n }
}

// NewMonitor returns a monitor with every scope zeroed.
func NewMonitor(logger *zap.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		scopes:        make(map[Scope]*ScopeHealth, len(Scopes)),
		now:           time.Now,
		warnThreshold: DefaultWarnThreshold,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, s := range Scopes {
		m.scopes[s] = &ScopeHealth{}
	}
	return m
}

func (m *Monitor) scope(s Scope) *ScopeHealth {
	h, ok := m.scopes[s]
	if !ok {
		h = &ScopeHealth{}
		m.scopes[s] = h
	}
	return h
}

// RecordSuccess resets the failure streak of scope.
func (m *Monitor) RecordSuccess(s Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.scope(s)
	if h.ConsecutiveFailures > 0 {
		m.logger.Info("scope recovered",
			zap.String("scope", string(s)),
			zap.Int("after_failures", h.ConsecutiveFailures))
	}
	h.ConsecutiveFailures = 0
	h.ConsecutiveSuccesses++
	h.TotalSuccesses++
	h.LastSuccessAt = m.now()
}

// RecordFailure extends the failure streak of scope.
func (m *Monitor) RecordFailure(s Scope, code, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.scope(s)
	h.ConsecutiveSuccesses = 0
	h.ConsecutiveFailures++
	h.TotalFailures++
	h.LastFailureAt = m.now()
	h.LastErrorCode = code
	h.LastErrorMessage = message

	if m.warnThreshold > 0 && h.ConsecutiveFailures >= m.warnThreshold {
		m.logger.Warn("repeated failures",
			zap.String("scope", string(s)),
			zap.Int("consecutive", h.ConsecutiveFailures),
			zap.String("code", code),
			zap.String("message", message))
	}
}

// Get returns a copy of one scope's counters.
func (m *Monitor) Get(s Scope) ScopeHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.scope(s)
}

// Snapshot returns a copy of every scope's counters.
func (m *Monitor) Snapshot() map[Scope]ScopeHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Scope]ScopeHealth, len(m.scopes))
	for s, h := range m.scopes {
		out[s] = *h
	}
	return out
}

// Reset zeroes one scope.
func (m *Monitor) Reset(s Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes[s] = &ScopeHealth{}
}
