package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMonitor_Streaks(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(nil, WithClock(func() time.Time { return now }))

	m.RecordSuccess(ScopeVault)
	m.RecordSuccess(ScopeVault)
	m.RecordFailure(ScopeVault, "NETWORK_ERROR", "dial tcp")

	h := m.Get(ScopeVault)
	assert.Equal(t, 1, h.ConsecutiveFailures)
	assert.Equal(t, 0, h.ConsecutiveSuccesses)
	assert.Equal(t, 2, h.TotalSuccesses)
	assert.Equal(t, 1, h.TotalFailures)
	assert.Equal(t, "NETWORK_ERROR", h.LastErrorCode)
	assert.Equal(t, now, h.LastFailureAt)
	assert.False(t, h.Healthy())

	m.RecordSuccess(ScopeVault)
	h = m.Get(ScopeVault)
	assert.True(t, h.Healthy())
	assert.Equal(t, 1, h.ConsecutiveSuccesses)
	assert.Equal(t, "NETWORK_ERROR", h.LastErrorCode, "last error is kept for diagnosis")

	// other scopes are untouched
	assert.Equal(t, ScopeHealth{}, m.Get(ScopeQuery))
}

func TestMonitor_SnapshotIsCopy(t *testing.T) {
	m := NewMonitor(nil)
	snap := m.Snapshot()
	assert.Len(t, snap, len(Scopes))

	m.RecordFailure(ScopeFile, "HTTP_ERROR", "bad request")
	assert.Equal(t, 0, snap[ScopeFile].TotalFailures)
	assert.Equal(t, 1, m.Snapshot()[ScopeFile].TotalFailures)

	m.Reset(ScopeFile)
	assert.Equal(t, 0, m.Get(ScopeFile).TotalFailures)
}

func TestMonitor_WarnsAtThreshold(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := NewMonitor(zap.New(core), WithWarnThreshold(2))

	m.RecordFailure(ScopeQuery, "HOST_UNAVAILABLE", "503")
	assert.Equal(t, 0, logs.Len())
	m.RecordFailure(ScopeQuery, "HOST_UNAVAILABLE", "503")
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "repeated failures", logs.All()[0].Message)
}
