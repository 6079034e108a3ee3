package manager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/health"
	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/storage"
	"github.com/dshills/semindex/pkg/types"
)

func TestGate(t *testing.T) {
	g := NewGate()
	require.True(t, g.TryAcquire())
	assert.True(t, g.Busy())
	assert.False(t, g.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Acquire(ctx), context.DeadlineExceeded)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, g.Acquire(context.Background()))
		g.Release()
	}()
	g.Release()
	<-done
	assert.False(t, g.Busy())
}

func TestCooldownFor(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		err  *embedder.ProviderError
		want time.Duration
	}{
		{"license", &embedder.ProviderError{Code: embedder.CodeLicenseInvalid, LicenseRelated: true}, DefaultLicenseCooldown},
		{"non transient", &embedder.ProviderError{Code: embedder.CodeInvalidResponse}, DefaultErrorCooldown},
		{"outage", &embedder.ProviderError{Code: embedder.CodeHostUnavailable, Transient: true}, DefaultOutageCooldown},
		{"server error", &embedder.ProviderError{Code: embedder.CodeHTTPError, Status: 502, Transient: true}, DefaultOutageCooldown},
		{"network", &embedder.ProviderError{Code: embedder.CodeNetworkError, Transient: true}, DefaultTransientCooldown},
		{"retry after wins", &embedder.ProviderError{Code: embedder.CodeRateLimited, Status: 429, Transient: true, RetryAfter: 20 * time.Minute}, 20 * time.Minute},
		{"retry after below floor", &embedder.ProviderError{Code: embedder.CodeRateLimited, Status: 429, Transient: true, RetryAfter: time.Second}, DefaultTransientCooldown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.cooldownFor(tt.err))
		})
	}
}

func TestScheduler(t *testing.T) {
	cfg := DefaultConfig()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := newScheduler(&cfg, clock.Now)

	require.NoError(t, s.check(health.ScopeVault))
	s.set(health.ScopeVault, StatusRunning)
	assert.Equal(t, StatusRunning, s.get(health.ScopeVault).status)

	until := s.fail(health.ScopeVault, &embedder.ProviderError{Code: embedder.CodeLicenseInvalid, LicenseRelated: true})
	assert.Equal(t, clock.Now().Add(DefaultLicenseCooldown), until)

	// a shorter cooldown never shortens a running one
	later := s.fail(health.ScopeVault, &embedder.ProviderError{Code: embedder.CodeNetworkError, Transient: true})
	assert.Equal(t, until, later)
	assert.Equal(t, embedder.CodeLicenseInvalid, s.get(health.ScopeVault).code)

	clock.Advance(time.Hour)
	err := s.check(health.ScopeVault)
	var cooldown *CooldownError
	require.True(t, errors.As(err, &cooldown))
	assert.Equal(t, DefaultLicenseCooldown-time.Hour, cooldown.Remaining)
	assert.Contains(t, cooldown.Error(), "vault")
	require.NoError(t, s.check(health.ScopeFile), "scopes are independent")

	clock.Advance(DefaultLicenseCooldown)
	require.NoError(t, s.check(health.ScopeVault))
	assert.Equal(t, StatusIdle, s.get(health.ScopeVault).status)

	s.fail(health.ScopeQuery, &embedder.ProviderError{Code: embedder.CodeNetworkError, Transient: true})
	s.clear(health.ScopeQuery)
	require.NoError(t, s.check(health.ScopeQuery))
}

func TestScheduler_Expire(t *testing.T) {
	cfg := DefaultConfig()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := newScheduler(&cfg, clock.Now)

	first := s.fail(health.ScopeFile, &embedder.ProviderError{Code: embedder.CodeHostUnavailable, Status: 503, Transient: true})
	later := s.fail(health.ScopeFile, &embedder.ProviderError{Code: embedder.CodeNetworkError, Transient: true})
	require.True(t, later.After(first))

	// a retry armed for the first cooldown must not end the longer one
	s.expire(health.ScopeFile, first)
	assert.Equal(t, StatusCooldown, s.get(health.ScopeFile).status)

	s.expire(health.ScopeFile, later)
	assert.Equal(t, StatusIdle, s.get(health.ScopeFile).status)
	require.NoError(t, s.check(health.ScopeFile))
}

func TestRetrier(t *testing.T) {
	r := newRetrier()
	now := time.Now()
	fired := make(chan time.Time, 2)
	fn := func(until time.Time) { fired <- until }

	r.arm(health.ScopeVault, now.Add(time.Hour), time.Hour, fn)
	r.arm(health.ScopeVault, now.Add(time.Minute), time.Millisecond, fn)
	at, ok := r.armed(health.ScopeVault)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour), at, "an earlier retry never replaces a later one")

	r.arm(health.ScopeVault, now.Add(2*time.Hour), 5*time.Millisecond, fn)
	select {
	case until := <-fired:
		assert.Equal(t, now.Add(2*time.Hour), until)
	case <-time.After(2 * time.Second):
		t.Fatal("retry never fired")
	}
	_, ok = r.armed(health.ScopeVault)
	assert.False(t, ok)

	r.deferPath("b.md")
	r.deferPath("a.md")
	r.deferPath("a.md")
	r.drop("b.md")
	r.deferPath("c.md")
	assert.Equal(t, 2, r.deferred())
	assert.Equal(t, []string{"a.md", "c.md"}, r.take())
	assert.Zero(t, r.deferred())

	r.arm(health.ScopeFile, now.Add(time.Hour), time.Hour, fn)
	r.stop()
	_, ok = r.armed(health.ScopeFile)
	assert.False(t, ok)
	r.arm(health.ScopeFile, now, time.Millisecond, fn)
	r.deferPath("a.md")
	_, ok = r.armed(health.ScopeFile)
	assert.False(t, ok, "stopped retriers arm nothing")
	assert.Zero(t, r.deferred())
}

func TestRemovals_Match(t *testing.T) {
	never := func(*removal) {}
	hold := func(rs *removals, p string, docs ...string) {
		require.True(t, rs.hold(p, docs, time.Hour, never))
	}

	t.Run("same path", func(t *testing.T) {
		rs := newRemovals()
		defer rs.stop()
		hold(rs, "a.md", "a.md")
		hold(rs, "b.md", "b.md")
		rm, target := rs.match("a.md")
		require.NotNil(t, rm)
		assert.Equal(t, "a.md", rm.path)
		assert.Equal(t, "a.md", target)
		assert.Equal(t, 1, rs.len())
	})

	t.Run("same file name wins over recency", func(t *testing.T) {
		rs := newRemovals()
		defer rs.stop()
		hold(rs, "notes/a.md", "notes/a.md")
		hold(rs, "b.md", "b.md")
		rm, target := rs.match("archive/a.md")
		require.NotNil(t, rm)
		assert.Equal(t, "notes/a.md", rm.path)
		assert.Equal(t, "archive/a.md", target)
	})

	t.Run("directory", func(t *testing.T) {
		rs := newRemovals()
		defer rs.stop()
		hold(rs, "notes", "notes/a.md", "notes/deep/b.md")
		rm, target := rs.match("garden/deep/b.md")
		require.NotNil(t, rm)
		assert.Equal(t, "notes", rm.path)
		assert.Equal(t, "garden", target)
		assert.Zero(t, rs.len())
	})

	t.Run("latest document", func(t *testing.T) {
		rs := newRemovals()
		defer rs.stop()
		hold(rs, "a.md", "a.md")
		hold(rs, "b.md", "b.md")
		rm, target := rs.match("title.md")
		require.NotNil(t, rm)
		assert.Equal(t, "b.md", rm.path)
		assert.Equal(t, "title.md", target)
	})

	t.Run("nothing held", func(t *testing.T) {
		rs := newRemovals()
		hold(rs, "notes", "notes/a.md")
		rm, _ := rs.match("other.md")
		assert.Nil(t, rm, "a directory only matches its own documents")
		rs.stop()
		assert.False(t, rs.hold("a.md", []string{"a.md"}, time.Hour, never))
		rm, _ = rs.match("a.md")
		assert.Nil(t, rm)
	})
}

func TestRemovals_Expire(t *testing.T) {
	rs := newRemovals()
	defer rs.stop()
	expired := make(chan string, 1)
	require.True(t, rs.hold("a.md", []string{"a.md"}, 5*time.Millisecond, func(rm *removal) { expired <- rm.path }))
	select {
	case p := <-expired:
		assert.Equal(t, "a.md", p)
	case <-time.After(2 * time.Second):
		t.Fatal("removal never expired")
	}
	assert.Zero(t, rs.len())
}

func TestProviderFailure(t *testing.T) {
	assert.Nil(t, providerFailure(&indexer.Result{}))
	assert.Nil(t, providerFailure(&indexer.Result{Failures: []indexer.FileFailure{
		{Path: "a.md", Code: indexer.CodeReadError, Retryable: true},
		{Path: "b.md", Code: indexer.CodeContentBlocked},
	}}), "local and content failures do not cool the provider down")

	pe := providerFailure(&indexer.Result{Failures: []indexer.FileFailure{
		{Path: "a.md", Code: indexer.CodeStorageError, Retryable: true},
		{Path: "b.md", Code: embedder.CodeHostUnavailable, Status: 503, Message: "down", Retryable: true},
	}})
	require.NotNil(t, pe)
	assert.Equal(t, embedder.CodeHostUnavailable, pe.Code)
	assert.Equal(t, 503, pe.Status)
	assert.True(t, pe.Transient)
	cfg := DefaultConfig()
	assert.Equal(t, DefaultOutageCooldown, cfg.cooldownFor(pe))
}

func TestDebouncer(t *testing.T) {
	d := newDebouncer()
	var runs atomic.Int32
	fn := func() { runs.Add(1) }

	for i := 0; i < 5; i++ {
		d.schedule("a.md", 30*time.Millisecond, fn)
	}
	d.schedule("dir/b.md", time.Hour, fn)
	d.schedule("dir/sub/c.md", time.Hour, fn)
	d.schedule("dirx/d.md", time.Hour, fn)
	assert.Equal(t, []string{"a.md", "dir/b.md", "dir/sub/c.md", "dirx/d.md"}, d.pending())

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	assert.Equal(t, []string{"dir/b.md", "dir/sub/c.md"}, d.cancelDir("dir"))
	assert.True(t, d.cancel("dirx/d.md"))
	assert.False(t, d.cancel("dirx/d.md"))
	assert.Empty(t, d.pending())

	d.stop()
	d.schedule("late.md", time.Millisecond, fn)
	assert.Empty(t, d.pending())
}

func TestNewReport_Status(t *testing.T) {
	fatal := &embedder.ProviderError{Code: embedder.CodeLicenseInvalid, LicenseRelated: true}
	tests := []struct {
		name string
		res  indexer.Result
		want RunStatus
	}{
		{"success", indexer.Result{Completed: 3}, RunSuccess},
		{"partial", indexer.Result{Completed: 2, Failed: 1}, RunPartial},
		{"all failed", indexer.Result{Failed: 2}, RunFailed},
		{"fatal", indexer.Result{Completed: 2, Fatal: fatal}, RunFailed},
		{"cancelled", indexer.Result{Completed: 1, Cancelled: true, Fatal: fatal}, RunCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.res
			r := newReport(health.ScopeVault, "ns", &res)
			assert.Equal(t, tt.want, r.Status)
			assert.NotEmpty(t, r.Summary())
		})
	}
}

func TestInventoryState(t *testing.T) {
	ns := types.NewNamespace("local", "hash-bow", 8)
	mtime := time.UnixMilli(1_700_000_000_000)
	root := func(mod func(*types.VectorMetadata)) *types.EmbeddingVector {
		v := &types.EmbeddingVector{
			Path: "a.md",
			Metadata: types.VectorMetadata{
				Namespace:   ns.String(),
				SourceMTime: mtime.UnixMilli(),
				ContentHash: "abc",
				Complete:    true,
				ChunkCount:  2,
			},
		}
		if mod != nil {
			mod(&v.Metadata)
		}
		return v
	}
	doc := types.Document{Path: "a.md", MTime: mtime}

	tests := []struct {
		name   string
		root   *types.EmbeddingVector
		stored bool
		ledger *storage.FailedFile
		want   types.DocumentState
	}{
		{"missing", nil, false, nil, types.StateMissing},
		{"other namespace", nil, true, nil, types.StateSchemaMismatch},
		{"up to date", root(nil), true, nil, types.StateUpToDate},
		{"modified", root(func(m *types.VectorMetadata) { m.SourceMTime-- }), true, nil, types.StateModified},
		{"empty", root(func(m *types.VectorMetadata) { m.IsEmpty = true }), true, nil, types.StateEmpty},
		{"incomplete", root(func(m *types.VectorMetadata) { m.Complete = false }), true, nil, types.StateIncomplete},
		{"no hash", root(func(m *types.VectorMetadata) { m.ContentHash = "" }), true, nil, types.StateMetadataMissing},
		{"rejected", root(func(m *types.VectorMetadata) { m.Complete = false }), true,
			&storage.FailedFile{Path: "a.md", FailedAt: mtime.Add(time.Second)}, types.StateFailed},
		{"rejected then edited", root(func(m *types.VectorMetadata) { m.Complete = false }), true,
			&storage.FailedFile{Path: "a.md", FailedAt: mtime.Add(-time.Second)}, types.StateIncomplete},
		{"retryable failure", nil, false,
			&storage.FailedFile{Path: "a.md", Retryable: true, FailedAt: mtime.Add(time.Second)}, types.StateMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &inventory{
				ns:     ns.String(),
				roots:  map[string]*types.EmbeddingVector{},
				stored: map[string]struct{}{},
				ledger: map[string]*storage.FailedFile{},
			}
			if tt.root != nil {
				inv.roots["a.md"] = tt.root
			}
			if tt.stored {
				inv.stored["a.md"] = struct{}{}
			}
			if tt.ledger != nil {
				inv.ledger["a.md"] = tt.ledger
			}
			assert.Equal(t, tt.want, inv.state(doc))
		})
	}
}

func TestRepresentatives(t *testing.T) {
	ns := "local:hash-bow:v2:2"
	vec := func(idx, length int, namespace string) *types.EmbeddingVector {
		return &types.EmbeddingVector{
			Path:       "a.md",
			ChunkIndex: idx,
			Vector:     []float32{1, 0},
			Metadata:   types.VectorMetadata{Namespace: namespace, TextLength: length},
		}
	}
	vectors := []*types.EmbeddingVector{
		vec(0, 10, ns),
		vec(1, 300, ns),
		vec(2, 50, ns),
		vec(3, 900, "other:model:v2:2"),
		vec(4, 300, ns),
	}

	got := representatives(vectors, ns, 3)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.Equal(t, 1, got[1].ChunkIndex)
	assert.Equal(t, 4, got[2].ChunkIndex)

	assert.Nil(t, representatives(vectors[1:], ns, 3), "no root, no representatives")
}

func TestQueryCache(t *testing.T) {
	cfg := DefaultConfig()
	q := newQueryCache(cfg)
	p := newFakeProvider(16)
	ctx := context.Background()

	a, err := q.embed(ctx, p, 16, "hello world")
	require.NoError(t, err)
	b, err := q.embed(ctx, p, 16, "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), p.queryCalls.Load())
	assert.Equal(t, 1, q.len())

	_, err = q.embed(ctx, p, 32, "another")
	var pe *embedder.ProviderError
	require.True(t, errors.As(err, &pe), "dimension mismatch is reported")

	q.purge()
	assert.Zero(t, q.len())
	assert.NotEqual(t,
		queryKey("local", "m", embedder.InputQuery, "x"),
		queryKey("local", "m", embedder.InputDocument, "x"))
}
