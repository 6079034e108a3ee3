package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/storage"
	"github.com/dshills/semindex/pkg/types"
)

const testDim = 16

// fakeProvider wraps the local provider and injects failures.
type fakeProvider struct {
	local *embedder.LocalProvider
	calls atomic.Int32
	texts atomic.Int32

	mu     sync.Mutex
	fail   func(texts []string) error
	vector func(text string) []float32
	delay  time.Duration
	stamps []time.Time

	inflight atomic.Int32
	peak     atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{local: embedder.NewLocalProvider(testDim)}
}

func (f *fakeProvider) ID() string             { return "fake" }
func (f *fakeProvider) Model() string          { return "fake-model" }
func (f *fakeProvider) ExpectedDimension() int { return testDim }
func (f *fakeProvider) MaxBatchSize() int      { return 8 }

func (f *fakeProvider) RiskSignals(text string) []string {
	if strings.Contains(text, "POISON") {
		return []string{"poison-marker"}
	}
	return nil
}

func (f *fakeProvider) setFail(fn func(texts []string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

func (f *fakeProvider) GenerateEmbeddings(ctx context.Context, texts []string, opts embedder.GenerateOptions) ([][]float32, error) {
	f.calls.Add(1)
	f.texts.Add(int32(len(texts)))
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	fail, vector, delay := f.fail, f.vector, f.delay
	f.stamps = append(f.stamps, time.Now())
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if fail != nil {
		if err := fail(texts); err != nil {
			return nil, err
		}
	}
	out, err := f.local.GenerateEmbeddings(ctx, texts, opts)
	if err != nil {
		return nil, err
	}
	if vector != nil {
		for i, t := range texts {
			if v := vector(t); v != nil {
				out[i] = v
			}
		}
	}
	return out, nil
}

var poisonRejection = func(texts []string) error {
	for _, t := range texts {
		if strings.Contains(t, "POISON") {
			return &embedder.ProviderError{
				Code:      embedder.CodeUnexpectedResponse,
				Status:    403,
				Message:   "response is not JSON",
				Transient: true,
				NonJSON:   true,
			}
		}
	}
	return nil
}

// memReader serves documents from memory.
type memReader struct {
	mu    sync.Mutex
	files map[string]string
}

func (m *memReader) Read(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("%s: no such file", path)
	}
	return text, nil
}

func (m *memReader) set(path, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = text
}

type recordingProgress struct {
	mu      sync.Mutex
	batches []BatchEvent
	files   []FileEvent
}

func (p *recordingProgress) OnBatchComplete(e BatchEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, e)
}

func (p *recordingProgress) OnFileComplete(e FileEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = append(p.files, e)
}

type fixture struct {
	store    *storage.SQLiteStorage
	reader   *memReader
	provider *fakeProvider
	progress *recordingProgress
	ns       types.Namespace
}

func newFixture(t *testing.T) *fixture {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{
		store:    store,
		reader:   &memReader{files: map[string]string{}},
		provider: newFakeProvider(),
		progress: &recordingProgress{},
		ns:       types.NewNamespace("fake", "fake-model", testDim),
	}
}

func (f *fixture) processor(t *testing.T, cfg Config) *Processor {
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = -1
	}
	p, err := New(Options{
		Store:     f.store,
		Reader:    f.reader,
		Provider:  f.provider,
		Namespace: f.ns,
		Config:    cfg,
		Progress:  f.progress,
	})
	require.NoError(t, err)
	return p
}

func doc(path string) types.Document {
	return types.Document{Path: path, MTime: time.UnixMilli(1700000000000)}
}

// note builds a document with one chunk per section.
func note(title string, sections ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	for i, s := range sections {
		fmt.Fprintf(&b, "## Part %d\n\n%s\n\n", i+1, s)
	}
	return b.String()
}

func para(topic string) string {
	return fmt.Sprintf("This paragraph is about %s and only %s. It repeats %s so the section is long enough to stand alone as a chunk.", topic, topic, topic)
}

func TestProcessFiles_SecondRunMakesNoProviderCalls(t *testing.T) {
	f := newFixture(t)
	f.reader.set("a.md", note("A", para("gardening"), para("compost")))
	p := f.processor(t, Config{})
	ctx := context.Background()

	first, err := p.ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Completed)
	assert.Equal(t, 2, first.EmbeddedChunks)
	assert.NotEmpty(t, first.RunID)
	calls := f.provider.calls.Load()
	assert.Equal(t, int32(1), calls)

	second, err := p.ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Completed)
	assert.Equal(t, 0, second.EmbeddedChunks)
	assert.Equal(t, 2, second.ReusedChunks)
	assert.Equal(t, calls, f.provider.calls.Load(), "no provider calls on unchanged content")
	assert.NotEqual(t, first.RunID, second.RunID)

	root, err := f.store.GetVector(ctx, types.VectorID(f.ns.String(), "a.md", 0))
	require.NoError(t, err)
	assert.True(t, root.Metadata.Complete)
	assert.Equal(t, 2, root.Metadata.ChunkCount)
	assert.Equal(t, "A", root.Metadata.Title)
	assert.True(t, root.Eligible())
}

func TestProcessFiles_StoredVectorsAreUnitLength(t *testing.T) {
	f := newFixture(t)
	f.reader.set("a.md", note("A", para("rivers"), para("lakes"), para("oceans")))
	_, err := f.processor(t, Config{}).ProcessFiles(context.Background(), []types.Document{doc("a.md")})
	require.NoError(t, err)

	vectors, err := f.store.GetVectorsByPath(context.Background(), "a.md")
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		require.NoError(t, v.Validate())
	}
}

func TestProcessFiles_ZeroVectorIsRejected(t *testing.T) {
	f := newFixture(t)
	f.reader.set("a.md", note("A", para("zeros"), para("ones")))
	f.provider.vector = func(text string) []float32 {
		if strings.Contains(text, "zeros") {
			return make([]float32, testDim)
		}
		return nil
	}

	res, err := f.processor(t, Config{}).ProcessFiles(context.Background(), []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, CodeInvalidVector, res.Failures[0].Code)
	assert.Equal(t, []int{0}, res.Failures[0].ChunkIndices)

	vectors, err := f.store.GetVectorsByPath(context.Background(), "a.md")
	require.NoError(t, err)
	require.Len(t, vectors, 1, "only the valid chunk is stored")
	assert.Equal(t, 1, vectors[0].ChunkIndex)
}

func TestProcessFiles_EmptyNoteWritesSentinel(t *testing.T) {
	f := newFixture(t)
	f.reader.set("tiny.md", "short note")
	res, err := f.processor(t, Config{}).ProcessFiles(context.Background(), []types.Document{doc("tiny.md")})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, []string{"tiny.md"}, res.CompletedPaths)
	assert.Equal(t, int32(0), f.provider.calls.Load())

	vectors, err := f.store.GetVectorsByPath(context.Background(), "tiny.md")
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.True(t, vectors[0].Metadata.IsEmpty)
	assert.True(t, vectors[0].Metadata.Complete)
	assert.Empty(t, vectors[0].Vector)
	assert.False(t, vectors[0].Eligible())

	require.Len(t, f.progress.files, 1)
	assert.Equal(t, FileEmpty, f.progress.files[0].Status)
}

func TestProcessFiles_PoisonedChunkIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.reader.set("a.md", note("A", para("alpha"), para("beta"), para("POISON gamma"), para("delta")))
	f.provider.setFail(poisonRejection)

	res, err := f.processor(t, Config{}).ProcessFiles(context.Background(), []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Nil(t, res.Fatal)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"a.md"}, res.FailedPaths)
	require.Len(t, res.Failures, 1)

	failure := res.Failures[0]
	assert.Equal(t, []int{2}, failure.ChunkIndices)
	assert.Equal(t, CodeContentBlocked, failure.Code)
	assert.Contains(t, failure.Signals, "poison-marker")
	assert.False(t, failure.Retryable)

	// batch, probe, two halves, two quarters
	assert.Equal(t, 6, res.Requests)
	assert.Equal(t, 3, res.EmbeddedChunks)

	vectors, err := f.store.GetVectorsByPath(context.Background(), "a.md")
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	indices := []int{vectors[0].ChunkIndex, vectors[1].ChunkIndex, vectors[2].ChunkIndex}
	assert.Equal(t, []int{0, 1, 3}, indices)
	assert.False(t, vectors[0].Metadata.Complete)
	assert.Equal(t, 4, vectors[0].Metadata.ChunkCount)
}

func TestProcessFiles_RerunRetriesOnlyFailedChunk(t *testing.T) {
	f := newFixture(t)
	f.reader.set("a.md", note("A", para("alpha"), para("POISON beta"), para("gamma")))
	f.provider.setFail(poisonRejection)
	p := f.processor(t, Config{})
	ctx := context.Background()

	first, err := p.ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, 2, first.EmbeddedChunks)

	f.provider.setFail(nil)
	before := f.provider.texts.Load()

	second, err := p.ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Completed)
	assert.Equal(t, 1, second.EmbeddedChunks)
	assert.Equal(t, 2, second.ReusedChunks)
	assert.Equal(t, int32(1), f.provider.texts.Load()-before, "only the failed chunk is sent")

	root, err := f.store.GetVector(ctx, types.VectorID(f.ns.String(), "a.md", 0))
	require.NoError(t, err)
	assert.True(t, root.Metadata.Complete)
}

func TestProcessFiles_IsolationKeepsEmbeddedHalfOnOutage(t *testing.T) {
	f := newFixture(t)
	f.reader.set("a.md", note("A", para("alpha"), para("POISON beta"), para("gamma"), para("OUTAGE delta")))
	f.provider.setFail(func(texts []string) error {
		if err := poisonRejection(texts); err != nil {
			return err
		}
		for _, t := range texts {
			if strings.Contains(t, "OUTAGE") {
				return &embedder.ProviderError{Code: embedder.CodeHostUnavailable, Status: 503, Transient: true}
			}
		}
		return nil
	})

	res, err := f.processor(t, Config{}).ProcessFiles(context.Background(), []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Nil(t, res.Fatal)
	assert.Equal(t, 1, res.EmbeddedChunks, "the half embedded before the outage is kept")
	require.Len(t, res.Failures, 1)
	assert.Equal(t, []int{1, 2, 3}, res.Failures[0].ChunkIndices)
	// batch, probe, first half, two quarters, second half
	assert.Equal(t, 6, res.Requests)

	vectors, err := f.store.GetVectorsByPath(context.Background(), "a.md")
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, 0, vectors[0].ChunkIndex)
	assert.False(t, vectors[0].Metadata.Complete)

	// the unresolved chunks are retried once the provider recovers
	f.provider.setFail(poisonRejection)
	again, err := f.processor(t, Config{}).ProcessFiles(context.Background(), []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Equal(t, 2, again.EmbeddedChunks)
	require.Len(t, again.Failures, 1)
	assert.Equal(t, []int{1}, again.Failures[0].ChunkIndices)
}

func TestProcessFiles_RateLimitSpacesRequests(t *testing.T) {
	f := newFixture(t)
	docs := make([]types.Document, 0, 4)
	for i := 0; i < 4; i++ {
		path := fmt.Sprintf("n%d.md", i)
		f.reader.set(path, note(path, para(fmt.Sprintf("pacing %d", i))))
		docs = append(docs, doc(path))
	}

	// 1200 per minute admits one request every 50ms
	res, err := f.processor(t, Config{BatchSize: 1, MaxConcurrency: 3, RequestsPerMinute: 1200}).ProcessFiles(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Completed)
	assert.Equal(t, 4, res.Requests)

	f.provider.mu.Lock()
	stamps := append([]time.Time(nil), f.provider.stamps...)
	f.provider.mu.Unlock()
	require.Len(t, stamps, 4)
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 40*time.Millisecond, "gap before request %d", i)
	}
}

func TestProcessFiles_ConcurrencyIsBounded(t *testing.T) {
	f := newFixture(t)
	docs := make([]types.Document, 0, 6)
	for i := 0; i < 6; i++ {
		path := fmt.Sprintf("n%d.md", i)
		f.reader.set(path, note(path, para(fmt.Sprintf("parallel %d", i))))
		docs = append(docs, doc(path))
	}
	f.provider.delay = 40 * time.Millisecond

	res, err := f.processor(t, Config{BatchSize: 1, MaxConcurrency: 2}).ProcessFiles(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Completed)
	assert.Equal(t, int32(6), f.provider.calls.Load())
	assert.LessOrEqual(t, f.provider.peak.Load(), int32(2))
	assert.GreaterOrEqual(t, f.provider.peak.Load(), int32(1))
}

func TestProcessFiles_ProviderWideRejectionIsFatal(t *testing.T) {
	f := newFixture(t)
	f.reader.set("a.md", note("A", para("alpha"), para("beta")))
	f.provider.setFail(func([]string) error {
		return &embedder.ProviderError{Code: embedder.CodeUnexpectedResponse, Status: 403, Transient: true, NonJSON: true}
	})

	res, err := f.processor(t, Config{}).ProcessFiles(context.Background(), []types.Document{doc("a.md")})
	require.NoError(t, err)
	require.NotNil(t, res.Fatal)
	assert.True(t, res.Fatal.IsContentRejection())
	assert.Equal(t, 2, res.Requests, "batch and probe, no bisection")
	assert.Equal(t, 0, res.Completed)
	assert.Equal(t, 0, res.Failed)

	count, err := f.store.CountVectors(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessFiles_LicenseErrorStopsRun(t *testing.T) {
	f := newFixture(t)
	docs := make([]types.Document, 0, 4)
	for i := 0; i < 4; i++ {
		path := fmt.Sprintf("n%d.md", i)
		f.reader.set(path, note(path, para(fmt.Sprintf("topic %d", i))))
		docs = append(docs, doc(path))
	}
	f.provider.setFail(func([]string) error {
		return &embedder.ProviderError{Code: embedder.CodeLicenseInvalid, Status: 401, LicenseRelated: true}
	})

	res, err := f.processor(t, Config{BatchSize: 1, MaxConcurrency: 1}).ProcessFiles(context.Background(), docs)
	require.NoError(t, err)
	require.NotNil(t, res.Fatal)
	assert.Equal(t, embedder.CodeLicenseInvalid, res.Fatal.Code)
	assert.Equal(t, int32(1), f.provider.calls.Load())
	assert.Equal(t, 0, res.Failed, "unfinished documents are not finalized")
}

func TestProcessFiles_TransientCeiling(t *testing.T) {
	f := newFixture(t)
	docs := make([]types.Document, 0, 5)
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("n%d.md", i)
		f.reader.set(path, note(path, para(fmt.Sprintf("subject %d", i))))
		docs = append(docs, doc(path))
	}
	f.provider.setFail(func([]string) error {
		return &embedder.ProviderError{Code: embedder.CodeNetworkError, Transient: true}
	})

	res, err := f.processor(t, Config{BatchSize: 1, MaxConcurrency: 1, MaxTransientErrors: 2}).ProcessFiles(context.Background(), docs)
	require.NoError(t, err)
	require.NotNil(t, res.Fatal)
	assert.False(t, res.Fatal.Transient)
	assert.Equal(t, 2, res.Failed)
	for _, failure := range res.Failures {
		assert.True(t, failure.Retryable)
		assert.Equal(t, embedder.CodeNetworkError, failure.Code)
	}
	assert.Equal(t, int32(3), f.provider.calls.Load())
}

func TestProcessFiles_MetadataOnlyRefresh(t *testing.T) {
	f := newFixture(t)
	body := "## Part 1\n\n" + para("bees") + "\n\n## Part 2\n\n" + para("wasps")
	f.reader.set("a.md", "---\ntitle: Insects\n---\n"+body)
	p := f.processor(t, Config{})
	ctx := context.Background()

	_, err := p.ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)
	calls := f.provider.calls.Load()

	f.reader.set("a.md", "---\ntitle: Pollinators\n---\n"+body)
	res, err := p.ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Equal(t, calls, f.provider.calls.Load())
	assert.Equal(t, 2, res.MetadataRefreshes)

	root, err := f.store.GetVector(ctx, types.VectorID(f.ns.String(), "a.md", 0))
	require.NoError(t, err)
	assert.Equal(t, "Pollinators", root.Metadata.Title)
}

func TestProcessFiles_ChunkRemovalPrunes(t *testing.T) {
	f := newFixture(t)
	f.reader.set("a.md", note("A", para("one"), para("two"), para("three")))
	p := f.processor(t, Config{})
	ctx := context.Background()

	_, err := p.ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)

	f.reader.set("a.md", note("A", para("one")))
	res, err := p.ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)

	vectors, err := f.store.GetVectorsByPath(ctx, "a.md")
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, 1, vectors[0].Metadata.ChunkCount)
}

func TestProcessFiles_ReusesAcrossSchemaVersions(t *testing.T) {
	f := newFixture(t)
	f.reader.set("a.md", note("A", para("migration")))
	ctx := context.Background()

	old := f.ns
	old.SchemaVersion = 1
	f.ns = old
	_, err := f.processor(t, Config{}).ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)
	calls := f.provider.calls.Load()

	f.ns = types.NewNamespace("fake", "fake-model", testDim)
	res, err := f.processor(t, Config{}).ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.Equal(t, calls, f.provider.calls.Load(), "same model vectors are copied, not re-embedded")
	assert.Equal(t, 1, res.MetadataRefreshes)

	vectors, err := f.store.GetVectorsByPath(ctx, "a.md")
	require.NoError(t, err)
	require.Len(t, vectors, 1, "superseded namespace is pruned")
	assert.Equal(t, f.ns.String(), vectors[0].Metadata.Namespace)
}

func TestProcessFiles_ContentScreenSkips(t *testing.T) {
	f := newFixture(t)
	f.reader.set("bin.md", "binary\x00payload that is certainly long enough to be chunked into something")
	screened := &screeningProvider{fakeProvider: f.provider}

	p, err := New(Options{
		Store: f.store, Reader: f.reader, Provider: screened, Namespace: f.ns,
		Config: Config{RequestsPerMinute: -1},
	})
	require.NoError(t, err)

	res, err := p.ProcessFiles(context.Background(), []types.Document{doc("bin.md")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, []string{"bin.md"}, res.SkippedPaths)
	assert.Equal(t, int32(0), f.provider.calls.Load())
}

type screeningProvider struct {
	*fakeProvider
}

func (s *screeningProvider) ScreenContent(text string) (bool, []string) {
	return embedder.ScreenText(text)
}

func TestProcessFiles_ReadError(t *testing.T) {
	f := newFixture(t)
	res, err := f.processor(t, Config{}).ProcessFiles(context.Background(), []types.Document{doc("missing.md")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, CodeReadError, res.Failures[0].Code)
	assert.True(t, res.Failures[0].Retryable)
}

func TestProcessFiles_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.reader.set("a.md", note("A", para("alpha")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.processor(t, Config{}).ProcessFiles(ctx, []types.Document{doc("a.md")})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 0, res.Completed)
	assert.Equal(t, int32(0), f.provider.calls.Load())
}

func TestProcessFiles_ProgressEvents(t *testing.T) {
	f := newFixture(t)
	docs := make([]types.Document, 0, 3)
	for i := 0; i < 3; i++ {
		path := fmt.Sprintf("n%d.md", i)
		f.reader.set(path, note(path, para(fmt.Sprintf("theme %d", i)), para(fmt.Sprintf("motif %d", i))))
		docs = append(docs, doc(path))
	}

	res, err := f.processor(t, Config{BatchSize: 2}).ProcessFiles(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Completed)
	assert.Equal(t, 3, res.Batches)

	require.Len(t, f.progress.batches, 3)
	require.Len(t, f.progress.files, 3)
	last := f.progress.files[len(f.progress.files)-1]
	assert.Equal(t, 3, last.Done)
	assert.Equal(t, 3, last.Total)
	for _, e := range f.progress.batches {
		assert.Equal(t, res.RunID, e.RunID)
		assert.Equal(t, 2, e.Succeeded)
	}
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := New(Options{Store: f.store, Reader: f.reader, Provider: f.provider})
	assert.ErrorIs(t, err, types.ErrInvalidNamespace)

	_, err = New(Options{Reader: f.reader, Provider: f.provider, Namespace: f.ns})
	assert.Error(t, err)
}
