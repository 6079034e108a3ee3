package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dshills/semindex/internal/chunker"
	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/storage"
	"github.com/dshills/semindex/pkg/types"
)

// DocumentReader returns the raw text of a document.
type DocumentReader interface {
	Read(ctx context.Context, path string) (string, error)
}

// Options wires a Processor.
type Options struct {
	Store     storage.VectorStore
	Reader    DocumentReader
	Provider  embedder.Provider
	Namespace types.Namespace
	Chunker   *chunker.Chunker
	Config    Config
	Logger    *zap.Logger
	Progress  Progress
	Clock     func() time.Time
}

// Processor turns documents into stored vectors for one namespace. It is
// the only writer of vector content.
type Processor struct {
	store    storage.VectorStore
	reader   DocumentReader
	provider embedder.Provider
	ns       types.Namespace
	chunker  *chunker.Chunker
	cfg      Config
	logger   *zap.Logger
	progress Progress
	now      func() time.Time

	// limiter admits provider calls for every run of this processor
	limiter *rate.Limiter
}

// New creates a Processor.
func New(opts Options) (*Processor, error) {
	if opts.Store == nil || opts.Reader == nil || opts.Provider == nil {
		return nil, errors.New("processor requires a store, a reader and a provider")
	}
	if opts.Namespace.IsZero() || opts.Namespace.Dimension <= 0 {
		return nil, fmt.Errorf("%w: namespace must carry a dimension", types.ErrInvalidNamespace)
	}

	cfg := opts.Config
	cfg.ApplyDefaults()

	p := &Processor{
		store:    opts.Store,
		reader:   opts.Reader,
		provider: opts.Provider,
		ns:       opts.Namespace,
		chunker:  opts.Chunker,
		cfg:      cfg,
		logger:   opts.Logger,
		progress: opts.Progress,
		now:      opts.Clock,
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
	if p.chunker == nil {
		p.chunker = chunker.New()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.progress == nil {
		p.progress = NopProgress{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	if cfg.RequestsPerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return p, nil
}

// Namespace returns the namespace vectors are written to.
func (p *Processor) Namespace() types.Namespace {
	return p.ns
}

// Config returns the effective configuration.
func (p *Processor) Config() Config {
	return p.cfg
}

// ProcessFiles brings every document up to date in the processor's
// namespace. Per-document failures are reported in the Result; the error
// return is reserved for failures that prevented the run from starting.
func (p *Processor) ProcessFiles(ctx context.Context, docs []types.Document) (*Result, error) {
	r := p.newRun(docs)
	start := p.now()
	p.logger.Info("processing documents",
		zap.String("run_id", r.result.RunID),
		zap.String("namespace", p.ns.String()),
		zap.Int("documents", len(docs)))

	for _, doc := range docs {
		if ctx.Err() != nil {
			r.result.Cancelled = true
			break
		}
		r.plan(ctx, doc)
	}

	if !r.result.Cancelled {
		r.dispatch(ctx)
	}
	if ctx.Err() != nil {
		r.result.Cancelled = true
	}

	r.result.Duration = p.now().Sub(start)
	p.logger.Info("processing finished",
		zap.String("run_id", r.result.RunID),
		zap.Int("completed", r.result.Completed),
		zap.Int("failed", r.result.Failed),
		zap.Int("embedded", r.result.EmbeddedChunks),
		zap.Int("reused", r.result.ReusedChunks),
		zap.Int("requests", r.result.Requests),
		zap.Bool("cancelled", r.result.Cancelled),
		zap.Bool("fatal", r.result.Fatal != nil),
		zap.Duration("duration", r.result.Duration))
	return r.result, nil
}

// run is the state of one ProcessFiles call.
type run struct {
	p      *Processor
	result *Result
	total  int

	mu          sync.Mutex // guards everything below and serializes progress
	docs        map[string]*docState
	work        []*workItem
	finished    int
	batchesDone int
	transient   int
	hashCache   map[string][]*types.EmbeddingVector

	probeOnce sync.Once
	probeErr  error
}

func (p *Processor) newRun(docs []types.Document) *run {
	return &run{
		p: p,
		result: &Result{
			RunID:          uuid.NewString(),
			CompletedPaths: []string{},
			FailedPaths:    []string{},
		},
		total:     len(docs),
		docs:      make(map[string]*docState, len(docs)),
		hashCache: make(map[string][]*types.EmbeddingVector),
	}
}

// dispatch sends pending work in batches with bounded concurrency.
func (r *run) dispatch(ctx context.Context) {
	batches := r.buildBatches(r.work)
	r.result.Batches = len(batches)
	if len(batches) == 0 {
		return
	}

	runCtx, abort := context.WithCancel(ctx)
	defer abort()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(r.p.cfg.MaxConcurrency)

	for _, b := range batches {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcome := r.embedBatch(gctx, b)
			r.resolve(ctx, b, outcome, abort)
			return nil
		})
	}
	_ = g.Wait()
}

// fatal records a fatal error once and stops the run.
func (r *run) fatal(pe *embedder.ProviderError, abort context.CancelFunc) {
	if r.result.Fatal == nil {
		r.result.Fatal = pe
		r.p.logger.Error("run aborted",
			zap.String("run_id", r.result.RunID),
			zap.String("code", pe.Code),
			zap.Int("status", pe.Status),
			zap.Bool("license", pe.LicenseRelated),
			zap.Error(pe))
	}
	abort()
}

// countTransient records a transient batch error and reports whether it
// escalated into a fatal one. Called with r.mu held.
func (r *run) countTransient(pe *embedder.ProviderError, abort context.CancelFunc) bool {
	r.transient++
	if r.transient <= r.p.cfg.MaxTransientErrors {
		return false
	}
	escalated := *pe
	escalated.Transient = false
	escalated.Message = fmt.Sprintf("%d transient failures in one run: %s", r.transient, pe.Message)
	r.fatal(&escalated, abort)
	return true
}

// resolve applies a batch outcome to its documents. parent is the caller's
// context: results are discarded once it is cancelled.
func (r *run) resolve(parent context.Context, b *batch, out *batchOutcome, abort context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if parent.Err() != nil || r.result.Fatal != nil {
		return
	}

	if out.err != nil {
		pe := embedder.Classify(out.err)
		switch {
		case errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded):
			return
		case out.fatal || pe.IsFatal():
			r.fatal(pe, abort)
			return
		default:
			if r.countTransient(pe, abort) {
				return
			}
			out.succeeded, out.vectors, out.failed = nil, nil, nil
			for _, item := range b.items {
				out.failed = append(out.failed, transientFailure(item, pe))
			}
		}
	}
	if out.interrupted != nil && r.countTransient(out.interrupted, abort) {
		return
	}

	for i, item := range out.succeeded {
		r.acceptVector(item, out.vectors[i])
	}
	for _, f := range out.failed {
		r.rejectItem(f)
	}

	r.batchesDone++
	r.p.progress.OnBatchComplete(BatchEvent{
		RunID:     r.result.RunID,
		BatchID:   b.meta.ID,
		Items:     len(b.items),
		Succeeded: len(out.succeeded),
		Failed:    len(out.failed),
		Done:      r.batchesDone,
		Total:     r.result.Batches,
		Err:       out.err,
	})

	for _, d := range b.docs() {
		if d.pending == 0 && !d.finalized {
			r.finalize(parent, d)
		}
	}
}
