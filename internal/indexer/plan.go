package indexer

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/chunker"
	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/searcher"
	"github.com/dshills/semindex/pkg/types"
)

// docState tracks one document from planning to finalization.
type docState struct {
	doc      types.Document
	prepared *types.PreparedDocument

	// keep lists the ids that survive pruning
	keep  []string
	ready map[int]*types.EmbeddingVector
	dirty map[int]bool

	existingRoot *types.EmbeddingVector
	pending      int
	embedded     int
	failures     []itemFailure
	finalized    bool
}

// workItem is one chunk waiting for an embedding.
type workItem struct {
	doc       *docState
	chunk     *types.Chunk
	text      string
	truncated bool
	tokens    int
}

type itemFailure struct {
	item      *workItem
	code      string
	status    int
	message   string
	retryable bool
	signals   []string
}

// plan reads, chunks and diffs one document, queueing chunks that need an
// embedding and finalizing the document at once when none do.
func (r *run) plan(ctx context.Context, doc types.Document) {
	p := r.p
	log := p.logger.With(zap.String("path", doc.Path))

	raw, err := p.reader.Read(ctx, doc.Path)
	if err != nil {
		log.Warn("failed to read document", zap.Error(err))
		r.mu.Lock()
		r.failDocument(doc.Path, CodeReadError, err.Error(), true)
		r.mu.Unlock()
		return
	}

	if screener, ok := p.provider.(embedder.ContentScreener); ok {
		if allowed, signals := screener.ScreenContent(raw); !allowed {
			log.Warn("document refused by content screen", zap.Strings("signals", signals))
			r.mu.Lock()
			r.result.Completed++
			r.result.SkippedPaths = append(r.result.SkippedPaths, doc.Path)
			r.fileDone(doc.Path, FileSkipped)
			r.mu.Unlock()
			return
		}
	}

	prepared := p.chunker.Prepare(doc.Path, raw, doc.MTime.UnixMilli())
	existing, err := p.store.GetVectorsByPath(ctx, doc.Path)
	if err != nil {
		log.Warn("failed to load stored vectors", zap.Error(err))
		r.mu.Lock()
		r.failDocument(doc.Path, CodeStorageError, err.Error(), true)
		r.mu.Unlock()
		return
	}

	ns := p.ns.String()
	byID := make(map[string]*types.EmbeddingVector, len(existing))
	for _, v := range existing {
		byID[v.ID] = v
	}

	d := &docState{
		doc:          doc,
		prepared:     prepared,
		ready:        make(map[int]*types.EmbeddingVector),
		dirty:        make(map[int]bool),
		existingRoot: byID[types.VectorID(ns, doc.Path, 0)],
	}

	if prepared.IsEmpty() {
		d.keep = []string{types.VectorID(ns, doc.Path, 0)}
		d.ready[0] = r.sentinel(d)
		d.dirty[0] = d.existingRoot == nil || !d.existingRoot.Metadata.IsEmpty ||
			!sameMetadata(d.existingRoot.Metadata, d.ready[0].Metadata)

		r.mu.Lock()
		r.docs[doc.Path] = d
		r.finalize(ctx, d)
		r.mu.Unlock()
		return
	}

	var items []*workItem
	reused, refreshed := 0, 0
	for _, c := range prepared.Chunks {
		id := types.VectorID(ns, doc.Path, c.Index)
		d.keep = append(d.keep, id)
		meta := r.metadata(d, c)

		if cand := r.reusable(ctx, byID[id], c.Hash); cand != nil {
			v := &types.EmbeddingVector{
				ID:         id,
				Path:       doc.Path,
				ChunkIndex: c.Index,
				Vector:     append([]float32(nil), cand.Vector...),
				Metadata:   meta,
			}
			if cand.ID == id {
				v.Metadata.CreatedAt = cand.Metadata.CreatedAt
			}
			if cand.ID == id && sameMetadata(cand.Metadata, meta) {
				reused++
			} else {
				refreshed++
				d.dirty[c.Index] = true
			}
			d.ready[c.Index] = v
			continue
		}

		text, truncated := chunker.TruncateToTokens(c.Text, p.cfg.MaxItemTokens)
		items = append(items, &workItem{
			doc:       d,
			chunk:     c,
			text:      text,
			truncated: truncated,
			tokens:    chunker.EstimateTokenCount(text),
		})
	}
	d.pending = len(items)

	log.Debug("planned document",
		zap.Int("chunks", len(prepared.Chunks)),
		zap.Int("pending", len(items)),
		zap.Int("reused", reused),
		zap.Int("refreshed", refreshed))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.ReusedChunks += reused
	r.result.MetadataRefreshes += refreshed
	r.docs[doc.Path] = d
	r.work = append(r.work, items...)
	if d.pending == 0 {
		r.finalize(ctx, d)
	}
}

// reusable finds a stored vector for a chunk hash. The vector already at
// the chunk's id wins, then any vector of the current namespace, then one
// from another schema version of the same provider, model and dimension.
func (r *run) reusable(ctx context.Context, exact *types.EmbeddingVector, hash string) *types.EmbeddingVector {
	if exact != nil && exact.Metadata.ContentHash == hash && r.usable(exact) {
		return exact
	}

	r.mu.Lock()
	candidates, ok := r.hashCache[hash]
	r.mu.Unlock()
	if !ok {
		var err error
		candidates, err = r.p.store.GetVectorsByContentHash(ctx, hash)
		if err != nil {
			r.p.logger.Debug("content hash lookup failed", zap.Error(err))
			return nil
		}
		r.mu.Lock()
		r.hashCache[hash] = candidates
		r.mu.Unlock()
	}

	ns := r.p.ns.String()
	for _, c := range candidates {
		if c.Metadata.Namespace == ns && r.usable(c) {
			return c
		}
	}
	for _, c := range candidates {
		other, err := types.ParseNamespace(c.Metadata.Namespace)
		if err == nil && other.SameModel(r.p.ns) && r.usable(c) {
			return c
		}
	}
	return nil
}

func (r *run) usable(v *types.EmbeddingVector) bool {
	return !v.Metadata.IsEmpty && len(v.Vector) == r.p.ns.Dimension
}

func (r *run) metadata(d *docState, c *types.Chunk) types.VectorMetadata {
	return types.VectorMetadata{
		Title:        d.prepared.Title,
		Excerpt:      d.prepared.Excerpt,
		SourceMTime:  d.prepared.MTime,
		ContentHash:  c.Hash,
		Provider:     r.p.ns.Provider,
		Model:        r.p.ns.Model,
		Dimension:    r.p.ns.Dimension,
		CreatedAt:    r.p.now().UnixMilli(),
		Namespace:    r.p.ns.String(),
		SectionTitle: c.SectionTitle,
		HeadingPath:  c.HeadingPath,
		TextLength:   c.Length,
	}
}

func (r *run) sentinel(d *docState) *types.EmbeddingVector {
	ns := r.p.ns
	v := &types.EmbeddingVector{
		ID:   types.VectorID(ns.String(), d.doc.Path, 0),
		Path: d.doc.Path,
		Metadata: types.VectorMetadata{
			Title:       d.prepared.Title,
			Excerpt:     d.prepared.Excerpt,
			SourceMTime: d.prepared.MTime,
			Provider:    ns.Provider,
			Model:       ns.Model,
			Dimension:   ns.Dimension,
			CreatedAt:   r.p.now().UnixMilli(),
			Namespace:   ns.String(),
			IsEmpty:     true,
		},
	}
	if d.existingRoot != nil && d.existingRoot.Metadata.IsEmpty {
		v.Metadata.CreatedAt = d.existingRoot.Metadata.CreatedAt
	}
	return v
}

// sameMetadata compares everything but timestamps and root-only fields.
func sameMetadata(a, b types.VectorMetadata) bool {
	if len(a.HeadingPath) != len(b.HeadingPath) {
		return false
	}
	for i := range a.HeadingPath {
		if a.HeadingPath[i] != b.HeadingPath[i] {
			return false
		}
	}
	return a.Title == b.Title &&
		a.Excerpt == b.Excerpt &&
		a.SourceMTime == b.SourceMTime &&
		a.ContentHash == b.ContentHash &&
		a.Provider == b.Provider &&
		a.Model == b.Model &&
		a.Dimension == b.Dimension &&
		a.Namespace == b.Namespace &&
		a.SectionTitle == b.SectionTitle &&
		a.TextLength == b.TextLength &&
		a.IsEmpty == b.IsEmpty
}

// acceptVector stores an embedding for its chunk. Called with r.mu held.
func (r *run) acceptVector(item *workItem, vec []float32) {
	normalized, err := searcher.Normalize(vec)
	if err != nil {
		r.rejectItem(itemFailure{item: item, code: CodeInvalidVector, message: err.Error(), retryable: true})
		return
	}
	d := item.doc
	idx := item.chunk.Index
	v := &types.EmbeddingVector{
		ID:         types.VectorID(r.p.ns.String(), d.doc.Path, idx),
		Path:       d.doc.Path,
		ChunkIndex: idx,
		Vector:     normalized,
		Metadata:   r.metadata(d, item.chunk),
	}
	d.ready[idx] = v
	d.dirty[idx] = true
	d.embedded++
	d.pending--
	r.result.EmbeddedChunks++
}

// rejectItem records a chunk failure. Called with r.mu held.
func (r *run) rejectItem(f itemFailure) {
	f.item.doc.failures = append(f.item.doc.failures, f)
	f.item.doc.pending--
}

// finalize writes a document's vectors and root flags in one call, then
// prunes ids that are no longer part of the document. Called with r.mu held.
func (r *run) finalize(ctx context.Context, d *docState) {
	d.finalized = true
	path := d.doc.Path
	complete := len(d.failures) == 0
	chunkCount := len(d.prepared.Chunks)

	indices := make([]int, 0, len(d.ready))
	for idx := range d.ready {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var writes []*types.EmbeddingVector
	for _, idx := range indices {
		if idx != 0 && d.dirty[idx] {
			writes = append(writes, d.ready[idx])
		}
	}

	if root := d.ready[0]; root != nil {
		root.Metadata.Complete = complete
		root.Metadata.ChunkCount = chunkCount
		old := d.existingRoot
		if d.dirty[0] || old == nil || old.Metadata.Complete != complete || old.Metadata.ChunkCount != chunkCount {
			writes = append(writes, root)
		}
	} else if old := d.existingRoot; old != nil && len(old.Vector) > 0 && old.Metadata.Complete {
		// the root chunk itself failed: keep the old root but flag the document
		stale := old.Clone()
		stale.Metadata.Complete = false
		writes = append(writes, stale)
	}

	if err := r.p.store.StoreVectors(ctx, writes); err != nil {
		r.p.logger.Error("failed to store vectors", zap.String("path", path), zap.Error(err))
		r.failDocument(path, CodeStorageError, err.Error(), true)
		return
	}
	if removed, err := r.p.store.RemoveByPathExceptIDs(ctx, path, d.keep); err != nil {
		r.p.logger.Warn("failed to prune vectors", zap.String("path", path), zap.Error(err))
	} else if removed > 0 {
		r.p.logger.Debug("pruned vectors", zap.String("path", path), zap.Int("removed", removed))
	}

	if !complete {
		r.result.Failed++
		r.result.FailedPaths = append(r.result.FailedPaths, path)
		r.result.Failures = append(r.result.Failures, aggregate(path, d.failures))
		r.fileDone(path, FileFailed)
		return
	}

	status := FileCompleted
	switch {
	case d.prepared.IsEmpty():
		status = FileEmpty
	case len(writes) == 0:
		status = FileUnchanged
	}
	r.result.Completed++
	r.result.CompletedPaths = append(r.result.CompletedPaths, path)
	r.fileDone(path, status)
}

// failDocument records a whole-document failure. Called with r.mu held.
func (r *run) failDocument(path, code, message string, retryable bool) {
	r.result.Failed++
	r.result.FailedPaths = append(r.result.FailedPaths, path)
	r.result.Failures = append(r.result.Failures, FileFailure{
		Path:      path,
		Code:      code,
		Message:   message,
		Retryable: retryable,
	})
	r.fileDone(path, FileFailed)
}

func (r *run) fileDone(path, status string) {
	r.finished++
	r.p.progress.OnFileComplete(FileEvent{
		RunID:  r.result.RunID,
		Path:   path,
		Status: status,
		Done:   r.finished,
		Total:  r.total,
	})
}

func aggregate(path string, failures []itemFailure) FileFailure {
	ff := FileFailure{
		Path:      path,
		Code:      failures[0].code,
		Status:    failures[0].status,
		Message:   failures[0].message,
		Retryable: true,
	}
	seen := make(map[string]struct{})
	for _, f := range failures {
		ff.ChunkIndices = append(ff.ChunkIndices, f.item.chunk.Index)
		ff.Retryable = ff.Retryable && f.retryable
		for _, s := range f.signals {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				ff.Signals = append(ff.Signals, s)
			}
		}
	}
	sort.Ints(ff.ChunkIndices)
	return ff
}
