package indexer

import (
	"fmt"

	"github.com/dshills/semindex/internal/embedder"
)

// batch is one top-level provider request.
type batch struct {
	items  []*workItem
	tokens int
	meta   *embedder.BatchMetadata
}

// docs returns the distinct documents of the batch in first-seen order.
func (b *batch) docs() []*docState {
	seen := make(map[*docState]struct{})
	var out []*docState
	for _, item := range b.items {
		if _, ok := seen[item.doc]; ok {
			continue
		}
		seen[item.doc] = struct{}{}
		out = append(out, item.doc)
	}
	return out
}

func texts(items []*workItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.text
	}
	return out
}

// batchMeta describes items for the provider and for logs.
func batchMeta(id string, items []*workItem) *embedder.BatchMetadata {
	meta := &embedder.BatchMetadata{ID: id, Items: len(items)}
	seen := make(map[string]struct{})
	for i, item := range items {
		meta.EstimatedTokens += item.tokens
		if item.truncated {
			meta.TruncatedItems = append(meta.TruncatedItems, i)
		}
		if _, ok := seen[item.doc.doc.Path]; !ok {
			seen[item.doc.doc.Path] = struct{}{}
			meta.Paths = append(meta.Paths, item.doc.doc.Path)
		}
	}
	return meta
}

// buildBatches groups work in order under the batch size, the provider's
// texts-per-request limit and the token budget.
func (r *run) buildBatches(work []*workItem) []*batch {
	limit := r.p.cfg.BatchSize
	if providerMax := embedder.MaxBatchSizeOf(r.p.provider); providerMax < limit {
		limit = providerMax
	}

	var batches []*batch
	var cur *batch
	flush := func() {
		if cur != nil {
			cur.meta = batchMeta(fmt.Sprintf("%s-%d", r.result.RunID, len(batches)+1), cur.items)
			batches = append(batches, cur)
			cur = nil
		}
	}

	for _, item := range work {
		if cur != nil && (len(cur.items) >= limit || cur.tokens+item.tokens > r.p.cfg.MaxBatchTokens) {
			flush()
		}
		if cur == nil {
			cur = &batch{}
		}
		cur.items = append(cur.items, item)
		cur.tokens += item.tokens
	}
	flush()
	return batches
}
