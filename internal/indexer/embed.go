package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/embedder"
)

// batchOutcome is what one top-level batch produced. vectors[i] belongs to
// succeeded[i]. When err is set nothing else is meaningful.
type batchOutcome struct {
	succeeded []*workItem
	vectors   [][]float32
	failed    []itemFailure
	err       error
	// fatal marks errors that abort the run even though they are transient
	fatal bool
	// interrupted is the transient error that stopped isolation part way;
	// items it left unresolved are in failed as retryable.
	interrupted *embedder.ProviderError
}

// admit waits for the rate limiter and counts the request.
func (r *run) admit(ctx context.Context) error {
	if err := r.p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	r.mu.Lock()
	r.result.Requests++
	r.mu.Unlock()
	return nil
}

// send admits one request through the rate limiter and calls the provider.
// Retries made inside the provider are admitted the same way.
func (r *run) send(ctx context.Context, texts []string, meta *embedder.BatchMetadata) ([][]float32, error) {
	if err := r.admit(ctx); err != nil {
		return nil, err
	}

	vectors, err := r.p.provider.GenerateEmbeddings(ctx, texts, embedder.GenerateOptions{
		InputType: embedder.InputDocument,
		Batch:     meta,
		Admit:     r.admit,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	if len(vectors) != len(texts) {
		return nil, &embedder.ProviderError{
			Code:    embedder.CodeInvalidResponse,
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vectors)),
		}
	}
	for i, v := range vectors {
		if len(v) != r.p.ns.Dimension {
			return nil, &embedder.ProviderError{
				Code:    embedder.CodeInvalidResponse,
				Message: fmt.Sprintf("embedding %d has dimension %d, namespace expects %d", i, len(v), r.p.ns.Dimension),
			}
		}
	}
	return vectors, nil
}

// embedBatch sends a batch and, when the transport silently rejects it,
// isolates the offending chunks.
func (r *run) embedBatch(ctx context.Context, b *batch) *batchOutcome {
	vectors, err := r.send(ctx, texts(b.items), b.meta)
	if err == nil {
		return &batchOutcome{succeeded: b.items, vectors: vectors}
	}
	if ctx.Err() != nil {
		return &batchOutcome{err: ctx.Err()}
	}

	pe := embedder.Classify(err)
	if !pe.IsContentRejection() {
		r.p.logger.Warn("batch failed",
			zap.String("batch_id", b.meta.ID),
			zap.Int("items", len(b.items)),
			zap.String("code", pe.Code),
			zap.Error(err))
		return &batchOutcome{err: pe}
	}

	if perr := r.probe(ctx); perr != nil {
		if ctx.Err() != nil {
			return &batchOutcome{err: ctx.Err()}
		}
		probeErr := embedder.Classify(perr)
		return &batchOutcome{
			err: &embedder.ProviderError{
				Code:      pe.Code,
				Status:    pe.Status,
				Message:   "provider rejected a neutral probe: " + probeErr.Error(),
				Transient: true,
				NonJSON:   pe.NonJSON,
				Err:       perr,
			},
			fatal: true,
		}
	}

	r.p.logger.Info("isolating rejected batch",
		zap.String("batch_id", b.meta.ID),
		zap.Int("items", len(b.items)),
		zap.Strings("paths", b.meta.Paths))

	out := &batchOutcome{}
	if err := r.bisect(ctx, b.meta.ID, b.items, pe, out); err != nil {
		bpe := embedder.Classify(err)
		if ctx.Err() != nil || bpe.IsFatal() {
			return &batchOutcome{err: err}
		}
		r.p.logger.Warn("isolation interrupted",
			zap.String("batch_id", b.meta.ID),
			zap.Int("resolved", len(out.succeeded)+len(out.failed)),
			zap.String("code", bpe.Code),
			zap.Error(err))
		out.interrupted = bpe
		out.failUnresolved(b.items, bpe)
	}
	return out
}

// failUnresolved marks every item that neither succeeded nor failed as a
// retryable failure of pe.
func (o *batchOutcome) failUnresolved(items []*workItem, pe *embedder.ProviderError) {
	resolved := make(map[*workItem]bool, len(o.succeeded)+len(o.failed))
	for _, item := range o.succeeded {
		resolved[item] = true
	}
	for _, f := range o.failed {
		resolved[f.item] = true
	}
	for _, item := range items {
		if !resolved[item] {
			o.failed = append(o.failed, transientFailure(item, pe))
		}
	}
}

func transientFailure(item *workItem, pe *embedder.ProviderError) itemFailure {
	return itemFailure{item: item, code: pe.Code, status: pe.Status, message: pe.Error(), retryable: true}
}

// probe checks once per run whether the provider accepts neutral text.
func (r *run) probe(ctx context.Context) error {
	r.probeOnce.Do(func() {
		meta := &embedder.BatchMetadata{
			ID:              r.result.RunID + "-probe",
			Items:           1,
			EstimatedTokens: 1 + len(ProbeText)/4,
		}
		_, r.probeErr = r.send(ctx, []string{ProbeText}, meta)
		if r.probeErr != nil {
			r.p.logger.Warn("provider probe failed", zap.Error(r.probeErr))
		}
	})
	return r.probeErr
}

// bisect splits a rejected group in half and resends each half until every
// rejected chunk stands alone. Any failure other than a content rejection
// is returned.
func (r *run) bisect(ctx context.Context, id string, items []*workItem, rejection *embedder.ProviderError, out *batchOutcome) error {
	if len(items) == 1 {
		out.failed = append(out.failed, r.contentFailure(items[0], rejection))
		return nil
	}

	mid := len(items) / 2
	for i, half := range [][]*workItem{items[:mid], items[mid:]} {
		if err := ctx.Err(); err != nil {
			return err
		}
		halfID := fmt.Sprintf("%s.%d", id, i+1)
		vectors, err := r.send(ctx, texts(half), batchMeta(halfID, half))
		if err == nil {
			out.succeeded = append(out.succeeded, half...)
			out.vectors = append(out.vectors, vectors...)
			continue
		}
		pe := embedder.Classify(err)
		if !pe.IsContentRejection() {
			return err
		}
		if err := r.bisect(ctx, halfID, half, pe, out); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) contentFailure(item *workItem, rejection *embedder.ProviderError) itemFailure {
	var signals []string
	if analyzer, ok := r.p.provider.(embedder.RiskAnalyzer); ok {
		signals = analyzer.RiskSignals(item.chunk.Text)
	}
	if len(signals) == 0 {
		signals = []string{embedder.SignalUnclassified}
	}

	r.p.logger.Warn("chunk rejected by provider",
		zap.String("path", item.doc.doc.Path),
		zap.Int("chunk", item.chunk.Index),
		zap.Strings("signals", signals))

	return itemFailure{
		item:      item,
		code:      CodeContentBlocked,
		message:   rejection.Error(),
		retryable: false,
		signals:   signals,
	}
}
