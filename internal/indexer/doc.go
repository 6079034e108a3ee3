// Package indexer turns vault documents into stored embedding vectors for
// a single namespace.
//
// A Processor is built for one provider and namespace. Each ProcessFiles
// call is a run with its own id:
//
//	p, err := indexer.New(indexer.Options{
//	    Store:     store,
//	    Reader:    vault,
//	    Provider:  provider,
//	    Namespace: ns,
//	    Logger:    logger,
//	})
//	res, err := p.ProcessFiles(ctx, docs)
//	// err is only set when the run could not start
//	// res.Failures lists per-document failures, res.Fatal a run abort
//
// # Pipeline
//
//  1. Plan: read, chunk and diff every document against what is stored.
//     Chunks whose content hash is already embedded are copied, never
//     re-embedded. Metadata-only changes are written without a provider call.
//  2. Batch: pending chunks are grouped under the batch size, the provider's
//     limit and a token budget. Oversized chunks are truncated (chars/4).
//  3. Embed: batches run with bounded concurrency behind a rate limiter.
//  4. Finalize: once every chunk of a document resolved, its vectors and
//     the root chunk's Complete flag are written in one call and stale ids
//     are pruned.
//
// # Failure handling
//
// A batch answered with a non-JSON body is probed once per run with neutral
// text. If the probe is also refused the provider is down for everyone and
// the run aborts. Otherwise the batch is bisected until the rejected chunks
// stand alone; those fail with CONTENT_REJECTED and the risk signals the
// provider reports, while their siblings are stored.
//
// License errors and non-transient errors abort the run. Transient errors
// fail the batch's documents as retryable until MaxTransientErrors is
// exceeded, which aborts the run as well.
package indexer
