// Package embedder generates vector embeddings through pluggable providers.
//
// A Provider turns texts into vectors, one per input and in input order.
// Optional behaviour is exposed through capability interfaces that callers
// probe with a type assertion:
//
//	BatchSizer         texts-per-request limit (DefaultMaxBatchSize when absent)
//	DimensionReporter  output size known without a network call
//	ContentScreener    pre-flight refusal of unsendable content
//	RiskAnalyzer       diagnostic labels for content a transport may reject
//
// # Basic Usage
//
//	p, err := embedder.New(embedder.Config{Provider: "openai"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vectors, err := p.GenerateEmbeddings(ctx, texts, embedder.GenerateOptions{
//	    InputType: embedder.InputDocument,
//	})
//
// # Errors
//
// Every failure is normalized to *ProviderError with a code, an optional HTTP
// status, and the Transient and LicenseRelated flags. A response that is not
// JSON where JSON was expected sets NonJSON; with a status below 500 it is a
// content rejection, which callers isolate by bisecting the batch instead of
// failing it.
//
// Hosted providers retry transient failures with exponential backoff and
// honour Retry-After. Content rejections and license errors are returned
// immediately.
//
// # Providers
//
//   - openai: OpenAI embeddings API (text-embedding-3-small by default)
//   - jina: Jina AI embeddings API (jina-embeddings-v3 by default)
//   - local: offline feature-hashed bag-of-words vectors
//
// Selection follows SEMINDEX_EMBEDDING_PROVIDER, then the presence of
// JINA_API_KEY or OPENAI_API_KEY, then local.
package embedder
