// Package types provides shared type definitions for the semantic index.
//
// EmbeddingVector is the unit of storage: one record per namespace, document
// path and chunk index. Its id is built by VectorID:
//
//	id := types.VectorID(ns.String(), "notes/idea.md", 0)
//	// "openai:text-embedding-3-small:v2:1536::notes/idea.md#0"
//
// Chunk index 0 is the root chunk. It carries document level metadata, and
// its Complete flag tells readers whether every chunk of the document was
// embedded successfully. Only complete, non-empty roots are eligible as
// search results.
//
// Namespace encodes provider, model, schema version and dimension. Vectors
// from different namespaces are never compared.
package types
