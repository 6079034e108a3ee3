// Package storage persists embedding vectors and the failed-files ledger in
// SQLite.
//
// Every row in the vectors table is keyed by a vector id of the form
// "namespace::path#chunk". Chunk 0 of each document is its root: it carries
// the document-level metadata (Complete, ChunkCount, IsEmpty) used to decide
// whether a document needs reprocessing and whether it may appear in search
// results. Empty documents are stored as a root sentinel with no vector.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("~/.semindex/index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.StoreVectors(ctx, vectors)
//	roots, err := store.GetRootVectors(ctx, ns.String())
//
// StoreVectors validates every vector before writing anything and writes the
// whole batch in one transaction.
//
// # Renames
//
// RenameByPath and RenameByDirectory rewrite both the path column and the
// vector id, so a moved note keeps its embeddings without a provider call.
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and needs no C compiler:
//
//	CGO_ENABLED=0 go build ./...
//
// The cgosqlite tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "cgosqlite" ./...
package storage
