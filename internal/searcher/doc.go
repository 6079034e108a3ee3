// Package searcher ranks stored chunk vectors against query vectors.
//
// Search is brute force: every chunk of the requested namespace is scored
// by cosine similarity, reduced to the best chunk per document, and only
// documents whose root chunk is complete and non-empty may appear.
//
// When several query vectors are supplied (for example the representative
// chunks of a note in a "find similar" query) their per-document rankings
// are merged with reciprocal rank fusion:
//
//	rrf(d)   = Σ 1/(k + rank_q(d) + 1)        0-based rank, k = 60
//	norm(d)  = rrf(d) / (len(queries)/(k+1))
//	score(d) = 0.7*bestRaw(d) + 0.3*norm(d)
//
// A final lexical boost adds 0.1 times the literal overlap between the
// query text and the document's title and excerpt.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, logger)
//	results, err := s.Search(ctx, searcher.Request{
//	    Namespace:     ns.String(),
//	    Queries:       [][]float32{queryVector},
//	    Text:          "weekly review template",
//	    Limit:         10,
//	    LexicalWeight: searcher.DefaultLexicalWeight,
//	})
package searcher
