// Package chunker divides markdown notes into heading-aware chunks for embedding.
//
// # Basic Usage
//
//	c := chunker.New()
//	doc := c.Prepare("notes/idea.md", raw, mtime)
//	for _, chunk := range doc.Chunks {
//	    fmt.Printf("%d %v %s\n", chunk.Index, chunk.HeadingPath, chunk.Hash[:8])
//	}
//
// # Chunking Strategy
//
// Text is normalized first (LF line endings, no trailing spaces, single blank
// lines) and YAML frontmatter is removed. The body is then split at ATX
// headings; headings inside fenced code blocks are ignored. Heading text is
// kept in HeadingPath rather than in the chunk text, so renaming a heading
// changes metadata only.
//
// Sections longer than MaxChunkChars are split at paragraph, then sentence,
// then rune boundaries, and consecutive pieces share OverlapChars of text.
//
// The hash of a chunk is the SHA-256 of its final text. Formatting edits that
// normalize away do not change it.
//
// A document with less than MinDocumentChars of body yields no chunks; the
// caller stores an empty sentinel instead of calling the embedding provider.
package chunker
