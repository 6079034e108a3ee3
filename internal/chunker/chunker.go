package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/semindex/pkg/types"
)

const (
	// DefaultMaxChunkChars is the target maximum size of a chunk in runes
	DefaultMaxChunkChars = 1500

	// DefaultOverlapChars is how much of the previous piece is repeated when a section is split
	DefaultOverlapChars = 200

	// DefaultMinChunkChars is the size below which a section is merged into the next one
	DefaultMinChunkChars = 80

	// DefaultMinDocumentChars is the size below which a document yields no chunks
	DefaultMinDocumentChars = 50

	// DefaultExcerptChars is the excerpt length stored on vectors
	DefaultExcerptChars = 200

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Options controls chunk boundaries.
type Options struct {
	MaxChunkChars    int
	OverlapChars     int
	MinChunkChars    int
	MinDocumentChars int
	ExcerptChars     int
}

// DefaultOptions returns the default chunking options.
func DefaultOptions() Options {
	return Options{
		MaxChunkChars:    DefaultMaxChunkChars,
		OverlapChars:     DefaultOverlapChars,
		MinChunkChars:    DefaultMinChunkChars,
		MinDocumentChars: DefaultMinDocumentChars,
		ExcerptChars:     DefaultExcerptChars,
	}
}

// Chunker splits markdown documents into heading-aware, overlapping chunks.
// It holds no state between calls.
type Chunker struct {
	opts Options
}

// New creates a new Chunker with default options
func New() *Chunker {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions creates a Chunker, filling zero fields with defaults.
func NewWithOptions(opts Options) *Chunker {
	def := DefaultOptions()
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = def.MaxChunkChars
	}
	if opts.OverlapChars < 0 || opts.OverlapChars >= opts.MaxChunkChars/2 {
		opts.OverlapChars = opts.MaxChunkChars / 8
	}
	if opts.MinChunkChars <= 0 {
		opts.MinChunkChars = def.MinChunkChars
	}
	if opts.MinDocumentChars <= 0 {
		opts.MinDocumentChars = def.MinDocumentChars
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = def.ExcerptChars
	}
	return &Chunker{opts: opts}
}

// Options returns the effective options.
func (c *Chunker) Options() Options {
	return c.opts
}

// Prepare reads title and excerpt from raw document text and chunks its body.
func (c *Chunker) Prepare(path, raw string, mtime int64) *types.PreparedDocument {
	fm, body := SplitFrontmatter(Normalize(raw))
	sections := parseSections(body)

	title := fm.Title
	if title == "" {
		title = firstH1(sections)
	}
	if title == "" {
		title = TitleFromPath(path)
	}

	return &types.PreparedDocument{
		Path:    path,
		Title:   title,
		Excerpt: c.excerpt(sections),
		MTime:   mtime,
		Chunks:  c.chunkSections(sections),
	}
}

// Chunk splits text into ordered chunks. Identical input always yields
// identical boundaries and hashes. Text below the minimum document size
// yields no chunks.
func (c *Chunker) Chunk(text string) []*types.Chunk {
	_, body := SplitFrontmatter(Normalize(text))
	return c.chunkSections(parseSections(body))
}

func (c *Chunker) chunkSections(sections []section) []*types.Chunk {
	if bodyLength(sections) < c.opts.MinDocumentChars {
		return nil
	}

	merged := c.mergeSmall(sections)
	chunks := make([]*types.Chunk, 0, len(merged))
	for _, sec := range merged {
		for _, piece := range c.splitSection(sec.body) {
			chunk := &types.Chunk{
				Index:       len(chunks),
				Text:        piece,
				HeadingPath: append([]string(nil), sec.headings...),
				Length:      utf8.RuneCountInString(piece),
			}
			if n := len(sec.headings); n > 0 {
				chunk.SectionTitle = sec.headings[n-1]
			}
			chunk.ComputeContentHash()
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// mergeSmall folds sections shorter than MinChunkChars into the section
// that follows them. The merged section keeps the earlier heading path.
func (c *Chunker) mergeSmall(sections []section) []section {
	out := make([]section, 0, len(sections))
	var pending *section
	for _, sec := range sections {
		if pending != nil {
			sec = section{headings: pending.headings, body: pending.body + "\n\n" + sec.body}
			pending = nil
		}
		if utf8.RuneCountInString(sec.body) < c.opts.MinChunkChars {
			s := sec
			pending = &s
			continue
		}
		out = append(out, sec)
	}
	if pending != nil {
		if n := len(out); n > 0 {
			out[n-1].body += "\n\n" + pending.body
		} else {
			out = append(out, *pending)
		}
	}
	return out
}

type unit struct {
	text string
	sep  string
}

// splitSection packs paragraphs, then sentences, then hard rune slices into
// pieces of at most MaxChunkChars, repeating a word-aligned tail of the
// previous piece at the start of the next.
func (c *Chunker) splitSection(body string) []string {
	limit := c.opts.MaxChunkChars
	if utf8.RuneCountInString(body) <= limit {
		return []string{body}
	}

	var pieces []string
	var cur strings.Builder
	curLen := 0
	for _, u := range c.units(body) {
		ul := utf8.RuneCountInString(u.text)
		sepLen := len(u.sep)
		if curLen > 0 && curLen+sepLen+ul > limit {
			prev := cur.String()
			pieces = append(pieces, prev)
			cur.Reset()
			curLen = 0
			if tail := overlapTail(prev, c.opts.OverlapChars); tail != "" {
				if tl := utf8.RuneCountInString(tail); tl+1+ul <= limit {
					cur.WriteString(tail)
					curLen = tl
					u.sep = " "
					sepLen = 1
				}
			}
		}
		if curLen > 0 {
			cur.WriteString(u.sep)
			curLen += sepLen
		}
		cur.WriteString(u.text)
		curLen += ul
	}
	if curLen > 0 {
		pieces = append(pieces, cur.String())
	}
	return pieces
}

func (c *Chunker) units(body string) []unit {
	limit := c.opts.MaxChunkChars
	var units []unit
	for _, para := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= limit {
			units = append(units, unit{text: para, sep: "\n\n"})
			continue
		}
		for i, sentence := range splitSentences(para) {
			sep := " "
			if i == 0 {
				sep = "\n\n"
			}
			if utf8.RuneCountInString(sentence) <= limit {
				units = append(units, unit{text: sentence, sep: sep})
				continue
			}
			for j, hard := range splitRunes(sentence, limit) {
				if j > 0 {
					sep = ""
				}
				units = append(units, unit{text: hard, sep: sep})
			}
		}
	}
	return units
}

func (c *Chunker) excerpt(sections []section) string {
	var parts []string
	for _, sec := range sections {
		parts = append(parts, sec.body)
	}
	text := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if utf8.RuneCountInString(text) <= c.opts.ExcerptChars {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:c.opts.ExcerptChars]))
}

// splitSentences splits after '.', '!' or '?' followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		switch runes[i] {
		case '.', '!', '?':
			if runes[i+1] == ' ' || runes[i+1] == '\n' {
				if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func splitRunes(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// overlapTail returns at most n trailing runes of text, starting at a word boundary.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return ""
	}
	tail := runes[len(runes)-n:]
	for i, r := range tail {
		if r == ' ' || r == '\n' {
			return strings.TrimSpace(string(tail[i:]))
		}
	}
	return ""
}

// EstimateTokenCount estimates the token count of text (chars/4, rounded up).
func EstimateTokenCount(text string) int {
	return (len(text) + TokensPerChar - 1) / TokensPerChar
}

// TruncateToTokens cuts text so its estimated token count does not exceed
// maxTokens. The cut never splits a UTF-8 sequence.
func TruncateToTokens(text string, maxTokens int) (string, bool) {
	limit := maxTokens * TokensPerChar
	if maxTokens <= 0 || len(text) <= limit {
		return text, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut], true
}
