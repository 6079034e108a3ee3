package chunker

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

var headingPattern = regexp.MustCompile(`^(#{1,6})[ \t]+(.*?)(?:[ \t]+#+)?[ \t]*$`)

// Frontmatter holds the YAML header fields the index cares about.
type Frontmatter struct {
	Title   string
	Aliases []string
	Tags    []string
}

type section struct {
	headings []string
	levels   []int
	body     string
}

// Normalize converts line endings to LF, trims trailing whitespace on every
// line and collapses runs of blank lines into one.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.Trim(strings.Join(out, "\n"), "\n")
}

// SplitFrontmatter strips a leading YAML block delimited by "---" lines.
// An unparseable block is still stripped and yields an empty Frontmatter.
func SplitFrontmatter(text string) (Frontmatter, string) {
	if !strings.HasPrefix(text, "---\n") {
		return Frontmatter{}, text
	}
	rest := text[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Frontmatter{}, text
	}
	after := rest[end+4:]
	if after != "" && after[0] != '\n' {
		return Frontmatter{}, text
	}
	body := strings.TrimLeft(after, "\n")

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(rest[:end]), &raw); err != nil {
		return Frontmatter{}, body
	}
	fm := Frontmatter{
		Aliases: toStrings(raw["aliases"]),
		Tags:    toStrings(raw["tags"]),
	}
	if title, ok := raw["title"]; ok && title != nil {
		fm.Title = strings.TrimSpace(fmt.Sprint(title))
	}
	return fm, body
}

func toStrings(v interface{}) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return nil
	}
}

// parseSections splits a normalized body at ATX headings outside fenced code.
// Heading lines are not part of any section body.
func parseSections(body string) []section {
	var sections []section
	var headings []string
	var levels []int
	var buf []string
	fence := ""

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if text == "" {
			return
		}
		sections = append(sections, section{
			headings: append([]string(nil), headings...),
			levels:   append([]int(nil), levels...),
			body:     text,
		})
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			buf = append(buf, line)
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fence = trimmed[:3]
			buf = append(buf, line)
			continue
		}

		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			buf = append(buf, line)
			continue
		}

		flush()
		level := len(m[1])
		for len(levels) > 0 && levels[len(levels)-1] >= level {
			levels = levels[:len(levels)-1]
			headings = headings[:len(headings)-1]
		}
		headings = append(headings, strings.TrimSpace(m[2]))
		levels = append(levels, level)
	}
	flush()
	return sections
}

func firstH1(sections []section) string {
	for _, sec := range sections {
		for i, level := range sec.levels {
			if level == 1 && sec.headings[i] != "" {
				return sec.headings[i]
			}
		}
	}
	return ""
}

func bodyLength(sections []section) int {
	n := 0
	for _, sec := range sections {
		n += utf8.RuneCountInString(sec.body)
	}
	return n
}

// TitleFromPath returns the file name without its extension.
func TitleFromPath(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
