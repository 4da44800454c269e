// Package parser provides Markdown parsing and content chunking for the
// indexing pipeline.
package parser

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarkdownDoc is a Markdown document split into front matter, body and
// heading-delimited sections.
type MarkdownDoc struct {
	Frontmatter map[string]any
	Title       string
	Content     string
	Sections    []Section
}

// Section is one heading and the body below it, up to the next heading.
type Section struct {
	Level   int    // 1-6 for h1-h6
	Heading string
	Path    string // Breadcrumb like "# Guide > ## Setup"
	Content string
	Start   int // 1-based line of the heading
	End     int
}

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// ParseMarkdown splits a document into front matter, title and sections.
// Malformed front matter is treated as absent rather than failing the
// document.
func ParseMarkdown(content string) (*MarkdownDoc, error) {
	meta, body := splitFrontMatter(content)
	doc := &MarkdownDoc{
		Frontmatter: meta,
		Content:     body,
		Sections:    splitSections(body),
	}
	doc.Title = documentTitle(doc)
	return doc, nil
}

// splitFrontMatter strips a leading YAML block delimited by "---" lines.
// Returns the parsed metadata (never nil) and the remaining body.
func splitFrontMatter(content string) (map[string]any, string) {
	meta := map[string]any{}
	if !strings.HasPrefix(content, "---\n") {
		return meta, content
	}
	end := strings.Index(content[4:], "\n---")
	if end <= 0 {
		return meta, content
	}

	block := content[4 : 4+end]
	body := strings.TrimPrefix(content[4+end+4:], "\n")
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		meta = map[string]any{}
	}
	return meta, body
}

// documentTitle prefers front matter title/name over the first h1.
func documentTitle(doc *MarkdownDoc) string {
	for _, key := range []string{"title", "name"} {
		if v, ok := doc.Frontmatter[key].(string); ok && v != "" {
			return v
		}
	}
	for _, s := range doc.Sections {
		if s.Level == 1 {
			return s.Heading
		}
	}
	return ""
}

// splitSections walks the body line by line and groups content under the most
// recent heading. Text before the first heading belongs to no section.
func splitSections(body string) []Section {
	var (
		sections []Section
		open     *Section
		buf      []string
		crumbs   []string // heading breadcrumb, one entry per open level
		levels   []int
	)

	closeOpen := func(endLine int) {
		if open == nil {
			return
		}
		open.Content = strings.TrimSpace(strings.Join(buf, "\n"))
		open.End = endLine
		sections = append(sections, *open)
		open = nil
		buf = buf[:0]
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		match := headingPattern.FindStringSubmatch(line)
		if match == nil {
			if open != nil {
				buf = append(buf, line)
			}
			continue
		}
		closeOpen(i)

		level := len(match[1])
		heading := strings.TrimSpace(match[2])

		// Pop breadcrumb entries at or below this level
		for len(levels) > 0 && levels[len(levels)-1] >= level {
			crumbs = crumbs[:len(crumbs)-1]
			levels = levels[:len(levels)-1]
		}
		crumbs = append(crumbs, match[1]+" "+heading)
		levels = append(levels, level)

		open = &Section{
			Level:   level,
			Heading: heading,
			Path:    strings.Join(crumbs, " > "),
			Start:   i + 1,
		}
	}
	closeOpen(len(lines))

	return sections
}

// GetFrontmatterString returns a front matter value, or "" when absent or not
// a string.
func (d *MarkdownDoc) GetFrontmatterString(key string) string {
	v, _ := d.Frontmatter[key].(string)
	return v
}
