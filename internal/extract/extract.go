// Package extract converts stored documents into plain text for chunking.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/unicahq/unica-go/internal/parser"
)

// Sentinel errors for extraction. Use errors.Is() in calling code.
var (
	// ErrUnsupportedFormat indicates a mime type no extractor handles.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyContent indicates the document yielded no indexable text.
	ErrEmptyContent = errors.New("document has no extractable content")

	// ErrParse indicates the document is malformed for its declared format.
	ErrParse = errors.New("document parse failed")
)

// Text returns the plain text of a document, dispatched by mime type.
// Markdown documents have their YAML frontmatter stripped; HTML documents are
// reduced to their main body text.
func Text(mimeType string, content []byte) (string, error) {
	// Parameters like "text/html; charset=utf-8" reduce to the base type
	base := strings.TrimSpace(strings.ToLower(mimeType))
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}

	var text string
	var err error
	switch base {
	case "text/plain", "":
		text, err = plainText(content)
	case "text/markdown":
		text, err = markdownText(content)
	case "text/html":
		text, err = htmlText(content)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

func plainText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrParse)
	}
	return string(content), nil
}

func markdownText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrParse)
	}
	doc, err := parser.ParseMarkdown(string(content))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	return doc.Content, nil
}

func htmlText(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(content)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}

	// Remove common unwanted elements before reading text
	doc.Find("nav, footer, header, script, style, noscript").Remove()

	// Prefer the main content container, fall back to body
	var selection *goquery.Selection
	for _, selector := range []string{"main", "article", ".content", "#content"} {
		if found := doc.Find(selector); found.Length() > 0 {
			selection = found.First()
			break
		}
	}
	if selection == nil {
		selection = doc.Find("body")
	}

	return cleanWhitespace(selection.Text()), nil
}

var whitespaceRegex = regexp.MustCompile(`[ \t]+`)
var blankLinesRegex = regexp.MustCompile(`\n{3,}`)

// cleanWhitespace collapses runs of spaces and blank lines left behind by
// removed HTML elements.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRegex.ReplaceAllString(line, " "))
	}
	joined := strings.Join(lines, "\n")
	return blankLinesRegex.ReplaceAllString(joined, "\n\n")
}
