package extract

import (
	"errors"
	"strings"
	"testing"
)

func TestTextPlain(t *testing.T) {
	got, err := Text("text/plain", []byte("  hello world  "))
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "hello world" {
		t.Errorf("Expected trimmed text, got %q", got)
	}
}

func TestTextPlainWithCharsetParameter(t *testing.T) {
	got, err := Text("text/plain; charset=utf-8", []byte("hello"))
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("Expected 'hello', got %q", got)
	}
}

func TestTextPlainInvalidUTF8(t *testing.T) {
	_, err := Text("text/plain", []byte{0xff, 0xfe, 0xfd})
	if !errors.Is(err, ErrParse) {
		t.Errorf("Expected ErrParse for invalid UTF-8, got %v", err)
	}
}

func TestTextMarkdownStripsFrontmatter(t *testing.T) {
	md := "---\ntitle: Notes\n---\n\n# Notes\n\nBody content."
	got, err := Text("text/markdown", []byte(md))
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if strings.Contains(got, "title: Notes") {
		t.Error("Frontmatter should be stripped")
	}
	if !strings.Contains(got, "Body content.") {
		t.Errorf("Body should survive, got %q", got)
	}
}

func TestTextHTML(t *testing.T) {
	html := `<html><head><script>var x = 1;</script><style>p{}</style></head>
<body><nav>Menu</nav><main><h1>Title</h1><p>First paragraph.</p></main>
<footer>Footer stuff</footer></body></html>`

	got, err := Text("text/html", []byte(html))
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if !strings.Contains(got, "First paragraph.") {
		t.Errorf("Expected body text, got %q", got)
	}
	for _, noise := range []string{"var x", "Menu", "Footer stuff"} {
		if strings.Contains(got, noise) {
			t.Errorf("Noise element leaked into text: %q", noise)
		}
	}
}

func TestTextUnsupportedFormat(t *testing.T) {
	_, err := Text("application/pdf", []byte("%PDF-1.4"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestTextEmptyContent(t *testing.T) {
	for _, tc := range []struct {
		mime    string
		content string
	}{
		{"text/plain", "   \n\t  "},
		{"text/markdown", "---\ntitle: Empty\n---\n"},
		{"text/html", "<html><body><script>x</script></body></html>"},
	} {
		if _, err := Text(tc.mime, []byte(tc.content)); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("%s: expected ErrEmptyContent, got %v", tc.mime, err)
		}
	}
}
