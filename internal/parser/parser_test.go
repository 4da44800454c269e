package parser

import (
	"strings"
	"testing"
)

func TestParseMarkdownFrontmatter(t *testing.T) {
	content := `---
title: Deployment Guide
owner: platform
---

# Deployment Guide

## Setup

Install the CLI first.

## Rollback

Use the previous release tag.
`

	doc, err := ParseMarkdown(content)
	if err != nil {
		t.Fatalf("ParseMarkdown failed: %v", err)
	}

	if doc.Title != "Deployment Guide" {
		t.Errorf("Expected title from frontmatter, got %q", doc.Title)
	}
	if doc.GetFrontmatterString("owner") != "platform" {
		t.Errorf("Expected owner 'platform', got %q", doc.GetFrontmatterString("owner"))
	}
	if strings.Contains(doc.Content, "owner: platform") {
		t.Error("Frontmatter should be stripped from content")
	}
	if len(doc.Sections) != 3 {
		t.Fatalf("Expected 3 sections, got %d", len(doc.Sections))
	}
	if doc.Sections[1].Path != "# Deployment Guide > ## Setup" {
		t.Errorf("Unexpected heading path: %q", doc.Sections[1].Path)
	}
}

func TestParseMarkdownNoFrontmatter(t *testing.T) {
	doc, err := ParseMarkdown("# Only Title\n\nBody text.")
	if err != nil {
		t.Fatalf("ParseMarkdown failed: %v", err)
	}
	if doc.Title != "Only Title" {
		t.Errorf("Expected title from h1, got %q", doc.Title)
	}
	if len(doc.Frontmatter) != 0 {
		t.Errorf("Expected empty frontmatter, got %v", doc.Frontmatter)
	}
}

func TestParseMarkdownInvalidFrontmatterIgnored(t *testing.T) {
	content := "---\n: not yaml at all [\n---\n\nBody."
	doc, err := ParseMarkdown(content)
	if err != nil {
		t.Fatalf("ParseMarkdown failed: %v", err)
	}
	if len(doc.Frontmatter) != 0 {
		t.Errorf("Invalid frontmatter should parse as empty, got %v", doc.Frontmatter)
	}
	if !strings.Contains(doc.Content, "Body.") {
		t.Error("Content after invalid frontmatter should survive")
	}
}

func TestChunkShortContentSingleChunk(t *testing.T) {
	chunks := Chunk("short text", DefaultChunkConfig())
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "short text" {
		t.Errorf("Short content should pass through unchanged, got %q", chunks[0].Content)
	}
}

func TestChunkEmptyContent(t *testing.T) {
	if chunks := Chunk("   \n  ", DefaultChunkConfig()); chunks != nil {
		t.Errorf("Expected nil for empty content, got %v", chunks)
	}
}

func TestChunkRespectsSizeBound(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("This is sentence number one of many in a long paragraph. ")
	}
	config := ChunkConfig{Size: 300, Overlap: 0}

	chunks := Chunk(b.String(), config)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Content) > config.Size {
			t.Errorf("Chunk %d exceeds size bound: %d > %d", i, len(c.Content), config.Size)
		}
		if c.Position != i {
			t.Errorf("Chunk %d has position %d", i, c.Position)
		}
	}
}

func TestChunkParagraphBoundaries(t *testing.T) {
	para1 := strings.Repeat("alpha ", 30)
	para2 := strings.Repeat("beta ", 30)
	content := para1 + "\n\n" + para2

	chunks := Chunk(content, ChunkConfig{Size: 200, Overlap: 0})
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 paragraph chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Content, "alpha") || !strings.HasPrefix(chunks[1].Content, "beta") {
		t.Error("Chunks should split on the paragraph boundary")
	}
}

func TestChunkOverlapCarriesContext(t *testing.T) {
	para1 := strings.Repeat("one two three four five six. ", 10)
	para2 := strings.Repeat("seven eight nine ten eleven. ", 10)
	content := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2)

	chunks := Chunk(content, ChunkConfig{Size: 300, Overlap: 30})
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	// Each later chunk starts with the tail of its predecessor
	tail := chunks[0].Content[len(chunks[0].Content)-10:]
	if !strings.Contains(chunks[1].Content[:50], strings.TrimSpace(tail)) {
		t.Errorf("Chunk 1 should begin with overlap from chunk 0; got %q", chunks[1].Content[:50])
	}
}

func TestChunkMarkdownBySections(t *testing.T) {
	var b strings.Builder
	b.WriteString("# Guide\n\n")
	b.WriteString("## First\n\n")
	b.WriteString(strings.Repeat("First section content. ", 20))
	b.WriteString("\n\n## Second\n\n")
	b.WriteString(strings.Repeat("Second section content. ", 20))

	doc, err := ParseMarkdown(b.String())
	if err != nil {
		t.Fatalf("ParseMarkdown failed: %v", err)
	}

	chunks := ChunkMarkdown(doc, ChunkConfig{Size: 500, Overlap: 0})
	if len(chunks) < 2 {
		t.Fatalf("Expected section chunks, got %d", len(chunks))
	}

	foundFirst, foundSecond := false, false
	for _, c := range chunks {
		if strings.Contains(c.HeadingPath, "## First") {
			foundFirst = true
		}
		if strings.Contains(c.HeadingPath, "## Second") {
			foundSecond = true
		}
	}
	if !foundFirst || !foundSecond {
		t.Errorf("Expected heading paths for both sections, chunks: %+v", chunks)
	}
}
