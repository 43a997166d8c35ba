// Package chunker splits cleaned page text into semantically coherent
// sections and enriches each with bullets and sample questions from the
// summarization collaborator.
package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/indrasol/ai-receptionist-backend/internal/extractor"
	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

// Config defines chunking parameters.
type Config struct {
	// MaxChunkChars: maximum chunk size; oversized sections are subdivided.
	MaxChunkChars int
	// MinChunkChars: minimum chunk size; smaller sections merge with neighbors.
	MinChunkChars int
	// WindowOverlap: character overlap between windowed chunks.
	WindowOverlap int
	// MaxChunksPerSource caps the number of chunks produced for one page.
	MaxChunksPerSource int
	// MaxTotalChars caps the combined content size for one page.
	MaxTotalChars int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxChunkChars:      100_000,
		MinChunkChars:      200,
		WindowOverlap:      200,
		MaxChunksPerSource: 10,
		MaxTotalChars:      1_000_000,
	}
}

// Summary is the collaborator's structured description of one section.
type Summary struct {
	Name            string
	Description     string
	Bullets         []string
	SampleQuestions []string
}

// Summarizer generates bullets and sample questions for a section of page
// content. Implementations call a remote model; failures must be returned,
// not panicked, so the chunker can degrade gracefully.
type Summarizer interface {
	Summarize(ctx context.Context, pageTitle, sectionName, content string) (*Summary, error)
}

// Chunker splits extracted pages into chunk drafts.
type Chunker struct {
	config     Config
	summarizer Summarizer // nil disables enrichment
}

// New creates a Chunker. summarizer may be nil, in which case drafts keep
// their heading-derived names and empty bullets.
func New(config Config, summarizer Summarizer) *Chunker {
	def := DefaultConfig()
	if config.MaxChunkChars <= 0 {
		config.MaxChunkChars = def.MaxChunkChars
	}
	if config.MinChunkChars <= 0 {
		config.MinChunkChars = def.MinChunkChars
	}
	if config.WindowOverlap < 0 {
		config.WindowOverlap = def.WindowOverlap
	}
	if config.MaxChunksPerSource <= 0 {
		config.MaxChunksPerSource = def.MaxChunksPerSource
	}
	if config.MaxTotalChars <= 0 {
		config.MaxTotalChars = def.MaxTotalChars
	}
	return &Chunker{config: config, summarizer: summarizer}
}

// Split produces the ordered chunk drafts for one extracted page. It splits
// on heading boundaries when the page has discoverable structure and falls
// back to fixed-size windows with overlap otherwise. A summarizer failure
// degrades the affected draft instead of aborting the page.
func (c *Chunker) Split(ctx context.Context, page *extractor.Page) []models.ChunkDraft {
	sections := splitByHeadings(page.Content)

	var pieces []section
	if len(sections) > 1 {
		for _, s := range sections {
			if len(s.content) > c.config.MaxChunkChars {
				for _, part := range splitByParagraphs(s.content, c.config.MaxChunkChars) {
					pieces = append(pieces, section{name: s.name, content: part})
				}
			} else {
				pieces = append(pieces, s)
			}
		}
		pieces = mergeSmall(pieces, c.config.MinChunkChars)
	} else {
		// No discoverable structure: fixed windows with overlap so context
		// is not lost at boundaries.
		for _, part := range splitWindows(page.Content, c.config.MaxChunkChars, c.config.WindowOverlap) {
			pieces = append(pieces, section{content: part})
		}
	}

	var (
		drafts     []models.ChunkDraft
		totalChars int
	)
	for i, s := range pieces {
		if strings.TrimSpace(s.content) == "" {
			continue
		}
		if len(drafts) >= c.config.MaxChunksPerSource {
			slog.Warn("chunk cap reached for source", "url", page.URL, "cap", c.config.MaxChunksPerSource)
			break
		}
		if totalChars+len(s.content) > c.config.MaxTotalChars {
			slog.Warn("total character cap reached for source", "url", page.URL, "cap", c.config.MaxTotalChars)
			break
		}

		draft := models.ChunkDraft{
			Name:        c.draftName(page, s, i),
			Description: fmt.Sprintf("Content extracted from %s", page.URL),
			Content:     s.content,
			Position:    i,
		}
		c.enrich(ctx, page, &draft)

		totalChars += len(draft.Content)
		drafts = append(drafts, draft)
	}

	slog.Debug("page chunked", "url", page.URL, "chunks", len(drafts), "total_chars", totalChars)
	return drafts
}

// enrich asks the summarizer to fill in name, description, bullets and
// sample questions. On failure the draft is stored as-is.
func (c *Chunker) enrich(ctx context.Context, page *extractor.Page, draft *models.ChunkDraft) {
	if c.summarizer == nil {
		return
	}

	summary, err := c.summarizer.Summarize(ctx, page.Title, draft.Name, draft.Content)
	if err != nil {
		slog.Warn("summarization failed, storing chunk without bullets",
			"url", page.URL, "chunk", draft.Name, "error", err)
		return
	}

	if summary.Name != "" {
		draft.Name = summary.Name
	}
	if summary.Description != "" {
		draft.Description = summary.Description
	}
	draft.Bullets = summary.Bullets
	draft.SampleQuestions = summary.SampleQuestions
}

func (c *Chunker) draftName(page *extractor.Page, s section, position int) string {
	if s.name != "" {
		return s.name
	}
	if page.Title != "" {
		if position == 0 {
			return page.Title
		}
		return fmt.Sprintf("%s (part %d)", page.Title, position+1)
	}
	return page.URL
}

type section struct {
	name    string
	content string
}

// splitByHeadings splits markdown on h1-h3 boundaries. Text before the
// first heading becomes an unnamed leading section.
func splitByHeadings(content string) []section {
	lines := strings.Split(content, "\n")

	var sections []section
	current := section{}
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" {
			current.content = text
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range lines {
		if name, ok := headingText(line); ok {
			flush()
			current = section{name: name}
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	if len(sections) == 0 {
		return []section{{content: strings.TrimSpace(content)}}
	}
	return sections
}

func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	for level := 1; level <= 3; level++ {
		prefix := strings.Repeat("#", level) + " "
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)), true
		}
	}
	return "", false
}

// splitByParagraphs subdivides oversized text at paragraph boundaries,
// falling back to sentence boundaries for single huge paragraphs.
func splitByParagraphs(content string, maxSize int) []string {
	paragraphs := strings.Split(content, "\n\n")

	var parts []string
	var current strings.Builder

	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			parts = append(parts, text)
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current.Len()+len(para) > maxSize && current.Len() > 0 {
			flush()
		}

		if len(para) > maxSize {
			flush()
			parts = append(parts, splitSentences(para, maxSize)...)
			continue
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return parts
}

// splitSentences packs sentences into parts no larger than maxSize. A
// single sentence longer than maxSize is cut hard.
func splitSentences(text string, maxSize int) []string {
	var parts []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			parts = append(parts, s)
		}
		current.Reset()
	}

	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		sentence := text[start : i+1]
		start = i + 1

		if current.Len()+len(sentence) > maxSize {
			flush()
		}
		if len(sentence) > maxSize {
			parts = append(parts, splitWindows(sentence, maxSize, 0)...)
			continue
		}
		current.WriteString(sentence)
	}
	if start < len(text) {
		rest := text[start:]
		if current.Len()+len(rest) > maxSize {
			flush()
		}
		current.WriteString(rest)
	}
	flush()

	return parts
}

// splitWindows cuts text into fixed-size windows with overlap.
func splitWindows(text string, size, overlap int) []string {
	if len(text) <= size {
		return []string{strings.TrimSpace(text)}
	}
	if overlap >= size {
		overlap = size / 4
	}

	var parts []string
	step := size - overlap
	for start := 0; start < len(text); start += step {
		end := start + size
		if end >= len(text) {
			parts = append(parts, strings.TrimSpace(text[start:]))
			break
		}
		parts = append(parts, strings.TrimSpace(text[start:end]))
	}
	return parts
}

// mergeSmall merges sections below minSize into their predecessor so a page
// with many tiny headings does not explode into fragments.
func mergeSmall(sections []section, minSize int) []section {
	var merged []section
	for _, s := range sections {
		if len(s.content) < minSize && len(merged) > 0 {
			merged[len(merged)-1].content += "\n\n" + s.content
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
