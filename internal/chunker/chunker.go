package chunker

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"docs-ingestion-service/internal/domain/model"
)

// Config bounds chunk sizes in estimated tokens.
type Config struct {
	MaxTokens     int `yaml:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
	MinTokens     int `yaml:"min_tokens"` // merge a smaller trailing piece into its neighbor
}

// PageMeta carries the source document identity into chunk metadata.
type PageMeta struct {
	SourceURL string
	Title     string
}

// Chunker splits page text into bounded chunks along document structure,
// with sentence-overlap context between adjacent chunks. Pure: same input,
// same output, no I/O.
type Chunker struct {
	maxTokens     int
	overlapTokens int
	minTokens     int
}

func New(cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = 0
	}
	if cfg.MinTokens < 0 {
		cfg.MinTokens = 0
	}
	return &Chunker{maxTokens: cfg.MaxTokens, overlapTokens: cfg.OverlapTokens, minTokens: cfg.MinTokens}
}

// Chunk splits text into ordered chunks, each at most maxTokens except when
// a single unsplittable fragment alone exceeds the limit. Indices are dense,
// zero-based and contiguous across the whole document. Empty or
// whitespace-only input yields no chunks.
func (c *Chunker) Chunk(text string, meta PageMeta) []model.DocumentChunk {
	normalized := normalize(text)
	if normalized == "" {
		return nil
	}

	var pieces []piece
	for _, sec := range splitSections(normalized) {
		pieces = append(pieces, c.splitSection(sec)...)
	}
	pieces = c.mergeSmallTail(pieces)

	chunks := make([]model.DocumentChunk, 0, len(pieces))
	for i, p := range pieces {
		content := p.content
		tokens := EstimateTokens(content)

		// Prepend trailing sentences from the previous piece as overlap
		// context, unless that would push the chunk over the limit.
		if i > 0 && c.overlapTokens > 0 {
			overlap := trailingSentences(pieces[i-1].content, c.overlapTokens)
			if overlap != "" {
				joined := overlap + " " + content
				if jt := EstimateTokens(joined); jt <= c.maxTokens {
					content, tokens = joined, jt
				}
			}
		}

		chunks = append(chunks, model.DocumentChunk{
			ID:      fmt.Sprintf("%s#chunk-%d", meta.SourceURL, i),
			Content: content,
			Metadata: model.ChunkMetadata{
				SourceURL:  meta.SourceURL,
				Title:      meta.Title,
				Section:    p.section,
				ChunkIndex: i,
			},
			TokenCount: tokens,
		})
	}
	return chunks
}

// piece is one chunk-to-be, before overlap and indexing.
type piece struct {
	section string
	content string
}

// mergeSmallTail folds a final piece under minTokens into the previous one,
// provided the merged piece still fits. A lone small piece stays as is.
func (c *Chunker) mergeSmallTail(pieces []piece) []piece {
	if c.minTokens <= 0 || len(pieces) < 2 {
		return pieces
	}
	last := pieces[len(pieces)-1]
	if EstimateTokens(last.content) >= c.minTokens {
		return pieces
	}
	prev := pieces[len(pieces)-2]
	joined := prev.content + " " + last.content
	if EstimateTokens(joined) > c.maxTokens {
		return pieces
	}
	prev.content = joined
	merged := append(pieces[:len(pieces)-2:len(pieces)-2], prev)
	return merged
}

// splitSection emits the section whole when it fits, otherwise greedily packs
// sentences, falling back to a word-level split for oversized sentences.
func (c *Chunker) splitSection(sec section) []piece {
	content := strings.TrimSpace(sec.content)
	if content == "" {
		return nil
	}
	if EstimateTokens(content) <= c.maxTokens {
		return []piece{{section: sec.title, content: content}}
	}

	var out []piece
	var cur []string
	curTokens := 0
	flush := func() {
		if len(cur) > 0 {
			out = append(out, piece{section: sec.title, content: strings.Join(cur, " ")})
			cur, curTokens = nil, 0
		}
	}

	for _, sentence := range splitSentences(content) {
		st := EstimateTokens(sentence)
		if st > c.maxTokens {
			// A single sentence over the limit: split on words instead.
			flush()
			for _, part := range c.splitWords(sentence) {
				out = append(out, piece{section: sec.title, content: part})
			}
			continue
		}
		if curTokens+st > c.maxTokens {
			flush()
		}
		cur = append(cur, sentence)
		curTokens += st
	}
	flush()
	return out
}

func (c *Chunker) splitWords(sentence string) []string {
	words := strings.Fields(sentence)
	var out []string
	var cur []string
	curTokens := 0
	for _, w := range words {
		wt := EstimateTokens(w)
		if curTokens+wt > c.maxTokens && len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur, curTokens = nil, 0
		}
		cur = append(cur, w)
		curTokens += wt
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

// trailingSentences returns up to budget estimated tokens worth of sentences
// from the end of text, in original order.
func trailingSentences(text string, budget int) string {
	sentences := splitSentences(text)
	var picked []string
	total := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		st := EstimateTokens(sentences[i])
		if total+st > budget {
			break
		}
		picked = append([]string{sentences[i]}, picked...)
		total += st
	}
	return strings.Join(picked, " ")
}

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+(?:\s|$)|[^.!?]+$`)

func splitSentences(text string) []string {
	raw := sentencePattern.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var blankRuns = regexp.MustCompile(`\n{3,}`)
var spaceRuns = regexp.MustCompile(`[ \t]+`)

// normalize unescapes HTML entities and collapses whitespace while keeping
// line structure intact for header detection.
func normalize(text string) string {
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
