package chunker

import (
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// Config controls pagination.
type Config struct {
	PageTokens int // Target virtual page size in tokens.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{PageTokens: 1500}
}

// block is one heading or paragraph with the heading path above it.
type block struct {
	text       string
	heading    bool
	breadcrumb []string
}

// Paginate splits a DocTree into virtual pages of about PageTokens tokens.
// Headings and paragraphs are kept whole where they fit; an oversized
// paragraph is split at sentence boundaries. Pages never overlap, so every
// piece of text lands on exactly one page.
func Paginate(tree *doctree.DocTree, cfg Config) []doctree.Chunk {
	if cfg.PageTokens <= 0 {
		cfg.PageTokens = DefaultConfig().PageTokens
	}

	var blocks []block
	for _, child := range tree.Children {
		blocks = walkNode(child, nil, 1, blocks)
	}

	var pages []doctree.Chunk
	var current []block
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		texts := make([]string, len(current))
		for i, b := range current {
			texts[i] = b.text
		}
		pages = append(pages, doctree.Chunk{
			Text:       strings.Join(texts, "\n\n"),
			Index:      len(pages),
			Breadcrumb: copyBreadcrumb(current[0].breadcrumb),
		})
		current = nil
		currentTokens = 0
	}

	for i := 0; i < len(blocks); i++ {
		b := blocks[i]
		tokens := EstimateTokens(b.text)

		if tokens > cfg.PageTokens && !b.heading {
			// Headings waiting at the end of the page lead the first part.
			var lead []block
			for len(current) > 0 && current[len(current)-1].heading {
				lead = append([]block{current[len(current)-1]}, lead...)
				current = current[:len(current)-1]
			}
			flush()
			for j, part := range splitBySentences(b.text, cfg.PageTokens) {
				if j == 0 {
					current = lead
				}
				current = append(current, block{text: part, breadcrumb: b.breadcrumb})
				flush()
			}
			continue
		}

		// A heading is placed with the block that follows it.
		need := tokens
		if b.heading && i+1 < len(blocks) {
			need += min(EstimateTokens(blocks[i+1].text), cfg.PageTokens)
		}
		headingLast := len(current) > 0 && current[len(current)-1].heading
		if currentTokens+need > cfg.PageTokens && currentTokens > 0 && !headingLast {
			flush()
		}
		current = append(current, b)
		currentTokens += tokens
	}
	flush()

	return pages
}

// walkNode flattens a DocNode subtree into blocks in reading order.
func walkNode(node *doctree.DocNode, breadcrumb []string, depth int, blocks []block) []block {
	bc := breadcrumb
	if node.Title != "" {
		bc = append(copyBreadcrumb(breadcrumb), node.Title)
		blocks = append(blocks, block{text: node.HeadingLine(depth), heading: true, breadcrumb: bc})
	}
	for _, para := range splitByParagraphs(node.Text) {
		blocks = append(blocks, block{text: para, breadcrumb: bc})
	}
	for _, child := range node.Children {
		blocks = walkNode(child, bc, depth+1, blocks)
	}
	return blocks
}

// splitByParagraphs splits on double-newlines.
func splitByParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitBySentences breaks a large paragraph into sentence-based parts.
func splitBySentences(text string, targetTokens int) []string {
	sentences := splitSentences(text)

	var result []string
	var current strings.Builder
	currentTokens := 0

	for _, sent := range sentences {
		sentTokens := EstimateTokens(sent)

		if currentTokens+sentTokens > targetTokens && currentTokens > 0 {
			result = append(result, current.String())
			current.Reset()
			currentTokens = 0
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}

	if currentTokens > 0 {
		result = append(result, current.String())
	}

	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
