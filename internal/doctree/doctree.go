// Package doctree holds the heading outline of a raw-text source and the
// virtual pages cut from it.
package doctree

import "strings"

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Level    int        // Heading level 1-6 as written in the source, 0 if unknown
	Text     string     // Text content of this node (may be empty for container nodes)
	Children []*DocNode // Subsections
}

// Chunk is one virtual page of a raw-text source.
type Chunk struct {
	Text       string   // Markdown-like page text
	Index      int      // 0-based page index
	Breadcrumb []string // Headings above the page's first block, outermost first
}

// HeadingLine renders a section title as a Markdown heading. Without a
// recorded level the tree depth (1-based) is used, capped at 6.
func (n *DocNode) HeadingLine(depth int) string {
	level := n.Level
	if level <= 0 {
		level = depth
	}
	level = min(max(level, 1), 6)
	return strings.Repeat("#", level) + " " + n.Title
}
