package node

import (
	"fmt"
	"strings"
)

// RenderText renders a page as one line per node, for the quality critic.
func RenderText(p Page) string {
	lines := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		lines = append(lines, renderLine(n))
	}
	return strings.Join(lines, "\n")
}

func renderLine(n Node) string {
	switch v := n.Content.(type) {
	case *Section:
		return v.Description
	case *Heading:
		return fmt.Sprintf("[%s] %s", v.Level, v.Content)
	case *Paragraph:
		return Truncate(v.Content, 200)
	case *ListItem:
		return v.Content
	case *Image:
		return fmt.Sprintf("[%s] %s", v.Kind, v.Description)
	case *Table:
		return fmt.Sprintf("[%s] %s", v.Kind, v.Description)
	case *Header:
		return v.Content
	case *Footer:
		return v.Content
	case *Metadata:
		return v.Content
	case *TocEntry:
		return v.Title
	}
	// Only reachable for a node without content.
	return fmt.Sprintf("[%s] ", n.Type())
}

// Truncate shortens s to at most n characters.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
