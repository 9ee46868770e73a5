package node

import (
	"slices"
	"strings"
)

// Sanitize normalizes model output for one page and drops nodes that cannot
// be used: empty ids, duplicate ids (first wins), missing content and
// out-of-range heading or list levels. Levels are matched without regard to
// case. Parent ids are cleared on header, footer and metadata nodes, and TOC
// target sections are always cleared.
// Unknown image kinds become "unknown"; unknown table kinds become "data".
// It returns the kept nodes and how many were dropped.
func Sanitize(nodes []Node) ([]Node, int) {
	out := make([]Node, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	dropped := 0
	for _, n := range nodes {
		n.ID = strings.TrimSpace(n.ID)
		if n.ID == "" || n.Content == nil || seen[n.ID] {
			dropped++
			continue
		}
		if !sanitizeContent(&n) {
			dropped++
			continue
		}
		if !HasParent(n.Type()) {
			n.ParentID = ""
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out, dropped
}

func sanitizeContent(n *Node) bool {
	switch v := n.Content.(type) {
	case *Heading:
		level, ok := normalizeLevel(string(v.Level), headingLevels)
		if !ok {
			return false
		}
		if level != string(v.Level) {
			c := *v
			c.Level = HeadingLevel(level)
			n.Content = &c
		}
	case *ListItem:
		level, ok := normalizeLevel(string(v.Level), listLevels)
		if !ok {
			return false
		}
		if level != string(v.Level) {
			c := *v
			c.Level = ListLevel(level)
			n.Content = &c
		}
	case *Paragraph:
		level := ParagraphPlain
		if v.Level != "" {
			l, ok := normalizeLevel(string(v.Level), paragraphLevels)
			if !ok {
				return false
			}
			level = ParagraphLevel(l)
		}
		if level != v.Level {
			c := *v
			c.Level = level
			n.Content = &c
		}
	case *TocEntry:
		level, ok := normalizeLevel(string(v.Level), listLevels)
		if !ok {
			return false
		}
		if level != string(v.Level) || v.TargetSectionID != "" {
			c := *v
			c.Level = ListLevel(level)
			c.TargetSectionID = ""
			n.Content = &c
		}
	case *Image:
		if !slices.Contains(imageKinds, string(v.Kind)) {
			c := *v
			c.Kind = ImageUnknown
			n.Content = &c
		}
	case *Table:
		if !slices.Contains(tableKinds, string(v.Kind)) {
			c := *v
			c.Kind = TableData
			n.Content = &c
		}
	}
	return true
}

// normalizeLevel lower-cases a level and reports whether it is allowed, so
// "H2" and "h2" are the same heading.
func normalizeLevel(level string, allowed []string) (string, bool) {
	level = strings.ToLower(strings.TrimSpace(level))
	return level, slices.Contains(allowed, level)
}
