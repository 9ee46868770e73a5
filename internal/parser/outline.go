package parser

import (
	"path/filepath"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// outline assembles a DocTree from headings and text blocks in reading
// order. Each heading nests under the nearest preceding shallower one; text
// belongs to the latest heading, or leads the document before the first.
type outline struct {
	lead  []string
	top   []*doctree.DocNode
	stack []*doctree.DocNode
}

func (o *outline) heading(level int, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	level = min(max(level, 1), 6)
	n := &doctree.DocNode{Title: title, Level: level}
	for len(o.stack) > 0 && o.stack[len(o.stack)-1].Level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	if len(o.stack) == 0 {
		o.top = append(o.top, n)
	} else {
		parent := o.stack[len(o.stack)-1]
		parent.Children = append(parent.Children, n)
	}
	o.stack = append(o.stack, n)
}

func (o *outline) block(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if len(o.stack) == 0 {
		o.lead = append(o.lead, text)
		return
	}
	n := o.stack[len(o.stack)-1]
	if n.Text != "" {
		n.Text += "\n\n"
	}
	n.Text += text
}

func (o *outline) tree(title string) *doctree.DocTree {
	t := &doctree.DocTree{Title: title, Children: o.top}
	if len(o.lead) > 0 {
		t.Children = append([]*doctree.DocNode{{Text: strings.Join(o.lead, "\n\n")}}, t.Children...)
	}
	return t
}

// titleFromFilename is the fallback document title: the base name without
// its extension.
func titleFromFilename(name string) string {
	name = filepath.Base(name)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// markdownTable renders rows as a pipe table with the first row as header.
// Short rows are padded; pipes and newlines inside cells are escaped.
func markdownTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	if width == 0 {
		return ""
	}

	var sb strings.Builder
	writeRow := func(r []string) {
		sb.WriteString("|")
		for i := range width {
			cell := ""
			if i < len(r) {
				cell = strings.TrimSpace(r[i])
				cell = strings.ReplaceAll(cell, "|", `\|`)
				cell = strings.Join(strings.Fields(cell), " ")
			}
			sb.WriteString(" ")
			sb.WriteString(cell)
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}
	writeRow(rows[0])
	sb.WriteString("|")
	for range width {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
