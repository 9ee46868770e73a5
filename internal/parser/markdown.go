package parser

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Block structure the
// model should see (code fences, list markers, quotes, pipe tables) is kept
// in the section text.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(src))

	var o outline
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			o.heading(h.Level, inlineText(h, src))
			continue
		}
		o.block(renderBlock(n, src))
	}
	return o.tree(titleFromFilename(filename)), nil
}

func renderBlock(n ast.Node, src []byte) string {
	switch b := n.(type) {
	case *ast.FencedCodeBlock:
		return "```" + string(b.Language(src)) + "\n" + rawLines(b, src) + "\n```"
	case *ast.CodeBlock:
		return "```\n" + rawLines(b, src) + "\n```"
	case *ast.List:
		var items []string
		num := b.Start
		for item := b.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "-"
			if b.IsOrdered() {
				marker = strconv.Itoa(num) + "."
				num++
			}
			items = append(items, marker+" "+strings.ReplaceAll(renderChildren(item, src, "\n"), "\n", "\n  "))
		}
		return strings.Join(items, "\n")
	case *ast.Blockquote:
		inner := renderChildren(b, src, "\n\n")
		return "> " + strings.ReplaceAll(inner, "\n", "\n> ")
	case *east.Table:
		var rows [][]string
		for row := b.FirstChild(); row != nil; row = row.NextSibling() {
			var cells []string
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				cells = append(cells, inlineText(cell, src))
			}
			rows = append(rows, cells)
		}
		return markdownTable(rows)
	case *ast.Heading:
		return strings.Repeat("#", b.Level) + " " + inlineText(b, src)
	case *ast.ThematicBreak, *ast.HTMLBlock:
		return ""
	default:
		return inlineText(n, src)
	}
}

func renderChildren(n ast.Node, src []byte, sep string) string {
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t := renderBlock(c, src); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, sep)
}

// rawLines returns the source lines of a code block, without the trailing
// newline.
func rawLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return strings.TrimRight(buf.String(), "\n")
}

// inlineText collects the text of n's inline descendants.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.AutoLink:
			buf.Write(t.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}
