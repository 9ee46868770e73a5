package parser

import (
	"strings"
	"testing"
)

func TestTextParser_Paragraphs(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\r\n\nSecond paragraph.\n\n\n\nThird paragraph.\n   \nFourth."
	p := &TextParser{}
	tree, err := p.Parse(strings.NewReader(input), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tree.Title != "notes" {
		t.Errorf("expected title %q, got %q", "notes", tree.Title)
	}
	if len(tree.Children) != 1 {
		t.Fatalf("expected one untitled lead node, got %d", len(tree.Children))
	}
	want := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph.\n\nFourth."
	if got := tree.Children[0].Text; got != want {
		t.Errorf("lead text = %q, want %q", got, want)
	}
}

func TestTextParser_UnderlinedHeadings(t *testing.T) {
	input := `Preface text.

Annual Report
=============

Opening.

Revenue
-------
Grew strongly.

Costs
-----

Fell.`

	p := &TextParser{}
	tree, err := p.Parse(strings.NewReader(input), "report.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected preface plus one section, got %d", len(tree.Children))
	}
	if tree.Children[0].Text != "Preface text." {
		t.Errorf("unexpected preface %q", tree.Children[0].Text)
	}

	report := tree.Children[1]
	if report.Title != "Annual Report" || report.Level != 1 || report.Text != "Opening." {
		t.Errorf("unexpected h1: %+v", report)
	}
	if len(report.Children) != 2 {
		t.Fatalf("expected 2 subsections, got %d", len(report.Children))
	}
	if c := report.Children[0]; c.Title != "Revenue" || c.Level != 2 || c.Text != "Grew strongly." {
		t.Errorf("unexpected first subsection: %+v", c)
	}
	if c := report.Children[1]; c.Title != "Costs" || c.Text != "Fell." {
		t.Errorf("unexpected second subsection: %+v", c)
	}
}

func TestTextParser_RuleIsNotHeading(t *testing.T) {
	// A rule under several lines, or on its own, stays as text.
	input := "line one\nline two\n---\n\n---"
	p := &TextParser{}
	tree, err := p.Parse(strings.NewReader(input), "rule.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Children) != 1 || tree.Children[0].Title != "" {
		t.Fatalf("expected only untitled text, got %+v", tree.Children)
	}
}

func TestTextParser_EmptyInput(t *testing.T) {
	p := &TextParser{}
	tree, err := p.Parse(strings.NewReader(""), "dir/empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "empty" {
		t.Errorf("expected title %q, got %q", "empty", tree.Title)
	}
	if len(tree.Children) != 0 {
		t.Errorf("expected 0 children for empty input, got %d", len(tree.Children))
	}
}

func TestCSVParser_Tables(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("name,amount\n")
	for i := range 25 {
		sb.WriteString("item")
		sb.WriteString(strings.Repeat("x", i%3))
		sb.WriteString(",1|2\n")
	}
	sb.WriteString("short\n")

	p := &CSVParser{}
	tree, err := p.Parse(strings.NewReader(sb.String()), "ledger.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "ledger" {
		t.Errorf("expected title %q, got %q", "ledger", tree.Title)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected 2 row batches, got %d", len(tree.Children))
	}
	if tree.Children[0].Title != "Rows 2-21" || tree.Children[1].Title != "Rows 22-27" {
		t.Errorf("unexpected batch titles %q, %q", tree.Children[0].Title, tree.Children[1].Title)
	}

	first := strings.Split(tree.Children[0].Text, "\n")
	if first[0] != "| name | amount |" || first[1] != "| --- | --- |" {
		t.Errorf("unexpected table head %q", first[:2])
	}
	if first[2] != `| item | 1\|2 |` {
		t.Errorf("pipes should be escaped, got %q", first[2])
	}
	last := strings.Split(tree.Children[1].Text, "\n")
	if last[0] != "| name | amount |" {
		t.Errorf("each batch repeats the header, got %q", last[0])
	}
	if got := last[len(last)-1]; got != "| short |  |" {
		t.Errorf("short rows are padded, got %q", got)
	}
}

func TestMarkdownTable(t *testing.T) {
	if got := markdownTable(nil); got != "" {
		t.Errorf("expected empty table, got %q", got)
	}
	got := markdownTable([][]string{{"a", "b"}, {"multi\nline", ""}})
	want := "| a | b |\n| --- | --- |\n| multi line |  |"
	if got != want {
		t.Errorf("markdownTable = %q, want %q", got, want)
	}
}
