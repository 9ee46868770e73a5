package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/dgallion1/docstruct/internal/model"
	"github.com/dgallion1/docstruct/internal/node"
)

const (
	titleMaxHeadings     = 5
	titleMaxSections     = 5
	titleParagraphLength = 500
)

// Asker answers a free-text question.
type Asker interface {
	Ask(ctx context.Context, req model.Request) (string, error)
}

// TitleParams configures title inference.
type TitleParams struct {
	Model   string
	Timeout time.Duration
}

type titleSignals struct {
	headings  []string
	sections  []string
	metadata  []string
	paragraph string
}

func collectTitleSignals(pages []node.Page) titleSignals {
	var s titleSignals
	for _, p := range pages {
		for _, n := range p.Nodes {
			switch v := n.Content.(type) {
			case *node.Heading:
				if len(s.headings) < titleMaxHeadings && v.Content != "" {
					s.headings = append(s.headings, v.Content)
				}
			case *node.Section:
				if len(s.sections) < titleMaxSections && v.Description != "" {
					s.sections = append(s.sections, v.Description)
				}
			case *node.Metadata:
				if v.Content != "" {
					s.metadata = append(s.metadata, v.Content)
				}
			case *node.Paragraph:
				if s.paragraph == "" && v.Level == node.ParagraphPlain && v.Content != "" {
					s.paragraph = node.Truncate(v.Content, titleParagraphLength)
				}
			}
		}
	}
	return s
}

func (s titleSignals) empty() bool {
	return len(s.headings) == 0 && len(s.sections) == 0 && len(s.metadata) == 0 && s.paragraph == ""
}

func (s titleSignals) render() string {
	var sb strings.Builder
	block := func(label string, lines []string) {
		if len(lines) == 0 {
			return
		}
		sb.WriteString(label)
		sb.WriteString(":\n")
		for _, l := range lines {
			sb.WriteString("- ")
			sb.WriteString(l)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	block("Headings", s.headings)
	block("Sections", s.sections)
	block("Metadata", s.metadata)
	if s.paragraph != "" {
		sb.WriteString("First paragraph:\n")
		sb.WriteString(s.paragraph)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// InferTitle asks the model for a document title from the first headings,
// section descriptions, metadata and opening paragraph. Without any of those
// it returns no title and makes no call.
func InferTitle(ctx context.Context, asker Asker, pages []node.Page, params TitleParams) (string, bool, error) {
	signals := collectTitleSignals(pages)
	if signals.empty() {
		return "", false, nil
	}

	answer, err := asker.Ask(ctx, model.Request{
		Model:   params.Model,
		System:  model.TitlePrompt,
		Text:    signals.render(),
		Timeout: params.Timeout,
	})
	if err != nil {
		return "", false, err
	}
	title := cleanTitle(answer)
	return title, title != "", nil
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 6 && strings.EqualFold(s[:6], "title:") {
		s = s[6:]
	}
	return strings.Trim(strings.TrimSpace(s), `"'`+"`")
}
