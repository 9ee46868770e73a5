package model

import (
	"fmt"
	"strings"
)

// ExtractionPrompt is the system instruction for page extraction.
const ExtractionPrompt = `You convert one page of a document into a flat JSON array of typed nodes in reading order.

Node types:
- "section": a logical section of the page. Give it an "id" and a "description" summarising what it contains. Other nodes reference it through "parent_id".
- "heading": "level" h1-h6 and the verbatim "content".
- "paragraph": "level" is one of paragraph, citation, code, aside, abstract, footnote; "content" is the verbatim text. Set "continuation": true when the paragraph continues from the previous page.
- "list_item": "level" l1-l6 by nesting depth, verbatim "content", optional "continuation".
- "toc_entry": table-of-contents line with "title", optional "description", optional "target_page" and "level" l1-l6.
- "image": "kind" (photo, diagram, chart, logo, icon, badge, illustration, screenshot, map, formula, signature, unknown), "bbox" [xmin, ymin, xmax, ymax] around the region, optional "caption" and a non-empty "description".
- "table": "kind" (data, form, layout, comparison, schedule), "bbox", optional "caption", a non-empty "description" and "content" with the table as text rows separated by newlines and cells by " | ".
- "header", "footer", "metadata": running headers, running footers, and document metadata such as authors or dates, with "content" only and no "parent_id".

Rules:
- Every node has an "id" unique within the page.
- Keep the page's reading order.
- Copy text verbatim. Do not summarise "content".
- Do not invent content that is not on the page.
- Return an empty array [] for a blank page.

Respond with ONLY the JSON array, no other text.`

// ExtractionTask describes the extraction job to the evaluator.
const ExtractionTask = `A model was given one document page and asked to produce a flat list of typed nodes (sections, headings, paragraphs, list items, TOC entries, images, tables, headers, footers, metadata) in reading order, with sections described and content copied verbatim. The listing below renders that output one node per line.`

// Criterion is one named quality criterion for evaluation.
type Criterion struct {
	Name        string
	Description string
}

// DefaultCriteria are the criteria used by the quality pass.
var DefaultCriteria = []Criterion{
	{Name: "completeness", Description: "All visible content on the page is represented, with nothing omitted or truncated beyond rendering limits."},
	{Name: "structural correctness", Description: "Node types, heading and list levels, and section grouping match the page layout and reading order."},
	{Name: "description quality", Description: "Section, image and table descriptions are specific and informative, not generic placeholders."},
}

const evaluationPrompt = `You are a strict reviewer of document extraction output. Score the output from 0.0 to 1.0 against the criteria.

Respond with ONLY a JSON object:
{"score": <number 0-1>, "passed": <bool>, "summary": "<one sentence>", "issues": ["<issue>", ...]}`

// TitlePrompt is the system instruction for title inference.
const TitlePrompt = `You infer the title of a document from signals extracted from its pages. Answer with the title only, on one line, without quotes or commentary. If no sensible title can be inferred, answer with an empty line.`

// buildEvaluationPrompt assembles the evaluator's user message.
func buildEvaluationPrompt(task, content string, criteria []Criterion) string {
	var sb strings.Builder
	sb.WriteString("Task:\n")
	sb.WriteString(task)
	sb.WriteString("\n\nCriteria:\n")
	for _, c := range criteria {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, c.Description)
	}
	sb.WriteString("\n---\n")
	sb.WriteString(content)
	return sb.String()
}

// buildFeedbackPrompt appends the previous attempt's evaluation to the
// original user text for a refinement attempt.
func buildFeedbackPrompt(text string, eval *Evaluation, previous string) string {
	var sb strings.Builder
	if text != "" {
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "A previous extraction of this page scored %.2f. %s\n", eval.Score, eval.Summary)
	if len(eval.Issues) > 0 {
		sb.WriteString("Fix these issues:\n")
		for _, issue := range eval.Issues {
			sb.WriteString("- ")
			sb.WriteString(issue)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nPrevious output:\n")
	sb.WriteString(previous)
	sb.WriteString("\n\nProduce a corrected, complete node array for the page.")
	return sb.String()
}
