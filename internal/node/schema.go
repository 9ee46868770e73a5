package node

// Schema returns the JSON schema of a page's node list in the flat wire
// form. Variant-specific fields are optional; the type enum selects which
// ones apply.
func Schema() map[string]any {
	types := make([]any, 0, len(AllTypes))
	for _, t := range AllTypes {
		types = append(types, string(t))
	}
	levels := make([]any, 0, 18)
	for _, l := range headingLevels {
		levels = append(levels, l)
	}
	for _, l := range listLevels {
		levels = append(levels, l)
	}
	for _, l := range paragraphLevels {
		levels = append(levels, l)
	}
	kinds := make([]any, 0, len(imageKinds)+len(tableKinds))
	for _, k := range imageKinds {
		kinds = append(kinds, k)
	}
	for _, k := range tableKinds {
		kinds = append(kinds, k)
	}

	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type":         map[string]any{"type": "string", "enum": types, "description": "Node variant."},
				"id":           str("Identifier unique within the page."),
				"parent_id":    str("Id of the enclosing section node; omit for top-level content, headers, footers and metadata."),
				"description":  str("Section summary, or the description of an image or table."),
				"level":        map[string]any{"type": "string", "enum": levels, "description": "h1-h6 for headings, l1-l6 for list items and TOC entries, role for paragraphs."},
				"content":      str("Verbatim text content. For tables, a textual grid rendering."),
				"continuation": map[string]any{"type": "boolean", "description": "True when the node continues from the previous page."},
				"title":        str("TOC entry title."),
				"target_page":  map[string]any{"type": "integer", "description": "Page number a TOC entry points to."},
				"kind":         map[string]any{"type": "string", "enum": kinds, "description": "Image or table classification."},
				"bbox": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"description": "[xmin, ymin, xmax, ymax] of an image or table region.",
				},
				"caption": str("Printed caption of an image or table."),
			},
			"required": []any{"type", "id"},
		},
	}
}
