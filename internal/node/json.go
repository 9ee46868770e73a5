package node

import (
	"encoding/json"
	"fmt"
)

// wireNode is the flat JSON shape shared by model output and the API.
type wireNode struct {
	Type            Type      `json:"type"`
	ID              string    `json:"id"`
	ParentID        string    `json:"parent_id,omitempty"`
	Description     string    `json:"description,omitempty"`
	Level           string    `json:"level,omitempty"`
	Content         string    `json:"content,omitempty"`
	Continuation    bool      `json:"continuation,omitempty"`
	Title           string    `json:"title,omitempty"`
	TargetPage      *int      `json:"target_page,omitempty"`
	TargetSectionID string    `json:"target_section_id,omitempty"`
	Kind            string    `json:"kind,omitempty"`
	BBox            []float64 `json:"bbox,omitempty"`
	Caption         string    `json:"caption,omitempty"`
	ImageData       []byte    `json:"image_data,omitempty"`
}

// MarshalJSON writes the flat, type-discriminated form.
func (n Node) MarshalJSON() ([]byte, error) {
	w := wireNode{ID: n.ID, ParentID: n.ParentID}
	switch v := n.Content.(type) {
	case *Section:
		w.Type, w.Description = TypeSection, v.Description
	case *Heading:
		w.Type, w.Level, w.Content = TypeHeading, string(v.Level), v.Content
	case *Paragraph:
		w.Type, w.Level, w.Content, w.Continuation = TypeParagraph, string(v.Level), v.Content, v.Continuation
	case *ListItem:
		w.Type, w.Level, w.Content, w.Continuation = TypeListItem, string(v.Level), v.Content, v.Continuation
	case *TocEntry:
		w.Type, w.Title, w.Description, w.Level = TypeTocEntry, v.Title, v.Description, string(v.Level)
		w.TargetPage, w.TargetSectionID = v.TargetPage, v.TargetSectionID
	case *Image:
		w.Type, w.Kind, w.BBox = TypeImage, string(v.Kind), boxToWire(v.BBox)
		w.Caption, w.Description, w.Continuation, w.ImageData = v.Caption, v.Description, v.Continuation, v.ImageData
	case *Table:
		w.Type, w.Kind, w.BBox = TypeTable, string(v.Kind), boxToWire(v.BBox)
		w.Caption, w.Description, w.Content = v.Caption, v.Description, v.Content
		w.Continuation, w.ImageData = v.Continuation, v.ImageData
	case *Header:
		w.Type, w.Content, w.ParentID = TypeHeader, v.Content, ""
	case *Footer:
		w.Type, w.Content, w.ParentID = TypeFooter, v.Content, ""
	case *Metadata:
		w.Type, w.Content, w.ParentID = TypeMetadata, v.Content, ""
	default:
		return nil, fmt.Errorf("node %q: no content", n.ID)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the flat form. Unknown types are an error.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	n.ID = w.ID
	n.ParentID = w.ParentID
	switch w.Type {
	case TypeSection:
		n.Content = &Section{Description: w.Description}
	case TypeHeading:
		n.Content = &Heading{Level: HeadingLevel(w.Level), Content: w.Content}
	case TypeParagraph:
		n.Content = &Paragraph{Level: ParagraphLevel(w.Level), Content: w.Content, Continuation: w.Continuation}
	case TypeListItem:
		n.Content = &ListItem{Level: ListLevel(w.Level), Content: w.Content, Continuation: w.Continuation}
	case TypeTocEntry:
		n.Content = &TocEntry{
			Title:           w.Title,
			Description:     w.Description,
			TargetPage:      w.TargetPage,
			TargetSectionID: w.TargetSectionID,
			Level:           ListLevel(w.Level),
		}
	case TypeImage:
		box, err := boxFromWire(w.BBox)
		if err != nil {
			return fmt.Errorf("node %q: %w", w.ID, err)
		}
		n.Content = &Image{
			Kind:         ImageKind(w.Kind),
			BBox:         box,
			Caption:      w.Caption,
			Description:  w.Description,
			Continuation: w.Continuation,
			ImageData:    w.ImageData,
		}
	case TypeTable:
		box, err := boxFromWire(w.BBox)
		if err != nil {
			return fmt.Errorf("node %q: %w", w.ID, err)
		}
		n.Content = &Table{
			Kind:         TableKind(w.Kind),
			BBox:         box,
			Caption:      w.Caption,
			Description:  w.Description,
			Content:      w.Content,
			Continuation: w.Continuation,
			ImageData:    w.ImageData,
		}
	case TypeHeader:
		n.ParentID, n.Content = "", &Header{Content: w.Content}
	case TypeFooter:
		n.ParentID, n.Content = "", &Footer{Content: w.Content}
	case TypeMetadata:
		n.ParentID, n.Content = "", &Metadata{Content: w.Content}
	default:
		return fmt.Errorf("node %q: unknown type %q", w.ID, w.Type)
	}
	return nil
}

func boxToWire(b *BBox) []float64 {
	if b == nil {
		return nil
	}
	return []float64{float64(b[0]), float64(b[1]), float64(b[2]), float64(b[3])}
}

// boxFromWire truncates model coordinates to integers. A missing box decodes
// as nil; [0,0,0,0] is a real box at the origin.
func boxFromWire(v []float64) (*BBox, error) {
	if len(v) == 0 {
		return nil, nil
	}
	if len(v) != 4 {
		return nil, fmt.Errorf("bbox needs 4 coordinates, got %d", len(v))
	}
	var b BBox
	for i, c := range v {
		b[i] = int(c)
	}
	return &b, nil
}

// DecodeNodes parses a JSON array of nodes, skipping entries that fail to
// decode. It returns the decoded nodes and the number skipped.
func DecodeNodes(data []byte) ([]Node, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, err
	}
	nodes := make([]Node, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		var n Node
		if err := json.Unmarshal(r, &n); err != nil {
			skipped++
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, skipped, nil
}
