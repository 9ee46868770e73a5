// Package node defines the typed document nodes produced by extraction.
package node

// Type is the wire discriminator of a node variant.
type Type string

const (
	TypeSection   Type = "section"
	TypeHeading   Type = "heading"
	TypeParagraph Type = "paragraph"
	TypeListItem  Type = "list_item"
	TypeTocEntry  Type = "toc_entry"
	TypeImage     Type = "image"
	TypeTable     Type = "table"
	TypeHeader    Type = "header"
	TypeFooter    Type = "footer"
	TypeMetadata  Type = "metadata"
)

// AllTypes lists every variant discriminator in schema order.
var AllTypes = []Type{
	TypeSection, TypeHeading, TypeParagraph, TypeListItem, TypeTocEntry,
	TypeImage, TypeTable, TypeHeader, TypeFooter, TypeMetadata,
}

// HeadingLevel is h1..h6.
type HeadingLevel string

// ParagraphLevel classifies a paragraph's role.
type ParagraphLevel string

const (
	ParagraphPlain    ParagraphLevel = "paragraph"
	ParagraphCitation ParagraphLevel = "citation"
	ParagraphCode     ParagraphLevel = "code"
	ParagraphAside    ParagraphLevel = "aside"
	ParagraphAbstract ParagraphLevel = "abstract"
	ParagraphFootnote ParagraphLevel = "footnote"
)

// ListLevel is l1..l6, used by list items and TOC entries.
type ListLevel string

// ImageKind is the closed set of image classifications.
type ImageKind string

const (
	ImagePhoto        ImageKind = "photo"
	ImageDiagram      ImageKind = "diagram"
	ImageChart        ImageKind = "chart"
	ImageLogo         ImageKind = "logo"
	ImageIcon         ImageKind = "icon"
	ImageBadge        ImageKind = "badge"
	ImageIllustration ImageKind = "illustration"
	ImageScreenshot   ImageKind = "screenshot"
	ImageMap          ImageKind = "map"
	ImageFormula      ImageKind = "formula"
	ImageSignature    ImageKind = "signature"
	ImageUnknown      ImageKind = "unknown"
)

// TableKind is the closed set of table classifications.
type TableKind string

const (
	TableData       TableKind = "data"
	TableForm       TableKind = "form"
	TableLayout     TableKind = "layout"
	TableComparison TableKind = "comparison"
	TableSchedule   TableKind = "schedule"
)

var (
	headingLevels   = []string{"h1", "h2", "h3", "h4", "h5", "h6"}
	listLevels      = []string{"l1", "l2", "l3", "l4", "l5", "l6"}
	paragraphLevels = []string{"paragraph", "citation", "code", "aside", "abstract", "footnote"}
	imageKinds      = []string{
		"photo", "diagram", "chart", "logo", "icon", "badge",
		"illustration", "screenshot", "map", "formula", "signature", "unknown",
	}
	tableKinds = []string{"data", "form", "layout", "comparison", "schedule"}
)

// BBox is [xmin, ymin, xmax, ymax].
type BBox [4]int

// Valid reports whether the box has positive width and height.
func (b BBox) Valid() bool {
	return b[0] < b[2] && b[1] < b[3]
}

// Node is one typed unit of extracted content. ParentID references the ID
// of a Section node on the same page, or is empty for top-level content.
type Node struct {
	ID       string
	ParentID string
	Content  Variant
}

// Type returns the variant discriminator, or "" for an empty node.
func (n Node) Type() Type {
	if n.Content == nil {
		return ""
	}
	return n.Content.Type()
}

// Variant is implemented only by the ten node payload types in this package.
type Variant interface {
	Type() Type
	variant()
}

// Visual is implemented by variants that locate a region of the page raster.
type Visual interface {
	Variant
	// Box returns the region the model located, or false when it gave none.
	Box() (BBox, bool)
	// WithCrop returns a copy carrying the pixel box and encoded crop.
	WithCrop(box BBox, data []byte) Visual
}

type Section struct {
	Description string
}

type Heading struct {
	Level   HeadingLevel
	Content string
}

type Paragraph struct {
	Level        ParagraphLevel
	Content      string
	Continuation bool
}

type ListItem struct {
	Level        ListLevel
	Content      string
	Continuation bool
}

// TocEntry is a table-of-contents line. TargetSectionID is filled only by a
// later linking pass and is always empty here.
type TocEntry struct {
	Title           string
	Description     string
	TargetPage      *int
	TargetSectionID string
	Level           ListLevel
}

type Image struct {
	Kind         ImageKind
	BBox         *BBox // nil when the model gave no box
	Caption      string
	Description  string
	Continuation bool
	ImageData    []byte
}

type Table struct {
	Kind         TableKind
	BBox         *BBox
	Caption      string
	Description  string
	Content      string
	Continuation bool
	ImageData    []byte
}

type Header struct{ Content string }
type Footer struct{ Content string }
type Metadata struct{ Content string }

func (*Section) Type() Type   { return TypeSection }
func (*Heading) Type() Type   { return TypeHeading }
func (*Paragraph) Type() Type { return TypeParagraph }
func (*ListItem) Type() Type  { return TypeListItem }
func (*TocEntry) Type() Type  { return TypeTocEntry }
func (*Image) Type() Type     { return TypeImage }
func (*Table) Type() Type     { return TypeTable }
func (*Header) Type() Type    { return TypeHeader }
func (*Footer) Type() Type    { return TypeFooter }
func (*Metadata) Type() Type  { return TypeMetadata }

func (*Section) variant()   {}
func (*Heading) variant()   {}
func (*Paragraph) variant() {}
func (*ListItem) variant()  {}
func (*TocEntry) variant()  {}
func (*Image) variant()     {}
func (*Table) variant()     {}
func (*Header) variant()    {}
func (*Footer) variant()    {}
func (*Metadata) variant()  {}

func (v *Image) Box() (BBox, bool) { return derefBox(v.BBox) }
func (v *Table) Box() (BBox, bool) { return derefBox(v.BBox) }

func derefBox(b *BBox) (BBox, bool) {
	if b == nil {
		return BBox{}, false
	}
	return *b, true
}

func (v *Image) WithCrop(box BBox, data []byte) Visual {
	c := *v
	c.BBox = &box
	c.ImageData = data
	return &c
}

func (v *Table) WithCrop(box BBox, data []byte) Visual {
	c := *v
	c.BBox = &box
	c.ImageData = data
	return &c
}

// HasParent reports whether nodes of type t may reference a parent section.
func HasParent(t Type) bool {
	switch t {
	case TypeHeader, TypeFooter, TypeMetadata:
		return false
	}
	return true
}

// Page is the ordered node list of one document page.
type Page struct {
	Index int    `json:"index"`
	Nodes []Node `json:"nodes"`
}
