package parser

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// csvBatchRows is how many data rows go into one section. Each section
// repeats the header row so it stands alone on a virtual page.
const csvBatchRows = 20

// CSVParser renders CSV files as Markdown tables, one section per batch of
// rows.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	var o outline
	if len(records) == 1 {
		o.block(markdownTable(records))
	}
	if len(records) > 1 {
		header, rows := records[0], records[1:]
		for i := 0; i < len(rows); i += csvBatchRows {
			end := min(i+csvBatchRows, len(rows))
			batch := append([][]string{header}, rows[i:end]...)
			// Spreadsheet row numbers: the header is row 1.
			o.heading(1, fmt.Sprintf("Rows %d-%d", i+2, end+1))
			o.block(markdownTable(batch))
		}
	}
	return o.tree(titleFromFilename(filename)), nil
}
