// Package parser turns raw-text sources into a DocTree outline. PDFs and
// images are rasterized instead and never reach this package.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// Parser converts raw document bytes into a DocTree.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
}

var byExtension = map[string]func() Parser{
	".txt":      func() Parser { return &TextParser{} },
	".md":       func() Parser { return &MarkdownParser{} },
	".markdown": func() Parser { return &MarkdownParser{} },
	".csv":      func() Parser { return &CSVParser{} },
	".html":     func() Parser { return &HTMLParser{} },
	".htm":      func() Parser { return &HTMLParser{} },
	".docx":     func() Parser { return &DOCXParser{} },
}

// ForFile returns the parser for a filename's extension.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	newParser, ok := byExtension[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
	return newParser(), nil
}

// IsSupportedExtension reports whether ForFile accepts filename.
func IsSupportedExtension(filename string) bool {
	_, ok := byExtension[strings.ToLower(filepath.Ext(filename))]
	return ok
}
