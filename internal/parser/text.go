package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// TextParser handles plain text. Blank lines separate paragraphs; a single
// line underlined with "===" or "---" is a level 1 or 2 heading.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var o outline
	var lines []string
	flush := func() {
		defer func() { lines = lines[:0] }()
		if len(lines) == 2 {
			if level, ok := underline(lines[1]); ok {
				o.heading(level, lines[0])
				return
			}
		}
		o.block(strings.Join(lines, "\n"))
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		lines = append(lines, line)
		if _, ok := underline(line); ok && len(lines) == 2 {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return o.tree(titleFromFilename(filename)), nil
}

// underline reports whether line is a setext heading underline.
func underline(line string) (level int, ok bool) {
	line = strings.TrimSpace(line)
	if len(line) < 3 {
		return 0, false
	}
	switch {
	case strings.Trim(line, "=") == "":
		return 1, true
	case strings.Trim(line, "-") == "":
		return 2, true
	}
	return 0, false
}
