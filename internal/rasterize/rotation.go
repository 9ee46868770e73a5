package rasterize

import (
	"fmt"
	"math"

	pdflib "github.com/ledongthuc/pdf"
)

// minGlyphVotes is the number of glyph steps a page needs before its text
// direction is trusted.
const minGlyphVotes = 8

// maxTreeDepth bounds the walk up the page tree.
const maxTreeDepth = 32

// Glyph is a positioned character in PDF user space, y growing upward.
type Glyph struct {
	X, Y     float64
	FontSize float64
}

// DetectRotations returns one clockwise correction (0, 90, 180 or 270) per
// page: the rotation that makes the rendered page's text run left to right.
// pdftoppm applies the page's /Rotate entry, so it is folded into the hint.
func (z *Rasterizer) DetectRotations(path string) (hints []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			hints, err = nil, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, classify(err)
	}
	defer f.Close()

	n := reader.NumPage()
	hints = make([]int, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rotate := pageRotate(page.V)
		texts := page.Content().Text
		glyphs := make([]Glyph, len(texts))
		for j, t := range texts {
			glyphs[j] = Glyph{X: t.X, Y: t.Y, FontSize: t.FontSize}
		}
		textRot, ok := TextRotation(glyphs)
		if !ok {
			continue
		}
		hints[i-1] = Correction(rotate, textRot)
	}
	return hints, nil
}

// pageRotate reads /Rotate from the page or, since the entry is inheritable,
// from the nearest ancestor in the page tree that sets it.
func pageRotate(page pdflib.Value) int {
	v := page
	for range maxTreeDepth {
		if r := v.Key("Rotate"); !r.IsNull() {
			return int(r.Int64())
		}
		v = v.Key("Parent")
		if v.IsNull() {
			break
		}
	}
	return 0
}

// TextRotation reports how far, clockwise, a page's text is turned away from
// upright in content space, by voting on the direction of each step between
// consecutive glyphs. Steps longer than a few font sizes are line or column
// jumps and do not vote. ok is false when there is too little text.
func TextRotation(glyphs []Glyph) (degrees int, ok bool) {
	var votes [4]int // 0, 90, 180, 270
	total := 0
	for i := 1; i < len(glyphs); i++ {
		dx := glyphs[i].X - glyphs[i-1].X
		dy := glyphs[i].Y - glyphs[i-1].Y
		step := math.Hypot(dx, dy)
		limit := 3 * math.Max(glyphs[i-1].FontSize, 1)
		if step < 1e-3 || step > limit {
			continue
		}
		switch {
		case math.Abs(dx) >= math.Abs(dy) && dx > 0:
			votes[0]++
		case math.Abs(dx) >= math.Abs(dy):
			votes[2]++
		case dy < 0:
			// Text running down the page reads as turned clockwise.
			votes[1]++
		default:
			votes[3]++
		}
		total++
	}
	if total < minGlyphVotes {
		return 0, false
	}

	best := 0
	for d := 1; d < 4; d++ {
		if votes[d] > votes[best] {
			best = d
		}
	}
	return best * 90, true
}

// Correction combines the page's /Rotate entry with the content text
// rotation into the clockwise rotation that makes the rendered page upright.
func Correction(pageRotate, textRotation int) int {
	shown := ((pageRotate+textRotation)%360 + 360) % 360
	shown -= shown % 90
	return (360 - shown) % 360
}
