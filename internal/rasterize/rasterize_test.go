package rasterize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgallion1/docstruct/internal/raster"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRasterizer() *Rasterizer {
	return New("", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// line lays out n glyphs from (x,y) stepping by (dx,dy).
func line(n int, x, y, dx, dy float64) []Glyph {
	out := make([]Glyph, n)
	for i := range out {
		out[i] = Glyph{X: x + float64(i)*dx, Y: y + float64(i)*dy, FontSize: 10}
	}
	return out
}

func TestTextRotation(t *testing.T) {
	tests := []struct {
		name   string
		glyphs []Glyph
		want   int
	}{
		{"left to right", line(20, 72, 700, 6, 0), 0},
		{"right to left", line(20, 500, 700, -6, 0), 180},
		{"top to bottom", line(20, 72, 700, 0, -6), 90},
		{"bottom to top", line(20, 72, 100, 0, 6), 270},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := TextRotation(tc.glyphs)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTextRotation_IgnoresLineJumps(t *testing.T) {
	var glyphs []Glyph
	for row := 0; row < 5; row++ {
		glyphs = append(glyphs, line(10, 72, 700-float64(row)*14, 6, 0)...)
	}
	got, ok := TextRotation(glyphs)
	require.True(t, ok)
	assert.Equal(t, 0, got)
}

func TestTextRotation_TooLittleText(t *testing.T) {
	_, ok := TextRotation(line(3, 72, 700, 6, 0))
	assert.False(t, ok)
	_, ok = TextRotation(nil)
	assert.False(t, ok)
}

// buildPDF assembles a PDF from object bodies numbered from 1, with object
// 1 as the catalog.
func buildPDF(objs ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestPageRotate_Inherited(t *testing.T) {
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 /Rotate 90 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R >>",
		"<< /Type /Page /Parent 2 0 R /Rotate 180 >>",
	)
	r, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, 2, r.NumPage())

	assert.Equal(t, 90, pageRotate(r.Page(1).V), "inherited from the page tree")
	assert.Equal(t, 180, pageRotate(r.Page(2).V), "the page's own entry wins")
}

func TestCorrection(t *testing.T) {
	tests := []struct {
		rotate, text, want int
	}{
		{0, 0, 0},
		{0, 90, 270},
		{0, 180, 180},
		{0, 270, 90},
		{90, 270, 0},
		{90, 0, 270},
		{-90, 0, 90},
		{270, 180, 270},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Correction(tc.rotate, tc.text), "rotate=%d text=%d", tc.rotate, tc.text)
	}
}

func TestCollectPages_NumericOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page-10.png", "page-02.png", "page-1.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	paths, err := collectPages(dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "page-1.png", filepath.Base(paths[0]))
	assert.Equal(t, "page-02.png", filepath.Base(paths[1]))
	assert.Equal(t, "page-10.png", filepath.Base(paths[2]))
}

func TestPageCount_ErrorKinds(t *testing.T) {
	z := testRasterizer()

	_, err := z.PageCount(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, ErrNotFound)

	garbage := filepath.Join(t.TempDir(), "garbage.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("this is not a pdf"), 0o644))
	_, err = z.PageCount(garbage)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(errors.New("encrypted PDF: invalid password")), ErrEncrypted)
	assert.ErrorIs(t, classify(os.ErrNotExist), ErrNotFound)
	assert.ErrorIs(t, classify(errors.New("malformed xref")), ErrCorrupt)

	assert.ErrorIs(t, classifyPoppler("Command Line Error: Incorrect password", errors.New("exit 1")), ErrEncrypted)
	assert.ErrorIs(t, classifyPoppler("I/O Error: Couldn't open file 'x.pdf'", errors.New("exit 1")), ErrNotFound)
	assert.ErrorIs(t, classifyPoppler("Syntax Error: broken", errors.New("exit 1")), ErrCorrupt)
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	data, err := raster.EncodePNG(image.NewRGBA(image.Rect(0, 0, 6, 4)))
	require.NoError(t, err)
	good := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(good, data, 0o644))

	img, err := LoadImage(good)
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dx())

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))
	_, err = LoadImage(bad)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = LoadImage(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRaster_PagesAndClose(t *testing.T) {
	dir := t.TempDir()
	for i, w := range []int{3, 5} {
		data, err := raster.EncodePNG(image.NewRGBA(image.Rect(0, 0, w, 2)))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "page-"+string(rune('1'+i))+".png"), data, 0o644))
	}
	paths, err := collectPages(dir)
	require.NoError(t, err)

	r := &Raster{dir: dir, paths: paths}
	assert.Equal(t, 2, r.Len())
	imgs, err := r.Images()
	require.NoError(t, err)
	assert.Equal(t, 3, imgs[0].Bounds().Dx())
	assert.Equal(t, 5, imgs[1].Bounds().Dx())

	_, err = r.Page(2)
	assert.Error(t, err)

	require.NoError(t, r.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
