// Package rasterize turns documents into page rasters and reads the PDF-level
// facts the pipeline needs: page count, rotation hints and metadata.
package rasterize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/docstruct/internal/raster"
	pdflib "github.com/ledongthuc/pdf"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrCorrupt   = errors.New("document is corrupt or unreadable")
	ErrEncrypted = errors.New("document is encrypted")
)

// Rasterizer renders PDF pages with poppler's pdftoppm.
type Rasterizer struct {
	Binary  string
	TempDir string
	log     *slog.Logger
}

func New(binary, tempDir string, log *slog.Logger) *Rasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	return &Rasterizer{Binary: binary, TempDir: tempDir, log: log}
}

// Raster is the ordered set of rendered pages of one document. Pages are
// decoded from disk on access; Close removes the files.
type Raster struct {
	dir   string
	paths []string
}

func (r *Raster) Len() int { return len(r.paths) }

// Page decodes page i (0-based).
func (r *Raster) Page(i int) (image.Image, error) {
	if i < 0 || i >= len(r.paths) {
		return nil, fmt.Errorf("page %d out of range [0,%d)", i, len(r.paths))
	}
	f, err := os.Open(r.paths[i])
	if err != nil {
		return nil, fmt.Errorf("open page %d: %w", i, err)
	}
	defer f.Close()
	img, _, err := raster.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", i, err)
	}
	return img, nil
}

// Images decodes every page in order.
func (r *Raster) Images() ([]image.Image, error) {
	out := make([]image.Image, len(r.paths))
	for i := range r.paths {
		img, err := r.Page(i)
		if err != nil {
			return nil, err
		}
		out[i] = img
	}
	return out, nil
}

func (r *Raster) Close() error {
	if r.dir == "" {
		return nil
	}
	return os.RemoveAll(r.dir)
}

// Rasterize renders every page of the PDF at path to PNG at dpi.
func (z *Rasterizer) Rasterize(ctx context.Context, path string, dpi int) (*Raster, error) {
	count, err := z.PageCount(path)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(z.TempDir, "docstruct-raster-*")
	if err != nil {
		return nil, fmt.Errorf("create raster dir: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, z.Binary, "-png", "-r", strconv.Itoa(dpi), path, filepath.Join(dir, "page"))
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.RemoveAll(dir)
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", z.Binary, err)
		}
		return nil, classifyPoppler(stderr.String(), err)
	}

	paths, err := collectPages(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if len(paths) == 0 {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: no pages rendered", ErrCorrupt)
	}
	if len(paths) != count {
		z.log.Warn("rendered page count differs from document", "path", path, "rendered", len(paths), "pages", count)
	}
	z.log.Debug("rasterized document", "path", path, "pages", len(paths), "dpi", dpi)
	return &Raster{dir: dir, paths: paths}, nil
}

// RenderPages rasterizes the PDF at path and decodes every page, removing
// the rendered files before returning.
func (z *Rasterizer) RenderPages(ctx context.Context, path string, dpi int) ([]image.Image, error) {
	r, err := z.Rasterize(ctx, path, dpi)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Images()
}

// PageCount opens the PDF and classifies open failures into the package
// error kinds.
func (z *Rasterizer) PageCount(path string) (n int, err error) {
	if _, err := os.Stat(path); err != nil {
		return 0, classify(err)
	}
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return 0, classify(err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}

// LoadImage reads a single-image source as a one-page raster.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classify(err)
	}
	defer f.Close()
	img, _, err := raster.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return img, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, pdflib.ErrInvalidPassword), strings.Contains(strings.ToLower(err.Error()), "encrypt"):
		return fmt.Errorf("%w: %v", ErrEncrypted, err)
	default:
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
}

func classifyPoppler(stderr string, err error) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "couldn't open file"):
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case strings.Contains(lower, "incorrect password"), strings.Contains(lower, "encrypted"):
		return fmt.Errorf("%w: %s", ErrEncrypted, msg)
	default:
		return fmt.Errorf("%w: pdftoppm: %v: %s", ErrCorrupt, err, msg)
	}
}

var pageFileRe = regexp.MustCompile(`-(\d+)\.png$`)

// collectPages lists pdftoppm output ordered by page number. pdftoppm pads
// the number to the width of the page count, so lexical order is not
// trusted.
func collectPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read raster dir: %w", err)
	}
	type page struct {
		num  int
		path string
	}
	var pages []page
	for _, e := range entries {
		m := pageFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pages = append(pages, page{num: num, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.path
	}
	return out, nil
}
