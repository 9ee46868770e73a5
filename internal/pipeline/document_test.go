package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docstruct/internal/model"
	"github.com/dgallion1/docstruct/internal/node"
	"github.com/dgallion1/docstruct/internal/raster"
	"github.com/dgallion1/docstruct/internal/rasterize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func testProcessor(fm *fakeModel, reader PageReader, cache Cache) *Processor {
	return NewProcessor(fm, reader, cache, raster.ScaleTable{"gemini-": 1000}, ProcessorConfig{
		Model:          "claude-sonnet-4-5",
		InferTitle:     true,
		TextPageTokens: 50,
		MaxConcurrency: 2,
		Timeout:        time.Minute,
	}, testLogger())
}

func TestSourceKindFor(t *testing.T) {
	tests := map[string]SourceKind{
		"a.pdf":  KindPDF,
		"B.PDF":  KindPDF,
		"c.png":  KindImage,
		"d.jpeg": KindImage,
		"e.webp": KindImage,
		"f.tiff": KindImage,
		"g.md":   KindText,
		"h.docx": KindText,
		"i.html": KindText,
		"j.txt":  KindText,
	}
	for name, want := range tests {
		got, err := SourceKindFor(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := SourceKindFor("archive.zip")
	assert.Error(t, err)
}

func TestProcess_TextSourceAndCache(t *testing.T) {
	md := "# Guide\n\nFirst part of the guide.\n\n## Setup\n\n" +
		"Install the tool. Configure the tool. Run the tool. Check the output. Repeat as needed.\n\n" +
		"## Usage\n\nCall it with a file. It prints nodes. It never writes back. Errors go to stderr. That is all.\n"
	path := writeFile(t, "guide.md", []byte(md))

	fm := newFakeModel()
	cache := newMemCache()
	p := testProcessor(fm, &fakeReader{}, cache)

	var mu sync.Mutex
	var phases []JobStatus
	total := 0
	doc, err := p.Process(context.Background(), path, Options{Hooks: Hooks{
		Phase: func(s JobStatus) { mu.Lock(); phases = append(phases, s); mu.Unlock() },
		Pages: func(n int) { total = n },
	}})
	require.NoError(t, err)

	assert.Equal(t, KindText, doc.Kind)
	assert.Equal(t, "guide.md", doc.Source)
	assert.Equal(t, "claude-sonnet-4-5", doc.Model)
	assert.Equal(t, ContentHashHex([]byte(md)), doc.ContentHash)
	assert.False(t, doc.Cached)
	assert.Greater(t, len(doc.Pages), 1, "small page budget splits the text")
	assert.Equal(t, len(doc.Pages), total)
	for i, pg := range doc.Pages {
		assert.Equal(t, i, pg.Index)
	}
	first := doc.Pages[0].Nodes[0].Content.(*node.Paragraph).Content
	assert.Contains(t, first, `Document: "guide"`)
	assert.Contains(t, first, "# Guide")
	assert.Equal(t, "Fake Title", doc.Title)
	assert.Equal(t, TitleInferred, doc.TitleSource)
	assert.Equal(t, []JobStatus{StatusParsing, StatusExtracting, StatusTitling}, phases)

	calls, _, _, asks := fm.counts()
	assert.Equal(t, len(doc.Pages), calls)
	assert.Equal(t, 1, asks)

	again, err := p.Process(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, doc.Title, again.Title)
	assert.Len(t, again.Pages, len(doc.Pages))
	calls2, _, _, asks2 := fm.counts()
	assert.Equal(t, calls, calls2, "cache hit skips extraction")
	assert.Equal(t, asks, asks2)

	other, err := p.Process(context.Background(), path, Options{Model: "gemini-2.5-pro"})
	require.NoError(t, err)
	assert.False(t, other.Cached, "another model is another cache entry")
}

func TestProcess_ImageWithQuality(t *testing.T) {
	data, err := raster.EncodePNG(solidImage(40, 30, color.White))
	require.NoError(t, err)
	path := writeFile(t, "scan.png", data)

	fm := newFakeModel()
	fm.structured = func(req model.Request) ([]node.Node, error) {
		if len(req.Image) == 0 {
			return nil, errors.New("expected an image")
		}
		return []node.Node{para("p", "bad scan")}, nil
	}
	fm.evaluate = scoreByContent
	p := testProcessor(fm, &fakeReader{}, nil)

	doc, err := p.Process(context.Background(), path, Options{Quality: true, Title: "Given"})
	require.NoError(t, err)
	assert.Equal(t, KindImage, doc.Kind)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, "refined", doc.Pages[0].Nodes[0].Content.(*node.Paragraph).Content)
	require.NotNil(t, doc.Quality)
	assert.True(t, doc.Quality.Pages[0].Refined)
	assert.Equal(t, "Given", doc.Title)
	assert.Equal(t, TitleProvided, doc.TitleSource)

	_, _, refines, asks := fm.counts()
	assert.Equal(t, 1, refines)
	assert.Zero(t, asks, "a provided title skips inference")
	assert.Equal(t, "claude-sonnet-4-5", fm.refineReqs[0].Model)
}

func TestProcess_PDFSource(t *testing.T) {
	path := writeFile(t, "report.pdf", []byte("%PDF-1.7 fake"))

	var mu sync.Mutex
	var portrait int
	fm := newFakeModel()
	fm.answer = ""
	fm.structured = func(req model.Request) ([]node.Node, error) {
		img, _, err := raster.Decode(bytes.NewReader(req.Image))
		if err != nil {
			return nil, err
		}
		if img.Bounds().Dy() > img.Bounds().Dx() {
			mu.Lock()
			portrait++
			mu.Unlock()
		}
		return []node.Node{para("p", "body")}, nil
	}

	reader := &fakeReader{
		images: []image.Image{solidImage(20, 10, color.White), solidImage(20, 10, color.White)},
		hints:  []int{0, 90},
		info:   &rasterize.Info{Title: "Meta Title", Pages: 2},
	}
	p := testProcessor(fm, reader, nil)

	doc, err := p.Process(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, KindPDF, doc.Kind)
	assert.Len(t, doc.Pages, 2)
	assert.Equal(t, 1, portrait, "only the hinted page is rotated")
	assert.Equal(t, "Meta Title", doc.Title)
	assert.Equal(t, TitleMetadata, doc.TitleSource)
	require.NotNil(t, doc.Metadata)
	assert.Equal(t, 2, doc.Metadata.Pages)
}

func TestProcess_PDFDegradedHints(t *testing.T) {
	path := writeFile(t, "report.pdf", []byte("%PDF-1.7 fake"))
	fm := newFakeModel()
	reader := &fakeReader{
		images:  []image.Image{solidImage(20, 10, color.White)},
		hintErr: errors.New("unreadable content stream"),
		infoErr: errors.New("no info dict"),
	}
	p := testProcessor(fm, reader, nil)

	doc, err := p.Process(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Len(t, doc.Pages, 1)
	assert.Nil(t, doc.Metadata)
}

func TestProcess_RasterizeError(t *testing.T) {
	path := writeFile(t, "locked.pdf", []byte("%PDF"))
	p := testProcessor(newFakeModel(), &fakeReader{renderErr: rasterize.ErrEncrypted}, nil)

	_, err := p.Process(context.Background(), path, Options{})
	assert.ErrorIs(t, err, rasterize.ErrEncrypted)
}

func TestProcess_ExtractionFailure(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("Some notes.\n\nMore notes."))
	fm := newFakeModel()
	fm.structured = func(model.Request) ([]node.Node, error) {
		return nil, errors.New("model unavailable")
	}
	cache := newMemCache()
	p := testProcessor(fm, &fakeReader{}, cache)

	_, err := p.Process(context.Background(), path, Options{})
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, 0, extErr.FailedPage)
	assert.Empty(t, cache.m, "failures are not cached")
}

func TestProcess_UnreadableCacheEntryReplaced(t *testing.T) {
	data := []byte("Some notes.")
	path := writeFile(t, "notes.txt", data)
	cache := newMemCache()
	p := testProcessor(newFakeModel(), &fakeReader{}, cache)
	key := p.cacheKey(ContentHashHex(data), KindText, p.withDefaults(Options{}, path))
	cache.m[key] = []byte("{not json")

	doc, err := p.Process(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.False(t, doc.Cached)
	require.Contains(t, cache.m, key)
	assert.NotEqual(t, "{not json", string(cache.m[key]))
}

func TestProcess_CacheKeyCoversDPI(t *testing.T) {
	path := writeFile(t, "report.pdf", []byte("%PDF-1.7 fake"))
	reader := &fakeReader{images: []image.Image{solidImage(20, 10, color.White)}}
	p := testProcessor(newFakeModel(), reader, newMemCache())

	first, err := p.Process(context.Background(), path, Options{DPI: 72})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	other, err := p.Process(context.Background(), path, Options{DPI: 300})
	require.NoError(t, err)
	assert.False(t, other.Cached, "another DPI renders again")

	again, err := p.Process(context.Background(), path, Options{DPI: 300})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, []int{72, 300}, reader.dpis)
}

func TestProcess_CacheKeyCoversQualityAndTitleSettings(t *testing.T) {
	data := []byte("Some notes.\n\nMore notes.")
	hash := ContentHashHex(data)
	path := writeFile(t, "notes.txt", data)

	build := func(mutate func(*ProcessorConfig)) *Processor {
		cfg := ProcessorConfig{Model: "claude-sonnet-4-5", InferTitle: true, TextPageTokens: 50}
		mutate(&cfg)
		return NewProcessor(newFakeModel(), &fakeReader{}, nil, nil, cfg, testLogger())
	}
	key := func(p *Processor, opts Options) string {
		opts = p.withDefaults(opts, path)
		return p.cacheKey(hash, KindText, opts)
	}

	base := build(func(*ProcessorConfig) {})
	quality := Options{Quality: true}
	baseKey := key(base, quality)
	assert.Equal(t, baseKey, key(build(func(*ProcessorConfig) {}), quality))

	variants := map[string]*Processor{
		"threshold":      build(func(c *ProcessorConfig) { c.Quality.Threshold = 0.95 }),
		"sample size":    build(func(c *ProcessorConfig) { c.Quality.SampleSize = 7 }),
		"refine model":   build(func(c *ProcessorConfig) { c.Quality.RefineModel = "gemini-2.5-pro" }),
		"eval model":     build(func(c *ProcessorConfig) { c.Quality.EvalModel = "gemini-2.5-flash" }),
		"max iterations": build(func(c *ProcessorConfig) { c.Quality.MaxIterations = 3 }),
		"title model":    build(func(c *ProcessorConfig) { c.TitleModel = "claude-haiku-4-5" }),
		"no inference":   build(func(c *ProcessorConfig) { c.InferTitle = false }),
		"page tokens":    build(func(c *ProcessorConfig) { c.TextPageTokens = 500 }),
	}
	for name, p := range variants {
		assert.NotEqual(t, baseKey, key(p, quality), name)
	}

	assert.NotEqual(t, baseKey, key(base, Options{}), "quality pass on and off")
	assert.Equal(t, key(base, Options{}), key(base, Options{Title: "Given"}), "provided titles are applied after lookup")
}

func TestProcess_Errors(t *testing.T) {
	p := testProcessor(newFakeModel(), &fakeReader{}, nil)

	_, err := p.Process(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"), Options{})
	assert.ErrorIs(t, err, rasterize.ErrNotFound)

	_, err = p.Process(context.Background(), writeFile(t, "a.zip", []byte("PK")), Options{})
	assert.Error(t, err)

	_, err = p.Process(context.Background(), writeFile(t, "empty.txt", []byte("   \n\n ")), Options{})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestProcess_FilenameOverridesPath(t *testing.T) {
	path := writeFile(t, "upload-1234", []byte("Plain text body."))
	p := testProcessor(newFakeModel(), &fakeReader{}, nil)

	doc, err := p.Process(context.Background(), path, Options{Filename: "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, KindText, doc.Kind)
	assert.Equal(t, "notes.txt", doc.Source)
}

func TestTextPageContext(t *testing.T) {
	got := textPageContext("Doc", []string{"A", "B"}, "body")
	assert.Equal(t, "Document: \"Doc\"\nSection: A > B\n---\nbody", got)
	assert.Equal(t, "Document: \"Doc\"\n---\nbody", textPageContext("Doc", nil, "body"))
}
