package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docstruct/internal/chunker"
	"github.com/dgallion1/docstruct/internal/node"
	"github.com/dgallion1/docstruct/internal/parser"
	"github.com/dgallion1/docstruct/internal/raster"
	"github.com/dgallion1/docstruct/internal/rasterize"
	"github.com/dgallion1/docstruct/internal/store"
)

const DefaultDPI = 150

// ErrEmptyDocument is returned for a text source with nothing to extract.
var ErrEmptyDocument = errors.New("document has no extractable content")

// SourceKind is how a source file is turned into pages.
type SourceKind string

const (
	KindPDF   SourceKind = "pdf"
	KindImage SourceKind = "image"
	KindText  SourceKind = "text"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".tif": true, ".tiff": true, ".bmp": true,
}

// SourceKindFor classifies a filename by extension.
func SourceKindFor(filename string) (SourceKind, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return KindPDF, nil
	case imageExtensions[ext]:
		return KindImage, nil
	case parser.IsSupportedExtension(filename):
		return KindText, nil
	}
	return "", fmt.Errorf("unsupported file type %q", ext)
}

// Title sources.
const (
	TitleProvided = "provided"
	TitleInferred = "inferred"
	TitleMetadata = "metadata"
)

// Document is the full result for one source.
type Document struct {
	Title       string          `json:"title,omitempty"`
	TitleSource string          `json:"title_source,omitempty"`
	Source      string          `json:"source"`
	Kind        SourceKind      `json:"kind"`
	ContentHash string          `json:"content_hash"`
	Model       string          `json:"model"`
	Pages       []node.Page     `json:"pages"`
	Quality     *QualityReport  `json:"quality,omitempty"`
	Metadata    *rasterize.Info `json:"metadata,omitempty"`
	Cached      bool            `json:"cached"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Model is everything the processor asks of the document-understanding client.
type Model interface {
	Extractor
	Evaluator
	Refiner
	Asker
}

// PageReader renders PDFs and reads their page-level facts.
type PageReader interface {
	RenderPages(ctx context.Context, path string, dpi int) ([]image.Image, error)
	DetectRotations(path string) ([]int, error)
	Info(path string) (*rasterize.Info, error)
}

// Cache stores encoded documents by key.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// ProcessorConfig holds the service-wide defaults.
type ProcessorConfig struct {
	Model          string
	TitleModel     string
	InferTitle     bool
	DPI            int
	TextPageTokens int
	MaxConcurrency int
	Timeout        time.Duration
	Quality        QualityParams
}

// Hooks report progress while a document is processed. Any may be nil.
type Hooks struct {
	Phase func(status JobStatus)
	Pages func(total int)
	Page  func(index int, err error)
}

// Options are the per-document settings. Zero values take the processor's
// defaults.
type Options struct {
	Filename       string // decides the source kind; defaults to the path's base name
	Model          string
	Prompt         string
	Title          string
	Quality        bool
	MaxConcurrency int
	DPI            int
	Hooks          Hooks
}

// Processor runs a source document end to end.
type Processor struct {
	model    Model
	reader   PageReader
	cache    Cache
	pipeline *Pipeline
	qa       *QualityAssurer
	cfg      ProcessorConfig
	log      *slog.Logger
}

// NewProcessor wires a processor. cache may be nil.
func NewProcessor(m Model, reader PageReader, cache Cache, scales raster.ScaleTable, cfg ProcessorConfig, log *slog.Logger) *Processor {
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.TitleModel == "" {
		cfg.TitleModel = cfg.Model
	}
	return &Processor{
		model:    m,
		reader:   reader,
		cache:    cache,
		pipeline: NewPipeline(m, scales, log),
		qa:       NewQualityAssurer(m, m, scales, nil, log),
		cfg:      cfg,
		log:      log,
	}
}

func (p *Processor) withDefaults(opts Options, path string) Options {
	if opts.Filename == "" {
		opts.Filename = filepath.Base(path)
	}
	if opts.Model == "" {
		opts.Model = p.cfg.Model
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = p.cfg.MaxConcurrency
	}
	if opts.DPI <= 0 {
		opts.DPI = p.cfg.DPI
	}
	return opts
}

// Process turns the file at path into a Document. A cached result for the
// same content and settings is returned without calling the model.
func (p *Processor) Process(ctx context.Context, path string, opts Options) (*Document, error) {
	opts = p.withDefaults(opts, path)
	hooks := opts.Hooks

	kind, err := SourceKindFor(opts.Filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", rasterize.ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	hash := ContentHashHex(data)
	log := p.log.With("source", opts.Filename, "kind", kind, "model", opts.Model)
	key := p.cacheKey(hash, kind, opts)
	if doc := p.lookup(key, log); doc != nil {
		if opts.Title != "" {
			doc.Title, doc.TitleSource = opts.Title, TitleProvided
		}
		if hooks.Pages != nil {
			hooks.Pages(len(doc.Pages))
		}
		return doc, nil
	}

	if hooks.Phase != nil {
		if kind == KindText {
			hooks.Phase(StatusParsing)
		} else {
			hooks.Phase(StatusRasterizing)
		}
	}
	src, err := p.load(ctx, path, kind, data, opts, log)
	if err != nil {
		return nil, err
	}
	if hooks.Pages != nil {
		hooks.Pages(len(src.inputs))
	}

	if hooks.Phase != nil {
		hooks.Phase(StatusExtracting)
	}
	pages, err := p.pipeline.ExtractPages(ctx, src.inputs, ExtractParams{
		Model:          opts.Model,
		Prompt:         opts.Prompt,
		MaxConcurrency: opts.MaxConcurrency,
		Timeout:        p.cfg.Timeout,
		OnPage:         hooks.Page,
	})
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Source:      opts.Filename,
		Kind:        kind,
		ContentHash: hash,
		Model:       opts.Model,
		Pages:       pages,
		Metadata:    src.info,
		CreatedAt:   time.Now().UTC(),
	}

	if opts.Quality {
		if hooks.Phase != nil {
			hooks.Phase(StatusQuality)
		}
		if err := p.assure(ctx, doc, src.inputs, opts); err != nil {
			return nil, err
		}
	}

	if hooks.Phase != nil {
		hooks.Phase(StatusTitling)
	}
	p.resolveTitle(ctx, doc, opts, src.fallbackTitle, log)

	p.save(key, doc, log)
	log.Info("document processed", "pages", len(doc.Pages), "title", doc.Title)
	return doc, nil
}

type source struct {
	inputs        []PageInput
	info          *rasterize.Info
	fallbackTitle string
}

func (p *Processor) load(ctx context.Context, path string, kind SourceKind, data []byte, opts Options, log *slog.Logger) (*source, error) {
	switch kind {
	case KindPDF:
		return p.loadPDF(ctx, path, opts.DPI, log)
	case KindImage:
		img, err := rasterize.LoadImage(path)
		if err != nil {
			return nil, err
		}
		return &source{inputs: []PageInput{{Index: 0, Image: img}}}, nil
	default:
		return p.loadText(data, opts.Filename)
	}
}

func (p *Processor) loadPDF(ctx context.Context, path string, dpi int, log *slog.Logger) (*source, error) {
	images, err := p.reader.RenderPages(ctx, path, dpi)
	if err != nil {
		return nil, err
	}

	hints, err := p.reader.DetectRotations(path)
	if err != nil {
		log.Warn("rotation detection failed, assuming upright pages", "error", err)
		hints = nil
	} else if len(hints) != len(images) {
		log.Warn("rotation hints do not match page count", "hints", len(hints), "pages", len(images))
	}

	inputs := make([]PageInput, len(images))
	for i, img := range images {
		inputs[i] = PageInput{Index: i, Image: img}
		if i < len(hints) {
			inputs[i].Rotation = hints[i]
		}
	}

	src := &source{inputs: inputs}
	info, err := p.reader.Info(path)
	if err != nil {
		log.Warn("reading pdf metadata failed", "error", err)
	} else if info != nil {
		src.info = info
		src.fallbackTitle = info.Title
	}
	return src, nil
}

func (p *Processor) loadText(data []byte, filename string) (*source, error) {
	ps, err := parser.ForFile(filename)
	if err != nil {
		return nil, err
	}
	tree, err := ps.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	chunks := chunker.Paginate(tree, chunker.Config{PageTokens: p.cfg.TextPageTokens})
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	inputs := make([]PageInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = PageInput{Index: i, Text: textPageContext(tree.Title, c.Breadcrumb, c.Text)}
	}
	src := &source{inputs: inputs}
	if stem := strings.TrimSuffix(filename, filepath.Ext(filename)); tree.Title != stem {
		src.fallbackTitle = tree.Title
	}
	return src, nil
}

// textPageContext prefixes a virtual page with the document title and the
// heading path it falls under.
func textPageContext(title string, breadcrumb []string, text string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Document: %q\n", title)
	if len(breadcrumb) > 0 {
		sb.WriteString("Section: ")
		sb.WriteString(strings.Join(breadcrumb, " > "))
		sb.WriteString("\n")
	}
	sb.WriteString("---\n")
	sb.WriteString(text)
	return sb.String()
}

// cacheKey covers everything that shapes the stored document: the raster
// DPI for PDFs, the page budget for text, the effective quality settings
// when the pass runs, and how the title is inferred. A provided title is
// applied after lookup and stays out of the key.
func (p *Processor) cacheKey(hash string, kind SourceKind, opts Options) string {
	parts := []string{hash, string(kind), opts.Model, opts.Prompt}
	switch kind {
	case KindPDF:
		parts = append(parts, "dpi="+strconv.Itoa(opts.DPI))
	case KindText:
		parts = append(parts, "page_tokens="+strconv.Itoa(p.cfg.TextPageTokens))
	}
	if opts.Quality {
		q := p.qualityParams(opts).withDefaults()
		parts = append(parts, fmt.Sprintf("quality=%g/%d/%s/%s/%d",
			q.Threshold, q.SampleSize, q.EvalModel, q.RefineModel, q.MaxIterations))
	}
	if p.cfg.InferTitle {
		parts = append(parts, "title_model="+p.cfg.TitleModel)
	}
	return store.CacheKey(parts...)
}

func (p *Processor) qualityParams(opts Options) QualityParams {
	params := p.cfg.Quality
	if params.RefineModel == "" {
		params.RefineModel = opts.Model
	}
	params.Prompt = opts.Prompt
	if params.Timeout <= 0 {
		params.Timeout = p.cfg.Timeout
	}
	return params
}

func (p *Processor) assure(ctx context.Context, doc *Document, inputs []PageInput, opts Options) error {
	params := p.qualityParams(opts)

	if doc.Kind == KindImage && len(doc.Pages) == 1 {
		page, report, err := p.qa.AssureSinglePage(ctx, doc.Pages[0], params, func(ctx context.Context) (node.Page, error) {
			page, _, err := p.qa.RefinePage(ctx, inputs[0], params)
			return page, err
		})
		if err != nil {
			return err
		}
		doc.Pages[0] = page
		doc.Quality = report
		return nil
	}

	pages, report, err := p.qa.AssurePages(ctx, doc.Pages, inputs, params)
	if err != nil {
		return err
	}
	doc.Pages = pages
	doc.Quality = report
	return nil
}

// resolveTitle applies, in order: the caller's title, an inferred title,
// then the source's own title. Inference failures only lose the title.
func (p *Processor) resolveTitle(ctx context.Context, doc *Document, opts Options, fallback string, log *slog.Logger) {
	if opts.Title != "" {
		doc.Title, doc.TitleSource = opts.Title, TitleProvided
		return
	}
	if p.cfg.InferTitle {
		title, ok, err := InferTitle(ctx, p.model, doc.Pages, TitleParams{Model: p.cfg.TitleModel, Timeout: p.cfg.Timeout})
		if err != nil {
			log.Warn("title inference failed", "error", err)
		} else if ok {
			doc.Title, doc.TitleSource = title, TitleInferred
			return
		}
	}
	if fallback != "" {
		doc.Title, doc.TitleSource = fallback, TitleMetadata
	}
}

func (p *Processor) lookup(key string, log *slog.Logger) *Document {
	if p.cache == nil {
		return nil
	}
	data, found, err := p.cache.Get(key)
	if err != nil {
		log.Warn("cache lookup failed", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn("discarding unreadable cache entry", "error", err)
		if err := p.cache.Delete(key); err != nil {
			log.Warn("cache delete failed", "error", err)
		}
		return nil
	}
	doc.Cached = true
	log.Info("cache hit", "pages", len(doc.Pages))
	return &doc
}

func (p *Processor) save(key string, doc *Document, log *slog.Logger) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(doc)
	if err != nil {
		log.Warn("encode document for cache failed", "error", err)
		return
	}
	if err := p.cache.Put(key, data); err != nil {
		log.Warn("cache write failed", "error", err)
	}
}
