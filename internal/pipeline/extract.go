package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"time"

	"github.com/dgallion1/docstruct/internal/model"
	"github.com/dgallion1/docstruct/internal/node"
	"github.com/dgallion1/docstruct/internal/raster"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxConcurrency = 4
	DefaultTimeout        = 6 * time.Minute
)

// PageInput is one page to extract: a raster with its rotation hint, or the
// text of a virtual page from a raw-text source (Image nil).
type PageInput struct {
	Index    int
	Image    image.Image
	Text     string
	Rotation int
}

// ExtractParams configures one extraction call.
type ExtractParams struct {
	Model          string
	Prompt         string
	MaxConcurrency int
	Timeout        time.Duration

	// OnPage, when set, is called from the collecting goroutine as each page
	// finishes. err is nil on success.
	OnPage func(index int, err error)
}

// Extractor is the structured-ask capability.
type Extractor interface {
	StructuredAsk(ctx context.Context, req model.Request) ([]node.Node, error)
}

// Pipeline runs per-page extraction over a bounded worker pool.
type Pipeline struct {
	extractor Extractor
	scales    raster.ScaleTable
	log       *slog.Logger
}

func NewPipeline(extractor Extractor, scales raster.ScaleTable, log *slog.Logger) *Pipeline {
	return &Pipeline{extractor: extractor, scales: scales, log: log}
}

type pageResult struct {
	index int
	page  node.Page
	err   *PageError
}

// ExtractPages extracts every input with at most MaxConcurrency calls in
// flight. Every page is attempted; a failure does not cancel the others. The
// pages come back ordered by index, or, if any page failed, the call returns
// an *ExtractionError carrying all failures.
func (p *Pipeline) ExtractPages(ctx context.Context, inputs []PageInput, params ExtractParams) ([]node.Page, error) {
	if len(inputs) == 0 {
		return []node.Page{}, nil
	}
	limit := params.MaxConcurrency
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultTimeout
	}
	log := p.log.With("model", params.Model, "pages", len(inputs), "concurrency", limit)
	log.Info("extracting pages")

	results := make(chan pageResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(limit)
	go func() {
		for _, in := range inputs {
			g.Go(func() error {
				page, err := p.extractPage(ctx, in, params)
				if err != nil {
					results <- pageResult{index: in.Index, err: newPageError(in.Index, err)}
					return nil
				}
				results <- pageResult{index: in.Index, page: page}
				return nil
			})
		}
		g.Wait()
		close(results)
	}()

	collected := make([]pageResult, 0, len(inputs))
	for r := range results {
		if r.err != nil {
			log.Error("page extraction failed", "page", r.index, "error", r.err.Message)
		}
		if params.OnPage != nil {
			var err error
			if r.err != nil {
				err = r.err
			}
			params.OnPage(r.index, err)
		}
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	var pageErrs []*PageError
	pages := make([]node.Page, 0, len(collected))
	for _, r := range collected {
		if r.err != nil {
			pageErrs = append(pageErrs, r.err)
			continue
		}
		pages = append(pages, r.page)
	}
	if len(pageErrs) > 0 {
		return nil, &ExtractionError{
			FailedPage: pageErrs[0].PageIndex,
			Count:      len(pageErrs),
			Errors:     pageErrs,
		}
	}
	log.Info("extraction complete")
	return pages, nil
}

// extractPage runs one page end to end: rotate, ask, enrich.
func (p *Pipeline) extractPage(ctx context.Context, in PageInput, params ExtractParams) (node.Page, error) {
	req, img, err := pageRequest(in, params.Model, params.Prompt, params.Timeout)
	if err != nil {
		return node.Page{}, err
	}
	nodes, err := p.extractor.StructuredAsk(ctx, req)
	if err != nil {
		return node.Page{}, err
	}
	if img != nil {
		nodes = EnrichVisualNodes(nodes, img, params.Model, p.scales, p.log.With("page", in.Index))
	}
	return node.Page{Index: in.Index, Nodes: nodes}, nil
}

// pageRequest builds the model request for a page and returns the
// rotation-corrected raster it was built from, or nil for a text page.
func pageRequest(in PageInput, modelName, prompt string, timeout time.Duration) (model.Request, image.Image, error) {
	req := model.Request{Model: modelName, Text: prompt, Timeout: timeout}
	if in.Image == nil {
		req.Text = textPagePrompt(prompt, in.Text)
		return req, nil, nil
	}

	img := in.Image
	if in.Rotation != 0 {
		rotated, err := raster.Rotate(img, in.Rotation)
		if err != nil {
			return req, nil, fmt.Errorf("rotate page %d: %w", in.Index, err)
		}
		img = rotated
	}
	data, err := raster.EncodePNG(img)
	if err != nil {
		return req, nil, fmt.Errorf("encode page %d: %w", in.Index, err)
	}
	req.Image = data
	return req, img, nil
}

func textPagePrompt(prompt, text string) string {
	if prompt == "" {
		prompt = "Extract the nodes of this page of text."
	}
	return prompt + "\n\n---\n" + text
}
