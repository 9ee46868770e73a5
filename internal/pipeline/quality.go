package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/dgallion1/docstruct/internal/model"
	"github.com/dgallion1/docstruct/internal/node"
	"github.com/dgallion1/docstruct/internal/raster"
)

const (
	DefaultQualityThreshold = 0.8
	DefaultSampleSize       = 3
	DefaultMaxIterations    = 1
)

// Evaluator scores rendered page output.
type Evaluator interface {
	Evaluate(ctx context.Context, req model.EvalRequest) (*model.Evaluation, error)
}

// Refiner re-extracts a page through an improve/verify loop.
type Refiner interface {
	Refine(ctx context.Context, req model.RefineRequest) (*model.Refinement, error)
}

// QualityParams configures a quality pass. Zero values take the defaults;
// EvalModel falls back to RefineModel.
type QualityParams struct {
	Threshold     float64
	SampleSize    int
	EvalModel     string
	RefineModel   string
	MaxIterations int
	Prompt        string
	Timeout       time.Duration
}

func (q QualityParams) withDefaults() QualityParams {
	if q.Threshold <= 0 {
		q.Threshold = DefaultQualityThreshold
	}
	if q.SampleSize == 0 {
		q.SampleSize = DefaultSampleSize
	}
	if q.MaxIterations <= 0 {
		q.MaxIterations = DefaultMaxIterations
	}
	if q.EvalModel == "" {
		q.EvalModel = q.RefineModel
	}
	if q.Timeout <= 0 {
		q.Timeout = DefaultTimeout
	}
	return q
}

// PageQuality is the outcome of checking one sampled page.
type PageQuality struct {
	Index        int      `json:"index"`
	Score        float64  `json:"score"`
	Summary      string   `json:"summary,omitempty"`
	Issues       []string `json:"issues,omitempty"`
	Refined      bool     `json:"refined"`
	RefinedScore float64  `json:"refined_score,omitempty"`
	Iterations   int      `json:"iterations,omitempty"`
	Converged    bool     `json:"converged,omitempty"`
}

// QualityReport lists what the quality pass checked and changed.
type QualityReport struct {
	Threshold float64       `json:"threshold"`
	Sampled   []int         `json:"sampled"`
	Pages     []PageQuality `json:"pages"`
}

// QualityAssurer samples pages, scores them and replaces the ones below the
// threshold with refined extractions.
type QualityAssurer struct {
	evaluator Evaluator
	refiner   Refiner
	scales    raster.ScaleTable
	rng       *rand.Rand
	log       *slog.Logger
}

// NewQualityAssurer builds a QualityAssurer. A nil rng is seeded randomly.
func NewQualityAssurer(evaluator Evaluator, refiner Refiner, scales raster.ScaleTable, rng *rand.Rand, log *slog.Logger) *QualityAssurer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &QualityAssurer{evaluator: evaluator, refiner: refiner, scales: scales, rng: rng, log: log}
}

// SamplePages picks the page positions to check: all of them when total <=
// sampleSize, otherwise the first, the last and sampleSize-2 distinct
// interior positions, ascending.
func SamplePages(total, sampleSize int, rng *rand.Rand) []int {
	if total <= 0 || sampleSize <= 0 {
		return []int{}
	}
	if total <= sampleSize {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if sampleSize == 1 {
		return []int{0}
	}

	out := []int{0, total - 1}
	for _, i := range rng.Perm(total - 2)[:sampleSize-2] {
		out = append(out, i+1)
	}
	sort.Ints(out)
	return out
}

// AssurePages evaluates a sample of pages and replaces each one scoring below
// the threshold. inputs are the original rasters and rotation hints, in the
// same order as pages. Pages not sampled, or passing, are returned as they
// were. Evaluation and refinement failures abort the pass.
func (q *QualityAssurer) AssurePages(ctx context.Context, pages []node.Page, inputs []PageInput, params QualityParams) ([]node.Page, *QualityReport, error) {
	if len(inputs) != len(pages) {
		return nil, nil, fmt.Errorf("quality pass: %d pages but %d inputs", len(pages), len(inputs))
	}
	params = params.withDefaults()

	out := make([]node.Page, len(pages))
	copy(out, pages)
	report := &QualityReport{
		Threshold: params.Threshold,
		Sampled:   SamplePages(len(pages), params.SampleSize, q.rng),
	}

	for _, pos := range report.Sampled {
		log := q.log.With("page", pages[pos].Index)
		pq, err := q.evaluate(ctx, pages[pos], params)
		if err != nil {
			return nil, nil, err
		}
		if pq.Score >= params.Threshold {
			log.Info("page passed quality check", "score", pq.Score)
			report.Pages = append(report.Pages, pq)
			continue
		}

		log.Info("refining page", "score", pq.Score, "threshold", params.Threshold)
		page, ref, err := q.RefinePage(ctx, inputs[pos], params)
		if err != nil {
			return nil, nil, err
		}
		out[pos] = page
		pq.Refined = true
		pq.RefinedScore = ref.FinalScore
		pq.Iterations = ref.Iterations
		pq.Converged = ref.Converged
		report.Pages = append(report.Pages, pq)
	}
	return out, report, nil
}

// AssureSinglePage evaluates a lone page and, below the threshold, replaces
// it with the result of one call to refine.
func (q *QualityAssurer) AssureSinglePage(ctx context.Context, page node.Page, params QualityParams, refine func(ctx context.Context) (node.Page, error)) (node.Page, *QualityReport, error) {
	params = params.withDefaults()
	report := &QualityReport{Threshold: params.Threshold, Sampled: []int{page.Index}}

	pq, err := q.evaluate(ctx, page, params)
	if err != nil {
		return node.Page{}, nil, err
	}
	if pq.Score >= params.Threshold {
		report.Pages = append(report.Pages, pq)
		return page, report, nil
	}

	q.log.Info("refining page", "page", page.Index, "score", pq.Score, "threshold", params.Threshold)
	refined, err := refine(ctx)
	if err != nil {
		return node.Page{}, nil, fmt.Errorf("refine page %d: %w", page.Index, err)
	}
	pq.Refined = true
	report.Pages = append(report.Pages, pq)
	return refined, report, nil
}

// RefinePage re-extracts one input with the refine model and re-enriches its
// visual nodes from the rotation-corrected raster.
func (q *QualityAssurer) RefinePage(ctx context.Context, in PageInput, params QualityParams) (node.Page, *model.Refinement, error) {
	params = params.withDefaults()
	req, img, err := pageRequest(in, params.RefineModel, params.Prompt, params.Timeout)
	if err != nil {
		return node.Page{}, nil, err
	}
	ref, err := q.refiner.Refine(ctx, model.RefineRequest{
		Request:       req,
		EvalModel:     params.EvalModel,
		Task:          model.ExtractionTask,
		Criteria:      model.DefaultCriteria,
		MaxIterations: params.MaxIterations,
		Threshold:     params.Threshold,
	})
	if err != nil {
		return node.Page{}, nil, fmt.Errorf("refine page %d: %w", in.Index, err)
	}

	nodes := ref.Nodes
	if img != nil {
		nodes = EnrichVisualNodes(nodes, img, params.RefineModel, q.scales, q.log.With("page", in.Index))
	}
	return node.Page{Index: in.Index, Nodes: nodes}, ref, nil
}

func (q *QualityAssurer) evaluate(ctx context.Context, page node.Page, params QualityParams) (PageQuality, error) {
	eval, err := q.evaluator.Evaluate(ctx, model.EvalRequest{
		Model:     params.EvalModel,
		Task:      model.ExtractionTask,
		Content:   node.RenderText(page),
		Criteria:  model.DefaultCriteria,
		Threshold: params.Threshold,
		Timeout:   params.Timeout,
	})
	if err != nil {
		return PageQuality{}, fmt.Errorf("evaluate page %d: %w", page.Index, err)
	}
	return PageQuality{
		Index:   page.Index,
		Score:   eval.Score,
		Summary: eval.Summary,
		Issues:  eval.Issues,
	}, nil
}
