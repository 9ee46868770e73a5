package pipeline

import (
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgallion1/docstruct/internal/model"
	"github.com/dgallion1/docstruct/internal/node"
	"github.com/dgallion1/docstruct/internal/rasterize"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func para(id, text string) node.Node {
	return node.Node{ID: id, Content: &node.Paragraph{Level: node.ParagraphPlain, Content: text}}
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// pageText returns what follows the first "---" separator of a text request.
func pageText(req model.Request) string {
	if i := strings.Index(req.Text, "---\n"); i >= 0 {
		return req.Text[i+4:]
	}
	return req.Text
}

// fakeModel implements Model with scriptable behaviour. The defaults echo
// the page text back as one paragraph, score everything 1.0 and answer
// "Fake Title".
type fakeModel struct {
	mu sync.Mutex

	structured func(req model.Request) ([]node.Node, error)
	evaluate   func(req model.EvalRequest) (*model.Evaluation, error)
	refine     func(req model.RefineRequest) (*model.Refinement, error)
	answer     string
	askErr     error

	structuredCalls int
	evalCalls       int
	refineCalls     int
	askCalls        int
	refineReqs      []model.RefineRequest
	evalReqs        []model.EvalRequest
}

func newFakeModel() *fakeModel {
	return &fakeModel{answer: "Fake Title"}
}

func (f *fakeModel) StructuredAsk(_ context.Context, req model.Request) ([]node.Node, error) {
	f.mu.Lock()
	f.structuredCalls++
	fn := f.structured
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return []node.Node{para("p1", strings.TrimSpace(pageText(req)))}, nil
}

func (f *fakeModel) Evaluate(_ context.Context, req model.EvalRequest) (*model.Evaluation, error) {
	f.mu.Lock()
	f.evalCalls++
	f.evalReqs = append(f.evalReqs, req)
	fn := f.evaluate
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &model.Evaluation{Score: 1, Passed: true}, nil
}

func (f *fakeModel) Refine(_ context.Context, req model.RefineRequest) (*model.Refinement, error) {
	f.mu.Lock()
	f.refineCalls++
	f.refineReqs = append(f.refineReqs, req)
	fn := f.refine
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &model.Refinement{
		Nodes:      []node.Node{para("r1", "refined")},
		FinalScore: 0.9,
		Iterations: 1,
		Converged:  true,
	}, nil
}

func (f *fakeModel) Ask(_ context.Context, req model.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.askCalls++
	return f.answer, f.askErr
}

func (f *fakeModel) counts() (structured, eval, refine, ask int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.structuredCalls, f.evalCalls, f.refineCalls, f.askCalls
}

type fakeReader struct {
	images    []image.Image
	renderErr error
	hints     []int
	hintErr   error
	info      *rasterize.Info
	infoErr   error

	dpis []int // one entry per RenderPages call
}

func (r *fakeReader) RenderPages(_ context.Context, _ string, dpi int) ([]image.Image, error) {
	r.dpis = append(r.dpis, dpi)
	return r.images, r.renderErr
}

func (r *fakeReader) DetectRotations(string) ([]int, error) {
	return r.hints, r.hintErr
}

func (r *fakeReader) Info(string) (*rasterize.Info, error) {
	return r.info, r.infoErr
}

type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{m: make(map[string][]byte)}
}

func (c *memCache) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}
