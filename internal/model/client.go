// Package model is the document-understanding capability: structured node
// extraction, evaluation, refinement and free-text questions, served by
// Anthropic, Gemini or an OpenAI-compatible endpoint.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/docstruct/internal/node"
	"golang.org/x/time/rate"
)

// Provider names a model backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
)

// ProviderFor picks the backend serving model by name prefix. Anything that is
// neither Claude nor Gemini is sent to the OpenAI-compatible endpoint.
func ProviderFor(model string) Provider {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gemini-"):
		return ProviderGemini
	default:
		return ProviderOpenAI
	}
}

// Call is one request to a backend.
type Call struct {
	Model     string
	System    string
	Text      string
	Image     []byte // PNG
	Schema    map[string]any
	JSON      bool
	MaxTokens int
}

// Backend sends a single call to a provider and returns the raw text answer.
// HTTP error answers are returned as *CallError.
type Backend interface {
	Generate(ctx context.Context, call Call) (string, error)
}

// Options configures a Client.
type Options struct {
	AnthropicAPIKey   string
	GeminiAPIKey      string
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	RequestsPerMinute int
	MaxTokens         int
	StatsWindow       time.Duration
}

// Client is the model capability used by the pipeline.
type Client struct {
	backends  map[Provider]Backend
	limiter   *rate.Limiter
	stats     *LLMStats
	maxTokens int
	log       *slog.Logger
	backoff   func(attempt int) time.Duration
}

// New builds a Client with a backend for every provider that has
// credentials.
func New(ctx context.Context, opts Options, log *slog.Logger) (*Client, error) {
	backends := make(map[Provider]Backend)
	if opts.AnthropicAPIKey != "" {
		backends[ProviderAnthropic] = NewAnthropicBackend(opts.AnthropicAPIKey)
	}
	if opts.GeminiAPIKey != "" {
		b, err := NewGeminiBackend(ctx, opts.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		backends[ProviderGemini] = b
	}
	if opts.OpenAIBaseURL != "" {
		backends[ProviderOpenAI] = NewOpenAIBackend(opts.OpenAIBaseURL, opts.OpenAIAPIKey)
	}
	if len(backends) == 0 {
		return nil, errors.New("no model provider configured")
	}
	return NewWithBackends(opts, log, backends), nil
}

// NewWithBackends builds a Client over explicit backends.
func NewWithBackends(opts Options, log *slog.Logger, backends map[Provider]Backend) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60), max(1, opts.RequestsPerMinute/60))
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 16384
	}
	return &Client{
		backends:  backends,
		limiter:   limiter,
		stats:     NewLLMStats(opts.StatsWindow),
		maxTokens: maxTokens,
		log:       log,
		backoff:   Backoff,
	}
}

// Stats exposes the latency samples of this client's calls.
func (c *Client) Stats() *LLMStats { return c.stats }

// Request is a structured-ask or free-text question.
type Request struct {
	Model   string
	System  string
	Text    string
	Image   []byte // PNG
	Timeout time.Duration
}

// EvalRequest asks a critic to score rendered extraction output.
type EvalRequest struct {
	Model     string
	Task      string
	Content   string
	Criteria  []Criterion
	Threshold float64
	Timeout   time.Duration
}

// Evaluation is a critic's verdict.
type Evaluation struct {
	Score   float64  `json:"score"`
	Passed  bool     `json:"passed"`
	Summary string   `json:"summary"`
	Issues  []string `json:"issues"`
}

// RefineRequest is a structured ask run through an improve/verify loop.
type RefineRequest struct {
	Request
	EvalModel     string
	Task          string
	Criteria      []Criterion
	MaxIterations int
	Threshold     float64
}

// Refinement is the best result of a refine loop.
type Refinement struct {
	Nodes      []node.Node
	FinalScore float64
	Iterations int
	Converged  bool
}

// StructuredAsk extracts a node list. The system instruction defaults to
// ExtractionPrompt.
func (c *Client) StructuredAsk(ctx context.Context, req Request) ([]node.Node, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	system := req.System
	if system == "" {
		system = ExtractionPrompt
	}
	text := req.Text
	if text == "" {
		text = "Extract the nodes of this page."
	}
	call := Call{Model: req.Model, System: system, Text: text, Image: req.Image, Schema: node.Schema()}
	raw, err := c.generate(ctx, "structured_ask", call)
	if err != nil {
		return nil, err
	}

	nodes, dropped, err := parseNodes(raw)
	if err != nil {
		return nil, &CallError{
			Provider: string(ProviderFor(req.Model)),
			Model:    req.Model,
			Body:     truncate(raw, 4096),
			Request:  requestContext("structured_ask", call),
			Err:      fmt.Errorf("parse nodes: %w", err),
		}
	}
	if dropped > 0 {
		c.log.Debug("dropped malformed nodes", "model", req.Model, "dropped", dropped, "kept", len(nodes))
	}
	return nodes, nil
}

// Ask returns a trimmed free-text answer.
func (c *Client) Ask(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	raw, err := c.generate(ctx, "ask", Call{Model: req.Model, System: req.System, Text: req.Text, Image: req.Image})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// Evaluate scores rendered output against criteria. The score is clamped to
// [0,1]; when Threshold is set it decides Passed.
func (c *Client) Evaluate(ctx context.Context, req EvalRequest) (*Evaluation, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	criteria := req.Criteria
	if len(criteria) == 0 {
		criteria = DefaultCriteria
	}
	task := req.Task
	if task == "" {
		task = ExtractionTask
	}
	call := Call{
		Model:  req.Model,
		System: evaluationPrompt,
		Text:   buildEvaluationPrompt(task, req.Content, criteria),
		JSON:   true,
	}
	raw, err := c.generate(ctx, "evaluate", call)
	if err != nil {
		return nil, err
	}

	eval, err := parseEvaluation(raw, req.Threshold)
	if err != nil {
		return nil, &CallError{
			Provider: string(ProviderFor(req.Model)),
			Model:    req.Model,
			Body:     truncate(raw, 4096),
			Request:  requestContext("evaluate", call),
			Err:      fmt.Errorf("parse evaluation: %w", err),
		}
	}
	return eval, nil
}

// Refine extracts, evaluates and re-extracts with the critic's feedback until
// the score reaches Threshold or MaxIterations extractions have run. The
// best-scoring attempt is returned.
func (c *Client) Refine(ctx context.Context, req RefineRequest) (*Refinement, error) {
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}
	evalModel := req.EvalModel
	if evalModel == "" {
		evalModel = req.Model
	}
	log := c.log.With("op", "refine", "model", req.Model)

	var best *Refinement
	ask := req.Request
	for i := 1; i <= maxIter; i++ {
		nodes, err := c.StructuredAsk(ctx, ask)
		if err != nil {
			return nil, fmt.Errorf("refine iteration %d: %w", i, err)
		}

		rendered := node.RenderText(node.Page{Nodes: nodes})
		eval, err := c.Evaluate(ctx, EvalRequest{
			Model:     evalModel,
			Task:      req.Task,
			Content:   rendered,
			Criteria:  req.Criteria,
			Threshold: req.Threshold,
			Timeout:   req.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("refine iteration %d: %w", i, err)
		}
		log.Debug("refine iteration", "iteration", i, "score", eval.Score)

		if best == nil || eval.Score > best.FinalScore {
			best = &Refinement{Nodes: nodes, FinalScore: eval.Score}
		}
		best.Iterations = i
		if eval.Score >= req.Threshold {
			best.Converged = true
			break
		}
		ask.Text = buildFeedbackPrompt(req.Text, eval, rendered)
	}
	return best, nil
}

func (c *Client) generate(ctx context.Context, op string, call Call) (string, error) {
	provider := ProviderFor(call.Model)
	reqCtx := requestContext(op, call)
	backend, ok := c.backends[provider]
	if !ok {
		return "", &CallError{
			Provider: string(provider),
			Model:    call.Model,
			Request:  reqCtx,
			Err:      fmt.Errorf("no %s backend configured", provider),
		}
	}
	if call.MaxTokens <= 0 {
		call.MaxTokens = c.maxTokens
	}
	log := c.log.With("op", op, "provider", provider, "model", call.Model)

	start := time.Now()
	var text string
	var err error
	for attempt := 0; ; attempt++ {
		reqCtx.Attempts = attempt + 1
		if err = c.limiter.Wait(ctx); err != nil {
			break
		}
		text, err = backend.Generate(ctx, call)
		if err == nil || !IsRetryable(err) || attempt >= MaxRetries {
			break
		}
		wait := c.backoff(attempt)
		log.Warn("retrying model call", "attempt", attempt+1, "backoff", wait, "error", err)
		if err = sleep(ctx, wait); err != nil {
			break
		}
	}
	elapsed := time.Since(start)
	c.stats.Record(op, elapsed.Milliseconds(), err != nil)

	if err != nil {
		log.Error("model call failed", "attempts", reqCtx.Attempts, "error", err)
		var ce *CallError
		if errors.As(err, &ce) {
			ce.Request = reqCtx
			return "", ce
		}
		return "", &CallError{Provider: string(provider), Model: call.Model, Request: reqCtx, Err: err}
	}
	log.Debug("model call done", "duration_ms", elapsed.Milliseconds())
	return text, nil
}

func requestContext(op string, call Call) RequestContext {
	return RequestContext{
		Operation: op,
		Provider:  string(ProviderFor(call.Model)),
		Model:     call.Model,
		HasImage:  len(call.Image) > 0,
		TextChars: utf8.RuneCountInString(call.Text),
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
