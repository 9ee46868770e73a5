// Package config loads service settings: built-in defaults, then an optional
// TOML file named by DOCSTRUCT_CONFIG, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docstruct/internal/model"
	"github.com/dgallion1/docstruct/internal/pipeline"
	"github.com/dgallion1/docstruct/internal/raster"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Port     string `toml:"port" validate:"required,numeric"`
	LogLevel string `toml:"log_level" validate:"oneof=debug info warn error"`

	// Auth
	APIKey string `toml:"api_key"`

	// Models
	Model       string `toml:"model" validate:"required"`
	TitleModel  string `toml:"title_model"`
	EvalModel   string `toml:"eval_model"`
	RefineModel string `toml:"refine_model"`

	// Providers
	AnthropicAPIKey string `toml:"anthropic_api_key"`
	GeminiAPIKey    string `toml:"gemini_api_key"`
	OpenAIBaseURL   string `toml:"openai_base_url" validate:"omitempty,url"`
	OpenAIAPIKey    string `toml:"openai_api_key"`

	RequestsPerMinute int      `toml:"requests_per_minute" validate:"gte=0"`
	CallTimeout       Duration `toml:"call_timeout"`
	StatsWindow       Duration `toml:"stats_window"`

	// Worker pool
	WorkerCount    int `toml:"worker_count" validate:"gte=1,lte=64"`
	MaxQueueSize   int `toml:"max_queue_size" validate:"gte=1"`
	MaxConcurrency int `toml:"max_concurrency" validate:"gte=1,lte=64"`

	// Rendering
	DPI          int    `toml:"dpi" validate:"gte=36,lte=1200"`
	PdftoppmPath string `toml:"pdftoppm_path" validate:"required"`
	TempDir      string `toml:"temp_dir"`

	// Raw-text sources
	TextPageTokens int `toml:"text_page_tokens" validate:"gte=100"`

	// Quality pass
	QualityThreshold     float64 `toml:"quality_threshold" validate:"gt=0,lte=1"`
	QualitySampleSize    int     `toml:"quality_sample_size" validate:"gte=0"`
	QualityMaxIterations int     `toml:"quality_max_iterations" validate:"gte=1,lte=10"`

	InferTitle bool `toml:"infer_title"`

	// Model-name prefix -> bbox coordinate scale.
	BBoxScales map[string]int `toml:"bbox_scales" validate:"dive,keys,required,endkeys,gte=0"`

	// Upload limits
	MaxUploadBytes int64 `toml:"max_upload_bytes" validate:"gte=1024"`

	// Job state
	JobTTL Duration `toml:"job_ttl"`

	// Result cache; empty disables it.
	CachePath string `toml:"cache_path"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Port:     "8090",
		LogLevel: "info",

		Model: "claude-sonnet-4-5-20250929",

		OpenAIBaseURL: "http://localhost:11434/v1",

		RequestsPerMinute: 60,
		CallTimeout:       Duration{6 * time.Minute},
		StatsWindow:       Duration{time.Hour},

		WorkerCount:    2,
		MaxQueueSize:   100,
		MaxConcurrency: 4,

		DPI:          150,
		PdftoppmPath: "pdftoppm",

		TextPageTokens: 1500,

		QualityThreshold:     0.8,
		QualitySampleSize:    3,
		QualityMaxIterations: 1,

		InferTitle: true,

		BBoxScales: map[string]int{"gemini-": 1000},

		MaxUploadBytes: 52428800, // 50MB

		JobTTL: Duration{time.Hour},

		CachePath: "docstruct.db",
	}
}

// Load reads the file named by DOCSTRUCT_CONFIG (if set) and the
// environment over the defaults.
func Load() (Config, error) {
	return LoadFile(os.Getenv("DOCSTRUCT_CONFIG"))
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = envOr("PORT", c.Port)
	c.LogLevel = strings.ToLower(envOr("LOG_LEVEL", c.LogLevel))

	c.APIKey = envOr("DOCSTRUCT_API_KEY", c.APIKey)

	c.Model = envOr("DOCSTRUCT_MODEL", c.Model)
	c.TitleModel = envOr("DOCSTRUCT_TITLE_MODEL", c.TitleModel)
	c.EvalModel = envOr("DOCSTRUCT_EVAL_MODEL", c.EvalModel)
	c.RefineModel = envOr("DOCSTRUCT_REFINE_MODEL", c.RefineModel)

	c.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.GeminiAPIKey = envOr("GEMINI_API_KEY", c.GeminiAPIKey)
	c.OpenAIBaseURL = envOr("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIAPIKey = envOr("OPENAI_API_KEY", c.OpenAIAPIKey)

	c.RequestsPerMinute = envInt("REQUESTS_PER_MINUTE", c.RequestsPerMinute)
	c.CallTimeout.Duration = envDuration("CALL_TIMEOUT", c.CallTimeout.Duration)
	c.StatsWindow.Duration = envDuration("STATS_WINDOW", c.StatsWindow.Duration)

	c.WorkerCount = envInt("WORKER_COUNT", c.WorkerCount)
	c.MaxQueueSize = envInt("MAX_QUEUE_SIZE", c.MaxQueueSize)
	c.MaxConcurrency = envInt("MAX_CONCURRENCY", c.MaxConcurrency)

	c.DPI = envInt("RENDER_DPI", c.DPI)
	c.PdftoppmPath = envOr("PDFTOPPM_PATH", c.PdftoppmPath)
	c.TempDir = envOr("TEMP_DIR", c.TempDir)

	c.TextPageTokens = envInt("TEXT_PAGE_TOKENS", c.TextPageTokens)

	c.QualityThreshold = envFloat("QUALITY_THRESHOLD", c.QualityThreshold)
	c.QualitySampleSize = envInt("QUALITY_SAMPLE_SIZE", c.QualitySampleSize)
	c.QualityMaxIterations = envInt("QUALITY_MAX_ITERATIONS", c.QualityMaxIterations)

	c.InferTitle = envBool("INFER_TITLE", c.InferTitle)

	if v := os.Getenv("BBOX_SCALES"); v != "" {
		scales, err := ParseScales(v)
		if err != nil {
			return fmt.Errorf("BBOX_SCALES: %w", err)
		}
		c.BBoxScales = scales
	}

	c.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.JobTTL.Duration = envDuration("JOB_TTL", c.JobTTL.Duration)
	c.CachePath = envOr("CACHE_PATH", c.CachePath)
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that the default model's provider is
// configured.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.CallTimeout.Duration <= 0 {
		return fmt.Errorf("CALL_TIMEOUT must be positive")
	}
	if c.JobTTL.Duration <= 0 {
		return fmt.Errorf("JOB_TTL must be positive")
	}
	for _, m := range []string{c.Model, c.TitleModel, c.EvalModel, c.RefineModel} {
		if err := c.requireProvider(m); err != nil {
			return err
		}
	}
	return nil
}

// ValidateServer is Validate plus the settings only the HTTP server needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("DOCSTRUCT_API_KEY is required")
	}
	return nil
}

func (c Config) requireProvider(modelName string) error {
	if modelName == "" {
		return nil
	}
	switch model.ProviderFor(modelName) {
	case model.ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for model %s", modelName)
		}
	case model.ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for model %s", modelName)
		}
	default:
		if c.OpenAIBaseURL == "" {
			return fmt.Errorf("OPENAI_BASE_URL is required for model %s", modelName)
		}
	}
	return nil
}

// ScaleTable returns the configured bbox scales.
func (c Config) ScaleTable() raster.ScaleTable {
	t := make(raster.ScaleTable, len(c.BBoxScales))
	for k, v := range c.BBoxScales {
		t[k] = v
	}
	return t
}

// ModelOptions maps the provider settings onto model client options.
func (c Config) ModelOptions() model.Options {
	return model.Options{
		AnthropicAPIKey:   c.AnthropicAPIKey,
		GeminiAPIKey:      c.GeminiAPIKey,
		OpenAIBaseURL:     c.OpenAIBaseURL,
		OpenAIAPIKey:      c.OpenAIAPIKey,
		RequestsPerMinute: c.RequestsPerMinute,
		StatsWindow:       c.StatsWindow.Duration,
	}
}

// ProcessorConfig maps the extraction defaults onto the document processor.
func (c Config) ProcessorConfig() pipeline.ProcessorConfig {
	return pipeline.ProcessorConfig{
		Model:          c.Model,
		TitleModel:     c.TitleModel,
		InferTitle:     c.InferTitle,
		DPI:            c.DPI,
		TextPageTokens: c.TextPageTokens,
		MaxConcurrency: c.MaxConcurrency,
		Timeout:        c.CallTimeout.Duration,
		Quality: pipeline.QualityParams{
			Threshold:     c.QualityThreshold,
			SampleSize:    c.QualitySampleSize,
			EvalModel:     c.EvalModel,
			RefineModel:   c.RefineModel,
			MaxIterations: c.QualityMaxIterations,
			Timeout:       c.CallTimeout.Duration,
		},
	}
}

// OrchestratorConfig sizes the server's job queue.
func (c Config) OrchestratorConfig() pipeline.OrchestratorConfig {
	return pipeline.OrchestratorConfig{
		WorkerCount:  c.WorkerCount,
		MaxQueueSize: c.MaxQueueSize,
		JobTTL:       c.JobTTL.Duration,
	}
}

// ParseScales reads "prefix=scale,prefix=scale".
func ParseScales(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		prefix, val, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(prefix) == "" {
			return nil, fmt.Errorf("bad entry %q, want prefix=scale", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad scale in %q", part)
		}
		out[strings.TrimSpace(prefix)] = n
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
