// Package app assembles the extraction stack from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/model"
	"github.com/dgallion1/docstruct/internal/pipeline"
	"github.com/dgallion1/docstruct/internal/rasterize"
	"github.com/dgallion1/docstruct/internal/store"
)

// App holds the long-lived components shared by the server and the CLI.
type App struct {
	Client    *model.Client
	Processor *pipeline.Processor
	Cache     *store.Store // nil when caching is disabled
}

// New builds the model client, the rasterizer, the optional result cache and
// the document processor.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	client, err := model.New(ctx, cfg.ModelOptions(), log.With("component", "model"))
	if err != nil {
		return nil, fmt.Errorf("model client: %w", err)
	}

	a := &App{Client: client}
	var cache pipeline.Cache
	if cfg.CachePath != "" {
		st, err := store.Open(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("result cache: %w", err)
		}
		a.Cache = st
		cache = st
		if n, err := st.Len(); err == nil {
			log.Info("result cache opened", "path", cfg.CachePath, "entries", n)
		}
	}

	reader := rasterize.New(cfg.PdftoppmPath, cfg.TempDir, log.With("component", "rasterize"))
	a.Processor = pipeline.NewProcessor(client, reader, cache, cfg.ScaleTable(), cfg.ProcessorConfig(), log)
	return a, nil
}

// Close releases the result cache.
func (a *App) Close() error {
	if a.Cache == nil {
		return nil
	}
	return a.Cache.Close()
}

// NewLogger returns a logger at the configured level, JSON for the server
// and text for the terminal.
func NewLogger(level string, json bool, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
