package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/docstruct/internal/app"
	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/pipeline"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Extract the structured nodes of a document",
	Long: `Extracts every page of a PDF, image or text document into typed nodes
and prints the result as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var (
	extractModel       string
	extractPrompt      string
	extractTitle       string
	extractQuality     bool
	extractConcurrency int
	extractDPI         int
	extractOut         string
)

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractModel, "model", "", "Model to extract with (overrides config)")
	f.StringVar(&extractPrompt, "prompt", "", "Extra instructions for the model")
	f.StringVar(&extractTitle, "title", "", "Document title; skips title inference")
	f.BoolVar(&extractQuality, "quality", false, "Run the quality pass over sampled pages")
	f.IntVar(&extractConcurrency, "concurrency", 0, "Pages extracted in parallel (overrides config)")
	f.IntVar(&extractDPI, "dpi", 0, "PDF render resolution (overrides config)")
	f.StringVarP(&extractOut, "out", "o", "", "Write JSON here instead of stdout")
}

func loadConfig() (config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if extractModel != "" {
		cfg.Model = extractModel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if extractConcurrency < 0 || extractDPI < 0 {
		return fmt.Errorf("--concurrency and --dpi must not be negative")
	}

	log := app.NewLogger(cfg.LogLevel, false, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.Processor.Process(ctx, args[0], pipeline.Options{
		Model:          cfg.Model,
		Prompt:         extractPrompt,
		Title:          extractTitle,
		Quality:        extractQuality,
		MaxConcurrency: extractConcurrency,
		DPI:            extractDPI,
		Hooks: pipeline.Hooks{
			Phase: func(s pipeline.JobStatus) { log.Info("phase", "status", s) },
			Page: func(index int, err error) {
				if err != nil {
					log.Warn("page failed", "page", index, "error", err)
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("extract %s: %w", args[0], err)
	}

	if extractOut == "" {
		return writeDocument(cmd.OutOrStdout(), doc)
	}
	f, err := os.Create(extractOut)
	if err != nil {
		return err
	}
	if err := writeDocument(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeDocument(w io.Writer, doc *pipeline.Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}
