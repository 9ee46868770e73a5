package pipeline

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// DocumentProcessor is the end-to-end document capability a worker drives.
type DocumentProcessor interface {
	Process(ctx context.Context, path string, opts Options) (*Document, error)
}

// Worker processes a single document job.
type Worker struct {
	processor DocumentProcessor
	log       *slog.Logger
}

func NewWorker(processor DocumentProcessor, log *slog.Logger) *Worker {
	return &Worker{processor: processor, log: log}
}

// Process runs the job and records its outcome on the job. The job's
// upload file is removed afterwards.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	defer func() {
		if job.path == "" {
			return
		}
		if err := os.Remove(job.path); err != nil && !os.IsNotExist(err) {
			log.Warn("remove upload failed", "path", job.path, "error", err)
		}
	}()

	opts := job.options
	opts.Hooks = Hooks{
		Phase: func(status JobStatus) { job.SetStatus(status, string(status)) },
		Pages: job.SetPagesTotal,
		Page:  job.PageDone,
	}

	start := time.Now()
	doc, err := w.processor.Process(ctx, job.path, opts)
	if err != nil {
		phase := job.Snapshot().Phase
		log.Error("job failed", "phase", phase, "error", err)
		job.Fail(phase, err)
		return
	}
	job.Complete(doc)
	log.Info("job completed", "pages", len(doc.Pages), "cached", doc.Cached, "elapsed", time.Since(start).Round(time.Millisecond))
}
