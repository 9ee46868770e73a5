package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docstruct/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	mu    sync.Mutex
	calls []Options
	run   func(opts Options) (*Document, error)
}

func (f *fakeProcessor) Process(_ context.Context, _ string, opts Options) (*Document, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	return f.run(opts)
}

func TestWorker_Success(t *testing.T) {
	upload := writeFile(t, "upload", []byte("data"))
	proc := &fakeProcessor{run: func(opts Options) (*Document, error) {
		opts.Hooks.Phase(StatusRasterizing)
		opts.Hooks.Pages(2)
		opts.Hooks.Page(0, nil)
		opts.Hooks.Page(1, nil)
		return &Document{Title: "T", Pages: make([]node.Page, 2)}, nil
	}}
	job := NewJob(upload, Options{Filename: "a.pdf", Model: "m"})

	NewWorker(proc, testLogger()).Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Progress.PagesTotal)
	assert.Equal(t, 2, snap.Progress.PagesExtracted)
	doc, err := job.Result()
	require.NoError(t, err)
	assert.Equal(t, "T", doc.Title)
	assert.Equal(t, "m", proc.calls[0].Model)

	_, statErr := os.Stat(upload)
	assert.True(t, os.IsNotExist(statErr), "upload is removed")
}

func TestWorker_Failure(t *testing.T) {
	proc := &fakeProcessor{run: func(opts Options) (*Document, error) {
		opts.Hooks.Phase(StatusExtracting)
		return nil, errors.New("model unavailable")
	}}
	job := NewJob("", Options{Filename: "a.txt"})

	NewWorker(proc, testLogger()).Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "extracting", snap.Phase)
	_, err := job.Result()
	assert.EqualError(t, err, "model unavailable")
}

func TestOrchestrator_RunsJobs(t *testing.T) {
	proc := &fakeProcessor{run: func(Options) (*Document, error) {
		return &Document{Title: "done"}, nil
	}}
	o := NewOrchestrator(OrchestratorConfig{WorkerCount: 2, MaxQueueSize: 4, JobTTL: time.Hour}, proc, testLogger())
	o.Start(context.Background())
	defer o.Stop()

	jobs := []*Job{NewJob("", Options{}), NewJob("", Options{}), NewJob("", Options{})}
	for _, j := range jobs {
		require.NoError(t, o.Submit(j))
	}
	for _, j := range jobs {
		require.Eventually(t, func() bool {
			return j.Snapshot().Status == StatusCompleted
		}, 2*time.Second, 5*time.Millisecond)
		assert.Same(t, j, o.GetJob(j.ID))
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	proc := &fakeProcessor{run: func(Options) (*Document, error) { return &Document{}, nil }}
	o := NewOrchestrator(OrchestratorConfig{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}, proc, testLogger())

	require.NoError(t, o.Submit(NewJob("", Options{})))
	assert.Equal(t, 1, o.QueueDepth())

	rejected := NewJob("", Options{})
	err := o.Submit(rejected)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, rejected.Snapshot().Status)
	assert.Equal(t, "queue_full", rejected.Snapshot().Phase)
}
