package pipeline

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of an extraction job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusRasterizing JobStatus = "rasterizing"
	StatusParsing     JobStatus = "parsing"
	StatusExtracting  JobStatus = "extracting"
	StatusQuality     JobStatus = "quality"
	StatusTitling     JobStatus = "titling"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks the state of a single document extraction.
type Job struct {
	mu sync.Mutex

	ID       string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	path    string
	options Options
	result  *Document
	failure error
	errors  []string
}

// Progress tracks processing progress.
type Progress struct {
	PagesTotal     int      `json:"pages_total"`
	PagesExtracted int      `json:"pages_extracted"`
	PagesFailed    int      `json:"pages_failed"`
	Errors         []string `json:"errors"`
}

// NewJob creates a queued job for the file at path. The job owns path and
// the worker removes it when done.
func NewJob(path string, opts Options) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  opts.Filename,
		CreatedAt: now,
		UpdatedAt: now,
		path:      path,
		options:   opts,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs not updated within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Done() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetPagesTotal records the number of pages to extract.
func (j *Job) SetPagesTotal(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.PagesTotal = n
	j.UpdatedAt = time.Now()
}

// PageDone records one finished page. err is nil on success.
func (j *Job) PageDone(index int, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.Progress.PagesFailed++
		j.errors = append(j.errors, fmt.Sprintf("page %d: %s", index, err))
		j.Progress.Errors = j.errors
	} else {
		j.Progress.PagesExtracted++
	}
	j.UpdatedAt = time.Now()
}

// Complete stores the finished document.
func (j *Job) Complete(doc *Document) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = doc
	j.Status = StatusCompleted
	j.Phase = "done"
	if doc != nil && doc.Cached {
		j.Phase = "cached"
		j.Progress.PagesExtracted = len(doc.Pages)
	}
	j.UpdatedAt = time.Now()
}

// Fail marks the job failed with err.
func (j *Job) Fail(phase string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failure = err
	j.Status = StatusFailed
	j.Phase = phase
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		// Page failures are already listed one by one.
		j.errors = append(j.errors, err.Error())
		j.Progress.Errors = j.errors
	}
	j.UpdatedAt = time.Now()
}

// Options returns the extraction options the job was submitted with.
func (j *Job) Options() Options {
	return j.options
}

// Result returns the finished document and the failure, if any. Both are
// nil while the job is running.
func (j *Job) Result() (*Document, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.failure
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Filename  string    `json:"filename"`
	Title     string    `json:"title,omitempty"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	snap := JobSnapshot{
		ID:        j.ID,
		Status:    j.Status,
		Phase:     j.Phase,
		Filename:  j.Filename,
		Progress:  j.Progress,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	snap.Progress.Errors = errs
	if j.result != nil {
		snap.Title = j.result.Title
	}
	return snap
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
