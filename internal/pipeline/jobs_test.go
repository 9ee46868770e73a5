package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/docstruct/internal/node"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	h1 := ContentHashHex([]byte("aaa"))
	h2 := ContentHashHex([]byte("bbb"))
	if h1 == h2 {
		t.Error("expected different hashes for different inputs")
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	// SHA-256 of empty input is well-known.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("/tmp/x.pdf", Options{Filename: "x.pdf"})
	if job.Status != StatusQueued {
		t.Fatalf("expected new job to be queued, got %q", job.Status)
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusRasterizing, "rasterizing"},
		{StatusExtracting, "extracting"},
		{StatusQuality, "quality"},
		{StatusTitling, "titling"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
		if job.Status.Done() {
			t.Errorf("status %q should not be terminal", tr.status)
		}
	}
}

func TestNewJob_UniqueIDs(t *testing.T) {
	a := NewJob("", Options{})
	b := NewJob("", Options{})
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
}

func TestJob_Complete(t *testing.T) {
	job := NewJob("", Options{Filename: "a.png"})
	doc := &Document{Title: "A", Pages: []node.Page{{Index: 0}}}
	job.Complete(doc)

	got, err := job.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != doc {
		t.Error("expected the stored document back")
	}
	snap := job.Snapshot()
	if snap.Status != StatusCompleted || snap.Phase != "done" {
		t.Errorf("expected completed/done, got %q/%q", snap.Status, snap.Phase)
	}
	if snap.Title != "A" {
		t.Errorf("expected title in snapshot, got %q", snap.Title)
	}
}

func TestJob_CompleteCached(t *testing.T) {
	job := NewJob("", Options{})
	job.Complete(&Document{Cached: true, Pages: make([]node.Page, 3)})
	snap := job.Snapshot()
	if snap.Phase != "cached" {
		t.Errorf("expected cached phase, got %q", snap.Phase)
	}
	if snap.Progress.PagesExtracted != 3 {
		t.Errorf("expected 3 pages extracted, got %d", snap.Progress.PagesExtracted)
	}
}

func TestJob_Fail(t *testing.T) {
	job := NewJob("", Options{})
	job.Fail("rasterizing", errors.New("document is encrypted"))

	_, err := job.Result()
	if err == nil {
		t.Fatal("expected failure to be stored")
	}
	snap := job.Snapshot()
	if snap.Status != StatusFailed || !snap.Status.Done() {
		t.Errorf("expected terminal failed status, got %q", snap.Status)
	}
	if len(snap.Progress.Errors) != 1 || snap.Progress.Errors[0] != "document is encrypted" {
		t.Errorf("unexpected errors %v", snap.Progress.Errors)
	}
}

func TestJob_FailExtractionNotDuplicated(t *testing.T) {
	job := NewJob("", Options{})
	pe := &PageError{PageIndex: 1, Message: "bad"}
	job.PageDone(0, nil)
	job.PageDone(1, pe)
	job.Fail("extracting", &ExtractionError{FailedPage: 1, Count: 1, Errors: []*PageError{pe}})

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 1 {
		t.Fatalf("expected only the page error, got %v", snap.Progress.Errors)
	}
	if snap.Progress.PagesExtracted != 1 || snap.Progress.PagesFailed != 1 {
		t.Errorf("expected 1 extracted and 1 failed, got %+v", snap.Progress)
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("page 3 failed")
	job.AddError("page 7 failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "page 3 failed" {
		t.Errorf("expected first error %q, got %q", "page 3 failed", snap.Progress.Errors[0])
	}
}

func TestJob_PageProgress(t *testing.T) {
	job := &Job{ID: "incr-test", UpdatedAt: time.Now()}
	job.SetPagesTotal(4)
	job.PageDone(0, nil)
	job.PageDone(2, nil)
	job.PageDone(1, errors.New("timeout"))

	snap := job.Snapshot()
	if snap.Progress.PagesTotal != 4 {
		t.Errorf("expected 4 total pages, got %d", snap.Progress.PagesTotal)
	}
	if snap.Progress.PagesExtracted != 2 {
		t.Errorf("expected 2 pages extracted, got %d", snap.Progress.PagesExtracted)
	}
	if snap.Progress.PagesFailed != 1 {
		t.Errorf("expected 1 page failed, got %d", snap.Progress.PagesFailed)
	}
	if snap.Progress.Errors[0] != "page 1: timeout" {
		t.Errorf("unexpected error text %q", snap.Progress.Errors[0])
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := &Job{ID: "new", Status: StatusFailed, UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupKeepsRunningJobs(t *testing.T) {
	store := NewJobStore(time.Millisecond)
	running := &Job{ID: "busy", Status: StatusExtracting, UpdatedAt: time.Now().Add(-time.Hour)}
	store.Put(running)

	store.Cleanup()

	if store.Get("busy") == nil {
		t.Error("expected running job to survive cleanup")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 job, got %d", store.Len())
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}
