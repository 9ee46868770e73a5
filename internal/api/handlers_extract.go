package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/docstruct/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if _, err := pipeline.SourceKindFor(filename); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := pipeline.Options{
		Filename: filename,
		Model:    strings.TrimSpace(r.FormValue("model")),
		Prompt:   r.FormValue("prompt"),
		Title:    strings.TrimSpace(r.FormValue("title")),
	}
	if v := r.FormValue("quality"); v != "" {
		q, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, "quality must be a boolean", http.StatusBadRequest)
			return
		}
		opts.Quality = q
	}
	if v := r.FormValue("max_concurrency"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "max_concurrency must be a positive integer", http.StatusBadRequest)
			return
		}
		opts.MaxConcurrency = n
	}

	path, size, err := s.saveUpload(file, filename)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		s.log.Error("saving upload failed", "filename", filename, "error", err)
		jsonError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	job := pipeline.NewJob(path, opts)
	if err := s.jobs.Submit(job); err != nil {
		os.Remove(path)
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.log.Info("job queued", "job_id", job.ID, "filename", filename, "bytes", size)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/jobs/%s", job.ID),
	})
}

var errTooLarge = errors.New("upload too large")

// saveUpload copies the upload to a temp file the job will own.
func (s *Server) saveUpload(src io.Reader, filename string) (string, int64, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "docstruct-upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, io.LimitReader(src, s.cfg.MaxUploadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.cfg.MaxUploadBytes {
		err = errTooLarge
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, err
	}
	return f.Name(), n, nil
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.jobs.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	resp := map[string]any{
		"job_id":   snap.ID,
		"status":   snap.Status,
		"phase":    snap.Phase,
		"filename": snap.Filename,
		"progress": snap.Progress,
	}
	if snap.Status == pipeline.StatusCompleted {
		resp["result_url"] = fmt.Sprintf("/api/jobs/%s/result", snap.ID)
		resp["title"] = snap.Title
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.jobs.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}

	doc, err := job.Result()
	switch {
	case err != nil:
		resp := map[string]any{"error": err.Error()}
		var extErr *pipeline.ExtractionError
		if errors.As(err, &extErr) {
			resp["failed_page"] = extErr.FailedPage
			resp["count"] = extErr.Count
			resp["errors"] = extErr.Errors
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case doc == nil:
		snap := job.Snapshot()
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "job has not finished",
			"status": snap.Status,
			"phase":  snap.Phase,
		})
	default:
		writeJSON(w, http.StatusOK, doc)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
