package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// MaxRetries bounds the retries for a single model call.
const MaxRetries = 3

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// RequestContext is a sanitized description of a model call, safe to log and
// return to API clients.
type RequestContext struct {
	Operation string `json:"operation"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	HasImage  bool   `json:"has_image"`
	TextChars int    `json:"text_chars"`
	Attempts  int    `json:"attempts"`
}

// CallError is a failed model call. StatusCode and Body are set when the
// provider answered with an HTTP error.
type CallError struct {
	Provider   string
	Model      string
	StatusCode int
	Body       string
	Request    RequestContext
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Model, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// statusError builds the CallError for an HTTP error answer. 429 and 5xx are
// marked retryable.
func statusError(provider Provider, model string, status int, body string) *CallError {
	ce := &CallError{
		Provider:   string(provider),
		Model:      model,
		StatusCode: status,
		Body:       truncate(body, 4096),
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		ce.Err = &RetryableError{StatusCode: status, Message: body}
	} else {
		ce.Err = fmt.Errorf("%s api status %d", provider, status)
	}
	return ce
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
