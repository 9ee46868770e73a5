package pipeline

import (
	"errors"
	"fmt"

	"github.com/dgallion1/docstruct/internal/model"
)

// PageError is the failure of one page, kept as data until the whole
// extraction has finished.
type PageError struct {
	PageIndex    int                  `json:"page_index"`
	Message      string               `json:"message"`
	Request      model.RequestContext `json:"request"`
	StatusCode   int                  `json:"status_code,omitempty"`
	ResponseBody string               `json:"response_body,omitempty"`

	err error
}

func newPageError(index int, err error) *PageError {
	pe := &PageError{PageIndex: index, Message: err.Error(), err: err}
	var ce *model.CallError
	if errors.As(err, &ce) {
		pe.Request = ce.Request
		pe.StatusCode = ce.StatusCode
		pe.ResponseBody = ce.Body
	}
	return pe
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s", e.PageIndex, e.Message)
}

func (e *PageError) Unwrap() error { return e.err }

// ExtractionError aggregates every page failure of one extraction call.
// Errors is ordered by page index and FailedPage is the first of them.
type ExtractionError struct {
	FailedPage int          `json:"failed_page"`
	Count      int          `json:"count"`
	Errors     []*PageError `json:"errors"`
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed on %d page(s), first failure on page %d: %s",
		e.Count, e.FailedPage, e.Errors[0].Message)
}

func (e *ExtractionError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		out[i] = pe
	}
	return out
}
