package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/qrda/qrda-export/internal/domain/cqm"
	"github.com/qrda/qrda-export/internal/domain/qdm"
)

// RenderKind names the artifact a renderer produces.
type RenderKind string

const (
	KindDocument RenderKind = "qrda"
	KindHTML     RenderKind = "html"
	KindSummary  RenderKind = "summary"
)

// RenderError is a captured renderer failure for one patient and one
// artifact kind. Panics inside a renderer are reported as RenderErrors too.
type RenderError struct {
	Kind      RenderKind
	PatientID int
	Panicked  bool
	Err       error
}

func (e *RenderError) Error() string {
	what := "failed"
	if e.Panicked {
		what = "panicked"
	}
	// the summary renderer is not bound to a patient
	if e.PatientID < 0 {
		return fmt.Sprintf("%s renderer %s: %v", e.Kind, what, e.Err)
	}
	return fmt.Sprintf("%s renderer %s for patient %d: %v", e.Kind, what, e.PatientID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Error codes returned in batch-fatal error bodies.
const (
	CodeInvalidMeasure          = "invalid_measure"
	CodeUnsupportedCriteriaType = "unsupported_criteria_type"
	CodeTimeout                 = "timeout"
	CodeInternal                = "internal_error"
)

// StatusFor classifies a Run error into an HTTP status and an error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, cqm.ErrInvalidMeasure):
		return http.StatusBadRequest, CodeInvalidMeasure
	case errors.Is(err, qdm.ErrUnsupportedCriteriaType):
		return http.StatusBadRequest, CodeUnsupportedCriteriaType
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	}
	return http.StatusInternalServerError, CodeInternal
}
