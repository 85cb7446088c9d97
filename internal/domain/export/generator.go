package export

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/qrda/qrda-export/internal/domain/cqm"
	"github.com/qrda/qrda-export/internal/platform/qrda"
)

// DocumentRenderer produces the clinical document of a patient.
type DocumentRenderer interface {
	Render(ctx context.Context, patient *cqm.Patient, measure *cqm.Measure, opts qrda.Options) ([]byte, error)
}

// HTMLRenderer produces the human-readable summary of a patient.
type HTMLRenderer interface {
	Render(ctx context.Context, patient *cqm.Patient, includeSummary bool) ([]byte, error)
}

// SummaryRenderer produces the top-level report of a batch.
type SummaryRenderer interface {
	Render(ctx context.Context, summary *BatchSummary) ([]byte, error)
}

// Generator produces both artifacts of one patient. A failure of one
// renderer never affects the other.
type Generator struct {
	doc    DocumentRenderer
	html   HTMLRenderer
	tracer trace.Tracer
}

// NewGenerator creates a generator. A nil tracer disables spans.
func NewGenerator(doc DocumentRenderer, html HTMLRenderer, tracer trace.Tracer) *Generator {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Generator{doc: doc, html: html, tracer: tracer}
}

// Generate runs the document and HTML renderers concurrently and captures
// their errors and panics as RenderErrors.
func (g *Generator) Generate(ctx context.Context, measure *cqm.Measure, patient *cqm.Patient, opts qrda.Options) ArtifactResult {
	ctx, span := g.tracer.Start(ctx, "export.generate",
		trace.WithAttributes(
			attribute.Int("patient.id", patient.ID),
			attribute.String("patient.filename", patient.Filename()),
		),
	)
	defer span.End()

	res := ArtifactResult{Filename: patient.Filename()}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res.HTML, res.HTMLErr = capture(KindHTML, patient.ID, func() ([]byte, error) {
			return g.html.Render(ctx, patient, true)
		})
	}()
	res.Document, res.DocumentErr = capture(KindDocument, patient.ID, func() ([]byte, error) {
		return g.doc.Render(ctx, patient, measure, opts)
	})
	wg.Wait()

	for _, err := range []error{res.DocumentErr, res.HTMLErr} {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	return res
}

// capture invokes render, converting a returned error or a panic into a
// RenderError. The output of a failed render is discarded.
func capture(kind RenderKind, patientID int, render func() ([]byte, error)) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &RenderError{Kind: kind, PatientID: patientID, Panicked: true, Err: fmt.Errorf("%v", r)}
		}
	}()
	out, err = render()
	if err != nil {
		return nil, &RenderError{Kind: kind, PatientID: patientID, Err: err}
	}
	return out, nil
}
