package export

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/qrda/qrda-export/internal/domain/cqm"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWorkers bounds the number of test cases processed concurrently.
// Values below one select runtime.NumCPU().
func WithWorkers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRunRepository records every processed batch.
func WithRunRepository(r RunRepository) ServiceOption {
	return func(s *Service) { s.runs = r }
}

// WithArchive stores every generated artifact under the run id.
func WithArchive(a Archive) ServiceOption {
	return func(s *Service) { s.archive = a }
}

func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// Service runs export batches.
type Service struct {
	assembler *cqm.MeasureAssembler
	builder   *cqm.PatientBuilder
	generator *Generator
	summary   SummaryRenderer
	workers   int
	runs      RunRepository
	archive   Archive
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a batch service.
func NewService(assembler *cqm.MeasureAssembler, builder *cqm.PatientBuilder, generator *Generator, summary SummaryRenderer, opts ...ServiceOption) *Service {
	s := &Service{
		assembler: assembler,
		builder:   builder,
		generator: generator,
		summary:   summary,
		workers:   runtime.NumCPU(),
		tracer:    noop.NewTracerProvider().Tracer(""),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// slot is the outcome of one test case. Workers only write their own slot.
type slot struct {
	patient  *cqm.Patient
	artifact ArtifactResult
}

// Run processes the batch. Batch-fatal errors (invalid measure, unsupported
// criteria type, cancelled context) return no response; per-test-case
// failures are captured in the response.
func (s *Service) Run(ctx context.Context, dto *MeasureDTO) (*BatchResponse, error) {
	if err := ValidateDTO(dto); err != nil {
		return nil, err
	}

	started := s.now()
	runID := uuid.New()
	ctx, span := s.tracer.Start(ctx, "export.run", trace.WithAttributes(
		attribute.String("run.id", runID.String()),
		attribute.Int("run.test_cases", len(dto.TestCases)),
	))
	defer span.End()

	measure, err := s.assembler.Assemble(dto.Measure, dto.SourceDataCriteria)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("measure.cms_id", measure.CMSID))

	log := s.loggerFor(ctx).With().Str("run_id", runID.String()).Str("cms_id", measure.CMSID).Logger()
	log.Info().Int("test_cases", len(dto.TestCases)).Int("workers", s.workers).Msg("export batch started")

	slots := make([]slot, len(dto.TestCases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range dto.TestCases {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = s.process(gctx, measure, dto, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	summary := &BatchSummary{
		Measure:       measure,
		TestCaseCount: len(dto.TestCases),
		QRDAErrors:    make(map[int]string),
		HTMLErrors:    make(map[int]string),
		Groups:        dto.GroupDTOs,
		Filenames:     make(map[int]string, len(slots)),
	}
	resp := &BatchResponse{RunID: runID, IndividualReports: make([]ArtifactResult, len(slots))}
	for i, sl := range slots {
		resp.IndividualReports[i] = sl.artifact
		summary.Filenames[i] = sl.artifact.Filename
		if sl.patient != nil {
			summary.Patients = append(summary.Patients, sl.patient)
		}
		if err := sl.artifact.DocumentErr; err != nil {
			summary.QRDAErrors[i] = err.Error()
			log.Warn().Err(err).Int("patient_id", i).Str("kind", string(KindDocument)).
				Str("filename", sl.artifact.Filename).Msg("artifact generation failed")
		}
		if err := sl.artifact.HTMLErr; err != nil {
			summary.HTMLErrors[i] = err.Error()
			log.Warn().Err(err).Int("patient_id", i).Str("kind", string(KindHTML)).
				Str("filename", sl.artifact.Filename).Msg("artifact generation failed")
		}
	}

	html, renderErr := s.renderSummary(ctx, summary)
	if renderErr != nil {
		log.Error().Err(renderErr).Msg("summary report generation failed")
	}
	resp.SummaryReport = summary.Report(html, renderErr)

	prefix := s.archiveArtifacts(ctx, log, runID, resp, html)
	s.recordRun(ctx, log, &ExportRun{
		ID:            runID,
		HQMFID:        measure.HQMFID,
		CMSID:         measure.CMSID,
		TestCaseCount: len(dto.TestCases),
		QRDAFailures:  len(summary.QRDAErrors),
		HTMLFailures:  len(summary.HTMLErrors),
		ArchivePrefix: prefix,
		StartedAt:     started.UTC(),
		Duration:      s.now().Sub(started).Milliseconds(),
	})

	log.Info().
		Int("qrda_failures", len(summary.QRDAErrors)).
		Int("html_failures", len(summary.HTMLErrors)).
		Dur("elapsed", s.now().Sub(started)).
		Msg("export batch finished")
	return resp, nil
}

// process builds and renders the test case at index i.
func (s *Service) process(ctx context.Context, measure *cqm.Measure, dto *MeasureDTO, i int) slot {
	tc := dto.TestCases[i]
	patient, err := s.builder.Build(i, tc)
	if err != nil {
		return slot{artifact: ArtifactResult{
			Filename:    cqm.Filename(i, tc.Series, tc.Title),
			DocumentErr: err,
			HTMLErr:     err,
		}}
	}
	return slot{patient: patient, artifact: s.generator.Generate(ctx, measure, patient, dto.Options)}
}

func (s *Service) renderSummary(ctx context.Context, summary *BatchSummary) ([]byte, error) {
	if s.summary == nil {
		return nil, nil
	}
	return capture(KindSummary, -1, func() ([]byte, error) {
		return s.summary.Render(ctx, summary)
	})
}

// archiveArtifacts stores the artifacts under "<run id>/" and returns the
// prefix, or "" when no archive is configured. Failures are logged only.
// loggerFor prefers the request scoped logger carried by ctx, which already
// holds the request id.
func (s *Service) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

func (s *Service) archiveArtifacts(ctx context.Context, log zerolog.Logger, runID uuid.UUID, resp *BatchResponse, summaryHTML []byte) string {
	if s.archive == nil {
		return ""
	}
	prefix := runID.String() + "/"
	put := func(key string, data []byte, contentType string) {
		if data == nil {
			return
		}
		if err := s.archive.Put(ctx, prefix+key, data, contentType); err != nil {
			log.Warn().Err(err).Str("key", prefix+key).Msg("archive artifact failed")
		}
	}
	for _, a := range resp.IndividualReports {
		put(a.Filename+".xml", a.Document, "application/xml")
		put(a.Filename+".html", a.HTML, "text/html")
	}
	put("summary.html", summaryHTML, "text/html")
	return prefix
}

func (s *Service) recordRun(ctx context.Context, log zerolog.Logger, run *ExportRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Create(ctx, run); err != nil {
		log.Warn().Err(err).Msg("record export run failed")
	}
}

// ListRuns returns recorded batches, newest first.
func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]*ExportRun, int, error) {
	if s.runs == nil {
		return nil, 0, fmt.Errorf("run history is not configured")
	}
	return s.runs.List(ctx, limit, offset)
}

// HistoryEnabled reports whether batches are recorded.
func (s *Service) HistoryEnabled() bool { return s.runs != nil }
