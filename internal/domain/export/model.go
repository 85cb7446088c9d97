package export

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/qrda/qrda-export/internal/domain/cqm"
	"github.com/qrda/qrda-export/internal/platform/qrda"
)

// MeasureDTO is the body of an export request.
type MeasureDTO struct {
	Measure            json.RawMessage          `json:"measure" validate:"measure_payload"`
	SourceDataCriteria []cqm.SourceDataCriteria `json:"sourceDataCriteria"`
	TestCases          []cqm.TestCase           `json:"testCases"`
	Options            qrda.Options             `json:"options"`
	GroupDTOs          []GroupResult            `json:"groupDTOs"`
}

// ArtifactResult holds the two artifacts of one test case. Each artifact is
// present or replaced by its error, independently of the other.
type ArtifactResult struct {
	Filename    string
	Document    []byte
	HTML        []byte
	DocumentErr error
	HTMLErr     error
}

type artifactJSON struct {
	Filename    string  `json:"filename"`
	QRDA        *string `json:"qrda"`
	Report      *string `json:"report"`
	QRDAError   string  `json:"qrdaError,omitempty"`
	ReportError string  `json:"reportError,omitempty"`
}

func (r ArtifactResult) MarshalJSON() ([]byte, error) {
	out := artifactJSON{Filename: r.Filename}
	if r.DocumentErr != nil {
		out.QRDAError = r.DocumentErr.Error()
	} else if r.Document != nil {
		s := string(r.Document)
		out.QRDA = &s
	}
	if r.HTMLErr != nil {
		out.ReportError = r.HTMLErr.Error()
	} else if r.HTML != nil {
		s := string(r.HTML)
		out.Report = &s
	}
	return json.Marshal(out)
}

// GroupResult carries the externally computed pass/fail outcomes of one
// measure group. It is used for display only.
type GroupResult struct {
	GroupID         string           `json:"groupId"`
	Coverage        interface{}      `json:"coverage,omitempty"`
	TestCaseResults []TestCaseResult `json:"testCaseResults,omitempty"`
}

type TestCaseResult struct {
	ID              string                 `json:"id,omitempty"`
	Title           string                 `json:"title,omitempty"`
	Series          string                 `json:"series,omitempty"`
	Populations     []PopulationResult     `json:"populations,omitempty"`
	Stratifications []StratificationResult `json:"stratifications,omitempty"`
}

// PopulationResult is the outcome of one population. A nil Pass means the
// outcome was not evaluated.
type PopulationResult struct {
	ID       string      `json:"id,omitempty"`
	Name     string      `json:"name"`
	Expected interface{} `json:"expected,omitempty"`
	Actual   interface{} `json:"actual,omitempty"`
	Pass     *bool       `json:"pass,omitempty"`
}

type StratificationResult struct {
	ID                 string             `json:"id,omitempty"`
	StratificationDTOs []PopulationResult `json:"stratificationDtos,omitempty"`
}

// PopulationFailed reports whether any population explicitly failed.
func (tc TestCaseResult) PopulationFailed() bool {
	return anyFailed(tc.Populations)
}

// StratificationFailed reports whether any stratum explicitly failed. A test
// case without stratifications never fails here.
func (tc TestCaseResult) StratificationFailed() bool {
	for _, s := range tc.Stratifications {
		if anyFailed(s.StratificationDTOs) {
			return true
		}
	}
	return false
}

// Failed reports whether the test case failed any population or stratum.
func (tc TestCaseResult) Failed() bool {
	return tc.PopulationFailed() || tc.StratificationFailed()
}

func anyFailed(pops []PopulationResult) bool {
	for _, p := range pops {
		if p.Pass != nil && !*p.Pass {
			return true
		}
	}
	return false
}

// PassCounts returns the number of passing and failing test cases of g.
func (g GroupResult) PassCounts() (passed, failed int) {
	for _, tc := range g.TestCaseResults {
		if tc.Failed() {
			failed++
		} else {
			passed++
		}
	}
	return passed, failed
}

// BatchSummary is everything the summary report is rendered from. Error maps
// are keyed by patient id, the ordinal index of the test case.
type BatchSummary struct {
	Measure       *cqm.Measure
	Patients      []*cqm.Patient
	TestCaseCount int
	QRDAErrors    map[int]string
	HTMLErrors    map[int]string
	Groups        []GroupResult
	Filenames     map[int]string
}

// Failure names one failed artifact of one test case.
type Failure struct {
	PatientID int        `json:"patientId"`
	Filename  string     `json:"filename"`
	Kind      RenderKind `json:"kind"`
	Message   string     `json:"message"`
}

// Failures lists every captured failure ordered by patient id, document
// failures first.
func (s *BatchSummary) Failures() []Failure {
	var out []Failure
	for id, msg := range s.QRDAErrors {
		out = append(out, Failure{PatientID: id, Filename: s.Filenames[id], Kind: KindDocument, Message: msg})
	}
	for id, msg := range s.HTMLErrors {
		out = append(out, Failure{PatientID: id, Filename: s.Filenames[id], Kind: KindHTML, Message: msg})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PatientID != out[j].PatientID {
			return out[i].PatientID < out[j].PatientID
		}
		return out[i].Kind == KindDocument && out[j].Kind != KindDocument
	})
	return out
}

// GroupSummary is the per-group pass/fail aggregate of the summary report.
type GroupSummary struct {
	GroupID  string      `json:"groupId"`
	Coverage interface{} `json:"coverage,omitempty"`
	Passed   int         `json:"passed"`
	Failed   int         `json:"failed"`
}

// SummaryReport is the JSON form of the batch summary.
type SummaryReport struct {
	HQMFID        string         `json:"hqmfId"`
	CMSID         string         `json:"cmsId"`
	Title         string         `json:"title"`
	TestCaseCount int            `json:"testCaseCount"`
	PatientCount  int            `json:"patientCount"`
	QRDAErrors    map[int]string `json:"qrdaErrors"`
	HTMLErrors    map[int]string `json:"htmlErrors"`
	Failures      []Failure      `json:"failures"`
	Groups        []GroupSummary `json:"groups"`
	HTML          string         `json:"html"`
	HTMLError     string         `json:"htmlError,omitempty"`
}

// Report builds the JSON summary. html is the rendered summary report.
func (s *BatchSummary) Report(html []byte, renderErr error) SummaryReport {
	r := SummaryReport{
		TestCaseCount: s.TestCaseCount,
		PatientCount:  len(s.Patients),
		QRDAErrors:    s.QRDAErrors,
		HTMLErrors:    s.HTMLErrors,
		Failures:      s.Failures(),
		Groups:        make([]GroupSummary, 0, len(s.Groups)),
		HTML:          string(html),
	}
	if r.Failures == nil {
		r.Failures = []Failure{}
	}
	if s.Measure != nil {
		r.HQMFID, r.CMSID, r.Title = s.Measure.HQMFID, s.Measure.CMSID, s.Measure.Title
	}
	for _, g := range s.Groups {
		passed, failed := g.PassCounts()
		r.Groups = append(r.Groups, GroupSummary{GroupID: g.GroupID, Coverage: g.Coverage, Passed: passed, Failed: failed})
	}
	if renderErr != nil {
		r.HTMLError = renderErr.Error()
	}
	return r
}

// BatchResponse is the envelope returned for a processed batch.
type BatchResponse struct {
	RunID             uuid.UUID        `json:"-"`
	IndividualReports []ArtifactResult `json:"individualReports"`
	SummaryReport     SummaryReport    `json:"summaryReport"`
}

// ExportRun is the persisted record of one processed batch.
type ExportRun struct {
	ID            uuid.UUID `json:"id"`
	HQMFID        string    `json:"hqmfId"`
	CMSID         string    `json:"cmsId"`
	TestCaseCount int       `json:"testCaseCount"`
	QRDAFailures  int       `json:"qrdaFailures"`
	HTMLFailures  int       `json:"htmlFailures"`
	ArchivePrefix string    `json:"archivePrefix,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	Duration      int64     `json:"durationMs"`
}
