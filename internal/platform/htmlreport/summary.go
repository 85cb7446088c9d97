package htmlreport

import (
	"context"
	"fmt"
	"html/template"
	"unicode/utf8"

	"github.com/qrda/qrda-export/internal/domain/export"
)

// SummaryRenderer renders the top-level report of a batch.
type SummaryRenderer struct {
	tmpl *template.Template
}

func NewSummaryRenderer() (*SummaryRenderer, error) {
	tmpl, err := parse("summary.html")
	if err != nil {
		return nil, err
	}
	return &SummaryRenderer{tmpl: tmpl}, nil
}

type summaryView struct {
	HQMFID        string
	CMSID         string
	Title         string
	TestCaseCount int
	PatientCount  int
	QRDAFailures  int
	HTMLFailures  int
	Failures      []export.Failure
	Groups        []groupView
}

type groupView struct {
	GroupID  string
	Coverage interface{}
	Passed   int
	Failed   int
	Columns  []string
	Rows     []rowView
}

type rowView struct {
	Title       string
	Series      string
	Cells       []cellView
	StratFailed bool
	Failed      bool
}

// maxFailureMessage caps the error text shown per failure row, in runes.
const maxFailureMessage = 300

type cellView struct {
	Text  string
	Class string
}

// Render produces the summary page of s.
func (r *SummaryRenderer) Render(ctx context.Context, s *export.BatchSummary) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("htmlreport: summary is nil")
	}
	return execute(r.tmpl, summaryViewOf(s))
}

func summaryViewOf(s *export.BatchSummary) summaryView {
	v := summaryView{
		TestCaseCount: s.TestCaseCount,
		PatientCount:  len(s.Patients),
		QRDAFailures:  len(s.QRDAErrors),
		HTMLFailures:  len(s.HTMLErrors),
	}
	for _, f := range s.Failures() {
		f.Message = truncateRunes(f.Message, maxFailureMessage)
		v.Failures = append(v.Failures, f)
	}
	if s.Measure != nil {
		v.HQMFID, v.CMSID, v.Title = s.Measure.HQMFID, s.Measure.CMSID, s.Measure.Title
	}
	for _, g := range s.Groups {
		v.Groups = append(v.Groups, groupViewOf(g))
	}
	return v
}

func groupViewOf(g export.GroupResult) groupView {
	gv := groupView{GroupID: g.GroupID, Coverage: g.Coverage}
	gv.Passed, gv.Failed = g.PassCounts()

	// columns in first-seen order across test cases
	var names []string
	seen := make(map[string]bool)
	for _, tc := range g.TestCaseResults {
		for _, p := range tc.Populations {
			if !seen[p.Name] {
				seen[p.Name] = true
				names = append(names, p.Name)
			}
		}
	}
	for _, n := range names {
		gv.Columns = append(gv.Columns, Abbreviate(n))
	}

	for _, tc := range g.TestCaseResults {
		row := rowView{
			Title:       tc.Title,
			Series:      tc.Series,
			StratFailed: tc.StratificationFailed(),
			Failed:      tc.Failed(),
		}
		byName := make(map[string]export.PopulationResult, len(tc.Populations))
		for _, p := range tc.Populations {
			byName[p.Name] = p
		}
		for _, n := range names {
			row.Cells = append(row.Cells, cellOf(byName[n]))
		}
		gv.Rows = append(gv.Rows, row)
	}
	return gv
}

func cellOf(p export.PopulationResult) cellView {
	text := display(p.Actual)
	if text == "" {
		text = display(p.Expected)
	}
	switch {
	case p.Pass == nil:
		return cellView{Text: text, Class: "muted"}
	case *p.Pass:
		return cellView{Text: text, Class: "pass"}
	default:
		return cellView{Text: fmt.Sprintf("%s (expected %s)", text, display(p.Expected)), Class: "fail"}
	}
}

// truncateRunes cuts s to at most n runes, never splitting a multi-byte
// character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
