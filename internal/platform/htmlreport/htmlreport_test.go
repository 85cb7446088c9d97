package htmlreport

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrda/qrda-export/internal/domain/cqm"
	"github.com/qrda/qrda-export/internal/domain/export"
)

const patientJSON = `{
	"birthDatetime": "1965-03-14T08:30:00.000+00:00",
	"dataElements": [
		{"_type": "QDM::PatientCharacteristicSex", "dataElementCodes": [{"code": "F", "system": "2.16.840.1.113883.5.1", "display": "Female"}]},
		{"_type": "QDM::EncounterPerformed", "description": "Encounter, Performed: Office <Visit>",
		 "dataElementCodes": [{"code": "99213", "system": "2.16.840.1.113883.6.12", "codeSystem": "CPT"}],
		 "relevantPeriod": {"low": "2026-02-01T09:00:00.000+00:00", "high": "2026-02-01T09:30:00.000+00:00"}},
		{"_type": "QDM::LaboratoryTestPerformed", "description": "HbA1c",
		 "result": {"value": 9.5, "unit": "%"}, "resultDatetime": "2026-03-01T10:00:00.000+00:00"},
		{"_type": "QDM::InterventionOrder", "negationRationale": {"code": "183932001"}}
	]
}`

func buildPatient(t *testing.T) *cqm.Patient {
	t.Helper()
	p, err := cqm.NewPatientBuilder(nil).Build(1, cqm.TestCase{
		Title:  "NumerPass",
		Series: "Diabetes",
		JSON:   patientJSON,
		GroupPopulations: []cqm.GroupPopulation{{PopulationValues: []cqm.PopulationValue{
			{Name: "initialPopulation", Expected: true},
			{Name: "numerator", Expected: 1.0},
		}}},
	})
	require.NoError(t, err)
	return p
}

func TestPatientRenderer_Render(t *testing.T) {
	r, err := NewPatientRenderer(nil)
	require.NoError(t, err)

	out, err := r.Render(context.Background(), buildPatient(t), true)
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "<h1>NumerPass Diabetes</h1>")
	assert.Contains(t, html, "2_Diabetes_NumerPass")
	assert.Contains(t, html, "Patient Summary")
	assert.Contains(t, html, "1965-03-14 08:30")
	assert.Contains(t, html, "<td>Female</td>")
	assert.Contains(t, html, "true, 1")
	assert.Contains(t, html, "Encounter, Performed: Office &lt;Visit&gt;")
	assert.Contains(t, html, "99213 (CPT)")
	assert.Contains(t, html, "2026-02-01 09:00 - 2026-02-01 09:30")
	assert.Contains(t, html, "9.5 %")
	assert.Contains(t, html, "InterventionOrder (not done)")
	// sex and the injected payer are shown as demographics, not data elements
	assert.Contains(t, html, "Data Elements (3)")
	assert.NotContains(t, html, "<td>PatientCharacteristicSex")
}

func TestPatientRenderer_WithoutSummary(t *testing.T) {
	r, err := NewPatientRenderer(nil)
	require.NoError(t, err)

	out, err := r.Render(context.Background(), buildPatient(t), false)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "Patient Summary")
	assert.Contains(t, string(out), "Data Elements")
}

func TestPatientRenderer_EmptyPatient(t *testing.T) {
	r, err := NewPatientRenderer(nil)
	require.NoError(t, err)

	p := &cqm.Patient{ID: 0, GivenNames: []string{"Empty"}, FamilyName: "S"}
	out, err := r.Render(context.Background(), p, true)
	require.NoError(t, err)
	assert.Contains(t, string(out), "No data elements.")
	assert.Contains(t, string(out), "<td>Unknown</td>")
}

func TestPatientRenderer_Errors(t *testing.T) {
	r, err := NewPatientRenderer(nil)
	require.NoError(t, err)

	_, err = r.Render(context.Background(), nil, true)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Render(ctx, buildPatient(t), true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummaryRenderer_Render(t *testing.T) {
	r, err := NewSummaryRenderer()
	require.NoError(t, err)

	var groups []export.GroupResult
	require.NoError(t, json.Unmarshal([]byte(`[{
		"groupId": "g1",
		"coverage": "92%",
		"testCaseResults": [
			{"title": "DenomPass", "series": "Diabetes", "populations": [
				{"name": "initialPopulation", "expected": true, "actual": true, "pass": true},
				{"name": "denominator", "expected": true, "actual": true, "pass": true}
			]},
			{"title": "NumerFail", "series": "Diabetes", "populations": [
				{"name": "initialPopulation", "expected": true, "actual": true, "pass": true},
				{"name": "numerator", "expected": 1, "actual": 0, "pass": false}
			], "stratifications": null}
		]
	}]`), &groups))

	s := &export.BatchSummary{
		Measure:       &cqm.Measure{HQMFID: "hqmf-1", CMSID: "CMS122v12", Title: "Diabetes <HbA1c>"},
		Patients:      []*cqm.Patient{buildPatient(t)},
		TestCaseCount: 2,
		QRDAErrors:    map[int]string{0: "test case 1 is malformed: expected a JSON object"},
		HTMLErrors:    map[int]string{0: "test case 1 is malformed: expected a JSON object"},
		Filenames:     map[int]string{0: "1_Diabetes_Broken", 1: "2_Diabetes_NumerPass"},
		Groups:        groups,
	}

	out, err := r.Render(context.Background(), s)
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "Diabetes &lt;HbA1c&gt;")
	assert.Contains(t, html, "CMS122v12")
	assert.Contains(t, html, "1_Diabetes_Broken")
	assert.Contains(t, html, "<td>QRDA</td>")
	assert.Contains(t, html, "<td>HTML</td>")
	assert.Contains(t, html, "<th>IPP</th><th>DENOM</th><th>NUMER</th>")
	assert.Contains(t, html, "1 passed, 1 failed")
	assert.Contains(t, html, "coverage 92%")
	assert.Contains(t, html, "0 (expected 1)")
	assert.Equal(t, 1, strings.Count(html, `<td class="fail">FAIL</td>`))
}

func TestSummaryRenderer_Empty(t *testing.T) {
	r, err := NewSummaryRenderer()
	require.NoError(t, err)

	out, err := r.Render(context.Background(), &export.BatchSummary{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "Untitled measure")
	assert.NotContains(t, string(out), "Failures")

	_, err = r.Render(context.Background(), nil)
	assert.Error(t, err)
}

func TestSummaryView_TruncatesFailureMessagesByRune(t *testing.T) {
	long := strings.Repeat("é", 299) + "日本語"
	s := &export.BatchSummary{
		QRDAErrors: map[int]string{0: long},
		HTMLErrors: map[int]string{0: "short"},
		Filenames:  map[int]string{0: "1_S_T"},
	}

	v := summaryViewOf(s)
	require.Len(t, v.Failures, 2)
	msg := v.Failures[0].Message
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, maxFailureMessage, utf8.RuneCountInString(msg))
	assert.True(t, strings.HasSuffix(msg, "é日"))
	assert.Equal(t, "short", v.Failures[1].Message)

	r, err := NewSummaryRenderer()
	require.NoError(t, err)
	out, err := r.Render(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, utf8.Valid(out))
	assert.NotContains(t, string(out), "日本")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
	assert.Equal(t, "", truncateRunes("日本語", 0))
}

func TestAbbreviate(t *testing.T) {
	assert.Equal(t, "IPP", Abbreviate("initialPopulation"))
	assert.Equal(t, "OBSERV", Abbreviate("measurePopulationObservation"))
	assert.Equal(t, "DENEXCEP", Abbreviate("denominatorException"))
	assert.Equal(t, "CUSTOM", Abbreviate("custom"))
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{true, "true"},
		{2.0, "2"},
		{0.25, "0.25"},
		{"x", "x"},
		{map[string]interface{}{"code": "F", "display": "Female"}, "Female (F)"},
		{map[string]interface{}{"value": 9.5, "unit": "%"}, "9.5 %"},
		{map[string]interface{}{"value": 3.0}, "3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, display(tt.in))
	}
}

var _ export.HTMLRenderer = (*PatientRenderer)(nil)
var _ export.SummaryRenderer = (*SummaryRenderer)(nil)
