package htmlreport

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/qrda/qrda-export/internal/domain/cqm"
	"github.com/qrda/qrda-export/internal/domain/qdm"
)

// PatientRenderer renders the page of a single test case patient.
type PatientRenderer struct {
	tmpl     *template.Template
	registry *qdm.Registry
}

// NewPatientRenderer parses the patient page. Data elements are classified
// through reg, or qdm.DefaultRegistry when reg is nil.
func NewPatientRenderer(reg *qdm.Registry) (*PatientRenderer, error) {
	if reg == nil {
		reg = qdm.DefaultRegistry
	}
	tmpl, err := parse("patient.html")
	if err != nil {
		return nil, err
	}
	return &PatientRenderer{tmpl: tmpl, registry: reg}, nil
}

type patientView struct {
	Name           string
	Number         int
	Filename       string
	IncludeSummary bool
	BirthDate      string
	Sex            string
	Race           string
	Ethnicity      string
	Expired        string
	Payer          string
	ExpectedValues []string
	Elements       []elementView
}

type elementView struct {
	Type        string
	Description string
	Codes       []string
	Timing      string
	Result      string
	Negated     bool
}

// Render produces the HTML page of patient. includeSummary adds the
// demographics and expected values table.
func (r *PatientRenderer) Render(ctx context.Context, patient *cqm.Patient, includeSummary bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, fmt.Errorf("htmlreport: patient is nil")
	}
	return execute(r.tmpl, r.view(patient, includeSummary))
}

func (r *PatientRenderer) view(p *cqm.Patient, includeSummary bool) patientView {
	v := patientView{
		Name:           strings.TrimSpace(p.FirstName() + " " + p.FamilyName),
		Number:         p.ID + 1,
		Filename:       p.Filename(),
		IncludeSummary: includeSummary,
		BirthDate:      displayDate(p.QDMPatient.BirthDatetime),
		ExpectedValues: make([]string, 0, len(p.ExpectedValues)),
	}
	for _, ev := range p.ExpectedValues {
		v.ExpectedValues = append(v.ExpectedValues, display(ev))
	}

	for _, de := range p.QDMPatient.DataElements {
		cat, status := de.Classify(r.registry)
		if cat == "patient_characteristic" {
			switch status {
			case "gender":
				v.Sex = firstCodeLabel(de)
			case "race":
				v.Race = firstCodeLabel(de)
			case "ethnicity":
				v.Ethnicity = firstCodeLabel(de)
			case "expired":
				v.Expired = displayDate(de.Timestamp())
			case "payer":
				v.Payer = firstCodeLabel(de)
			}
		}
		// the demographic rows already carry these
		if cat == "patient_characteristic" && status != "" && status != "clinical_trial_participant" {
			continue
		}
		v.Elements = append(v.Elements, r.element(de))
	}
	return v
}

func (r *PatientRenderer) element(de qdm.DataElement) elementView {
	ev := elementView{
		Type:        de.ModelType(),
		Description: de.Description(),
		Timing:      timing(de),
		Result:      display(de["result"]),
	}
	if _, ok := de["negationRationale"].(map[string]interface{}); ok {
		ev.Negated = true
	}
	for _, c := range de.Codes() {
		label := c.Code
		if sys := firstNonEmpty(c.CodeSystem, c.System); sys != "" {
			label += " (" + sys + ")"
		}
		if c.Display != "" {
			label = c.Display + ": " + label
		}
		ev.Codes = append(ev.Codes, label)
	}
	return ev
}

func timing(de qdm.DataElement) string {
	for _, key := range []string{"relevantPeriod", "prevalencePeriod", "participationPeriod"} {
		if low, high := de.Period(key); low != "" || high != "" {
			return displayDate(low) + " - " + displayDate(high)
		}
	}
	return displayDate(de.Timestamp())
}

func firstCodeLabel(de qdm.DataElement) string {
	codes := de.Codes()
	if len(codes) == 0 {
		return ""
	}
	if codes[0].Display != "" {
		return codes[0].Display
	}
	return codes[0].Code
}

// displayDate trims a QDM timestamp to its date and time of day.
func displayDate(s string) string {
	if len(s) >= 16 && s[10] == 'T' {
		return s[:10] + " " + s[11:16]
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
