package cqm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/qrda/qrda-export/internal/domain/qdm"
)

// Patient is a test case prepared for export.
type Patient struct {
	ID             int           `json:"id"`
	GivenNames     []string      `json:"givenNames"`
	FamilyName     string        `json:"familyName"`
	Pass           bool          `json:"pass"`
	ExpectedValues []interface{} `json:"expectedValues"`
	QDMPatient     qdm.Patient   `json:"qdmPatient"`
}

// FirstName returns the first given name or an empty string.
func (p *Patient) FirstName() string {
	if len(p.GivenNames) == 0 {
		return ""
	}
	return p.GivenNames[0]
}

// Filename returns the base name used for the artifacts of this patient.
func (p *Patient) Filename() string {
	return Filename(p.ID, p.FamilyName, p.FirstName())
}

// Filename builds "{index+1}_{family}_{given}". It is also used for test
// cases whose patient could not be built. Path separators and control
// characters in the names are replaced so the result is always a single
// path element.
func Filename(index int, family, given string) string {
	return fmt.Sprintf("%d_%s_%s", index+1, safeName(family), safeName(given))
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '-'
		case unicode.IsControl(r):
			return '_'
		}
		return r
	}, s)
}

// PatientBuilder converts raw test cases into patients. It is safe for
// concurrent use.
type PatientBuilder struct {
	registry *qdm.Registry
	newID    func() string
}

// NewPatientBuilder creates a builder classifying data elements through reg,
// or through qdm.DefaultRegistry when reg is nil.
func NewPatientBuilder(reg *qdm.Registry) *PatientBuilder {
	if reg == nil {
		reg = qdm.DefaultRegistry
	}
	return &PatientBuilder{
		registry: reg,
		newID:    func() string { return primitive.NewObjectID().Hex() },
	}
}

// Build decodes the clinical data of tc and derives the patient at index.
// Only an undecodable test case or clinical data payload is an error.
func (b *PatientBuilder) Build(index int, tc TestCase) (*Patient, error) {
	if tc.decodeErr != nil {
		return nil, &MalformedTestCaseError{Index: index, Err: tc.decodeErr}
	}
	body := strings.TrimSpace(tc.JSON)
	if !strings.HasPrefix(body, "{") {
		return nil, &MalformedTestCaseError{Index: index, Err: fmt.Errorf("expected a JSON object")}
	}

	var qdmPatient qdm.Patient
	if err := json.Unmarshal([]byte(body), &qdmPatient); err != nil {
		return nil, &MalformedTestCaseError{Index: index, Err: err}
	}

	p := &Patient{
		ID:             index,
		GivenNames:     []string{tc.Title},
		FamilyName:     tc.Series,
		Pass:           true,
		ExpectedValues: tc.ExpectedValues(),
		QDMPatient:     qdmPatient,
	}
	b.ensurePayer(p)
	return p, nil
}

// ensurePayer adds the default payer when the patient has none.
func (b *PatientBuilder) ensurePayer(p *Patient) {
	if len(p.QDMPatient.DataElementsOf(b.registry, "patient_characteristic", "payer")) > 0 {
		return
	}
	payer := qdm.NewDefaultPayer(b.newID(), p.QDMPatient.BirthDatetime)
	p.QDMPatient.DataElements = append(p.QDMPatient.DataElements, payer)
}
