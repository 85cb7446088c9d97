package cqm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrda/qrda-export/internal/domain/qdm"
)

const sampleMeasure = `{
  "id": "64b8a1f2e4b0c7a1d2f3e4a5",
  "measureSetId": "5a1b2c3d",
  "cmsId": "CMS122v12",
  "ecqmTitle": "Diabetes: Glycemic Status Assessment Greater Than 9%",
  "version": "1.0.000",
  "measurementPeriodStart": "2024-01-01T00:00:00.000Z",
  "measurementPeriodEnd": "2024-12-31T23:59:59.000Z",
  "measureMetaData": {"description": "Percentage of patients 18-75 years of age with diabetes"},
  "groups": [
    {
      "id": "g1",
      "scoring": "Proportion",
      "populations": [
        {"name": "initialPopulation", "definition": "Initial Population"},
        {"name": "denominator", "definition": "Denominator"},
        {"name": "numerator", "definition": "Numerator"}
      ]
    }
  ]
}`

func urologyCriteria() SourceDataCriteria {
	return SourceDataCriteria{
		OID:         "2.16.840.1.113762.1.4.1151.59",
		Title:       "Hospital Services for Urology",
		Description: "Encounter, Performed: Hospital Services for Urology",
		Type:        "EncounterPerformed",
		Name:        "Hospital Services for Urology",
	}
}

func TestAssemble_FromObject(t *testing.T) {
	a := NewMeasureAssembler(nil)

	m, err := a.Assemble(json.RawMessage(sampleMeasure), []SourceDataCriteria{urologyCriteria()})
	require.NoError(t, err)

	assert.Equal(t, "64b8a1f2e4b0c7a1d2f3e4a5", m.HQMFID)
	assert.Equal(t, "CMS122v12", m.CMSID)
	assert.Equal(t, "Diabetes: Glycemic Status Assessment Greater Than 9%", m.Title)
	assert.Equal(t, "Percentage of patients 18-75 years of age with diabetes", m.Description)
	assert.Equal(t, ScoringProportion, m.Scoring)
	require.Len(t, m.Groups, 1)
	assert.Equal(t, []string{"initialPopulation", "denominator", "numerator"}, m.Groups[0].Populations)
	assert.NotEmpty(t, m.PopulationCriteria)

	require.Len(t, m.DataCriteria, 1)
	dc := m.DataCriteria[0]
	assert.Equal(t, "EncounterPerformed", dc.Type)
	assert.Equal(t, "2.16.840.1.113762.1.4.1151.59", dc.CodeListID)
	assert.Equal(t, "Encounter, Performed: Hospital Services for Urology", dc.Description)
}

func TestAssemble_FromEmbeddedString(t *testing.T) {
	embedded, err := json.Marshal(sampleMeasure)
	require.NoError(t, err)

	m, err := NewMeasureAssembler(nil).Assemble(embedded, nil)
	require.NoError(t, err)
	assert.Equal(t, "CMS122v12", m.CMSID)
	assert.NotNil(t, m.DataCriteria)
	assert.Empty(t, m.DataCriteria)
}

func TestAssemble_DefaultsCMSID(t *testing.T) {
	m, err := NewMeasureAssembler(nil).Assemble(json.RawMessage(`{"id":"abc","measureName":"Test","scoring":"Continuous Variable"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultCMSID, m.CMSID)
	assert.Equal(t, "Test", m.Title)
	assert.Equal(t, ScoringContinuousVariable, m.Scoring)
}

func TestAssemble_InvalidMeasure(t *testing.T) {
	cases := map[string]string{
		"absent":         ``,
		"null":           `null`,
		"empty string":   `""`,
		"string of null": `"null"`,
		"not json":       `"{not json"`,
		"array":          `[1,2]`,
		"number":         `42`,
		"bad groups":     `{"groups": 7}`,
		"wrong id type":  `{"id": 12}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewMeasureAssembler(nil).Assemble(json.RawMessage(raw), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidMeasure), "got %v", err)
		})
	}
}

func TestAssemble_PreservesCriteriaOrder(t *testing.T) {
	criteria := []SourceDataCriteria{
		{Type: "Diagnosis", OID: "1"},
		{Type: "MedicationActive", OID: "2"},
		{Type: "PatientCharacteristicPayer", OID: "3"},
		{Type: "Allergy/Intolerance", OID: "4"},
	}
	m, err := NewMeasureAssembler(nil).Assemble(json.RawMessage(sampleMeasure), criteria)
	require.NoError(t, err)

	var oids []string
	for _, dc := range m.DataCriteria {
		oids = append(oids, dc.CodeListID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, oids)
	assert.Equal(t, "AllergyIntolerance", m.DataCriteria[3].QDMType)
}

func TestAssemble_UnsupportedCriteriaType(t *testing.T) {
	criteria := []SourceDataCriteria{
		{Type: "Diagnosis", OID: "1"},
		{Type: "EncounterPerformedButWrong", OID: "2"},
	}
	m, err := NewMeasureAssembler(nil).Assemble(json.RawMessage(sampleMeasure), criteria)
	assert.Nil(t, m)

	var ute *qdm.UnsupportedCriteriaTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "EncounterPerformedButWrong", ute.Tag)
}

func TestAssemble_CustomRegistry(t *testing.T) {
	reg := qdm.NewRegistry(qdm.Kind{Tag: "Only", Model: "Only", Category: "only"})
	a := NewMeasureAssembler(reg)
	assert.Same(t, reg, a.Registry())

	_, err := a.Assemble(json.RawMessage(sampleMeasure), []SourceDataCriteria{{Type: "EncounterPerformed"}})
	assert.ErrorIs(t, err, qdm.ErrUnsupportedCriteriaType)
}
