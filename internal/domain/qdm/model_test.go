package qdm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePatientJSON = `{
  "birthDatetime": "1985-01-01T08:00:00.000+00:00",
  "qdmVersion": "5.6",
  "dataElements": [
    {
      "_type": "QDM::EncounterPerformed",
      "qdmCategory": "encounter",
      "qdmStatus": "performed",
      "description": "Encounter, Performed: Office Visit",
      "codeListId": "2.16.840.1.113883.3.464.1003.101.12.1001",
      "dataElementCodes": [{"code": "185463005", "system": "2.16.840.1.113883.6.96", "display": "Visit"}],
      "relevantPeriod": {"low": "2024-03-01T08:00:00.000+00:00", "high": "2024-03-01T09:00:00.000+00:00"}
    },
    {
      "_type": "QDM::PatientCharacteristicSex",
      "dataElementCodes": [{"code": "F", "system": "2.16.840.1.113883.5.1"}, "junk"]
    }
  ]
}`

func TestPatient_DecodeAndClassify(t *testing.T) {
	var p Patient
	require.NoError(t, json.Unmarshal([]byte(samplePatientJSON), &p))
	require.Len(t, p.DataElements, 2)

	enc := p.DataElements[0]
	assert.Equal(t, "EncounterPerformed", enc.ModelType())
	assert.Equal(t, "Encounter, Performed: Office Visit", enc.Description())
	low, high := enc.Period("relevantPeriod")
	assert.Equal(t, "2024-03-01T08:00:00.000+00:00", low)
	assert.Equal(t, "2024-03-01T09:00:00.000+00:00", high)

	sex := p.DataElements[1]
	cat, st := sex.Classify(DefaultRegistry)
	assert.Equal(t, "patient_characteristic", cat)
	assert.Equal(t, "gender", st)
	assert.Equal(t, []Code{{Code: "F", System: "2.16.840.1.113883.5.1"}}, sex.Codes())

	cat, _ = sex.Classify(nil)
	assert.Empty(t, cat)
}

func TestClassify_FillsMissingHalfFromModelType(t *testing.T) {
	catOnly := DataElement{"_type": "QDM::PatientCharacteristicPayer", "qdmCategory": "patient_characteristic"}
	cat, st := catOnly.Classify(DefaultRegistry)
	assert.Equal(t, "patient_characteristic", cat)
	assert.Equal(t, "payer", st)

	statusOnly := DataElement{"_type": "QDM::EncounterPerformed", "qdmStatus": "performed"}
	cat, st = statusOnly.Classify(DefaultRegistry)
	assert.Equal(t, "encounter", cat)
	assert.Equal(t, "performed", st)

	cat, st = catOnly.Classify(nil)
	assert.Equal(t, "patient_characteristic", cat)
	assert.Empty(t, st)
}

func TestPatient_DataElementsOf(t *testing.T) {
	var p Patient
	require.NoError(t, json.Unmarshal([]byte(samplePatientJSON), &p))

	assert.Len(t, p.DataElementsOf(DefaultRegistry, "encounter", ""), 1)
	assert.Len(t, p.DataElementsOf(DefaultRegistry, "encounter", "performed"), 1)
	assert.Empty(t, p.DataElementsOf(DefaultRegistry, "encounter", "order"))
	assert.Len(t, p.DataElementsOf(DefaultRegistry, "patient_characteristic", "gender"), 1)
	assert.Empty(t, p.DataElementsOf(DefaultRegistry, "patient_characteristic", "payer"))
}

func TestNewDefaultPayer(t *testing.T) {
	payer := NewDefaultPayer("65f0c0ffee0000000000abcd", "1985-01-01T08:00:00.000+00:00")

	cat, st := payer.Classify(DefaultRegistry)
	assert.Equal(t, "patient_characteristic", cat)
	assert.Equal(t, "payer", st)
	assert.Equal(t, "PatientCharacteristicPayer", payer.ModelType())
	assert.Equal(t, []Code{{Code: "1", System: OIDSourceOfPayment, CodeSystem: "SOP"}}, payer.Codes())

	low, high := payer.Period("relevantPeriod")
	assert.Equal(t, "1985-01-01T08:00:00.000+00:00", low)
	assert.Empty(t, high)

	out, err := json.Marshal(payer)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"high":null`)
	assert.Contains(t, string(out), `"_id":"65f0c0ffee0000000000abcd"`)
}

func TestNewDefaultPayer_NoBirthDate(t *testing.T) {
	payer := NewDefaultPayer("id", "")
	out, err := json.Marshal(payer["relevantPeriod"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"low":null,"high":null,"lowClosed":true,"highClosed":true}`, string(out))
}
