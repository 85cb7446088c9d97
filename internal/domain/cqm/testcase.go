package cqm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SourceDataCriteria is one raw data criteria record of a measure.
type SourceDataCriteria struct {
	Type        string `json:"type"`
	OID         string `json:"oid"`
	Description string `json:"description"`
	Title       string `json:"title,omitempty"`
	Name        string `json:"name,omitempty"`
	DRC         bool   `json:"drc,omitempty"`
	CodeID      string `json:"codeId,omitempty"`
}

// TestCase is a synthetic patient with its expected population outcomes.
// JSON holds the QDM patient as an embedded JSON document.
type TestCase struct {
	ID               string            `json:"id,omitempty"`
	Title            string            `json:"title"`
	Series           string            `json:"series"`
	Description      string            `json:"description,omitempty"`
	JSON             string            `json:"json"`
	GroupPopulations []GroupPopulation `json:"groupPopulations,omitempty"`

	// decodeErr is set when the wire form could not be decoded. Build
	// reports it for this test case alone.
	decodeErr error
}

// UnmarshalJSON decodes a test case leniently so one bad entry does not
// reject the whole request. Problems are kept on the test case and surface
// as a MalformedTestCaseError from Build.
func (tc *TestCase) UnmarshalJSON(data []byte) error {
	*tc = TestCase{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		tc.decodeErr = errors.New("test case is not a JSON object")
		return nil
	}

	for _, f := range []struct {
		key string
		dst *string
	}{
		{"id", &tc.ID},
		{"title", &tc.Title},
		{"series", &tc.Series},
		{"description", &tc.Description},
	} {
		if err := optionalString(fields[f.key], f.dst); err != nil && tc.decodeErr == nil {
			tc.decodeErr = fmt.Errorf("%s must be a string", f.key)
		}
	}

	if raw, ok := fields["json"]; ok {
		if err := optionalString(raw, &tc.JSON); err != nil && tc.decodeErr == nil {
			tc.decodeErr = errors.New("json must be a string holding the patient document")
		}
	}

	// unusable expectations only cost the expected values
	if raw, ok := fields["groupPopulations"]; ok {
		var gps []GroupPopulation
		if err := json.Unmarshal(raw, &gps); err == nil {
			tc.GroupPopulations = gps
		}
	}
	return nil
}

func optionalString(raw json.RawMessage, dst *string) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// GroupPopulation holds the expected outcomes of one measure group.
type GroupPopulation struct {
	GroupID          string            `json:"groupId,omitempty"`
	ScoringType      string            `json:"scoring,omitempty"`
	PopulationValues []PopulationValue `json:"populationValues,omitempty"`
}

// PopulationValue is the expected (and optionally actual) outcome for one
// population. Expected is a boolean for proportion-like measures and a number
// for continuous variable observations.
type PopulationValue struct {
	Name     string      `json:"name,omitempty"`
	Expected interface{} `json:"expected"`
	Actual   interface{} `json:"actual,omitempty"`
}

// ExpectedValues flattens the expected outcomes of every group population
// in nested input order.
func (tc TestCase) ExpectedValues() []interface{} {
	values := make([]interface{}, 0)
	for _, gp := range tc.GroupPopulations {
		for _, pv := range gp.PopulationValues {
			values = append(values, pv.Expected)
		}
	}
	return values
}
