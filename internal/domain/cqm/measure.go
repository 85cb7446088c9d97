package cqm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/qrda/qrda-export/internal/domain/qdm"
)

// Scoring is the measure scoring method.
type Scoring string

const (
	ScoringProportion         Scoring = "PROPORTION"
	ScoringRatio              Scoring = "RATIO"
	ScoringCohort             Scoring = "COHORT"
	ScoringContinuousVariable Scoring = "CONTINUOUS_VARIABLE"
)

// DefaultCMSID is used when the measure carries no CMS identifier.
const DefaultCMSID = "CMS0v0"

// Measure is the typed measure a batch of test cases is exported against.
type Measure struct {
	HQMFID                 string             `json:"hqmfId"`
	HQMFSetID              string             `json:"hqmfSetId,omitempty"`
	CMSID                  string             `json:"cmsId"`
	Title                  string             `json:"title"`
	Description            string             `json:"description,omitempty"`
	Version                string             `json:"version,omitempty"`
	Scoring                Scoring            `json:"measureScoring,omitempty"`
	MeasurementPeriodStart string             `json:"measurementPeriodStart,omitempty"`
	MeasurementPeriodEnd   string             `json:"measurementPeriodEnd,omitempty"`
	Groups                 []MeasureGroup     `json:"groups,omitempty"`
	PopulationCriteria     json.RawMessage    `json:"populationCriteria,omitempty"`
	DataCriteria           []qdm.DataCriteria `json:"sourceDataCriteria"`
}

// MeasureGroup summarizes one population group of the measure.
type MeasureGroup struct {
	ID          string   `json:"id,omitempty"`
	Scoring     Scoring  `json:"scoring,omitempty"`
	Populations []string `json:"populations,omitempty"`
}

// measureDocument is the subset of the MADiE measure model read by the
// assembler.
type measureDocument struct {
	ID                     string          `json:"id"`
	MeasureSetID           string          `json:"measureSetId"`
	CMSID                  string          `json:"cmsId"`
	Title                  string          `json:"title"`
	EcqmTitle              string          `json:"ecqmTitle"`
	MeasureName            string          `json:"measureName"`
	Description            string          `json:"description"`
	Version                string          `json:"version"`
	Scoring                string          `json:"scoring"`
	MeasurementPeriodStart string          `json:"measurementPeriodStart"`
	MeasurementPeriodEnd   string          `json:"measurementPeriodEnd"`
	MeasureMetaData        *struct {
		Description string `json:"description"`
	} `json:"measureMetaData"`
	Groups json.RawMessage `json:"groups"`
}

type groupDocument struct {
	ID          string `json:"id"`
	Scoring     string `json:"scoring"`
	Populations []struct {
		Name       string `json:"name"`
		Definition string `json:"definition"`
	} `json:"populations"`
}

// MeasureAssembler turns the raw measure payload and its source data criteria
// into a Measure. It is safe for concurrent use.
type MeasureAssembler struct {
	registry *qdm.Registry
	scoring  map[string]Scoring
}

// NewMeasureAssembler creates an assembler resolving criteria through reg,
// or through qdm.DefaultRegistry when reg is nil.
func NewMeasureAssembler(reg *qdm.Registry) *MeasureAssembler {
	if reg == nil {
		reg = qdm.DefaultRegistry
	}
	return &MeasureAssembler{
		registry: reg,
		scoring: map[string]Scoring{
			"Proportion":          ScoringProportion,
			"Ratio":               ScoringRatio,
			"Cohort":              ScoringCohort,
			"Continuous Variable": ScoringContinuousVariable,
		},
	}
}

// Registry returns the registry criteria are resolved against.
func (a *MeasureAssembler) Registry() *qdm.Registry { return a.registry }

// Assemble decodes raw and resolves every criteria record in order. raw may
// be the measure object itself or a JSON string holding it.
func (a *MeasureAssembler) Assemble(raw json.RawMessage, criteria []SourceDataCriteria) (*Measure, error) {
	doc, err := decodeMeasure(raw)
	if err != nil {
		return nil, err
	}

	m := &Measure{
		HQMFID:                 doc.ID,
		HQMFSetID:              doc.MeasureSetID,
		CMSID:                  doc.CMSID,
		Title:                  firstNonEmpty(doc.Title, doc.EcqmTitle, doc.MeasureName),
		Description:            doc.Description,
		Version:                doc.Version,
		Scoring:                a.scoring[doc.Scoring],
		MeasurementPeriodStart: doc.MeasurementPeriodStart,
		MeasurementPeriodEnd:   doc.MeasurementPeriodEnd,
		DataCriteria:           make([]qdm.DataCriteria, 0, len(criteria)),
	}
	if m.CMSID == "" {
		m.CMSID = DefaultCMSID
	}
	if m.Description == "" && doc.MeasureMetaData != nil {
		m.Description = doc.MeasureMetaData.Description
	}

	if len(doc.Groups) > 0 && !bytes.Equal(doc.Groups, []byte("null")) {
		var groups []groupDocument
		if err := json.Unmarshal(doc.Groups, &groups); err != nil {
			return nil, fmt.Errorf("%w: groups: %v", ErrInvalidMeasure, err)
		}
		m.PopulationCriteria = doc.Groups
		for _, g := range groups {
			mg := MeasureGroup{ID: g.ID, Scoring: a.scoring[g.Scoring]}
			for _, p := range g.Populations {
				mg.Populations = append(mg.Populations, p.Name)
			}
			m.Groups = append(m.Groups, mg)
		}
		if m.Scoring == "" && len(m.Groups) > 0 {
			m.Scoring = m.Groups[0].Scoring
		}
	}

	for _, raw := range criteria {
		dc, err := a.registry.Resolve(raw.Type)
		if err != nil {
			return nil, err
		}
		dc.CodeListID = raw.OID
		dc.Description = raw.Description
		m.DataCriteria = append(m.DataCriteria, dc)
	}
	return m, nil
}

func decodeMeasure(raw json.RawMessage) (*measureDocument, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, ErrInvalidMeasure
	}
	if body[0] == '"' {
		var embedded string
		if err := json.Unmarshal(body, &embedded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMeasure, err)
		}
		body = bytes.TrimSpace([]byte(embedded))
		if len(body) == 0 || bytes.Equal(body, []byte("null")) {
			return nil, ErrInvalidMeasure
		}
	}
	if body[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidMeasure)
	}
	var doc measureDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMeasure, err)
	}
	return &doc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
