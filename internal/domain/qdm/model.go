package qdm

import (
	"strings"
)

// Code system identifiers used by defaulted data elements.
const (
	// OIDSourceOfPayment is the PHDSC Source of Payment Typology code system.
	OIDSourceOfPayment = "2.16.840.1.113883.3.221.5"
	CodeSystemSOP      = "SOP"
)

// Patient is a QDM patient as supplied by a test case. Data elements are kept
// as decoded JSON objects so that fields this service does not interpret
// survive a round trip unchanged.
type Patient struct {
	BirthDatetime string                 `json:"birthDatetime,omitempty"`
	QDMVersion    string                 `json:"qdmVersion,omitempty"`
	DataElements  []DataElement          `json:"dataElements"`
	ExtendedData  map[string]interface{} `json:"extendedData,omitempty"`
}

// DataElementsOf returns the elements matching category and status. An empty
// status matches any status. Elements without an explicit qdmCategory are
// classified through the registry using their _type.
func (p *Patient) DataElementsOf(reg *Registry, category, status string) []DataElement {
	var out []DataElement
	for _, de := range p.DataElements {
		cat, st := de.Classify(reg)
		if cat != category {
			continue
		}
		if status != "" && st != status {
			continue
		}
		out = append(out, de)
	}
	return out
}

// Code is a single coded value.
type Code struct {
	Code       string `json:"code"`
	System     string `json:"system"`
	Display    string `json:"display,omitempty"`
	CodeSystem string `json:"codeSystem,omitempty"`
	Version    string `json:"version,omitempty"`
}

// DataElement is one clinical fact of a QDM patient in its decoded JSON form.
type DataElement map[string]interface{}

// ModelType returns the QDM model name without the "QDM::" prefix.
func (d DataElement) ModelType() string {
	return strings.TrimPrefix(d.str("_type"), "QDM::")
}

// Classify returns the QDM category and status of the element.
func (d DataElement) Classify(reg *Registry) (string, string) {
	cat, st := d.str("qdmCategory"), d.str("qdmStatus")
	if (cat != "" && st != "") || reg == nil {
		return cat, st
	}
	// fill whichever half is missing from the model type
	if k, ok := reg.KindForModel(d.ModelType()); ok {
		if cat == "" {
			cat = k.Category
		}
		if st == "" {
			st = k.Status
		}
	}
	return cat, st
}

func (d DataElement) Description() string { return d.str("description") }

func (d DataElement) CodeListID() string { return d.str("codeListId") }

// Codes decodes dataElementCodes. Entries that are not objects are skipped.
func (d DataElement) Codes() []Code {
	raw, ok := d["dataElementCodes"].([]interface{})
	if !ok {
		return nil
	}
	codes := make([]Code, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		codes = append(codes, Code{
			Code:       stringField(m, "code"),
			System:     stringField(m, "system"),
			Display:    stringField(m, "display"),
			CodeSystem: stringField(m, "codeSystem"),
			Version:    stringField(m, "version"),
		})
	}
	return codes
}

// Period returns the bounds of the interval stored under key, e.g.
// "relevantPeriod" or "prevalencePeriod".
func (d DataElement) Period(key string) (low, high string) {
	m, ok := d[key].(map[string]interface{})
	if !ok {
		return "", ""
	}
	return stringField(m, "low"), stringField(m, "high")
}

// Timestamp returns the first populated point-in-time attribute.
func (d DataElement) Timestamp() string {
	for _, key := range []string{"authorDatetime", "relevantDatetime", "resultDatetime", "expiredDatetime", "birthDatetime"} {
		if v := d.str(key); v != "" {
			return v
		}
	}
	return ""
}

func (d DataElement) str(key string) string {
	return stringField(d, key)
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
