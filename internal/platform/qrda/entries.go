package qrda

import (
	"fmt"
	"strconv"

	"github.com/qrda/qrda-export/internal/domain/qdm"
)

// statementShape selects the CDA clinical statement a data element renders
// as.
type statementShape int

const (
	shapeObservation statementShape = iota
	shapeAct
	shapeEncounter
	shapeProcedure
	shapeSubstance
	shapeSupply
)

type entryTemplate struct {
	model string
	root  string
	shape statementShape
	title string
}

// entryTemplates lists the QRDA Category I entry template of every QDM model
// with a patient data entry. Demographic characteristics are rendered in the
// header and entities have no entry of their own.
var entryTemplates = indexTemplates([]entryTemplate{
	{model: "AdverseEvent", root: "2.16.840.1.113883.10.20.24.3.146", shape: shapeObservation, title: "Adverse Event"},
	{model: "AllergyIntolerance", root: "2.16.840.1.113883.10.20.24.3.147", shape: shapeObservation, title: "Allergy/Intolerance"},
	{model: "AssessmentOrder", root: "2.16.840.1.113883.10.20.24.3.158", shape: shapeObservation, title: "Assessment, Order"},
	{model: "AssessmentPerformed", root: "2.16.840.1.113883.10.20.24.3.144", shape: shapeObservation, title: "Assessment, Performed"},
	{model: "AssessmentRecommended", root: "2.16.840.1.113883.10.20.24.3.145", shape: shapeObservation, title: "Assessment, Recommended"},
	{model: "CareGoal", root: "2.16.840.1.113883.10.20.24.3.1", shape: shapeObservation, title: "Care Goal"},
	{model: "CommunicationPerformed", root: "2.16.840.1.113883.10.20.24.3.156", shape: shapeAct, title: "Communication, Performed"},
	{model: "DeviceOrder", root: "2.16.840.1.113883.10.20.24.3.130", shape: shapeSupply, title: "Device, Order"},
	{model: "DeviceRecommended", root: "2.16.840.1.113883.10.20.24.3.131", shape: shapeSupply, title: "Device, Recommended"},
	{model: "Diagnosis", root: "2.16.840.1.113883.10.20.24.3.135", shape: shapeObservation, title: "Diagnosis"},
	{model: "DiagnosticStudyOrder", root: "2.16.840.1.113883.10.20.24.3.17", shape: shapeObservation, title: "Diagnostic Study, Order"},
	{model: "DiagnosticStudyPerformed", root: "2.16.840.1.113883.10.20.24.3.18", shape: shapeObservation, title: "Diagnostic Study, Performed"},
	{model: "DiagnosticStudyRecommended", root: "2.16.840.1.113883.10.20.24.3.19", shape: shapeObservation, title: "Diagnostic Study, Recommended"},
	{model: "EncounterOrder", root: "2.16.840.1.113883.10.20.24.3.22", shape: shapeEncounter, title: "Encounter, Order"},
	{model: "EncounterPerformed", root: "2.16.840.1.113883.10.20.24.3.23", shape: shapeEncounter, title: "Encounter, Performed"},
	{model: "EncounterRecommended", root: "2.16.840.1.113883.10.20.24.3.24", shape: shapeEncounter, title: "Encounter, Recommended"},
	{model: "FamilyHistory", root: "2.16.840.1.113883.10.20.24.3.12", shape: shapeObservation, title: "Family History"},
	{model: "ImmunizationAdministered", root: "2.16.840.1.113883.10.20.24.3.140", shape: shapeSubstance, title: "Immunization, Administered"},
	{model: "ImmunizationOrder", root: "2.16.840.1.113883.10.20.24.3.143", shape: shapeSubstance, title: "Immunization, Order"},
	{model: "InterventionOrder", root: "2.16.840.1.113883.10.20.24.3.31", shape: shapeAct, title: "Intervention, Order"},
	{model: "InterventionPerformed", root: "2.16.840.1.113883.10.20.24.3.32", shape: shapeAct, title: "Intervention, Performed"},
	{model: "InterventionRecommended", root: "2.16.840.1.113883.10.20.24.3.33", shape: shapeAct, title: "Intervention, Recommended"},
	{model: "LaboratoryTestOrder", root: "2.16.840.1.113883.10.20.24.3.37", shape: shapeObservation, title: "Laboratory Test, Order"},
	{model: "LaboratoryTestPerformed", root: "2.16.840.1.113883.10.20.24.3.38", shape: shapeObservation, title: "Laboratory Test, Performed"},
	{model: "LaboratoryTestRecommended", root: "2.16.840.1.113883.10.20.24.3.39", shape: shapeObservation, title: "Laboratory Test, Recommended"},
	{model: "MedicationActive", root: "2.16.840.1.113883.10.20.24.3.41", shape: shapeSubstance, title: "Medication, Active"},
	{model: "MedicationAdministered", root: "2.16.840.1.113883.10.20.24.3.42", shape: shapeSubstance, title: "Medication, Administered"},
	{model: "MedicationDischarge", root: "2.16.840.1.113883.10.20.24.3.105", shape: shapeSubstance, title: "Medication, Discharge"},
	{model: "MedicationDispensed", root: "2.16.840.1.113883.10.20.24.3.45", shape: shapeSupply, title: "Medication, Dispensed"},
	{model: "MedicationOrder", root: "2.16.840.1.113883.10.20.24.3.47", shape: shapeSubstance, title: "Medication, Order"},
	{model: "Participation", root: "2.16.840.1.113883.10.20.24.3.154", shape: shapeObservation, title: "Participation"},
	{model: "PatientCareExperience", root: "2.16.840.1.113883.10.20.24.3.48", shape: shapeObservation, title: "Patient Care Experience"},
	{model: "PatientCharacteristicClinicalTrialParticipant", root: "2.16.840.1.113883.10.20.24.3.51", shape: shapeObservation, title: "Patient Characteristic Clinical Trial Participant"},
	{model: "PatientCharacteristicExpired", root: "2.16.840.1.113883.10.20.24.3.54", shape: shapeObservation, title: "Patient Characteristic Expired"},
	{model: "PatientCharacteristicPayer", root: OIDSourceOfPaymentEntry, shape: shapeObservation, title: "Patient Characteristic Payer"},
	{model: "PhysicalExamOrder", root: "2.16.840.1.113883.10.20.24.3.58", shape: shapeObservation, title: "Physical Exam, Order"},
	{model: "PhysicalExamPerformed", root: "2.16.840.1.113883.10.20.24.3.59", shape: shapeObservation, title: "Physical Exam, Performed"},
	{model: "PhysicalExamRecommended", root: "2.16.840.1.113883.10.20.24.3.60", shape: shapeObservation, title: "Physical Exam, Recommended"},
	{model: "ProcedureOrder", root: "2.16.840.1.113883.10.20.24.3.63", shape: shapeProcedure, title: "Procedure, Order"},
	{model: "ProcedurePerformed", root: "2.16.840.1.113883.10.20.24.3.64", shape: shapeProcedure, title: "Procedure, Performed"},
	{model: "ProcedureRecommended", root: "2.16.840.1.113883.10.20.24.3.65", shape: shapeProcedure, title: "Procedure, Recommended"},
	{model: "ProviderCareExperience", root: "2.16.840.1.113883.10.20.24.3.67", shape: shapeObservation, title: "Provider Care Experience"},
	{model: "SubstanceAdministered", root: "2.16.840.1.113883.10.20.24.3.42", shape: shapeSubstance, title: "Substance, Administered"},
	{model: "SubstanceOrder", root: "2.16.840.1.113883.10.20.24.3.47", shape: shapeSubstance, title: "Substance, Order"},
	{model: "SubstanceRecommended", root: "2.16.840.1.113883.10.20.24.3.75", shape: shapeSubstance, title: "Substance, Recommended"},
	{model: "Symptom", root: "2.16.840.1.113883.10.20.24.3.136", shape: shapeObservation, title: "Symptom"},
})

func indexTemplates(list []entryTemplate) map[string]entryTemplate {
	m := make(map[string]entryTemplate, len(list))
	for _, t := range list {
		m[t.model] = t
	}
	return m
}

// moodFor maps the QDM status of an element to the CDA mood code.
func moodFor(status string) string {
	switch status {
	case "order":
		return "RQO"
	case "recommended":
		return "INT"
	}
	return "EVN"
}

func classFor(shape statementShape) string {
	switch shape {
	case shapeAct:
		return "ACT"
	case shapeEncounter:
		return "ENC"
	case shapeProcedure:
		return "PROC"
	case shapeSubstance:
		return "SBADM"
	case shapeSupply:
		return "SPLY"
	}
	return "OBS"
}

// renderedElement is a data element ready for the patient data section.
type renderedElement struct {
	entry Entry
	row   NarrativeTr
}

// buildEntry renders one data element, or reports false when the element
// has no entry template.
func (g *Generator) buildEntry(reg *qdm.Registry, de qdm.DataElement) (renderedElement, bool) {
	tmpl, ok := entryTemplates[de.ModelType()]
	if !ok {
		return renderedElement{}, false
	}
	_, status := de.Classify(reg)

	stmt := Statement{
		ClassCode:   classFor(tmpl.shape),
		MoodCode:    moodFor(status),
		TemplateIDs: []TemplateID{{Root: tmpl.root, Extension: QRDATemplateExtension}},
		IDs:         []InstanceID{{Root: g.orgOID, Extension: elementID(de)}},
		StatusCode:  &Code{Code: "completed"},
	}
	if _, negated := de["negationRationale"].(map[string]interface{}); negated {
		stmt.NegationInd = "true"
	}

	codes := de.Codes()
	if len(codes) > 0 {
		stmt.Code = codeFromQDM(codes[0])
	} else {
		stmt.Code = &Code{NullFlavor: "NA"}
	}
	if desc := de.Description(); desc != "" {
		stmt.Text = desc
	}
	stmt.EffectiveTime = elementTime(de)

	entry := Entry{TypeCode: "DRIV"}
	switch tmpl.shape {
	case shapeAct:
		entry.Act = &Act{Statement: stmt}
	case shapeEncounter:
		entry.Encounter = &Encounter{Statement: stmt}
	case shapeProcedure:
		entry.Procedure = &Procedure{Statement: stmt}
	case shapeSubstance:
		material := &ManufacturedMaterial{Code: stmt.Code}
		stmt.Code = nil
		entry.SubstanceAdministration = &SubstanceAdministration{
			Statement: stmt,
			Consumable: &Consumable{ManufacturedProduct: &ManufacturedProduct{
				ClassCode:            "MANU",
				ManufacturedMaterial: material,
			}},
		}
	case shapeSupply:
		material := &ManufacturedMaterial{Code: stmt.Code}
		stmt.Code = nil
		entry.Supply = &Supply{
			Statement: stmt,
			Product: &Product{ManufacturedProduct: &ManufacturedProduct{
				ClassCode:            "MANU",
				ManufacturedMaterial: material,
			}},
		}
	default:
		entry.Observation = &Observation{Statement: stmt, Value: resultValue(de["result"])}
	}

	displayCode := ""
	if len(codes) > 0 {
		displayCode = codes[0].Code + " (" + codeSystemLabel(codes[0]) + ")"
	}
	row := NarrativeTr{Tds: []string{tmpl.title, de.Description(), displayCode, narrativeTime(stmt.EffectiveTime)}}
	return renderedElement{entry: entry, row: row}, true
}

func elementID(de qdm.DataElement) string {
	switch id := de["_id"].(type) {
	case string:
		return id
	case map[string]interface{}:
		// extended JSON form {"$oid": "..."}
		if oid, ok := id["$oid"].(string); ok {
			return oid
		}
	}
	if id, ok := de["id"].(string); ok {
		return id
	}
	return ""
}

func codeFromQDM(c qdm.Code) *Code {
	return &Code{
		Code:           c.Code,
		CodeSystem:     c.System,
		CodeSystemName: c.CodeSystem,
		DisplayName:    c.Display,
	}
}

func codeSystemLabel(c qdm.Code) string {
	if c.CodeSystem != "" {
		return c.CodeSystem
	}
	return c.System
}

// elementTime prefers the relevant period, then the prevalence period, then
// a point in time.
func elementTime(de qdm.DataElement) *TimeRange {
	for _, key := range []string{"relevantPeriod", "prevalencePeriod", "participationPeriod"} {
		if _, present := de[key].(map[string]interface{}); !present {
			continue
		}
		low, high := de.Period(key)
		return &TimeRange{Low: hl7Bound(low), High: hl7Bound(high)}
	}
	if ts := de.Timestamp(); ts != "" {
		if v := formatQDMTime(ts); v != "" {
			return &TimeRange{Value: v}
		}
	}
	return nil
}

func hl7Bound(s string) *TimeValue {
	if v := formatQDMTime(s); v != "" {
		return &TimeValue{Value: v}
	}
	return &TimeValue{NullFlavor: "UNK"}
}

func narrativeTime(tr *TimeRange) string {
	if tr == nil {
		return ""
	}
	if tr.Value != "" {
		return tr.Value
	}
	low, high := "", ""
	if tr.Low != nil {
		low = tr.Low.Value
	}
	if tr.High != nil {
		high = tr.High.Value
	}
	if high == "" {
		return low
	}
	return low + " - " + high
}

// resultValue converts a QDM result into a CDA value. Unsupported shapes
// yield nil.
func resultValue(result interface{}) *Value {
	switch r := result.(type) {
	case map[string]interface{}:
		if code, ok := r["code"].(string); ok {
			system, _ := r["system"].(string)
			display, _ := r["display"].(string)
			return &Value{Type: "CD", Code: code, CodeSystem: system, DisplayName: display}
		}
		if v, ok := r["value"]; ok {
			unit, _ := r["unit"].(string)
			return &Value{Type: "PQ", Value: numberString(v), Unit: unit}
		}
	case float64:
		return &Value{Type: "PQ", Value: numberString(r), Unit: "1"}
	case string:
		if r != "" {
			return &Value{Type: "ST", Value: r}
		}
	}
	return nil
}

func numberString(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
