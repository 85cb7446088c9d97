package qrda

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qrda/qrda-export/internal/domain/cqm"
	"github.com/qrda/qrda-export/internal/domain/qdm"
)

// Generator creates QRDA Category I documents for test patients. It is safe
// for concurrent use because it holds only immutable configuration.
type Generator struct {
	orgName  string // Author and custodian organization name
	orgOID   string // Author and custodian OID, also the root of entry ids
	registry *qdm.Registry
	now      func() time.Time
}

// NewGenerator creates a new QRDA generator. Data elements without an
// explicit category are classified through reg, or qdm.DefaultRegistry when
// reg is nil.
func NewGenerator(orgName, orgOID string, reg *qdm.Registry) *Generator {
	if reg == nil {
		reg = qdm.DefaultRegistry
	}
	return &Generator{
		orgName:  orgName,
		orgOID:   orgOID,
		registry: reg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Render produces the QRDA document of patient against measure.
func (g *Generator) Render(ctx context.Context, patient *cqm.Patient, measure *cqm.Measure, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, fmt.Errorf("qrda: patient is nil")
	}
	if measure == nil {
		return nil, fmt.Errorf("qrda: measure is nil")
	}

	doc := g.buildDocument(patient, measure, opts)

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("qrda: failed to marshal XML: %w", err)
	}

	header := []byte(xml.Header)
	result := make([]byte, len(header)+len(output))
	copy(result, header)
	copy(result[len(header):], output)
	return result, nil
}

func (g *Generator) buildDocument(patient *cqm.Patient, measure *cqm.Measure, opts Options) *ClinicalDocument {
	now := g.now()
	start, end := opts.Period(measure.MeasurementPeriodStart, measure.MeasurementPeriodEnd)

	doc := &ClinicalDocument{
		XSI:       XSINamespace,
		SDTC:      SDTCNamespace,
		RealmCode: &Code{Code: "US"},
		TypeID: &TypeID{
			Root:      "2.16.840.1.113883.1.3",
			Extension: "POCD_HD000040",
		},
		TemplateIDs: []TemplateID{
			{Root: OIDUSRealmHeader, Extension: "2015-08-01"},
			{Root: OIDQRDADocument, Extension: QRDATemplateExtension},
			{Root: OIDQDMBasedQRDA, Extension: QRDATemplateExtension},
			{Root: OIDCMSQRDACategoryI, Extension: "2020-02-01"},
		},
		ID: &InstanceID{Root: uuid.New().String()},
		Code: &Code{
			Code:           LOINCQRDADocument,
			CodeSystem:     OIDLOINC,
			CodeSystemName: "LOINC",
			DisplayName:    "Quality Measure Report",
		},
		Title:         "QRDA Incidence Report",
		EffectiveTime: &TimeValue{Value: formatHL7Time(now)},
		ConfidentialityCode: &Code{
			Code:       "N",
			CodeSystem: "2.16.840.1.113883.5.25",
		},
		LanguageCode: &Code{Code: "en"},
	}

	doc.RecordTarget = g.buildRecordTarget(patient)
	doc.Author = g.buildAuthor(now)
	doc.Custodian = g.buildCustodian()
	doc.DocumentationOf = buildDocumentationOf(start, end)

	sections := []Section{
		g.buildMeasureSection(measure),
		buildReportingParametersSection(start, end),
		g.buildPatientDataSection(patient),
	}
	components := make([]SectionComponent, len(sections))
	for i := range sections {
		components[i] = SectionComponent{Section: &sections[i]}
	}
	doc.Component = &Component{StructuredBody: &StructuredBody{Components: components}}
	return doc
}

// buildRecordTarget fills the patient header from the test case names and
// the demographic characteristics of the QDM patient.
func (g *Generator) buildRecordTarget(patient *cqm.Patient) *RecordTarget {
	role := &PatientRole{
		IDs: []InstanceID{{Root: g.orgOID, Extension: fmt.Sprintf("%d", patient.ID+1)}},
	}

	pat := &Patient{
		Name: &Name{Given: patient.GivenNames, Family: patient.FamilyName},
	}
	if v := formatQDMTime(patient.QDMPatient.BirthDatetime); v != "" {
		pat.BirthTime = &TimeValue{Value: v}
	} else {
		pat.BirthTime = &TimeValue{NullFlavor: "UNK"}
	}

	qp := &patient.QDMPatient
	pat.AdministrativeGenderCode = &Code{NullFlavor: "UNK"}
	if c, ok := firstCode(qp.DataElementsOf(g.registry, "patient_characteristic", "gender")); ok {
		pat.AdministrativeGenderCode = &Code{Code: c.Code, CodeSystem: OIDAdminGender, CodeSystemName: "AdministrativeGender"}
	}
	if c, ok := firstCode(qp.DataElementsOf(g.registry, "patient_characteristic", "race")); ok {
		pat.RaceCode = &Code{Code: c.Code, CodeSystem: OIDRace, CodeSystemName: "CDC Race and Ethnicity"}
	}
	if c, ok := firstCode(qp.DataElementsOf(g.registry, "patient_characteristic", "ethnicity")); ok {
		pat.EthnicGroupCode = &Code{Code: c.Code, CodeSystem: OIDRace, CodeSystemName: "CDC Race and Ethnicity"}
	}
	if expired := qp.DataElementsOf(g.registry, "patient_characteristic", "expired"); len(expired) > 0 {
		pat.DeceasedInd = &BoolValue{Value: true}
		if v := formatQDMTime(expired[0].Timestamp()); v != "" {
			pat.DeceasedTime = &TimeValue{Value: v}
		}
	}

	role.Patient = pat
	return &RecordTarget{PatientRole: role}
}

func (g *Generator) buildAuthor(now time.Time) *Author {
	return &Author{
		Time: &TimeValue{Value: formatHL7Time(now)},
		AssignedAuthor: &AssignedAuthor{
			ID: &InstanceID{Root: g.orgOID},
			AssignedAuthoringDevice: &AuthoringDevice{
				ManufacturerModelName: "QRDA Export Service",
				SoftwareName:          "QRDA Export Service",
			},
			RepresentedOrganization: &Organization{
				IDs:   []InstanceID{{Root: g.orgOID}},
				Names: []string{g.orgName},
			},
		},
	}
}

func (g *Generator) buildCustodian() *Custodian {
	return &Custodian{
		AssignedCustodian: &AssignedCustodian{
			RepresentedCustodianOrganization: &Organization{
				IDs:   []InstanceID{{Root: g.orgOID}},
				Names: []string{g.orgName},
			},
		},
	}
}

func buildDocumentationOf(start, end time.Time) *DocumentationOf {
	return &DocumentationOf{
		TypeCode: "DOC",
		ServiceEvent: &ServiceEvent{
			ClassCode:     "PCPR",
			EffectiveTime: periodRange(start, end),
		},
	}
}

// ---- Section Builders ----

func (g *Generator) buildMeasureSection(measure *cqm.Measure) Section {
	section := newSection(LOINCMeasureDocument, "Measure Section",
		TemplateID{Root: OIDMeasureSection},
		TemplateID{Root: OIDMeasureSectionQDM},
	)

	ref := Reference{
		TypeCode: "REFR",
		ExternalDocument: &ExternalDocument{
			ClassCode: "DOC",
			MoodCode:  "EVN",
			IDs:       []InstanceID{{Root: OIDHQMFVersionNumber, Extension: measure.HQMFID}},
			Code:      &Code{Code: "57024-2", CodeSystem: OIDLOINC, DisplayName: "Health Quality Measure Document"},
			Text:      measure.Title,
		},
	}
	if measure.HQMFSetID != "" {
		ref.ExternalDocument.SetID = &InstanceID{Root: measure.HQMFSetID}
	}

	section.Entries = []Entry{{
		Organizer: &Organizer{
			Statement: Statement{
				ClassCode: "CLUSTER",
				MoodCode:  "EVN",
				TemplateIDs: []TemplateID{
					{Root: OIDMeasureReference},
					{Root: OIDEMeasureReference, Extension: "2016-02-01"},
				},
				IDs:        []InstanceID{{Root: uuid.New().String()}},
				StatusCode: &Code{Code: "completed"},
			},
			References: []Reference{ref},
		},
	}}

	section.Text = buildNarrativeTable(
		[]string{"eMeasure Title", "Version neutral identifier", "eMeasure Version Number", "CMS Identifier"},
		[]NarrativeTr{{Tds: []string{measure.Title, measure.HQMFSetID, measure.Version, measure.CMSID}}},
	)
	return section
}

func buildReportingParametersSection(start, end time.Time) Section {
	section := newSection(LOINCReportingParams, "Reporting Parameters",
		TemplateID{Root: OIDReportingParametersSection},
		TemplateID{Root: OIDReportingParametersCMS, Extension: "2016-03-01"},
	)
	section.Text = &Narrative{List: &NarrativeList{Items: []string{
		fmt.Sprintf("Reporting period: %s - %s", displayDate(start), displayDate(end)),
	}}}
	section.Entries = []Entry{{
		TypeCode: "DRIV",
		Act: &Act{Statement: Statement{
			ClassCode:     "ACT",
			MoodCode:      "EVN",
			TemplateIDs:   []TemplateID{{Root: OIDReportingParameters}},
			IDs:           []InstanceID{{Root: uuid.New().String()}},
			Code:          &Code{Code: SNOMEDObservationParams, CodeSystem: OIDSNOMED, DisplayName: "Observation Parameters"},
			EffectiveTime: periodRange(start, end),
		}},
	}}
	return section
}

func (g *Generator) buildPatientDataSection(patient *cqm.Patient) Section {
	section := newSection(LOINCPatientData, "Patient Data",
		TemplateID{Root: OIDPatientDataSection},
		TemplateID{Root: OIDPatientDataSectionQDM, Extension: QRDATemplateExtension},
		TemplateID{Root: OIDPatientDataSectionQDM, Extension: "2020-02-01"},
	)

	var rows []NarrativeTr
	for _, de := range patient.QDMPatient.DataElements {
		rendered, ok := g.buildEntry(g.registry, de)
		if !ok {
			continue
		}
		section.Entries = append(section.Entries, rendered.entry)
		rows = append(rows, rendered.row)
	}
	if len(rows) > 0 {
		section.Text = buildNarrativeTable([]string{"Data Element", "Description", "Code", "Time"}, rows)
	} else {
		section.Text = &Narrative{List: &NarrativeList{Items: []string{"No data elements"}}}
	}
	return section
}

// ---- Helpers ----

func newSection(loincCode, title string, templates ...TemplateID) Section {
	return Section{
		TemplateIDs: templates,
		Code: &Code{
			Code:           loincCode,
			CodeSystem:     OIDLOINC,
			CodeSystemName: "LOINC",
		},
		Title: title,
	}
}

func buildNarrativeTable(headers []string, rows []NarrativeTr) *Narrative {
	return &Narrative{
		Table: &NarrativeTable{
			Border: "1",
			Thead:  &NarrativeThead{Tr: &NarrativeTr{Ths: headers}},
			Tbody:  &NarrativeTbody{Trs: rows},
		},
	}
}

func firstCode(elements []qdm.DataElement) (qdm.Code, bool) {
	for _, de := range elements {
		if codes := de.Codes(); len(codes) > 0 {
			return codes[0], true
		}
	}
	return qdm.Code{}, false
}

func periodRange(start, end time.Time) *TimeRange {
	tr := &TimeRange{Low: &TimeValue{NullFlavor: "UNK"}, High: &TimeValue{NullFlavor: "UNK"}}
	if !start.IsZero() {
		tr.Low = &TimeValue{Value: formatHL7Time(start)}
	}
	if !end.IsZero() {
		tr.High = &TimeValue{Value: formatHL7Time(end)}
	}
	return tr
}

func displayDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("January 2, 2006")
}

func formatHL7Time(t time.Time) string {
	return t.UTC().Format("20060102150405")
}

// formatQDMTime converts a QDM timestamp string to HL7 format, or returns ""
// when it cannot be parsed.
func formatQDMTime(s string) string {
	t, ok := ParseTime(s)
	if !ok {
		return ""
	}
	return formatHL7Time(t)
}
