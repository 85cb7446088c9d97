package qrda

import "encoding/xml"

// CDA namespaces and QRDA Category I template identifiers.
const (
	CDANamespace  = "urn:hl7-org:v3"
	XSINamespace  = "http://www.w3.org/2001/XMLSchema-instance"
	SDTCNamespace = "urn:hl7-org:sdtc"

	// Document-level template IDs
	OIDUSRealmHeader      = "2.16.840.1.113883.10.20.22.1.1"
	OIDQRDADocument       = "2.16.840.1.113883.10.20.24.1.1"
	OIDQDMBasedQRDA       = "2.16.840.1.113883.10.20.24.1.2"
	OIDCMSQRDACategoryI   = "2.16.840.1.113883.10.20.24.1.3"
	QRDATemplateExtension = "2019-12-01"

	// Section-level template IDs
	OIDMeasureSection             = "2.16.840.1.113883.10.20.24.2.2"
	OIDMeasureSectionQDM          = "2.16.840.1.113883.10.20.24.2.3"
	OIDReportingParametersSection = "2.16.840.1.113883.10.20.17.2.1"
	OIDReportingParametersCMS     = "2.16.840.1.113883.10.20.17.2.1.1"
	OIDPatientDataSection         = "2.16.840.1.113883.10.20.17.2.4"
	OIDPatientDataSectionQDM      = "2.16.840.1.113883.10.20.24.2.1"

	// Entry-level template IDs
	OIDMeasureReference     = "2.16.840.1.113883.10.20.24.3.98"
	OIDEMeasureReference    = "2.16.840.1.113883.10.20.24.3.97"
	OIDReportingParameters  = "2.16.840.1.113883.10.20.17.3.8"
	OIDHQMFVersionNumber    = "2.16.840.1.113883.4.738"
	OIDSourceOfPaymentEntry = "2.16.840.1.113883.10.20.24.3.55"

	// Document, section and act codes
	LOINCQRDADocument       = "55182-0"
	LOINCMeasureDocument    = "55186-1"
	LOINCReportingParams    = "55187-9"
	LOINCPatientData        = "55188-7"
	SNOMEDObservationParams = "252116004"

	// Code system OIDs
	OIDLOINC       = "2.16.840.1.113883.6.1"
	OIDSNOMED      = "2.16.840.1.113883.6.96"
	OIDAdminGender = "2.16.840.1.113883.5.1"
	OIDRace        = "2.16.840.1.113883.6.238"
	OIDActCode     = "2.16.840.1.113883.5.4"
)

// ClinicalDocument is the root element of a CDA R2 document.
type ClinicalDocument struct {
	XMLName             xml.Name         `xml:"urn:hl7-org:v3 ClinicalDocument"`
	XSI                 string           `xml:"xmlns:xsi,attr"`
	SDTC                string           `xml:"xmlns:sdtc,attr,omitempty"`
	RealmCode           *Code            `xml:"realmCode,omitempty"`
	TypeID              *TypeID          `xml:"typeId,omitempty"`
	TemplateIDs         []TemplateID     `xml:"templateId,omitempty"`
	ID                  *InstanceID      `xml:"id,omitempty"`
	Code                *Code            `xml:"code,omitempty"`
	Title               string           `xml:"title,omitempty"`
	EffectiveTime       *TimeValue       `xml:"effectiveTime,omitempty"`
	ConfidentialityCode *Code            `xml:"confidentialityCode,omitempty"`
	LanguageCode        *Code            `xml:"languageCode,omitempty"`
	RecordTarget        *RecordTarget    `xml:"recordTarget,omitempty"`
	Author              *Author          `xml:"author,omitempty"`
	Custodian           *Custodian       `xml:"custodian,omitempty"`
	DocumentationOf     *DocumentationOf `xml:"documentationOf,omitempty"`
	Component           *Component       `xml:"component,omitempty"`
}

type TypeID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr"`
}

type TemplateID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr,omitempty"`
}

type InstanceID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr,omitempty"`
}

// Code represents a coded value with optional code system.
type Code struct {
	Code           string `xml:"code,attr,omitempty"`
	CodeSystem     string `xml:"codeSystem,attr,omitempty"`
	CodeSystemName string `xml:"codeSystemName,attr,omitempty"`
	DisplayName    string `xml:"displayName,attr,omitempty"`
	NullFlavor     string `xml:"nullFlavor,attr,omitempty"`
}

// TimeValue holds a time stamp in HL7 format (YYYYMMDDHHmmss).
type TimeValue struct {
	Value      string `xml:"value,attr,omitempty"`
	NullFlavor string `xml:"nullFlavor,attr,omitempty"`
}

// TimeRange is an effectiveTime interval. A bound with only a nullFlavor is
// open.
type TimeRange struct {
	Value string     `xml:"value,attr,omitempty"`
	Low   *TimeValue `xml:"low,omitempty"`
	High  *TimeValue `xml:"high,omitempty"`
}

type RecordTarget struct {
	PatientRole *PatientRole `xml:"patientRole,omitempty"`
}

type PatientRole struct {
	IDs     []InstanceID `xml:"id,omitempty"`
	Patient *Patient     `xml:"patient,omitempty"`
}

// Patient holds the demographic data of the record target.
type Patient struct {
	Name                     *Name      `xml:"name,omitempty"`
	AdministrativeGenderCode *Code      `xml:"administrativeGenderCode,omitempty"`
	BirthTime                *TimeValue `xml:"birthTime,omitempty"`
	DeceasedInd              *BoolValue `xml:"sdtc:deceasedInd,omitempty"`
	DeceasedTime             *TimeValue `xml:"sdtc:deceasedTime,omitempty"`
	RaceCode                 *Code      `xml:"raceCode,omitempty"`
	EthnicGroupCode          *Code      `xml:"ethnicGroupCode,omitempty"`
}

type BoolValue struct {
	Value bool `xml:"value,attr"`
}

type Name struct {
	Given  []string `xml:"given,omitempty"`
	Family string   `xml:"family,omitempty"`
}

type Author struct {
	Time           *TimeValue      `xml:"time,omitempty"`
	AssignedAuthor *AssignedAuthor `xml:"assignedAuthor,omitempty"`
}

type AssignedAuthor struct {
	ID                      *InstanceID      `xml:"id,omitempty"`
	AssignedAuthoringDevice *AuthoringDevice `xml:"assignedAuthoringDevice,omitempty"`
	RepresentedOrganization *Organization    `xml:"representedOrganization,omitempty"`
}

type AuthoringDevice struct {
	ManufacturerModelName string `xml:"manufacturerModelName,omitempty"`
	SoftwareName          string `xml:"softwareName,omitempty"`
}

type Organization struct {
	IDs   []InstanceID `xml:"id,omitempty"`
	Names []string     `xml:"name,omitempty"`
}

type Custodian struct {
	AssignedCustodian *AssignedCustodian `xml:"assignedCustodian,omitempty"`
}

type AssignedCustodian struct {
	RepresentedCustodianOrganization *Organization `xml:"representedCustodianOrganization,omitempty"`
}

type DocumentationOf struct {
	TypeCode     string        `xml:"typeCode,attr,omitempty"`
	ServiceEvent *ServiceEvent `xml:"serviceEvent,omitempty"`
}

type ServiceEvent struct {
	ClassCode     string     `xml:"classCode,attr,omitempty"`
	Code          *Code      `xml:"code,omitempty"`
	EffectiveTime *TimeRange `xml:"effectiveTime,omitempty"`
}

type Component struct {
	StructuredBody *StructuredBody `xml:"structuredBody,omitempty"`
}

type StructuredBody struct {
	Components []SectionComponent `xml:"component,omitempty"`
}

type SectionComponent struct {
	Section *Section `xml:"section,omitempty"`
}

// Section is a CDA section with template, code, narrative and entries.
type Section struct {
	TemplateIDs []TemplateID `xml:"templateId,omitempty"`
	Code        *Code        `xml:"code,omitempty"`
	Title       string       `xml:"title,omitempty"`
	Text        *Narrative   `xml:"text,omitempty"`
	Entries     []Entry      `xml:"entry,omitempty"`
}

// Narrative holds the human-readable block of a section.
type Narrative struct {
	List  *NarrativeList  `xml:"list,omitempty"`
	Table *NarrativeTable `xml:"table,omitempty"`
}

type NarrativeList struct {
	Items []string `xml:"item,omitempty"`
}

type NarrativeTable struct {
	Border string          `xml:"border,attr,omitempty"`
	Thead  *NarrativeThead `xml:"thead,omitempty"`
	Tbody  *NarrativeTbody `xml:"tbody,omitempty"`
}

type NarrativeThead struct {
	Tr *NarrativeTr `xml:"tr,omitempty"`
}

type NarrativeTbody struct {
	Trs []NarrativeTr `xml:"tr,omitempty"`
}

type NarrativeTr struct {
	Ths []string `xml:"th,omitempty"`
	Tds []string `xml:"td,omitempty"`
}

// Entry wraps exactly one clinical statement.
type Entry struct {
	TypeCode                string                   `xml:"typeCode,attr,omitempty"`
	Act                     *Act                     `xml:"act,omitempty"`
	Organizer               *Organizer               `xml:"organizer,omitempty"`
	Observation             *Observation             `xml:"observation,omitempty"`
	Encounter               *Encounter               `xml:"encounter,omitempty"`
	Procedure               *Procedure               `xml:"procedure,omitempty"`
	SubstanceAdministration *SubstanceAdministration `xml:"substanceAdministration,omitempty"`
	Supply                  *Supply                  `xml:"supply,omitempty"`
}

// Statement carries the attributes shared by every clinical statement.
type Statement struct {
	ClassCode     string       `xml:"classCode,attr,omitempty"`
	MoodCode      string       `xml:"moodCode,attr,omitempty"`
	NegationInd   string       `xml:"negationInd,attr,omitempty"`
	TemplateIDs   []TemplateID `xml:"templateId,omitempty"`
	IDs           []InstanceID `xml:"id,omitempty"`
	Code          *Code        `xml:"code,omitempty"`
	Text          string       `xml:"text,omitempty"`
	StatusCode    *Code        `xml:"statusCode,omitempty"`
	EffectiveTime *TimeRange   `xml:"effectiveTime,omitempty"`
}

type Act struct {
	Statement
	Authors            []Author            `xml:"author,omitempty"`
	EntryRelationships []EntryRelationship `xml:"entryRelationship,omitempty"`
}

type Organizer struct {
	Statement
	References []Reference          `xml:"reference,omitempty"`
	Components []OrganizerComponent `xml:"component,omitempty"`
}

type OrganizerComponent struct {
	Observation *Observation `xml:"observation,omitempty"`
}

// Reference points at an external document such as the eCQM.
type Reference struct {
	TypeCode         string            `xml:"typeCode,attr"`
	ExternalDocument *ExternalDocument `xml:"externalDocument,omitempty"`
}

type ExternalDocument struct {
	ClassCode string       `xml:"classCode,attr"`
	MoodCode  string       `xml:"moodCode,attr"`
	IDs       []InstanceID `xml:"id,omitempty"`
	Code      *Code        `xml:"code,omitempty"`
	Text      string       `xml:"text,omitempty"`
	SetID     *InstanceID  `xml:"setId,omitempty"`
}

type EntryRelationship struct {
	TypeCode    string       `xml:"typeCode,attr,omitempty"`
	Observation *Observation `xml:"observation,omitempty"`
}

type Observation struct {
	Statement
	Value   *Value   `xml:"value,omitempty"`
	Authors []Author `xml:"author,omitempty"`
}

// Value is a typed value: CD, PQ, ST or IVL_TS.
type Value struct {
	Type        string `xml:"xsi:type,attr,omitempty"`
	Value       string `xml:"value,attr,omitempty"`
	Unit        string `xml:"unit,attr,omitempty"`
	Code        string `xml:"code,attr,omitempty"`
	CodeSystem  string `xml:"codeSystem,attr,omitempty"`
	DisplayName string `xml:"displayName,attr,omitempty"`
	NullFlavor  string `xml:"nullFlavor,attr,omitempty"`
}

type Encounter struct {
	Statement
}

type Procedure struct {
	Statement
}

type SubstanceAdministration struct {
	Statement
	Consumable *Consumable `xml:"consumable,omitempty"`
}

type Supply struct {
	Statement
	Product *Product `xml:"product,omitempty"`
}

type Consumable struct {
	ManufacturedProduct *ManufacturedProduct `xml:"manufacturedProduct,omitempty"`
}

type Product struct {
	ManufacturedProduct *ManufacturedProduct `xml:"manufacturedProduct,omitempty"`
}

type ManufacturedProduct struct {
	ClassCode            string                `xml:"classCode,attr,omitempty"`
	ManufacturedMaterial *ManufacturedMaterial `xml:"manufacturedMaterial,omitempty"`
}

type ManufacturedMaterial struct {
	Code *Code `xml:"code,omitempty"`
}
