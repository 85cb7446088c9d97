package qdm

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupportedCriteriaType is matched by every UnsupportedCriteriaTypeError.
var ErrUnsupportedCriteriaType = errors.New("unsupported criteria type")

// UnsupportedCriteriaTypeError reports a data criteria type tag that has no
// registered QDM model.
type UnsupportedCriteriaTypeError struct {
	Tag string
}

func (e *UnsupportedCriteriaTypeError) Error() string {
	return fmt.Sprintf("unsupported data type: %q", e.Tag)
}

func (e *UnsupportedCriteriaTypeError) Is(target error) bool {
	return target == ErrUnsupportedCriteriaType
}

// DataCriteria is a typed reference to a category of clinical fact that a
// measure depends on, identified by the OID of its value set.
type DataCriteria struct {
	Type        string `json:"type"`
	QDMType     string `json:"qdmType"`
	Category    string `json:"qdmCategory"`
	Status      string `json:"qdmStatus,omitempty"`
	CodeListID  string `json:"codeListId"`
	Description string `json:"description"`
}

// ModelType returns the fully qualified QDM model name, e.g. "QDM::EncounterPerformed".
func (d DataCriteria) ModelType() string {
	return "QDM::" + d.QDMType
}

// Kind describes one data criteria variant: the tag it is requested by, the
// QDM model it instantiates and the category/status pair of that model.
type Kind struct {
	Tag      string
	Model    string
	Category string
	Status   string
}

// New returns an empty-valued criteria of this kind.
func (k Kind) New() DataCriteria {
	return DataCriteria{
		Type:     k.Tag,
		QDMType:  k.Model,
		Category: k.Category,
		Status:   k.Status,
	}
}

// Registry maps type tags to criteria kinds. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	byTag   map[string]Kind
	byModel map[string]Kind
}

// NewRegistry builds a registry from the given kinds. Later kinds with an
// already registered tag replace earlier ones; the first kind registered for
// a model wins the reverse lookup.
func NewRegistry(kinds ...Kind) *Registry {
	r := &Registry{
		byTag:   make(map[string]Kind, len(kinds)),
		byModel: make(map[string]Kind, len(kinds)),
	}
	for _, k := range kinds {
		r.byTag[k.Tag] = k
		if _, ok := r.byModel[k.Model]; !ok {
			r.byModel[k.Model] = k
		}
	}
	return r
}

// Resolve returns a fresh criteria value for tag. Tags are matched exactly.
func (r *Registry) Resolve(tag string) (DataCriteria, error) {
	k, ok := r.byTag[tag]
	if !ok {
		return DataCriteria{}, &UnsupportedCriteriaTypeError{Tag: tag}
	}
	return k.New(), nil
}

// KindForModel looks up a kind by QDM model name. Both "EncounterPerformed"
// and "QDM::EncounterPerformed" are accepted.
func (r *Registry) KindForModel(model string) (Kind, bool) {
	if len(model) > 5 && model[:5] == "QDM::" {
		model = model[5:]
	}
	k, ok := r.byModel[model]
	return k, ok
}

// Tags returns every registered tag in sorted order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.byTag))
	for t := range r.byTag {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Kinds returns every registered kind ordered by tag.
func (r *Registry) Kinds() []Kind {
	tags := r.Tags()
	kinds := make([]Kind, len(tags))
	for i, t := range tags {
		kinds[i] = r.byTag[t]
	}
	return kinds
}

// DefaultRegistry holds every data criteria type a MADiE measure can carry.
var DefaultRegistry = NewRegistry(knownKinds...)

var knownKinds = []Kind{
	// Entities and participation
	{Tag: "PatientEntity", Model: "PatientEntity", Category: "entity"},
	{Tag: "CarePartner", Model: "CarePartner", Category: "entity"},
	{Tag: "RelatedPerson", Model: "RelatedPerson", Category: "related_person"},
	{Tag: "Practitioner", Model: "Practitioner", Category: "entity"},
	{Tag: "Organization", Model: "Organization", Category: "entity"},
	{Tag: "Location", Model: "Location", Category: "entity"},
	{Tag: "Participation", Model: "Participation", Category: "participation"},

	// Patient characteristics
	{Tag: "PatientCharacteristic", Model: "PatientCharacteristic", Category: "patient_characteristic"},
	{Tag: "PatientCharacteristicSex", Model: "PatientCharacteristicSex", Category: "patient_characteristic", Status: "gender"},
	{Tag: "PatientCharacteristicEthnicity", Model: "PatientCharacteristicEthnicity", Category: "patient_characteristic", Status: "ethnicity"},
	{Tag: "PatientCharacteristicRace", Model: "PatientCharacteristicRace", Category: "patient_characteristic", Status: "race"},
	{Tag: "PatientCharacteristicClinicalTrialParticipant", Model: "PatientCharacteristicClinicalTrialParticipant", Category: "patient_characteristic", Status: "clinical_trial_participant"},
	{Tag: "PatientCharacteristicPayer", Model: "PatientCharacteristicPayer", Category: "patient_characteristic", Status: "payer"},
	{Tag: "PatientCharacteristicExpired", Model: "PatientCharacteristicExpired", Category: "patient_characteristic", Status: "expired"},
	{Tag: "PatientCharacteristicBirthdate", Model: "PatientCharacteristicBirthdate", Category: "patient_characteristic", Status: "birthdate"},

	// Clinical facts
	{Tag: "AdverseEvent", Model: "AdverseEvent", Category: "adverse_event"},
	{Tag: "Allergy/Intolerance", Model: "AllergyIntolerance", Category: "allergy", Status: "intolerance"},
	{Tag: "AssessmentOrder", Model: "AssessmentOrder", Category: "assessment", Status: "order"},
	{Tag: "AssessmentPerformed", Model: "AssessmentPerformed", Category: "assessment", Status: "performed"},
	{Tag: "AssessmentRecommended", Model: "AssessmentRecommended", Category: "assessment", Status: "recommended"},
	{Tag: "CareGoal", Model: "CareGoal", Category: "care_goal"},
	{Tag: "CommunicationPerformed", Model: "CommunicationPerformed", Category: "communication", Status: "performed"},
	{Tag: "CommunicationNotPerformed", Model: "CommunicationPerformed", Category: "communication", Status: "performed"},
	{Tag: "DeviceOrder", Model: "DeviceOrder", Category: "device", Status: "order"},
	{Tag: "DeviceRecommended", Model: "DeviceRecommended", Category: "device", Status: "recommended"},
	{Tag: "Diagnosis", Model: "Diagnosis", Category: "condition"},
	{Tag: "DiagnosticStudyOrder", Model: "DiagnosticStudyOrder", Category: "diagnostic_study", Status: "order"},
	{Tag: "DiagnosticStudyPerformed", Model: "DiagnosticStudyPerformed", Category: "diagnostic_study", Status: "performed"},
	{Tag: "DiagnosticStudyRecommended", Model: "DiagnosticStudyRecommended", Category: "diagnostic_study", Status: "recommended"},
	{Tag: "EncounterOrder", Model: "EncounterOrder", Category: "encounter", Status: "order"},
	{Tag: "EncounterPerformed", Model: "EncounterPerformed", Category: "encounter", Status: "performed"},
	{Tag: "EncounterRecommended", Model: "EncounterRecommended", Category: "encounter", Status: "recommended"},
	{Tag: "FamilyHistory", Model: "FamilyHistory", Category: "family_history"},
	{Tag: "ImmunizationAdministered", Model: "ImmunizationAdministered", Category: "immunization", Status: "administered"},
	{Tag: "ImmunizationOrder", Model: "ImmunizationOrder", Category: "immunization", Status: "order"},
	{Tag: "InterventionOrder", Model: "InterventionOrder", Category: "intervention", Status: "order"},
	{Tag: "InterventionPerformed", Model: "InterventionPerformed", Category: "intervention", Status: "performed"},
	{Tag: "InterventionRecommended", Model: "InterventionRecommended", Category: "intervention", Status: "recommended"},
	{Tag: "LaboratoryTestOrder", Model: "LaboratoryTestOrder", Category: "laboratory_test", Status: "order"},
	{Tag: "LaboratoryTestPerformed", Model: "LaboratoryTestPerformed", Category: "laboratory_test", Status: "performed"},
	{Tag: "LaboratoryTestRecommended", Model: "LaboratoryTestRecommended", Category: "laboratory_test", Status: "recommended"},
	{Tag: "MedicationActive", Model: "MedicationActive", Category: "medication", Status: "active"},
	{Tag: "MedicationAdministered", Model: "MedicationAdministered", Category: "medication", Status: "administered"},
	{Tag: "MedicationDischarge", Model: "MedicationDischarge", Category: "medication", Status: "discharge"},
	{Tag: "MedicationDispensed", Model: "MedicationDispensed", Category: "medication", Status: "dispensed"},
	{Tag: "MedicationOrder", Model: "MedicationOrder", Category: "medication", Status: "order"},
	{Tag: "PatientCareExperience", Model: "PatientCareExperience", Category: "care_experience", Status: "patient"},
	{Tag: "PhysicalExamOrder", Model: "PhysicalExamOrder", Category: "physical_exam", Status: "order"},
	{Tag: "PhysicalExamPerformed", Model: "PhysicalExamPerformed", Category: "physical_exam", Status: "performed"},
	{Tag: "PhysicalExamRecommended", Model: "PhysicalExamRecommended", Category: "physical_exam", Status: "recommended"},
	{Tag: "ProcedureOrder", Model: "ProcedureOrder", Category: "procedure", Status: "order"},
	{Tag: "ProcedurePerformed", Model: "ProcedurePerformed", Category: "procedure", Status: "performed"},
	{Tag: "ProcedureRecommended", Model: "ProcedureRecommended", Category: "procedure", Status: "recommended"},
	{Tag: "ProviderCareExperience", Model: "ProviderCareExperience", Category: "care_experience", Status: "provider"},
	{Tag: "SubstanceAdministered", Model: "SubstanceAdministered", Category: "substance", Status: "administered"},
	{Tag: "SubstanceOrder", Model: "SubstanceOrder", Category: "substance", Status: "order"},
	{Tag: "SubstanceRecommended", Model: "SubstanceRecommended", Category: "substance", Status: "recommended"},
	{Tag: "Symptom", Model: "Symptom", Category: "symptom"},
}
