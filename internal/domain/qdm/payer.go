package qdm

// DefaultPayerCode is the Source of Payment Typology code for "Government".
const DefaultPayerCode = "1"

// NewDefaultPayer builds the PatientCharacteristicPayer element injected into
// test patients that carry no payer. The relevant period starts at start and
// has no end.
func NewDefaultPayer(id, start string) DataElement {
	var low interface{}
	if start != "" {
		low = start
	}
	return DataElement{
		"_id":         id,
		"_type":       "QDM::PatientCharacteristicPayer",
		"qdmCategory": "patient_characteristic",
		"qdmStatus":   "payer",
		"dataElementCodes": []interface{}{
			map[string]interface{}{
				"code":       DefaultPayerCode,
				"system":     OIDSourceOfPayment,
				"codeSystem": CodeSystemSOP,
			},
		},
		"relevantPeriod": map[string]interface{}{
			"low":        low,
			"high":       nil,
			"lowClosed":  true,
			"highClosed": true,
		},
	}
}
