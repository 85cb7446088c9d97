package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/qrda/qrda-export/internal/domain/cqm"
)

var validate = mustValidator()

func newValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := v.RegisterValidation("measure_payload", validateMeasurePayload); err != nil {
		return nil, fmt.Errorf("register measure_payload: %w", err)
	}
	return v, nil
}

func mustValidator() *validator.Validate {
	v, err := newValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// validateMeasurePayload rejects an absent, null or empty-string measure.
func validateMeasurePayload(fl validator.FieldLevel) bool {
	b := bytes.TrimSpace(fl.Field().Bytes())
	switch string(b) {
	case "", "null", `""`:
		return false
	}
	return true
}

// ValidateDTO checks the request envelope. Validation failures are reported
// as ErrInvalidMeasure.
func ValidateDTO(dto *MeasureDTO) error {
	if dto == nil {
		return cqm.ErrInvalidMeasure
	}
	if err := validate.Struct(dto); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("%w: %v", cqm.ErrInvalidMeasure, err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		return fmt.Errorf("%w: missing %s", cqm.ErrInvalidMeasure, strings.Join(fields, ", "))
	}
	return nil
}
