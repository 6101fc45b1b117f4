package core

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"remedian/internal/types"
)

// Validator wraps go-playground/validator for request payload validation.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with struct-tag validation enabled.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateStruct checks a decoded request payload against its validate tags
// and translates failures into a field-detailed AppError.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fmt.Sprintf("failed %q constraint", fe.Tag())
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request payload failed validation",
		err,
		details,
	)
}
