package domain

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ChipTypeRegex matches a single safe path segment such as "esp32" or "esp32-c3"
var ChipTypeRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*(\.[a-zA-Z0-9_-]+)*$`)

// NewValidator creates a configured validator instance
func NewValidator() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("chip_type", func(fl validator.FieldLevel) bool {
		return ChipTypeRegex.MatchString(fl.Field().String())
	})

	return v
}

var defaultValidator = NewValidator()

// ValidateChipType checks that a chip type is usable as a directory name under the firmware root
func ValidateChipType(chipType string) error {
	return defaultValidator.Var(chipType, "required,max=64,chip_type")
}

// ValidateChipIndex validates a parsed chips.yaml
func ValidateChipIndex(index *ChipIndex) error {
	return defaultValidator.Struct(index)
}
