package config

import (
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/arloliu/yieldfit/format"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("fitmethod", validateFitMethod)
	_ = validate.RegisterValidation("algorithm", validateAlgorithm)
	validate.RegisterStructValidation(validateFitRange, FitConfiguration{})
}

func validateFitMethod(fl validator.FieldLevel) bool {
	m, ok := fl.Field().Interface().(format.FitMethod)
	return ok && m.IsValid()
}

func validateAlgorithm(fl validator.FieldLevel) bool {
	return slices.Contains(Algorithms, fl.Field().String())
}

// validateFitRange rejects an explicit range whose upper bound does not
// exceed its lower bound.
func validateFitRange(sl validator.StructLevel) {
	c, ok := sl.Current().Interface().(FitConfiguration)
	if !ok {
		return
	}
	if lo, hi, set := c.FitRange(); set && hi <= lo {
		sl.ReportError(c.FitRangeMax, "FitRangeMax", "FitRangeMax", "fitrange", "")
	}
}
