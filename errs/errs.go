// Package errs defines the error taxonomy shared by all yieldfit packages.
//
// Category sentinels are matched with errors.Is; constructors wrap them with
// context so messages stay human readable:
//
//	err := errs.Data("dataset %q is empty after cut %q", name, cut)
//	errors.Is(err, errs.ErrData) // true
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Category sentinels.
var (
	// ErrConfiguration marks an invalid or missing option.
	ErrConfiguration = errors.New("configuration error")
	// ErrData marks a nil or empty dataset, or zero entries after a cut.
	ErrData = errors.New("data error")
	// ErrModelConstruction marks a model factory that returned no shape.
	ErrModelConstruction = errors.New("model construction error")
	// ErrFitExecution marks a minimizer call that produced no result.
	ErrFitExecution = errors.New("fit execution error")
	// ErrValidation marks an aggregate of named setup violations.
	ErrValidation = errors.New("validation error")
)

// Container sentinels.
var (
	ErrInvalidHeaderSize  = errors.New("invalid container header size")
	ErrInvalidMagicNumber = errors.New("invalid container magic number")
	ErrUnsupportedVersion = errors.New("unsupported container version")
	ErrChecksumMismatch   = errors.New("container payload checksum mismatch")
	ErrTruncatedPayload   = errors.New("container payload truncated")
	ErrResultNotFound     = errors.New("result not found")
)

// Configuration wraps ErrConfiguration with a formatted message.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Data wraps ErrData with a formatted message.
func Data(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrData, fmt.Sprintf(format, args...))
}

// ModelConstruction wraps ErrModelConstruction with a formatted message.
func ModelConstruction(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrModelConstruction, fmt.Sprintf(format, args...))
}

// FitExecution wraps ErrFitExecution with a formatted message and an optional cause.
func FitExecution(cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrFitExecution, msg)
	}

	return fmt.Errorf("%w: %s: %w", ErrFitExecution, msg, cause)
}

// ValidationError aggregates named setup violations.
type ValidationError struct {
	Violations []string
}

// Add records a violation.
func (v *ValidationError) Add(format string, args ...any) {
	v.Violations = append(v.Violations, fmt.Sprintf(format, args...))
}

// Empty reports whether no violation was recorded.
func (v *ValidationError) Empty() bool {
	return len(v.Violations) == 0
}

// Err returns nil when no violation was recorded, v otherwise.
func (v *ValidationError) Err() error {
	if v.Empty() {
		return nil
	}

	return v
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(v.Violations, "; "))
}

func (v *ValidationError) Unwrap() error {
	return ErrValidation
}

// Category returns the taxonomy sentinel err belongs to, or nil.
func Category(err error) error {
	for _, sentinel := range []error{ErrConfiguration, ErrData, ErrModelConstruction, ErrFitExecution, ErrValidation} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}

	return nil
}
