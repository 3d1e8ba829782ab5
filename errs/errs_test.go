package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"configuration", Configuration("empty name"), ErrConfiguration},
		{"data", Data("dataset %q is empty", "d0"), ErrData},
		{"model", ModelConstruction("no signal shape"), ErrModelConstruction},
		{"fit", FitExecution(nil, "minimizer returned nothing"), ErrFitExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.err, tt.sentinel)
			require.Equal(t, tt.sentinel, Category(tt.err))
		})
	}
}

func TestFitExecution_WrapsCause(t *testing.T) {
	cause := errors.New("hessian exploded")
	err := FitExecution(cause, "attempt %d", 2)

	require.ErrorIs(t, err, ErrFitExecution)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "attempt 2")
}

func TestValidationError(t *testing.T) {
	var v ValidationError
	require.True(t, v.Empty())
	require.NoError(t, v.Err())

	v.Add("missing %s", "signal")
	v.Add("missing background")

	err := v.Err()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "missing signal; missing background")

	wrapped := fmt.Errorf("compose: %w", err)
	var target *ValidationError
	require.True(t, errors.As(wrapped, &target))
	require.Len(t, target.Violations, 2)
}

func TestCategory_Unknown(t *testing.T) {
	require.Nil(t, Category(errors.New("plain")))
	require.Nil(t, Category(nil))
}
