package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type testTarget struct {
	retries int
	name    string
	calls   []string
}

func withRetries(n int) Option[*testTarget] {
	return New(func(t *testTarget) error {
		if n <= 0 {
			return errors.New("retries must be positive")
		}
		t.retries = n
		t.calls = append(t.calls, "retries")

		return nil
	})
}

func withName(name string) Option[*testTarget] {
	return NoError(func(t *testTarget) {
		t.name = name
		t.calls = append(t.calls, "name")
	})
}

func TestApply(t *testing.T) {
	t.Run("applies options in order", func(t *testing.T) {
		target := &testTarget{}
		err := Apply(target, withName("fit"), withRetries(3))

		require.NoError(t, err)
		require.Equal(t, 3, target.retries)
		require.Equal(t, "fit", target.name)
		require.Equal(t, []string{"name", "retries"}, target.calls)
	})

	t.Run("stops at first error", func(t *testing.T) {
		target := &testTarget{}
		err := Apply(target, withRetries(0), withName("never"))

		require.Error(t, err)
		require.Contains(t, err.Error(), "retries must be positive")
		require.Empty(t, target.name)
	})

	t.Run("skips nil options", func(t *testing.T) {
		target := &testTarget{}
		require.NoError(t, Apply[*testTarget](target, nil, withName("x")))
		require.Equal(t, "x", target.name)
	})

	t.Run("no options", func(t *testing.T) {
		target := &testTarget{}
		require.NoError(t, Apply(target))
		require.Empty(t, target.calls)
	})
}

func TestWhen(t *testing.T) {
	target := &testTarget{}
	err := Apply(target,
		When(false, withName("skipped")),
		When(true, withRetries(2)),
	)

	require.NoError(t, err)
	require.Empty(t, target.name)
	require.Equal(t, 2, target.retries)
}
