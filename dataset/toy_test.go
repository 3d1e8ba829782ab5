package dataset

import (
	"testing"

	"github.com/arloliu/yieldfit/errs"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func TestGenerateToy(t *testing.T) {
	spec := ToySpec{
		Name:           "toy",
		Variable:       "x",
		Lo:             0,
		Hi:             10,
		Entries:        10000,
		SignalFraction: 1,
		Mean:           5,
		Sigma:          0.5,
	}

	d, err := GenerateToy(spec, 42)
	require.NoError(t, err)
	require.Equal(t, 10000, d.EntryCount())

	x, ok := d.Column("x")
	require.True(t, ok)
	require.InDelta(t, 5.0, stat.Mean(x, nil), 0.05)
	require.InDelta(t, 0.5, stat.StdDev(x, nil), 0.05)

	again, err := GenerateToy(spec, 42)
	require.NoError(t, err)
	y, _ := again.Column("x")
	require.Equal(t, x, y, "same seed must reproduce the same sample")
}

func TestGenerateToy_BackgroundOnly(t *testing.T) {
	d, err := GenerateToy(ToySpec{Variable: "x", Lo: 0, Hi: 10, Entries: 5000, Slope: -0.5}, 1)
	require.NoError(t, err)

	x, _ := d.Column("x")
	require.GreaterOrEqual(t, floats.Min(x), 0.0)
	require.LessOrEqual(t, floats.Max(x), 10.0)
	// A falling exponential puts most entries in the lower half.
	lower, err := d.FilteredBy("x < 5")
	require.NoError(t, err)
	require.Greater(t, lower.EntryCount(), 4000)
}

func TestGenerateToy_Flat(t *testing.T) {
	d, err := GenerateToy(ToySpec{Variable: "x", Lo: 2, Hi: 4, Entries: 1000}, 3)
	require.NoError(t, err)
	x, _ := d.Column("x")
	require.InDelta(t, 3.0, stat.Mean(x, nil), 0.1)
}

func TestGenerateToy_Errors(t *testing.T) {
	specs := map[string]ToySpec{
		"no variable":  {Lo: 0, Hi: 1, Entries: 1},
		"empty range":  {Variable: "x", Lo: 1, Hi: 1, Entries: 1},
		"negative":     {Variable: "x", Lo: 0, Hi: 1, Entries: -1},
		"bad fraction": {Variable: "x", Lo: 0, Hi: 1, Entries: 1, SignalFraction: 1.5},
		"zero sigma":   {Variable: "x", Lo: 0, Hi: 1, Entries: 1, SignalFraction: 0.5},
	}

	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			_, err := GenerateToy(spec, 1)
			require.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}
}
