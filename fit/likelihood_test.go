package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func toyNLL(t *testing.T, entries int) (*unbinnedNLL, []float64) {
	t.Helper()
	m := toyModel(t, float64(entries))
	x, ok := toyData(t, entries, 21).Column("x")
	require.True(t, ok)

	return newUnbinnedNLL(m, x, nil, 0, 10), x
}

func TestUnbinnedNLL_Parallel(t *testing.T) {
	serial, _ := toyNLL(t, 20000)
	parallel, _ := toyNLL(t, 20000)
	parallel.workers = 4

	want := serial.Value()
	require.True(t, finite(want))
	require.InDelta(t, want, parallel.Value(), 1e-9*math.Abs(want))

	parallel.workers = 64
	require.InDelta(t, want, parallel.Value(), 1e-9*math.Abs(want), "workers are capped by chunk size")
}

func TestUnbinnedNLL_Terms(t *testing.T) {
	l, x := toyNLL(t, 1000)
	base := l.Value()

	e := l.m.Prepare()
	var manual float64
	for _, v := range x {
		manual -= math.Log(e.PDF(v))
	}
	require.InDelta(t, manual, base, 1e-9*math.Abs(manual))

	l.extended = true
	nu := l.m.ExpectedEvents()
	require.InDelta(t, base+nu-1000*math.Log(nu), l.Value(), 1e-9*math.Abs(base))

	l.extended = false
	mean, _ := l.m.Workspace().Lookup("sig_mean")
	l.constraints = []Constraint{{Name: "sig_mean", Handle: mean, Mean: 4.9, Sigma: 0.05}}
	require.InDelta(t, base+2, l.Value(), 1e-9*math.Abs(base))
}

func TestUnbinnedNLL_Weighted(t *testing.T) {
	m := toyModel(t, 3)
	x := []float64{2, 5, 7}
	unit := newUnbinnedNLL(m, x, nil, 0, 10)
	doubled := newUnbinnedNLL(m, x, []float64{2, 2, 2}, 0, 10)

	require.InDelta(t, 6.0, doubled.sumW, 0)
	require.InDelta(t, 2*unit.Value(), doubled.Value(), 1e-12)
}

func TestUnbinnedNLL_ZeroDensity(t *testing.T) {
	m := toyModel(t, 1)
	fsig, _ := m.Workspace().Lookup("fsig")
	m.Workspace().SetValue(fsig, 1)
	mean, _ := m.Workspace().Lookup("sig_mean")
	m.Workspace().SetValue(mean, 4)
	sigma, _ := m.Workspace().Lookup("sig_sigma")
	m.Workspace().SetValue(sigma, 0.1)

	l := newUnbinnedNLL(m, []float64{9.9}, nil, 0, 10)
	require.True(t, math.IsInf(l.Value(), 1), "an event with zero density makes the NLL infinite")
	require.InDelta(t, penaltyNLL, guard(l.Value()), 0)
}

func TestBinnedNLL(t *testing.T) {
	m := toyModel(t, 10000)
	data := toyData(t, 10000, 22)
	hist, err := data.Bin("x", 0, 10, 50)
	require.NoError(t, err)
	require.InDelta(t, data.SumOfWeights(), hist.SumOfWeights(), 1e-9)

	multinomial := &binnedNLL{m: m, hist: hist}
	extended := &binnedNLL{m: m, hist: hist, extended: true}

	e := m.Prepare()
	var manual float64
	for i, n := range hist.Counts {
		lo, hi := hist.BinRange(i)
		if n > 0 {
			manual -= n * math.Log(e.Probability(lo, hi))
		}
	}
	require.InDelta(t, manual, multinomial.Value(), 1e-9*math.Abs(manual))

	nu := m.ExpectedEvents()
	total := hist.SumOfWeights()
	require.InDelta(t, manual+nu-total*math.Log(nu), extended.Value(), 1e-6*math.Abs(manual))
}

func TestNLL_FitRangeNormalization(t *testing.T) {
	m := toyModel(t, 5000)
	data := toyData(t, 5000, 23)
	inRange, err := data.InRange("x", 2, 8)
	require.NoError(t, err)
	x, ok := inRange.Column("x")
	require.True(t, ok)

	e := m.PrepareRange(2, 8)
	require.InDelta(t, 1.0, e.Probability(2, 8), 1e-9)

	var manual float64
	for _, v := range x {
		manual -= math.Log(e.PDF(v))
	}
	unbinned := newUnbinnedNLL(m, x, nil, 2, 8)
	require.InDelta(t, manual, unbinned.Value(), 1e-9*math.Abs(manual))

	hist, err := inRange.Bin("x", 2, 8, 30)
	require.NoError(t, err)
	manual = 0
	for i, n := range hist.Counts {
		lo, hi := hist.BinRange(i)
		if n > 0 {
			manual -= n * math.Log(e.Probability(lo, hi))
		}
	}
	binned := &binnedNLL{m: m, hist: hist}
	require.InDelta(t, manual, binned.Value(), 1e-9*math.Abs(manual))
}
