package fit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/errs"
)

func TestPlainStrategy_Inputs(t *testing.T) {
	mini := &scriptedMinimizer{statuses: []int{StatusOK}}
	s := NewPlainStrategy(false, Env{Minimizer: mini})
	cfg := testConfig(t)
	ctx := context.Background()

	t.Run("nil dataset", func(t *testing.T) {
		_, err := s.Execute(ctx, toyModel(t, 10), nil, cfg)
		require.ErrorIs(t, err, errs.ErrData)
	})

	t.Run("empty dataset", func(t *testing.T) {
		empty, err := dataset.New("empty", dataset.Real("x", nil))
		require.NoError(t, err)
		_, err = s.Execute(ctx, toyModel(t, 10), empty, cfg)
		require.ErrorIs(t, err, errs.ErrData)
	})

	t.Run("missing observable", func(t *testing.T) {
		other, err := dataset.New("other", dataset.Real("y", []float64{1, 2, 3}))
		require.NoError(t, err)
		_, err = s.Execute(ctx, toyModel(t, 10), other, cfg)
		require.ErrorIs(t, err, errs.ErrData)
	})

	t.Run("nothing inside the fit range", func(t *testing.T) {
		outside, err := dataset.New("outside", dataset.Real("x", []float64{11, 12}))
		require.NoError(t, err)
		_, err = s.Execute(ctx, toyModel(t, 10), outside, cfg)
		require.ErrorIs(t, err, errs.ErrData)
	})

	t.Run("nil model", func(t *testing.T) {
		_, err := s.Execute(ctx, nil, toyData(t, 10, 1), cfg)
		require.ErrorIs(t, err, errs.ErrModelConstruction)
	})

	require.Empty(t, mini.calls, "no minimization for invalid input")
}

func TestPlainStrategy_Problem(t *testing.T) {
	mini := &scriptedMinimizer{statuses: []int{StatusOK}}
	s := NewPlainStrategy(true, Env{Minimizer: mini})
	cfg := testConfig(t,
		config.WithAlgorithm(config.AlgorithmSimplex),
		config.WithStrategyLevel(1),
		config.WithErrors(true, false),
	)

	res, err := s.Execute(context.Background(), toyModel(t, 1000), toyData(t, 1000, 7), cfg)
	require.NoError(t, err)
	require.Equal(t, StateDone, res.Terminal())
	require.Equal(t, 1, res.Attempts())

	require.Len(t, mini.calls, 1)
	p := mini.calls[0]
	require.Equal(t, config.AlgorithmSimplex, p.Algorithm)
	require.Equal(t, 1, p.StrategyLevel)
	require.True(t, p.AsymmetricErrors)
	require.False(t, p.MatrixErrors)
	require.Len(t, p.Parameters, 5)
	require.True(t, finite(mini.nlls[0]))
	require.Equal(t, "extended", s.Name())
}

func TestPlainStrategy_FitRange(t *testing.T) {
	mini := &scriptedMinimizer{statuses: []int{StatusOK}}
	s := NewPlainStrategy(false, Env{Minimizer: mini})
	data := toyData(t, 2000, 8)

	full, err := s.Execute(context.Background(), toyModel(t, 2000), data, testConfig(t))
	require.NoError(t, err)
	narrow, err := s.Execute(context.Background(), toyModel(t, 2000), data, testConfig(t, config.WithFitRange(3, 7)))
	require.NoError(t, err)

	require.NotNil(t, full)
	require.NotNil(t, narrow)
	require.Less(t, math.Abs(mini.nlls[1]), math.Abs(mini.nlls[0]), "fewer events enter the restricted likelihood")
}

func TestAuxiliaryStrategy(t *testing.T) {
	mini := &scriptedMinimizer{statuses: []int{StatusOK}}
	s := NewAuxiliaryStrategy(Env{Minimizer: mini})
	cfg := testConfig(t, config.WithErrors(true, true))

	_, err := s.Execute(context.Background(), toyModel(t, 100), toyData(t, 100, 9), cfg)
	require.NoError(t, err)

	p := mini.calls[0]
	require.Len(t, p.Parameters, 2, "signal parameters only")
	require.False(t, p.AsymmetricErrors)
	require.Equal(t, "sig_mean", p.Workspace.Name(p.Parameters[0]))
}

func TestBinnedStrategy_Variable(t *testing.T) {
	s := NewBinnedStrategy("", false, Env{Minimizer: &scriptedMinimizer{statuses: []int{StatusOK}}})
	m := toyModel(t, 10)

	t.Run("model observable", func(t *testing.T) {
		d, err := dataset.New("d", dataset.Real("y", []float64{1}), dataset.Real("x", []float64{2}))
		require.NoError(t, err)
		v, err := s.variable(m, d)
		require.NoError(t, err)
		require.Equal(t, "x", v)
	})

	t.Run("first real column", func(t *testing.T) {
		d, err := dataset.New("d", dataset.Category("run", []string{"a"}), dataset.Real("y", []float64{1}))
		require.NoError(t, err)
		v, err := s.variable(m, d)
		require.NoError(t, err)
		require.Equal(t, "y", v)
	})

	t.Run("no real column", func(t *testing.T) {
		d, err := dataset.New("d", dataset.Category("run", []string{"a"}))
		require.NoError(t, err)
		_, err = s.variable(m, d)
		require.ErrorIs(t, err, errs.ErrData)
	})

	t.Run("explicit variable missing", func(t *testing.T) {
		explicit := NewBinnedStrategy("z", false, Env{})
		d, err := dataset.New("d", dataset.Real("x", []float64{1}))
		require.NoError(t, err)
		_, err = explicit.variable(m, d)
		require.ErrorIs(t, err, errs.ErrData)
	})
}

func TestBinnedStrategy_ZeroEntries(t *testing.T) {
	mini := &scriptedMinimizer{statuses: []int{StatusOK}}
	s := NewBinnedStrategy("", false, Env{Minimizer: mini})
	d, err := dataset.New("d", dataset.Real("x", []float64{20, 30}))
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), toyModel(t, 2), d, testConfig(t))
	require.ErrorIs(t, err, errs.ErrData)
	require.Empty(t, mini.calls)
}

func TestBinnedStrategy_Fit(t *testing.T) {
	if testing.Short() {
		t.Skip("full minimization")
	}

	s := NewBinnedStrategy("", false, Env{})
	res, err := s.Execute(context.Background(), toyModel(t, 10000), toyData(t, 10000, 11), testConfig(t, config.WithHistogramBins(80)))
	require.NoError(t, err)
	require.True(t, res.Converged(), res.String())

	fsig, _ := res.Estimate("fsig")
	require.Less(t, math.Abs(fsig.Value-0.1), 3*fsig.Error, res.String())
}

func TestPlainStrategy_AcceleratedMatchesSerial(t *testing.T) {
	if testing.Short() {
		t.Skip("full minimization")
	}

	data := toyData(t, 10000, 12)
	serial, err := NewPlainStrategy(true, Env{}).Execute(context.Background(), toyModel(t, 10000), data, testConfig(t))
	require.NoError(t, err)
	parallel, err := NewPlainStrategy(true, Env{}).Execute(context.Background(), toyModel(t, 10000), data,
		testConfig(t, config.WithAcceleratedBackend(4)))
	require.NoError(t, err)

	require.True(t, serial.Converged())
	require.True(t, parallel.Converged())
	require.InDelta(t, serial.Value("fsig"), parallel.Value("fsig"), 1e-4)
	require.InDelta(t, serial.MinNLL(), parallel.MinNLL(), 1e-4)
}
