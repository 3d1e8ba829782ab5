package fit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/model"
)

func narrowPeakModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Build(model.StandardFactory{}, model.Spec{
		Name:       "peak",
		Observable: "x",
		RangeMin:   1.3,
		RangeMax:   1.6,
		Signal: model.SignalSpec{
			Kind:  model.KindGaussian,
			Mean:  model.ParamSpec{Value: 1.45, Min: 1.4, Max: 1.5},
			Sigma: model.ParamSpec{Value: 0.006, Min: 0.001, Max: 0.05},
		},
		Background: model.BackgroundSpec{
			Kind:  model.KindExponential,
			Slope: model.ParamSpec{Value: 0, Min: -10, Max: 10},
		},
		Yield: model.YieldSpec{Initial: 0.3},
	})
	require.NoError(t, err)

	return m
}

func auxResult() *Result {
	return NewResult(ResultParams{
		Estimates: map[string]Estimate{
			"sig_mean":  {Value: 1.455, Error: 0.002},
			"sig_sigma": {Value: 0.005, Error: 0, ErrorLo: -0.0004, ErrorHi: 0.0006},
			"sig_tail":  {Value: 1.2, Error: 0.1},
			"sig_width": {Value: 0.01},
		},
	})
}

func TestBuildConstraints(t *testing.T) {
	ws := model.NewWorkspace()
	for _, name := range []string{"sig_mean", "sig_sigma", "sig_width"} {
		_, err := ws.Declare(name, 1, 0, 2)
		require.NoError(t, err)
	}

	cs := BuildConstraints(ws, auxResult(), []string{"sig_mean", "sig_sigma", "sig_tail", "sig_width", "unknown"})
	require.Len(t, cs, 3, "names missing from either side are skipped")

	require.Equal(t, "sig_mean", cs[0].Name)
	require.InDelta(t, 1.455, cs[0].Mean, 0)
	require.InDelta(t, 0.002, cs[0].Sigma, 0)

	require.InDelta(t, 0.0005, cs[1].Sigma, 1e-15, "asymmetric fallback")
	require.InDelta(t, sigmaFloor, cs[2].Sigma, 0, "floor fallback")

	h, _ := ws.Lookup("sig_mean")
	require.Equal(t, h, cs[0].Handle)
	ws.SetValue(h, 1.457)
	require.InDelta(t, 0.5, cs[0].Penalty(ws), 1e-9)

	require.Nil(t, BuildConstraints(ws, nil, []string{"sig_mean"}))
}

func TestConstrainedStrategy_InjectsConstraints(t *testing.T) {
	mini := &scriptedMinimizer{statuses: []int{StatusOK}}
	env := Env{Minimizer: mini}
	m := narrowPeakModel(t)
	require.NoError(t, m.Yields().Initialize(100))
	data, err := dataset.New("d", dataset.Real("x", []float64{1.44, 1.45, 1.46, 1.35, 1.55}))
	require.NoError(t, err)

	s := NewConstrainedStrategy(NewRobustStrategy(true, env), SavedSource{Result: auxResult()},
		[]string{"sig_mean", "bkg_missing"}, env)
	require.Equal(t, "constrained-robust", s.Name())

	_, err = s.Execute(context.Background(), m, data, testConfig(t))
	require.NoError(t, err)
	require.Len(t, mini.calls, 1)

	cs := mini.calls[0].Constraints
	require.Len(t, cs, 1)
	require.Equal(t, "sig_mean", cs[0].Name)
	require.InDelta(t, 1.455, cs[0].Mean, 0)
	require.InDelta(t, 0.002, cs[0].Sigma, 0)

	// The penalty is part of the objective seen by the minimizer.
	plain := &scriptedMinimizer{statuses: []int{StatusOK}}
	_, err = NewRobustStrategy(true, Env{Minimizer: plain}).Execute(context.Background(), m, data, testConfig(t))
	require.NoError(t, err)
	mean, _ := m.Workspace().Lookup("sig_mean")
	penalty := Constraint{Handle: mean, Mean: 1.455, Sigma: 0.002}.Penalty(m.Workspace())
	require.InDelta(t, plain.nlls[0]+penalty, mini.nlls[0], 1e-9)
}

func TestConstrainedStrategy_Errors(t *testing.T) {
	env := Env{Minimizer: &scriptedMinimizer{statuses: []int{StatusOK}}}
	m := narrowPeakModel(t)
	data, err := dataset.New("d", dataset.Real("x", []float64{1.45}))
	require.NoError(t, err)
	ctx := context.Background()
	cfg := testConfig(t)

	t.Run("source read failure", func(t *testing.T) {
		src := LoaderSource{Label: "broken.yfr", Loader: func(context.Context) (*Result, error) {
			return nil, errors.New("permission denied")
		}}
		s := NewConstrainedStrategy(NewPlainStrategy(false, env), src, []string{"sig_mean"}, env)
		_, err := s.Execute(ctx, m, data, cfg)
		require.ErrorIs(t, err, errs.ErrConfiguration)
		require.Contains(t, err.Error(), "broken.yfr")
	})

	t.Run("empty saved source", func(t *testing.T) {
		s := NewConstrainedStrategy(NewPlainStrategy(false, env), SavedSource{}, []string{"sig_mean"}, env)
		_, err := s.Execute(ctx, m, data, cfg)
		require.ErrorIs(t, err, errs.ErrConfiguration)
	})

	t.Run("inner without constraint support", func(t *testing.T) {
		s := NewConstrainedStrategy(NewAuxiliaryStrategy(env), SavedSource{Result: auxResult()}, nil, env)
		_, err := s.Execute(ctx, m, data, cfg)
		require.ErrorIs(t, err, errs.ErrConfiguration)
	})

	t.Run("no source", func(t *testing.T) {
		s := NewConstrainedStrategy(NewPlainStrategy(false, env), nil, nil, env)
		_, err := s.Execute(ctx, m, data, cfg)
		require.ErrorIs(t, err, errs.ErrConfiguration)
	})
}

func TestLiveSource(t *testing.T) {
	if testing.Short() {
		t.Skip("full minimization")
	}

	aux, err := dataset.GenerateToy(dataset.ToySpec{
		Name: "mc", Variable: "x", Lo: 1.3, Hi: 1.6, Entries: 2000,
		SignalFraction: 1, Mean: 1.455, Sigma: 0.005,
	}, 99)
	require.NoError(t, err)

	src := LiveSource{Model: narrowPeakModel(t), Data: aux, Config: testConfig(t)}
	require.Equal(t, `live auxiliary fit of "mc"`, src.Describe())

	res, err := src.Load(context.Background())
	require.NoError(t, err)
	require.True(t, res.Converged(), res.String())
	require.InDelta(t, 1.455, res.Value("sig_mean"), 1e-3)
	require.InDelta(t, 0.005, res.Value("sig_sigma"), 1e-3)
	require.Greater(t, res.Error("sig_mean"), 0.0)

	target := narrowPeakModel(t)
	cs := BuildConstraints(target.Workspace(), res, []string{"sig_mean", "sig_sigma"})
	require.Len(t, cs, 2)
}

func TestConstrainedStrategy_BinnedInner(t *testing.T) {
	mini := &scriptedMinimizer{statuses: []int{StatusOK}}
	env := Env{Minimizer: mini}
	m := narrowPeakModel(t)
	require.NoError(t, m.Yields().Initialize(5))
	data, err := dataset.New("d", dataset.Real("x", []float64{1.44, 1.45, 1.46, 1.35, 1.55}))
	require.NoError(t, err)

	s := NewConstrainedStrategy(NewBinnedStrategy("", false, env), SavedSource{Result: auxResult()}, []string{"sig_mean"}, env)
	_, err = s.Execute(context.Background(), m, data, testConfig(t, config.WithHistogramBins(10)))
	require.NoError(t, err)
	require.Len(t, mini.calls[0].Constraints, 1)
}
