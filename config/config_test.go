package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/format"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	require.Equal(t, format.RobustExtendedML, cfg.FitMethod)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, AlgorithmMigrad, cfg.MinimizerAlgorithm)
	require.Equal(t, 100, cfg.HistogramBinCount)
	require.InDelta(t, 9.0, cfg.ParameterExpansionFactor, 0)
	require.InDelta(t, 3.0, cfg.LimitCheckFactor, 0)
	require.True(t, cfg.EnableParameterAdjustment)
	require.True(t, cfg.UseMatrixErrors)

	_, _, ok := cfg.FitRange()
	require.False(t, ok)
}

func TestNew(t *testing.T) {
	t.Run("options applied", func(t *testing.T) {
		cfg, err := New(
			WithFitMethod(format.BinnedML),
			WithMaxRetries(5),
			WithFitRange(1, 4),
			WithHistogramBins(40),
			WithAcceleratedBackend(4),
		)
		require.NoError(t, err)
		require.Equal(t, format.BinnedML, cfg.FitMethod)
		require.Equal(t, 5, cfg.MaxRetries)
		require.Equal(t, 40, cfg.HistogramBinCount)
		require.True(t, cfg.UseAcceleratedBackend)
		require.Equal(t, 4, cfg.WorkerCount)

		lo, hi, ok := cfg.FitRange()
		require.True(t, ok)
		require.InDelta(t, 1.0, lo, 0)
		require.InDelta(t, 4.0, hi, 0)
	})

	tests := []struct {
		name string
		opt  Option
	}{
		{"zero retries", WithMaxRetries(0)},
		{"unknown algorithm", WithAlgorithm("Newton")},
		{"inverted fit range", WithFitRange(5, 1)},
		{"empty fit range", WithFitRange(2, 2)},
		{"zero bins", WithHistogramBins(0)},
		{"level too high", WithStrategyLevel(3)},
		{"unknown method", WithFitMethod(format.FitMethod(0x9))},
		{"no workers", WithAcceleratedBackend(0)},
		{"zero expansion factor", WithParameterAdjustment(true, 0, 3)},
		{"zero chi-square bins", WithChiSquare(0, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			require.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(`
fit_method: extendedml
max_retries: 2
minimizer_algorithm: Simplex
fit_range_min: 0.5
fit_range_max: 9.5
skip_upper_limit_params: [sigma]
allow_upper_expansion_params: [nsig, mean]
`))
		require.NoError(t, err)
		require.Equal(t, format.ExtendedML, cfg.FitMethod)
		require.Equal(t, 2, cfg.MaxRetries)
		require.Equal(t, AlgorithmSimplex, cfg.MinimizerAlgorithm)
		require.Equal(t, []string{"sigma"}, cfg.SkipUpperLimitParams)
		require.Equal(t, []string{"nsig", "mean"}, cfg.AllowUpperExpansionParams)
		require.Equal(t, 100, cfg.HistogramBinCount, "unset keys keep defaults")

		lo, hi, ok := cfg.FitRange()
		require.True(t, ok)
		require.InDelta(t, 0.5, lo, 0)
		require.InDelta(t, 9.5, hi, 0)
	})

	t.Run("unknown method name", func(t *testing.T) {
		_, err := Parse([]byte("fit_method: ChiSquare\n"))
		require.ErrorIs(t, err, errs.ErrConfiguration)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := Parse([]byte("max_retries: -1\n"))
		require.ErrorIs(t, err, errs.ErrConfiguration)
		require.Contains(t, err.Error(), "MaxRetries")
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy_level: 1\nuse_asymmetric_errors: true\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.StrategyLevel)
	require.True(t, cfg.UseAsymmetricErrors)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestClone(t *testing.T) {
	cfg, err := New(WithFitRange(0, 1), WithSkipLimits([]string{"a"}, nil))
	require.NoError(t, err)

	c := cfg.Clone()
	c.SkipUpperLimitParams[0] = "b"
	*c.FitRangeMax = 7

	require.Equal(t, "a", cfg.SkipUpperLimitParams[0])
	require.InDelta(t, 1.0, *cfg.FitRangeMax, 0)
}
