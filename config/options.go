package config

import (
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/format"
	"github.com/arloliu/yieldfit/internal/options"
)

// WithFitMethod selects the fit strategy.
func WithFitMethod(m format.FitMethod) Option {
	return options.New(func(c *FitConfiguration) error {
		if !m.IsValid() {
			return errs.Configuration("unknown fit method 0x%x", uint8(m))
		}
		c.FitMethod = m

		return nil
	})
}

// WithMaxRetries sets the retry cap of the robust strategy.
func WithMaxRetries(n int) Option {
	return options.NoError(func(c *FitConfiguration) {
		c.MaxRetries = n
	})
}

// WithAlgorithm selects the minimizer algorithm by name.
func WithAlgorithm(name string) Option {
	return options.NoError(func(c *FitConfiguration) {
		c.MinimizerAlgorithm = name
	})
}

// WithFitRange restricts the fit to [lo, hi].
func WithFitRange(lo, hi float64) Option {
	return options.NoError(func(c *FitConfiguration) {
		c.FitRangeMin = &lo
		c.FitRangeMax = &hi
	})
}

// WithStrategyLevel sets the initial minimizer robustness level.
func WithStrategyLevel(level int) Option {
	return options.NoError(func(c *FitConfiguration) {
		c.StrategyLevel = level
	})
}

// WithErrors toggles asymmetric and full-matrix error computation.
func WithErrors(asymmetric, matrix bool) Option {
	return options.NoError(func(c *FitConfiguration) {
		c.UseAsymmetricErrors = asymmetric
		c.UseMatrixErrors = matrix
	})
}

// WithAcceleratedBackend enables parallel likelihood evaluation over the
// given number of workers.
func WithAcceleratedBackend(workers int) Option {
	return options.New(func(c *FitConfiguration) error {
		if workers < 1 {
			return errs.Configuration("worker count must be positive, got %d", workers)
		}
		c.UseAcceleratedBackend = true
		c.WorkerCount = workers

		return nil
	})
}

// WithHistogramBins sets the bin count of binned fits.
func WithHistogramBins(n int) Option {
	return options.NoError(func(c *FitConfiguration) {
		c.HistogramBinCount = n
	})
}

// WithParameterAdjustment toggles bound expansion between retries and sets
// its factors.
func WithParameterAdjustment(enabled bool, expansion, limitCheck float64) Option {
	return options.NoError(func(c *FitConfiguration) {
		c.EnableParameterAdjustment = enabled
		c.ParameterExpansionFactor = expansion
		c.LimitCheckFactor = limitCheck
	})
}

// WithSkipLimits sets the substring lists whose parameters never get their
// upper or lower bound adjusted.
func WithSkipLimits(upper, lower []string) Option {
	return options.NoError(func(c *FitConfiguration) {
		c.SkipUpperLimitParams = upper
		c.SkipLowerLimitParams = lower
	})
}

// WithAllowExpansion sets the substring lists whose parameters may get their
// upper or lower bound expanded.
func WithAllowExpansion(upper, lower []string) Option {
	return options.NoError(func(c *FitConfiguration) {
		c.AllowUpperExpansionParams = upper
		c.AllowLowerExpansionParams = lower
	})
}

// WithChiSquare sets the goodness-of-fit binning and threshold.
func WithChiSquare(bins int, maxReduced float64) Option {
	return options.NoError(func(c *FitConfiguration) {
		c.ChiSquareBins = bins
		c.MaxReducedChiSquare = maxReduced
	})
}
