// Package yieldfit extracts signal and background yields from a dataset with
// maximum-likelihood fits of a signal-plus-background model.
//
// The fits are made robust by retrying a failing minimization with widened
// parameter bounds and a relaxed minimizer strategy. Shape parameters can be
// constrained from an auxiliary fit, and every result is stored together with
// its yields and goodness of fit.
//
// # Core Features
//
//   - Unbinned, binned, extended and robust extended maximum-likelihood fits
//   - Automatic bound adjustment for parameters stuck at a limit
//   - Gaussian constraints from a saved result, a file or a live auxiliary fit
//   - Signal and background yields as formulas of the signal fraction, with
//     errors propagated from the fit covariance
//   - Pearson chi-square goodness of fit
//   - Compressed binary result containers (None, Zstd, S2, LZ4) with xxHash64
//     checksums, and a SQLite run archive
//
// # Basic Usage
//
// Fitting a dataset:
//
//	import "github.com/arloliu/yieldfit"
//
//	spec := model.Spec{
//	    Observable: "mass",
//	    RangeMin:   2.9,
//	    RangeMax:   3.3,
//	    Signal: model.SignalSpec{
//	        Kind:  model.KindGaussian,
//	        Mean:  model.ParamSpec{Value: 3.097, Min: 3.05, Max: 3.15},
//	        Sigma: model.ParamSpec{Value: 0.015, Min: 0.005, Max: 0.05},
//	    },
//	    Background: model.BackgroundSpec{
//	        Kind:  model.KindExponential,
//	        Slope: model.ParamSpec{Value: -1, Min: -10, Max: 10},
//	    },
//	}
//
//	stored, err := yieldfit.Fit(ctx, "jpsi", spec, data)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("nsig = %.1f +/- %.1f\n", stored.Yields["nsig"], stored.YieldErrors["nsig"])
//
// Reading saved results:
//
//	results, _ := yieldfit.LoadResults("jpsi.yfc")
//	nsig := results.SignalYield("jpsi")
//
// # Package Structure
//
// This package provides convenient top-level wrappers around the orchestrator
// and store packages for the most common use cases. For several fits sharing a
// store, an archive or metrics, build an orchestrator.FitContext directly.
package yieldfit

import (
	"context"

	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/fit"
	"github.com/arloliu/yieldfit/internal/hash"
	"github.com/arloliu/yieldfit/model"
	"github.com/arloliu/yieldfit/orchestrator"
	"github.com/arloliu/yieldfit/store"
)

// NewFitContext creates a fit context with the default collaborators and a
// configuration built from opts.
//
// Parameters:
//   - opts: configuration options applied over config.Default
//
// Returns:
//   - *orchestrator.FitContext: context with an empty result store
//   - error: ConfigurationError for an invalid option
//
// Example:
//
//	fc, err := yieldfit.NewFitContext(config.WithFitMethod(format.BinnedML))
//	out := fc.Fit(ctx, orchestrator.Request{Name: "jpsi", Model: spec, Data: data})
func NewFitContext(opts ...config.Option) (*orchestrator.FitContext, error) {
	cfg, err := config.New(opts...)
	if err != nil {
		return nil, err
	}

	return orchestrator.NewFitContext(cfg)
}

// Fit runs one named fit with a fresh context and returns what was stored.
//
// Parameters:
//   - ctx: cancels the minimization
//   - name: name the result is stored under
//   - spec: model specification
//   - data: dataset to fit
//   - opts: configuration options applied over config.Default
//
// Returns:
//   - *store.StoredResult: result, yields and goodness of fit
//   - error: the error behind a failed fit, classified by the errs sentinels
func Fit(ctx context.Context, name string, spec model.Spec, data *dataset.Dataset, opts ...config.Option) (*store.StoredResult, error) {
	fc, err := NewFitContext(opts...)
	if err != nil {
		return nil, err
	}

	out := fc.Fit(ctx, orchestrator.Request{Name: name, Model: spec, Data: data})
	if !out.OK {
		return nil, out.Err
	}
	stored, _ := fc.Store.Get(name)

	return stored, nil
}

// LoadResults reads a result container written by store.Store.Save or
// SaveAll.
func LoadResults(path string) (*store.Store, error) {
	return store.Load(path)
}

// ResultSource returns a constraint source serving the result stored as name
// in the container at path.
//
// Example:
//
//	src := yieldfit.ResultSource("mc.yfc", "jpsi_mc")
//	strategy := selector.Constrained(inner, src, []string{"sig_sigma"})
func ResultSource(path, name string) fit.ConstraintSource {
	return store.FileSource(path, name)
}

// ParameterID computes the 64-bit identifier of a parameter or result name.
//
// Identifiers are xxHash64 values and stay stable across processes, so they
// can key external indexes of archived parameters.
func ParameterID(name string) uint64 {
	return hash.ID(name)
}
