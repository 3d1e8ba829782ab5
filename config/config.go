// Package config holds the per-fit configuration of yieldfit.
//
// A FitConfiguration is built from Default, functional options, or a YAML
// file, and is validated before use:
//
//	cfg, err := config.New(
//	    config.WithFitMethod(format.RobustExtendedML),
//	    config.WithMaxRetries(5),
//	)
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/format"
	"github.com/arloliu/yieldfit/internal/options"
)

// Minimizer algorithm names.
const (
	AlgorithmMigrad     = "Migrad"
	AlgorithmSimplex    = "Simplex"
	AlgorithmBFGS       = "BFGS"
	AlgorithmLBFGS      = "LBFGS"
	AlgorithmNelderMead = "NelderMead"
	AlgorithmCG         = "CG"
	AlgorithmGradient   = "Gradient"
)

// Algorithms lists the accepted MinimizerAlgorithm values.
var Algorithms = []string{
	AlgorithmMigrad, AlgorithmSimplex, AlgorithmBFGS, AlgorithmLBFGS,
	AlgorithmNelderMead, AlgorithmCG, AlgorithmGradient,
}

// FitConfiguration controls a single fit invocation. It is treated as
// immutable once a fit starts.
type FitConfiguration struct {
	UseAsymmetricErrors   bool   `yaml:"use_asymmetric_errors"`
	UseMatrixErrors       bool   `yaml:"use_matrix_errors"`
	UseAcceleratedBackend bool   `yaml:"use_accelerated_backend"`
	WorkerCount           int    `yaml:"worker_count" validate:"gte=0"`
	MaxRetries            int    `yaml:"max_retries" validate:"gt=0"`
	MinimizerAlgorithm    string `yaml:"minimizer_algorithm" validate:"algorithm"`

	FitRangeMin *float64 `yaml:"fit_range_min,omitempty"`
	FitRangeMax *float64 `yaml:"fit_range_max,omitempty"`

	FitMethod         format.FitMethod `yaml:"fit_method" validate:"fitmethod"`
	HistogramBinCount int              `yaml:"histogram_bin_count" validate:"gt=0"`

	ParameterExpansionFactor  float64  `yaml:"parameter_expansion_factor" validate:"gt=0"`
	LimitCheckFactor          float64  `yaml:"limit_check_factor" validate:"gt=0"`
	EnableParameterAdjustment bool     `yaml:"enable_parameter_adjustment"`
	SkipUpperLimitParams      []string `yaml:"skip_upper_limit_params"`
	SkipLowerLimitParams      []string `yaml:"skip_lower_limit_params"`
	AllowUpperExpansionParams []string `yaml:"allow_upper_expansion_params"`
	AllowLowerExpansionParams []string `yaml:"allow_lower_expansion_params"`

	StrategyLevel       int     `yaml:"strategy_level" validate:"gte=0,lte=2"`
	ChiSquareBins       int     `yaml:"chi_square_bins" validate:"gt=0"`
	MaxReducedChiSquare float64 `yaml:"max_reduced_chi_square" validate:"gt=0"`
}

// Default returns the configuration used when nothing is overridden.
func Default() FitConfiguration {
	return FitConfiguration{
		UseMatrixErrors:           true,
		WorkerCount:               1,
		MaxRetries:                3,
		MinimizerAlgorithm:        AlgorithmMigrad,
		FitMethod:                 format.RobustExtendedML,
		HistogramBinCount:         100,
		ParameterExpansionFactor:  9.0,
		LimitCheckFactor:          3.0,
		EnableParameterAdjustment: true,
		StrategyLevel:             2,
		ChiSquareBins:             100,
		MaxReducedChiSquare:       5.0,
	}
}

// FitRange returns the explicit fit range. ok is false unless both bounds
// are set.
func (c FitConfiguration) FitRange() (lo, hi float64, ok bool) {
	if c.FitRangeMin == nil || c.FitRangeMax == nil {
		return 0, 0, false
	}

	return *c.FitRangeMin, *c.FitRangeMax, true
}

// Clone returns a copy that shares no slices or pointers with c.
func (c FitConfiguration) Clone() FitConfiguration {
	out := c
	out.SkipUpperLimitParams = slices.Clone(c.SkipUpperLimitParams)
	out.SkipLowerLimitParams = slices.Clone(c.SkipLowerLimitParams)
	out.AllowUpperExpansionParams = slices.Clone(c.AllowUpperExpansionParams)
	out.AllowLowerExpansionParams = slices.Clone(c.AllowLowerExpansionParams)
	if c.FitRangeMin != nil {
		v := *c.FitRangeMin
		out.FitRangeMin = &v
	}
	if c.FitRangeMax != nil {
		v := *c.FitRangeMax
		out.FitRangeMax = &v
	}

	return out
}

// Validate checks every field and returns a ConfigurationError describing
// the first set of violations.
func (c FitConfiguration) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}

			return errs.Configuration("%s", strings.Join(msgs, "; "))
		}

		return fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}

	return nil
}

// Option configures a FitConfiguration.
type Option = options.Option[*FitConfiguration]

// New applies opts over Default and validates the result.
func New(opts ...Option) (FitConfiguration, error) {
	cfg := Default()
	if err := options.Apply(&cfg, opts...); err != nil {
		return FitConfiguration{}, err
	}
	if err := cfg.Validate(); err != nil {
		return FitConfiguration{}, err
	}

	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. Keys absent from
// data keep their default values.
func Parse(data []byte) (FitConfiguration, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FitConfiguration{}, errs.Configuration("parse fit configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return FitConfiguration{}, err
	}

	return cfg, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (FitConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FitConfiguration{}, errs.Configuration("read fit configuration %s: %v", path, err)
	}

	return Parse(data)
}
