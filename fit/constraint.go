package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/model"
)

// sigmaFloor replaces a non-positive constraint width.
const sigmaFloor = 1e-6

// ConstraintSource provides the auxiliary result constraints are derived
// from.
type ConstraintSource interface {
	// Load returns the auxiliary result. It is called once per constrained
	// fit.
	Load(ctx context.Context) (*Result, error)
	// Describe names the source in logs and errors.
	Describe() string
}

// SavedSource serves a result already in memory.
type SavedSource struct {
	Result *Result
}

func (s SavedSource) Load(context.Context) (*Result, error) {
	if s.Result == nil {
		return nil, errors.New("no saved result")
	}

	return s.Result, nil
}

func (s SavedSource) Describe() string {
	return "saved result"
}

// LoaderSource serves a result from a loader function, such as one reading
// a persisted result file.
type LoaderSource struct {
	Label  string
	Loader func(ctx context.Context) (*Result, error)
}

func (s LoaderSource) Load(ctx context.Context) (*Result, error) {
	if s.Loader == nil {
		return nil, errors.New("no loader")
	}

	return s.Loader(ctx)
}

func (s LoaderSource) Describe() string {
	return s.Label
}

// LiveSource fits the signal-only view of an auxiliary model to an
// auxiliary dataset when loaded.
type LiveSource struct {
	Model  *model.Model
	Data   *dataset.Dataset
	Config config.FitConfiguration
	// Strategy runs the auxiliary fit; nil uses an AuxiliaryStrategy with
	// default collaborators.
	Strategy Strategy
}

func (s LiveSource) Load(ctx context.Context) (*Result, error) {
	strategy := s.Strategy
	if strategy == nil {
		strategy = NewAuxiliaryStrategy(Env{})
	}

	return strategy.Execute(ctx, s.Model, s.Data, s.Config)
}

func (s LiveSource) Describe() string {
	if s.Data == nil {
		return "live auxiliary fit"
	}

	return fmt.Sprintf("live auxiliary fit of %q", s.Data.Name())
}

// constraintSigma picks the constraint width from an auxiliary estimate:
// the symmetric error, else the mean of the asymmetric errors, else a floor.
func constraintSigma(est Estimate) float64 {
	if est.Error > 0 && finite(est.Error) {
		return est.Error
	}
	if avg := 0.5 * (math.Abs(est.ErrorHi) + math.Abs(est.ErrorLo)); avg > 0 && finite(avg) {
		return avg
	}

	return sigmaFloor
}

// BuildConstraints derives one Gaussian constraint per name present in both
// aux and ws. Other names are skipped.
func BuildConstraints(ws *model.Workspace, aux *Result, names []string) []Constraint {
	if ws == nil || aux == nil {
		return nil
	}

	out := make([]Constraint, 0, len(names))
	for _, name := range names {
		est, ok := aux.Estimate(name)
		if !ok {
			continue
		}
		h, ok := ws.Lookup(name)
		if !ok {
			continue
		}
		out = append(out, Constraint{
			Name:   name,
			Handle: h,
			Mean:   est.Value,
			Sigma:  constraintSigma(est),
		})
	}

	return out
}

// ConstrainedStrategy adds Gaussian constraints from an auxiliary result to
// the likelihood of an inner plain, robust or binned strategy.
type ConstrainedStrategy struct {
	Inner  Strategy
	Source ConstraintSource
	Names  []string
	env    Env
}

// NewConstrainedStrategy wraps inner with constraints on names taken from
// src.
func NewConstrainedStrategy(inner Strategy, src ConstraintSource, names []string, env Env) *ConstrainedStrategy {
	return &ConstrainedStrategy{Inner: inner, Source: src, Names: names, env: env.withDefaults()}
}

func (s *ConstrainedStrategy) Name() string {
	if s.Inner == nil {
		return "constrained"
	}

	return "constrained-" + s.Inner.Name()
}

// Execute loads the auxiliary result, builds the constraints and runs the
// inner strategy with them.
//
// Returns:
//   - *Result: the result of the inner strategy
//   - error: ConfigurationError when the source cannot be read or the inner
//     strategy does not accept constraints, else the inner strategy's error
func (s *ConstrainedStrategy) Execute(ctx context.Context, m *model.Model, data *dataset.Dataset, cfg config.FitConfiguration) (*Result, error) {
	if m == nil {
		return nil, errs.ModelConstruction("no model to fit")
	}
	inner, ok := s.Inner.(constrainable)
	if !ok {
		return nil, errs.Configuration("strategy %T does not accept constraints", s.Inner)
	}
	if s.Source == nil {
		return nil, errs.Configuration("no constraint source")
	}

	aux, err := s.Source.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: read constraint source %s: %w", errs.ErrConfiguration, s.Source.Describe(), err)
	}
	if aux == nil {
		return nil, errs.Configuration("constraint source %s returned no result", s.Source.Describe())
	}

	cs := BuildConstraints(m.Workspace(), aux, s.Names)
	for _, c := range cs {
		s.env.Logger.Debug("constraint added",
			"parameter", c.Name, "mean", c.Mean, "sigma", c.Sigma, "source", s.Source.Describe())
	}
	if len(cs) < len(s.Names) {
		s.env.Logger.Debug("constraints skipped",
			"requested", len(s.Names), "applied", len(cs))
	}

	return inner.withConstraints(cs).Execute(ctx, m, data, cfg)
}
