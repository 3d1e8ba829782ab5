// Package fit runs signal-plus-background maximum-likelihood fits.
//
// A Strategy turns a model, a dataset and a configuration into a Result.
// The Selector maps a fit method onto a strategy:
//
//	sel, _ := fit.NewSelector(fit.WithLogger(logger))
//	strategy, err := sel.Select(cfg.FitMethod)
//	res, err := strategy.Execute(ctx, m, data, cfg)
//
// Strategies are stateless apart from their collaborators and may be reused
// across fits. A model must not be fitted by two strategies at once.
package fit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/model"
)

// Strategy executes one fit.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string
	// Execute fits m to data.
	//
	// Returns:
	//   - *Result: the fit result, present whenever a minimization ran
	//   - error: DataError, ConfigurationError, FitExecutionError or a
	//     context error
	Execute(ctx context.Context, m *model.Model, data *dataset.Dataset, cfg config.FitConfiguration) (*Result, error)
}

// constrainable is implemented by strategies that accept Gaussian
// constraints on their likelihood.
type constrainable interface {
	withConstraints(cs []Constraint) Strategy
}

// Env carries the collaborators shared by every strategy.
type Env struct {
	Minimizer Minimizer
	Logger    *slog.Logger
	Observer  Observer
}

// withDefaults fills unset collaborators.
func (e Env) withDefaults() Env {
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.Observer == nil {
		e.Observer = NopObserver{}
	}
	if e.Minimizer == nil {
		m, _ := NewGonumMinimizer(WithMinimizerLogger(e.Logger))
		e.Minimizer = m
	}

	return e
}

// attempt describes one minimizer execution.
type attempt struct {
	strategy    string
	number      int
	extended    bool
	asymmetric  bool
	level       int
	constraints []Constraint
}

func fitRange(m *model.Model, cfg config.FitConfiguration) (lo, hi float64) {
	if lo, hi, ok := cfg.FitRange(); ok {
		return lo, hi
	}

	return m.Range()
}

func checkInputs(m *model.Model, data *dataset.Dataset) error {
	if m == nil {
		return errs.ModelConstruction("no model to fit")
	}
	if data == nil {
		return errs.Data("no dataset to fit")
	}
	if data.EntryCount() == 0 {
		return errs.Data("dataset %q is empty", data.Name())
	}

	return nil
}

// unbinned minimizes the unbinned likelihood of m over the events of data
// inside the fit range.
func (e Env) unbinned(ctx context.Context, m *model.Model, data *dataset.Dataset, cfg config.FitConfiguration, a attempt) (*Result, error) {
	if err := checkInputs(m, data); err != nil {
		return nil, err
	}
	values, ok := data.Column(m.Observable())
	if !ok {
		return nil, errs.Data("dataset %q has no real column %q", data.Name(), m.Observable())
	}

	lo, hi := fitRange(m, cfg)
	weights := data.Weights()
	x := make([]float64, 0, len(values))
	var w []float64
	if weights != nil {
		w = make([]float64, 0, len(values))
	}
	for i, v := range values {
		if v < lo || v > hi {
			continue
		}
		x = append(x, v)
		if weights != nil {
			w = append(w, weights[i])
		}
	}
	if len(x) == 0 {
		return nil, errs.Data("dataset %q has no entries in [%g, %g]", data.Name(), lo, hi)
	}

	nll := newUnbinnedNLL(m, x, w, lo, hi)
	nll.extended = a.extended && !m.IsSignalOnly()
	nll.constraints = a.constraints
	if cfg.UseAcceleratedBackend && cfg.WorkerCount > 1 {
		nll.workers = cfg.WorkerCount
	}

	return e.minimize(ctx, m, cfg, a, nll.Value)
}

// binned minimizes the binned likelihood of m over hist.
func (e Env) binned(ctx context.Context, m *model.Model, hist *dataset.Binned, cfg config.FitConfiguration, a attempt) (*Result, error) {
	nll := &binnedNLL{m: m, hist: hist, extended: a.extended && !m.IsSignalOnly(), constraints: a.constraints}
	return e.minimize(ctx, m, cfg, a, nll.Value)
}

func (e Env) minimize(ctx context.Context, m *model.Model, cfg config.FitConfiguration, a attempt, objective func() float64) (*Result, error) {
	res, err := e.Minimizer.Minimize(ctx, Problem{
		Workspace:        m.Workspace(),
		Parameters:       m.Parameters(),
		Objective:        objective,
		Constraints:      a.constraints,
		Algorithm:        cfg.MinimizerAlgorithm,
		StrategyLevel:    a.level,
		MatrixErrors:     cfg.UseMatrixErrors,
		AsymmetricErrors: a.asymmetric,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, errs.ErrConfiguration) || errors.Is(err, errs.ErrFitExecution) {
			return nil, err
		}

		return nil, errs.FitExecution(err, "%s attempt %d", a.strategy, a.number)
	}
	if res == nil {
		return nil, errs.FitExecution(nil, "%s attempt %d: minimizer returned no result", a.strategy, a.number)
	}

	e.Logger.Debug("fit attempt finished",
		"strategy", a.strategy, "attempt", a.number, "status", res.Status(),
		"aux_status", res.AuxStatus(), "edm", res.EDM(), "level", a.level)
	e.Observer.AttemptFinished(a.strategy, a.number, res)

	return res, nil
}

func terminalOf(res *Result) TerminalState {
	if res.Converged() {
		return StateDone
	}

	return StateDoneWithWarning
}

// finish stamps the attempt count and terminal state on res and reports it.
func (e Env) finish(strategy string, res *Result, attempts int, start time.Time) *Result {
	out := res.withOutcome(attempts, terminalOf(res))
	if out.Terminal() == StateDoneWithWarning {
		e.Logger.Warn("fit finished without convergence",
			"strategy", strategy, "status", out.Status(), "aux_status", out.AuxStatus(), "attempts", attempts)
	}
	e.Observer.FitFinished(strategy, out, time.Since(start))

	return out
}

// PlainStrategy runs a single unbinned fit.
type PlainStrategy struct {
	Extended    bool
	env         Env
	constraints []Constraint
}

// NewPlainStrategy creates a single-attempt unbinned strategy.
func NewPlainStrategy(extended bool, env Env) *PlainStrategy {
	return &PlainStrategy{Extended: extended, env: env.withDefaults()}
}

func (s *PlainStrategy) Name() string {
	if s.Extended {
		return "extended"
	}

	return "plain"
}

func (s *PlainStrategy) Execute(ctx context.Context, m *model.Model, data *dataset.Dataset, cfg config.FitConfiguration) (*Result, error) {
	start := time.Now()
	res, err := s.env.unbinned(ctx, m, data, cfg, attempt{
		strategy:    s.Name(),
		number:      1,
		extended:    s.Extended,
		asymmetric:  cfg.UseAsymmetricErrors,
		level:       cfg.StrategyLevel,
		constraints: s.constraints,
	})
	if err != nil {
		return nil, err
	}

	return s.env.finish(s.Name(), res, 1, start), nil
}

func (s *PlainStrategy) withConstraints(cs []Constraint) Strategy {
	out := *s
	out.constraints = cs

	return &out
}

// AuxiliaryStrategy fits the signal-only view of a model, typically against
// simulated signal events. It never computes asymmetric errors.
type AuxiliaryStrategy struct {
	env Env
}

// NewAuxiliaryStrategy creates a signal-only strategy.
func NewAuxiliaryStrategy(env Env) *AuxiliaryStrategy {
	return &AuxiliaryStrategy{env: env.withDefaults()}
}

func (s *AuxiliaryStrategy) Name() string {
	return "auxiliary"
}

func (s *AuxiliaryStrategy) Execute(ctx context.Context, m *model.Model, data *dataset.Dataset, cfg config.FitConfiguration) (*Result, error) {
	if m == nil {
		return nil, errs.ModelConstruction("no model to fit")
	}
	start := time.Now()
	res, err := s.env.unbinned(ctx, m.SignalModel(), data, cfg, attempt{
		strategy: s.Name(),
		number:   1,
		level:    cfg.StrategyLevel,
	})
	if err != nil {
		return nil, err
	}

	return s.env.finish(s.Name(), res, 1, start), nil
}

// BinnedStrategy histograms the fit variable and fits the histogram.
type BinnedStrategy struct {
	// Variable overrides the fit variable. When empty the model observable
	// is used if the dataset has it, else the first real column.
	Variable    string
	Extended    bool
	env         Env
	constraints []Constraint
}

// NewBinnedStrategy creates a binned strategy.
func NewBinnedStrategy(variable string, extended bool, env Env) *BinnedStrategy {
	return &BinnedStrategy{Variable: variable, Extended: extended, env: env.withDefaults()}
}

func (s *BinnedStrategy) Name() string {
	return "binned"
}

func (s *BinnedStrategy) variable(m *model.Model, data *dataset.Dataset) (string, error) {
	if s.Variable != "" {
		if _, ok := data.Column(s.Variable); !ok {
			return "", errs.Data("dataset %q has no real column %q", data.Name(), s.Variable)
		}

		return s.Variable, nil
	}
	if _, ok := data.Column(m.Observable()); ok {
		return m.Observable(), nil
	}
	if vars := data.RealVariables(); len(vars) > 0 {
		return vars[0], nil
	}

	return "", errs.Data("dataset %q has no real-valued variable to bin", data.Name())
}

func (s *BinnedStrategy) Execute(ctx context.Context, m *model.Model, data *dataset.Dataset, cfg config.FitConfiguration) (*Result, error) {
	if err := checkInputs(m, data); err != nil {
		return nil, err
	}
	start := time.Now()

	variable, err := s.variable(m, data)
	if err != nil {
		return nil, err
	}
	lo, hi := fitRange(m, cfg)
	hist, err := data.Bin(variable, lo, hi, cfg.HistogramBinCount)
	if err != nil {
		return nil, err
	}
	if !(hist.SumOfWeights() > 0) {
		return nil, errs.Data("dataset %q has no entries in [%g, %g] of %q", data.Name(), lo, hi, variable)
	}
	s.env.Logger.Debug("binned fit data",
		"variable", variable, "bins", hist.NBins(), "sum_of_weights", hist.SumOfWeights())

	res, err := s.env.binned(ctx, m, hist, cfg, attempt{
		strategy:    s.Name(),
		number:      1,
		extended:    s.Extended,
		asymmetric:  cfg.UseAsymmetricErrors,
		level:       cfg.StrategyLevel,
		constraints: s.constraints,
	})
	if err != nil {
		return nil, err
	}

	return s.env.finish(s.Name(), res, 1, start), nil
}

func (s *BinnedStrategy) withConstraints(cs []Constraint) Strategy {
	out := *s
	out.constraints = cs

	return &out
}
