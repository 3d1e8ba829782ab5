// Package orchestrator runs one named fit end to end: it builds the model,
// selects and executes a strategy, and records the outcome in a result
// store.
//
// All collaborators live in a FitContext that the caller constructs and
// passes explicitly; nothing is kept in package state, so independent fits
// never share hidden configuration:
//
//	fc, _ := orchestrator.NewFitContext(cfg, orchestrator.WithLogger(logger))
//	out := fc.Fit(ctx, orchestrator.Request{Name: "jpsi", Model: spec, Data: data})
//	if !out.OK {
//	    log.Print(out.Message)
//	}
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arloliu/yieldfit/archive"
	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/fit"
	"github.com/arloliu/yieldfit/internal/options"
	"github.com/arloliu/yieldfit/metrics"
	"github.com/arloliu/yieldfit/model"
	"github.com/arloliu/yieldfit/store"
)

// FitContext carries everything a fit needs besides its inputs.
type FitContext struct {
	Config   config.FitConfiguration
	Factory  model.Factory
	Selector *fit.Selector
	Store    *store.Store
	// Archive, when set, receives every stored result.
	Archive *archive.Archive
	// Metrics, when set, observes every strategy and outcome.
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Option configures a FitContext.
type Option = options.Option[*FitContext]

func WithFactory(f model.Factory) Option {
	return options.NoError(func(fc *FitContext) {
		fc.Factory = f
	})
}

// WithSelector replaces the strategy selector. A custom selector is used
// as is; WithMetrics does not attach to it.
func WithSelector(s *fit.Selector) Option {
	return options.NoError(func(fc *FitContext) {
		fc.Selector = s
	})
}

func WithStore(s *store.Store) Option {
	return options.NoError(func(fc *FitContext) {
		fc.Store = s
	})
}

func WithArchive(a *archive.Archive) Option {
	return options.NoError(func(fc *FitContext) {
		fc.Archive = a
	})
}

func WithMetrics(r *metrics.Recorder) Option {
	return options.NoError(func(fc *FitContext) {
		fc.Metrics = r
	})
}

func WithLogger(l *slog.Logger) Option {
	return options.NoError(func(fc *FitContext) {
		fc.Logger = l
	})
}

// NewFitContext validates cfg and fills unset collaborators: the standard
// model factory, a selector on the gonum minimizer and an empty store.
//
// Returns:
//   - *FitContext: ready context
//   - error: ConfigurationError for an invalid cfg or option
func NewFitContext(cfg config.FitConfiguration, opts ...Option) (*FitContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fc := &FitContext{Config: cfg}
	if err := options.Apply(fc, opts...); err != nil {
		return nil, err
	}

	if fc.Logger == nil {
		fc.Logger = slog.Default()
	}
	if fc.Factory == nil {
		fc.Factory = model.StandardFactory{}
	}
	if fc.Selector == nil {
		selOpts := []fit.SelectorOption{fit.WithLogger(fc.Logger)}
		if fc.Metrics != nil {
			selOpts = append(selOpts, fit.WithObserver(fc.Metrics))
		}
		sel, err := fit.NewSelector(selOpts...)
		if err != nil {
			return nil, err
		}
		fc.Selector = sel
	}
	if fc.Store == nil {
		s, err := store.New(store.WithLogger(fc.Logger))
		if err != nil {
			return nil, err
		}
		fc.Store = s
	}

	return fc, nil
}

// Constraints requests Gaussian constraints on Names. Source wins when set;
// otherwise AuxData is fitted live with the signal shape of the request's
// model.
type Constraints struct {
	Names   []string
	Source  fit.ConstraintSource
	AuxData *dataset.Dataset
}

// Request describes one named fit.
type Request struct {
	Name  string
	Model model.Spec
	Data  *dataset.Dataset
	// Cut is an optional selection applied to Data before fitting.
	Cut string
	// Variable is the column binned for the chi-square; the model observable
	// when empty.
	Variable    string
	Constraints *Constraints
	// IncludeSnapshot stores the model snapshot in the archived run.
	IncludeSnapshot bool
}

// Outcome is the boolean result of one orchestrated fit.
type Outcome struct {
	OK      bool
	Message string
	// Result is set whenever a strategy returned a result.
	Result *fit.Result
	// Err is the error behind a failed outcome.
	Err   error
	RunID string
}

// Fit runs req and records its result in the store.
//
// Configuration, data and model errors abort before anything is stored. A
// fit execution error, or a panic inside the fit, is logged and reported
// as a failed Outcome. A fit that ends without convergence is a successful
// Outcome whose result carries the DoneWithWarning state.
func (fc *FitContext) Fit(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()
	method := fc.Config.FitMethod.String()
	logger := fc.Logger.With("name", req.Name, "method", method)

	defer func() {
		if r := recover(); r != nil {
			err := errs.FitExecution(nil, "panic: %v", r)
			logger.Error("fit panicked", "panic", r)
			out = Outcome{OK: false, Message: fmt.Sprintf("fit %q failed: %v", req.Name, err), Err: err}
		}
		fc.recordOutcome(method, out)
	}()

	res, err := fc.run(ctx, req, logger)
	if err != nil {
		if errors.Is(err, errs.ErrFitExecution) {
			logger.Error("fit execution failed", "error", err)
		} else {
			logger.Warn("fit aborted", "error", err)
		}

		return Outcome{OK: false, Message: fmt.Sprintf("fit %q failed: %v", req.Name, err), Result: res, Err: err}
	}

	msg := fmt.Sprintf("fit %q finished %s: status %d after %d attempt(s)",
		req.Name, res.Terminal(), res.Status(), res.Attempts())
	out = Outcome{OK: true, Message: msg, Result: res}
	out.RunID = fc.archive(ctx, req, logger)

	logger.Info("fit finished",
		"status", res.Status(), "attempts", res.Attempts(), "terminal", res.Terminal().String(),
		"nsig", fc.Store.SignalYield(req.Name), "reduced_chi2", fc.Store.ReducedChiSquare(req.Name),
		"elapsed", time.Since(start))

	return out
}

func (fc *FitContext) run(ctx context.Context, req Request, logger *slog.Logger) (*fit.Result, error) {
	if req.Name == "" {
		return nil, errs.Configuration("fit name is empty")
	}
	if req.Data == nil {
		return nil, errs.Data("fit %q: no dataset", req.Name)
	}

	data := req.Data
	if req.Cut != "" {
		filtered, err := data.FilteredBy(req.Cut)
		if err != nil {
			return nil, err
		}
		if filtered.EntryCount() == 0 {
			return nil, errs.Data("dataset %q has zero entries after cut %q", data.Name(), req.Cut)
		}
		data = filtered
	}

	m, err := model.Build(fc.Factory, req.Model)
	if err != nil {
		if errors.Is(err, errs.ErrValidation) && !errors.Is(err, errs.ErrModelConstruction) {
			return nil, fmt.Errorf("%w: %w", errs.ErrModelConstruction, err)
		}

		return nil, err
	}

	if flo, fhi, ok := fc.Config.FitRange(); ok {
		if m, err = m.WithRange(flo, fhi); err != nil {
			return nil, err
		}
	}
	lo, hi := m.Range()
	inRange, err := data.InRange(m.Observable(), lo, hi)
	if err != nil {
		return nil, err
	}
	if inRange.EntryCount() == 0 {
		return nil, errs.Data("dataset %q has zero entries in [%g, %g]", data.Name(), lo, hi)
	}
	if err := m.Yields().Initialize(inRange.SumOfWeights()); err != nil {
		return nil, err
	}

	strategy, err := fc.strategy(req)
	if err != nil {
		return nil, err
	}
	logger.Debug("executing fit", "strategy", strategy.Name(), "entries", inRange.EntryCount(),
		"ntot", m.ExpectedEvents())

	res, err := strategy.Execute(ctx, m, inRange, fc.Config)
	if err != nil {
		return res, err
	}

	fc.Store.StoreResult(req.Name, res, m.Snapshot(), strategy.Name())
	fc.Store.StoreYields(req.Name, m.Yields().Formulas())
	if _, err := fc.Store.ComputeChiSquare(req.Name, m, inRange, req.Variable, fc.Config.ChiSquareBins); err != nil {
		logger.Warn("chi-square unavailable", "error", err)
	}

	return res, nil
}

func (fc *FitContext) strategy(req Request) (fit.Strategy, error) {
	strategy, err := fc.Selector.Select(fc.Config.FitMethod)
	if err != nil {
		return nil, err
	}

	c := req.Constraints
	if c == nil || len(c.Names) == 0 {
		return strategy, nil
	}

	src := c.Source
	if src == nil {
		if c.AuxData == nil {
			return nil, errs.Configuration("fit %q: constraints need a source or an auxiliary dataset", req.Name)
		}
		aux, err := model.Build(fc.Factory, req.Model)
		if err != nil {
			return nil, err
		}
		src = fit.LiveSource{Model: aux, Data: c.AuxData, Config: fc.Config, Strategy: fc.Selector.Auxiliary()}
	}

	return fc.Selector.Constrained(strategy, src, c.Names), nil
}

// archive stores the finished result in the archive and returns its run
// ID. Archive failures are logged and do not fail the fit.
func (fc *FitContext) archive(ctx context.Context, req Request, logger *slog.Logger) string {
	if fc.Archive == nil {
		return ""
	}
	stored, ok := fc.Store.Get(req.Name)
	if !ok {
		return ""
	}

	id, err := fc.Archive.Put(ctx, stored, req.IncludeSnapshot)
	if err != nil {
		logger.Warn("archiving fit result failed", "error", err)
		return ""
	}

	return id
}

func (fc *FitContext) recordOutcome(method string, out Outcome) {
	if fc.Metrics == nil {
		return
	}

	switch {
	case out.OK:
		fc.Metrics.RecordOutcome(method, metrics.OutcomeOK)
	case errors.Is(out.Err, errs.ErrFitExecution):
		fc.Metrics.RecordOutcome(method, metrics.OutcomeFailed)
	default:
		fc.Metrics.RecordOutcome(method, metrics.OutcomeError)
	}
}

// IsGoodFit reports whether the stored result of name passes the configured
// reduced chi-square limit.
func (fc *FitContext) IsGoodFit(name string) bool {
	return fc.Store.IsGoodFit(name, fc.Config.MaxReducedChiSquare)
}
