package fit

import (
	"context"
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/internal/options"
	"github.com/arloliu/yieldfit/model"
)

// penaltyNLL replaces a non-finite objective value inside the optimizer.
const penaltyNLL = 1e20

// Problem is one minimization request against a workspace.
type Problem struct {
	Workspace *model.Workspace
	// Parameters lists every parameter reported in the result. Constant
	// parameters are held fixed.
	Parameters []model.Handle
	// Objective evaluates the negative log-likelihood at the current
	// workspace values.
	Objective func() float64
	// Constraints are already part of Objective; they are listed for
	// reporting.
	Constraints      []Constraint
	Algorithm        string
	StrategyLevel    int
	MatrixErrors     bool
	AsymmetricErrors bool
}

// Minimizer finds the minimum of a Problem and leaves the workspace at the
// best point found, with errors recorded on the floating parameters.
type Minimizer interface {
	Minimize(ctx context.Context, p Problem) (*Result, error)
}

// GonumMinimizer is a Minimizer built on gonum/optimize.
//
// Bounded parameters are mapped to unbounded internal coordinates. After
// the descent the Hessian is estimated by finite differences in coordinates
// scaled to the parameter errors, inverted for the covariance, and used for
// the estimated distance to minimum (EDM) that decides the status code.
type GonumMinimizer struct {
	logger         *slog.Logger
	edmMax         float64
	maxIterations  int
	maxEvaluations int
}

// MinimizerOption configures a GonumMinimizer.
type MinimizerOption = options.Option[*GonumMinimizer]

// WithMinimizerLogger sets the logger of stage diagnostics.
func WithMinimizerLogger(logger *slog.Logger) MinimizerOption {
	return options.NoError(func(g *GonumMinimizer) {
		if logger != nil {
			g.logger = logger
		}
	})
}

// WithEDMMax sets the EDM below which a minimum is accepted at levels 1
// and 2. Level 0 accepts ten times this value.
func WithEDMMax(edm float64) MinimizerOption {
	return options.New(func(g *GonumMinimizer) error {
		if !(edm > 0) {
			return errs.Configuration("EDM maximum must be positive, got %g", edm)
		}
		g.edmMax = edm

		return nil
	})
}

// WithCallLimits caps major iterations and objective evaluations per
// descent stage. Zero keeps the default.
func WithCallLimits(iterations, evaluations int) MinimizerOption {
	return options.NoError(func(g *GonumMinimizer) {
		if iterations > 0 {
			g.maxIterations = iterations
		}
		if evaluations > 0 {
			g.maxEvaluations = evaluations
		}
	})
}

// NewGonumMinimizer creates a minimizer with EDM maximum 1e-3.
func NewGonumMinimizer(opts ...MinimizerOption) (*GonumMinimizer, error) {
	g := &GonumMinimizer{
		logger:        slog.Default(),
		edmMax:        1e-3,
		maxIterations: 1000,
	}
	if err := options.Apply(g, opts...); err != nil {
		return nil, err
	}

	return g, nil
}

func methodFactory(algorithm string) (func() optimize.Method, bool, error) {
	switch algorithm {
	case config.AlgorithmMigrad, config.AlgorithmBFGS, "":
		return func() optimize.Method { return &optimize.BFGS{} }, false, nil
	case config.AlgorithmLBFGS:
		return func() optimize.Method { return &optimize.LBFGS{} }, false, nil
	case config.AlgorithmSimplex, config.AlgorithmNelderMead:
		return func() optimize.Method { return &optimize.NelderMead{} }, true, nil
	case config.AlgorithmCG:
		return func() optimize.Method { return &optimize.CG{} }, false, nil
	case config.AlgorithmGradient:
		return func() optimize.Method { return &optimize.GradientDescent{} }, false, nil
	default:
		return nil, false, errs.Configuration("unknown minimizer algorithm %q", algorithm)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func guard(v float64) float64 {
	if !finite(v) {
		return penaltyNLL
	}

	return v
}

func centralGradient(f func([]float64) float64) func(grad, x []float64) {
	return func(grad, x []float64) {
		fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central})
	}
}

func (g *GonumMinimizer) settings(level, n int) *optimize.Settings {
	gradTol := [3]float64{1e-3, 1e-4, 1e-5}[level]
	funcTol := [3]float64{1e-6, 1e-8, 1e-10}[level]
	evals := g.maxEvaluations
	if evals == 0 {
		evals = 1000 + 200*n
	}

	return &optimize.Settings{
		GradientThreshold: gradTol,
		Converger:         &optimize.FunctionConverge{Absolute: funcTol, Iterations: 20},
		MajorIterations:   g.maxIterations,
		FuncEvaluations:   evals,
	}
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence,
		optimize.StepConvergence, optimize.MethodConverge:
		return true
	default:
		return false
	}
}

func limited(s optimize.Status) bool {
	switch s {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.GradientEvaluationLimit:
		return true
	default:
		return false
	}
}

// floating returns the non-constant subset of handles.
func floating(ws *model.Workspace, handles []model.Handle) []model.Handle {
	out := make([]model.Handle, 0, len(handles))
	for _, h := range handles {
		if !ws.Param(h).Constant {
			out = append(out, h)
		}
	}

	return out
}

// Minimize runs the descent stages selected by the strategy level, then
// computes errors and the status code.
//
// Level 0 runs one descent. Level 1 adds a simplex fallback and a second
// descent when the first one did not converge. Level 2 always finishes with
// a polishing descent.
//
// Returns:
//   - *Result: the fit result; non-convergence is reported through its
//     status codes, not as an error
//   - error: ConfigurationError for an unknown algorithm, FitExecutionError
//     for an incomplete problem, or the context error
func (g *GonumMinimizer) Minimize(ctx context.Context, p Problem) (*Result, error) {
	if p.Workspace == nil || p.Objective == nil {
		return nil, errs.FitExecution(nil, "minimizer: workspace and objective are required")
	}
	newMethod, simplex, err := methodFactory(p.Algorithm)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	level := min(max(p.StrategyLevel, 0), 2)
	ws := p.Workspace
	free := floating(ws, p.Parameters)

	f0 := p.Objective()
	if !finite(f0) {
		g.logger.Debug("objective not finite at start", "nll", f0)
		return g.result(p, free, level, outcome{status: StatusFailed, aux: AuxMatrixNotAvail, nll: f0}), nil
	}
	if len(free) == 0 {
		return g.result(p, free, level, outcome{nll: f0}), nil
	}

	tr := newTransform(ws, free)
	objective := func(x []float64) float64 {
		tr.apply(x)
		return guard(p.Objective())
	}
	problem := optimize.Problem{Func: objective, Grad: centralGradient(objective)}

	best := tr.internal()
	bestF := objective(best)
	var limitHit bool

	descend := func(method optimize.Method) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		res, err := optimize.Minimize(problem, slices.Clone(best), g.settings(level, len(free)), method)
		if res == nil {
			g.logger.Debug("descent failed", "error", err)
			return false, nil
		}
		if limited(res.Status) {
			limitHit = true
		}
		if finite(res.F) && res.F <= bestF && len(res.X) == len(best) {
			copy(best, res.X)
			bestF = res.F
		}
		if err != nil {
			g.logger.Debug("descent ended with error", "status", res.Status.String(), "error", err)
		}

		return err == nil && converged(res.Status), nil
	}

	ok, err := descend(newMethod())
	if err != nil {
		return nil, err
	}
	if level >= 1 && !ok && !simplex {
		if _, err := descend(&optimize.NelderMead{}); err != nil {
			return nil, err
		}
		if _, err := descend(newMethod()); err != nil {
			return nil, err
		}
	}
	if level == 2 {
		if _, err := descend(newMethod()); err != nil {
			return nil, err
		}
	}

	tr.apply(best)
	vbest := tr.external(best)
	bestF = p.Objective()

	c := g.curvature(p, free, tr, vbest, p.MatrixErrors)

	out := outcome{
		nll:     bestF,
		edm:     c.edm,
		aux:     c.aux,
		quality: c.quality,
		cov:     c.cov,
	}
	edmMax := g.edmMax
	if level == 0 {
		edmMax *= 10
	}
	switch {
	case !finite(bestF) || bestF >= penaltyNLL:
		out.status = StatusFailed
	case c.edm <= edmMax:
		out.status = StatusOK
	case limitHit:
		out.status = StatusCallLimit
	default:
		out.status = StatusEDMAboveMax
	}

	errLo := make([]float64, len(free))
	errHi := make([]float64, len(free))
	if p.AsymmetricErrors && c.quality != CovUnavailable {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		errLo, errHi = g.profileErrors(p, free, tr, vbest, bestF, c.errors, level)
	}
	for i, h := range free {
		ws.SetValue(h, vbest[i])
		ws.SetErrors(h, c.errors[i], errLo[i], errHi[i])
	}

	g.logger.Debug("minimization finished",
		"status", out.status, "aux", out.aux, "edm", out.edm, "nll", out.nll, "level", level)

	return g.result(p, free, level, out), nil
}

type outcome struct {
	status  int
	aux     int
	quality int
	nll     float64
	edm     float64
	cov     *mat.SymDense
}

func (g *GonumMinimizer) result(p Problem, free []model.Handle, level int, o outcome) *Result {
	ws := p.Workspace
	estimates := make(map[string]Estimate, len(p.Parameters))
	order := make([]string, 0, len(p.Parameters))
	for _, h := range p.Parameters {
		par := ws.Param(h)
		estimates[par.Name] = Estimate{
			Value:    par.Value,
			Error:    par.Error,
			ErrorLo:  par.ErrorLo,
			ErrorHi:  par.ErrorHi,
			Lower:    par.Min,
			Upper:    par.Max,
			Constant: par.Constant,
		}
		order = append(order, par.Name)
	}
	covNames := make([]string, len(free))
	for i, h := range free {
		covNames[i] = ws.Name(h)
	}

	return NewResult(ResultParams{
		Status:          o.status,
		AuxStatus:       o.aux,
		CovQuality:      o.quality,
		Estimates:       estimates,
		Order:           order,
		CovarianceNames: covNames,
		Covariance:      o.cov,
		MinNLL:          o.nll,
		EDM:             o.edm,
		Attempts:        1,
		Terminal:        StateDone,
		StrategyLevel:   level,
	})
}
