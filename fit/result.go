package fit

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Minimizer status codes.
const (
	StatusOK          = 0
	StatusEDMAboveMax = 3
	StatusCallLimit   = 4
	StatusFailed      = 5
)

// Error-matrix status codes.
const (
	AuxOK             = 0
	AuxForcedPosDef   = 1
	AuxMatrixNotAvail = 2
)

// Covariance quality flags; higher is more reliable.
const (
	CovUnavailable  = 0
	CovDiagonal     = 1
	CovForcedPosDef = 2
	CovAccurate     = 3
)

// TerminalState is the final state of a strategy run.
type TerminalState uint8

const (
	StateDone            TerminalState = 1
	StateDoneWithWarning TerminalState = 2
)

func (s TerminalState) String() string {
	switch s {
	case StateDone:
		return "Done"
	case StateDoneWithWarning:
		return "DoneWithWarning"
	default:
		return "Unknown"
	}
}

// Estimate is the fitted state of one parameter.
type Estimate struct {
	Value    float64
	Error    float64
	ErrorLo  float64
	ErrorHi  float64
	Lower    float64
	Upper    float64
	Constant bool
}

// ResultParams carries the fields of a Result. It is the only way to build a
// Result and the way a Result is taken apart for persistence.
type ResultParams struct {
	Status     int
	AuxStatus  int
	CovQuality int
	Estimates  map[string]Estimate
	// Order lists the estimate names in report order; unset names are
	// appended sorted.
	Order           []string
	CovarianceNames []string
	Covariance      *mat.SymDense
	MinNLL          float64
	EDM             float64
	Attempts        int
	Terminal        TerminalState
	StrategyLevel   int
}

// Result is the immutable outcome of a fit. All accessors return copies.
type Result struct {
	status        int
	auxStatus     int
	covQuality    int
	estimates     map[string]Estimate
	order         []string
	covNames      []string
	covIndex      map[string]int
	cov           *mat.SymDense
	minNLL        float64
	edm           float64
	attempts      int
	terminal      TerminalState
	strategyLevel int
}

// NewResult builds a Result from p, copying every reference.
//
// A covariance whose dimension does not match CovarianceNames is dropped.
func NewResult(p ResultParams) *Result {
	r := &Result{
		status:        p.Status,
		auxStatus:     p.AuxStatus,
		covQuality:    p.CovQuality,
		estimates:     maps.Clone(p.Estimates),
		minNLL:        p.MinNLL,
		edm:           p.EDM,
		attempts:      p.Attempts,
		terminal:      p.Terminal,
		strategyLevel: p.StrategyLevel,
	}
	if r.estimates == nil {
		r.estimates = map[string]Estimate{}
	}

	seen := make(map[string]bool, len(r.estimates))
	for _, name := range p.Order {
		if _, ok := r.estimates[name]; ok && !seen[name] {
			r.order = append(r.order, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(r.estimates))
	for name := range r.estimates {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	r.order = append(r.order, rest...)

	if p.Covariance != nil && len(p.CovarianceNames) > 0 && p.Covariance.SymmetricDim() == len(p.CovarianceNames) {
		r.covNames = slices.Clone(p.CovarianceNames)
		r.covIndex = make(map[string]int, len(r.covNames))
		for i, n := range r.covNames {
			r.covIndex[n] = i
		}
		r.cov = cloneSym(p.Covariance)
	}

	return r
}

func cloneSym(s *mat.SymDense) *mat.SymDense {
	out := mat.NewSymDense(s.SymmetricDim(), nil)
	out.CopySym(s)

	return out
}

// Params returns a deep copy of the fields of r.
func (r *Result) Params() ResultParams {
	p := ResultParams{
		Status:          r.status,
		AuxStatus:       r.auxStatus,
		CovQuality:      r.covQuality,
		Estimates:       maps.Clone(r.estimates),
		Order:           slices.Clone(r.order),
		CovarianceNames: slices.Clone(r.covNames),
		MinNLL:          r.minNLL,
		EDM:             r.edm,
		Attempts:        r.attempts,
		Terminal:        r.terminal,
		StrategyLevel:   r.strategyLevel,
	}
	if r.cov != nil {
		p.Covariance = cloneSym(r.cov)
	}

	return p
}

// withOutcome returns a copy of r carrying the attempt count and terminal
// state of the strategy that produced it.
func (r *Result) withOutcome(attempts int, terminal TerminalState) *Result {
	out := *r
	out.attempts = attempts
	out.terminal = terminal

	return &out
}

// Status returns the minimizer status code; 0 means success.
func (r *Result) Status() int {
	return r.status
}

// AuxStatus returns the error-matrix status code; 0 means success.
func (r *Result) AuxStatus() int {
	return r.auxStatus
}

// CovQuality returns the covariance quality flag.
func (r *Result) CovQuality() int {
	return r.covQuality
}

// Converged reports whether both status codes are 0.
func (r *Result) Converged() bool {
	return r.status == StatusOK && r.auxStatus == AuxOK
}

func (r *Result) MinNLL() float64 {
	return r.minNLL
}

// EDM returns the estimated distance to the minimum.
func (r *Result) EDM() float64 {
	return r.edm
}

// Attempts returns the number of minimizer executions behind r.
func (r *Result) Attempts() int {
	return r.attempts
}

func (r *Result) Terminal() TerminalState {
	return r.terminal
}

// StrategyLevel returns the minimizer robustness level of the final attempt.
func (r *Result) StrategyLevel() int {
	return r.strategyLevel
}

// Names returns the parameter names in report order.
func (r *Result) Names() []string {
	return slices.Clone(r.order)
}

// Estimate returns the estimate of the named parameter.
func (r *Result) Estimate(name string) (Estimate, bool) {
	e, ok := r.estimates[name]
	return e, ok
}

// Value returns the fitted value of name, or 0 when unknown.
func (r *Result) Value(name string) float64 {
	return r.estimates[name].Value
}

// Error returns the symmetric error of name, or 0 when unknown.
func (r *Result) Error(name string) float64 {
	return r.estimates[name].Error
}

// FloatingNames returns the names covered by the covariance matrix.
func (r *Result) FloatingNames() []string {
	return slices.Clone(r.covNames)
}

// Covariance returns a copy of the covariance matrix over FloatingNames, or
// nil when none is available.
func (r *Result) Covariance() *mat.SymDense {
	if r.cov == nil {
		return nil
	}

	return cloneSym(r.cov)
}

// CovarianceOf returns the covariance restricted to names. Names outside
// FloatingNames get zero rows. It returns nil when r has no covariance.
func (r *Result) CovarianceOf(names ...string) *mat.SymDense {
	if r.cov == nil || len(names) == 0 {
		return nil
	}

	out := mat.NewSymDense(len(names), nil)
	for i, a := range names {
		ia, ok := r.covIndex[a]
		if !ok {
			continue
		}
		for j := i; j < len(names); j++ {
			if ib, ok := r.covIndex[names[j]]; ok {
				out.SetSym(i, j, r.cov.At(ia, ib))
			}
		}
	}

	return out
}

func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status=%d aux=%d covQual=%d nll=%.6g edm=%.3g attempts=%d state=%s",
		r.status, r.auxStatus, r.covQuality, r.minNLL, r.edm, r.attempts, r.terminal)
	for _, name := range r.order {
		e := r.estimates[name]
		fmt.Fprintf(&b, "\n  %-16s %12.6g +/- %-10.4g", name, e.Value, e.Error)
		if e.Constant {
			b.WriteString(" (const)")
		}
	}

	return b.String()
}
