package model

import (
	"math"

	"github.com/arloliu/yieldfit/errs"
)

// Parameter and formula names owned by the yield model.
const (
	FractionName        = "fsig"
	TotalName           = "Ntot"
	SignalYieldName     = "nsig"
	BackgroundYieldName = "nbkg"
)

// YieldSpec gives the initial value and range of the signal fraction.
// Values are clipped to [0, 1]; Min == Max == 0 selects the full range.
type YieldSpec struct {
	Initial float64 `yaml:"initial"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

// YieldModel parameterizes the expected counts by a signal fraction fsig and
// a total count Ntot:
//
//	nsig = fsig * Ntot
//	nbkg = (1 - fsig) * Ntot
//
// Both yields are formulas, so nsig + nbkg equals Ntot by construction and
// their errors follow from the covariance of fsig.
type YieldModel struct {
	ws          *Workspace
	fsig        Handle
	ntot        Handle
	nsig        *Formula
	nbkg        *Formula
	initialized bool
}

// NewYieldModel declares fsig and Ntot in ws. Ntot stays constant at 1 until
// Initialize is called.
func NewYieldModel(ws *Workspace, spec YieldSpec) (*YieldModel, error) {
	if ws == nil {
		return nil, errs.ModelConstruction("yield model: nil workspace")
	}

	lo, hi := clip01(spec.Min), clip01(spec.Max)
	if lo == 0 && hi == 0 {
		hi = 1
	}
	if lo >= hi {
		return nil, errs.ModelConstruction("yield model: fraction range [%g, %g] is empty", lo, hi)
	}

	fsig, err := ws.Declare(FractionName, clip01(spec.Initial), lo, hi)
	if err != nil {
		return nil, err
	}
	ntot, err := ws.Declare(TotalName, 1, 0.2, 5)
	if err != nil {
		return nil, err
	}
	ws.SetConstant(ntot, true)

	y := &YieldModel{ws: ws, fsig: fsig, ntot: ntot}
	y.nsig = NewFormula(ws, SignalYieldName, func(v []float64) float64 { return v[0] * v[1] }, fsig, ntot)
	y.nbkg = NewFormula(ws, BackgroundYieldName, func(v []float64) float64 { return (1 - v[0]) * v[1] }, fsig, ntot)

	return y, nil
}

func clip01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}

	return min(max(v, 0), 1)
}

// Initialize sets Ntot to the observed weighted count with bounds
// [0.2*count, 5*count] and holds it constant.
//
// Returns:
//   - error: DataError when count is not positive
func (y *YieldModel) Initialize(count float64) error {
	if !(count > 0) || math.IsInf(count, 0) {
		return errs.Data("yield model: observed count %g must be positive", count)
	}

	y.ws.SetBounds(y.ntot, 0.2*count, 5*count)
	y.ws.SetValue(y.ntot, count)
	y.ws.SetConstant(y.ntot, true)
	y.initialized = true

	return nil
}

// Initialized reports whether Initialize succeeded.
func (y *YieldModel) Initialized() bool {
	return y.initialized
}

// Fraction returns the handle of fsig.
func (y *YieldModel) Fraction() Handle {
	return y.fsig
}

// Total returns the handle of Ntot.
func (y *YieldModel) Total() Handle {
	return y.ntot
}

// Signal returns the nsig formula.
func (y *YieldModel) Signal() *Formula {
	return y.nsig
}

// Background returns the nbkg formula.
func (y *YieldModel) Background() *Formula {
	return y.nbkg
}

// SignalError propagates the covariance in src to nsig; nil src gives 0.
func (y *YieldModel) SignalError(src ErrorSource) float64 {
	return y.nsig.Error(src)
}

// BackgroundError propagates the covariance in src to nbkg; nil src gives 0.
func (y *YieldModel) BackgroundError(src ErrorSource) float64 {
	return y.nbkg.Error(src)
}

// Formulas returns the yield formulas keyed by name.
func (y *YieldModel) Formulas() map[string]*Formula {
	return map[string]*Formula{
		SignalYieldName:     y.nsig,
		BackgroundYieldName: y.nbkg,
	}
}
