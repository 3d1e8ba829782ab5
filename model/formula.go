package model

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// ErrorSource supplies the covariance of fitted parameters.
//
// CovarianceOf returns the covariance restricted to names, in that order.
// Rows of names that were not floating in the fit are zero. A nil matrix
// means no covariance is available.
type ErrorSource interface {
	CovarianceOf(names ...string) *mat.SymDense
}

// Formula is a value derived from workspace parameters whose uncertainty is
// propagated through a fit covariance.
type Formula struct {
	name string
	ws   *Workspace
	deps []Handle
	fn   func(values []float64) float64
}

// NewFormula creates a formula evaluating fn over the values of deps.
func NewFormula(ws *Workspace, name string, fn func(values []float64) float64, deps ...Handle) *Formula {
	return &Formula{name: name, ws: ws, deps: deps, fn: fn}
}

func (f *Formula) Name() string {
	return f.name
}

// Dependencies returns the handles the formula reads.
func (f *Formula) Dependencies() []Handle {
	return append([]Handle(nil), f.deps...)
}

func (f *Formula) values() []float64 {
	v := make([]float64, len(f.deps))
	for i, h := range f.deps {
		v[i] = f.ws.Value(h)
	}

	return v
}

// Value evaluates the formula at the current parameter values.
func (f *Formula) Value() float64 {
	return f.fn(f.values())
}

// Error returns sqrt(gᵀ C g), where g is the gradient of the formula with
// respect to its dependencies and C is their covariance in src.
//
// A nil src, or a src without covariance, yields 0.
func (f *Formula) Error(src ErrorSource) float64 {
	if src == nil || len(f.deps) == 0 {
		return 0
	}

	names := make([]string, len(f.deps))
	for i, h := range f.deps {
		names[i] = f.ws.Name(h)
	}
	cov := src.CovarianceOf(names...)
	if cov == nil {
		return 0
	}

	grad := fd.Gradient(nil, f.fn, f.values(), &fd.Settings{Formula: fd.Central})
	g := mat.NewVecDense(len(grad), grad)
	variance := mat.Inner(g, cov, g)
	if !(variance > 0) {
		return 0
	}

	return math.Sqrt(variance)
}
