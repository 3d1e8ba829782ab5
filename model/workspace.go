package model

import (
	"fmt"
	"math"

	"github.com/arloliu/yieldfit/errs"
)

// Handle is a stable index of a parameter inside its Workspace.
type Handle int

// Parameter is the state of one model parameter.
//
// ErrorLo and ErrorHi hold the asymmetric errors when they were computed;
// ErrorLo is negative by convention.
type Parameter struct {
	Name     string
	Value    float64
	Min      float64
	Max      float64
	Error    float64
	ErrorLo  float64
	ErrorHi  float64
	Constant bool
}

// Bounded reports whether both bounds are finite.
func (p Parameter) Bounded() bool {
	return !math.IsInf(p.Min, 0) && !math.IsInf(p.Max, 0)
}

func (p Parameter) String() string {
	state := "floating"
	if p.Constant {
		state = "constant"
	}

	return fmt.Sprintf("%s = %g +/- %g [%g, %g] %s", p.Name, p.Value, p.Error, p.Min, p.Max, state)
}

// Workspace is the arena owning every parameter of one model.
//
// Shapes, yields and formulas refer to parameters by Handle, so a model and
// all of its views share one set of values. A Workspace must not be used by
// two fits at the same time.
type Workspace struct {
	params []Parameter
	index  map[string]Handle
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{index: make(map[string]Handle)}
}

// Declare adds a floating parameter and returns its handle.
//
// The value is clipped into [lo, hi]. Infinite bounds are allowed.
//
// Returns:
//   - Handle: handle of the new parameter
//   - error: ModelConstructionError for an empty or duplicate name, or lo > hi
func (w *Workspace) Declare(name string, value, lo, hi float64) (Handle, error) {
	if name == "" {
		return -1, errs.ModelConstruction("parameter name is empty")
	}
	if _, dup := w.index[name]; dup {
		return -1, errs.ModelConstruction("parameter %q already declared", name)
	}
	if math.IsNaN(value) || math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return -1, errs.ModelConstruction("parameter %q: invalid value %g or bounds [%g, %g]", name, value, lo, hi)
	}

	h := Handle(len(w.params))
	w.params = append(w.params, Parameter{
		Name:  name,
		Value: min(max(value, lo), hi),
		Min:   lo,
		Max:   hi,
	})
	w.index[name] = h

	return h, nil
}

// Lookup returns the handle of the named parameter.
func (w *Workspace) Lookup(name string) (Handle, bool) {
	h, ok := w.index[name]
	return h, ok
}

// Len returns the number of declared parameters.
func (w *Workspace) Len() int {
	return len(w.params)
}

// Param returns a copy of the parameter behind h.
func (w *Workspace) Param(h Handle) Parameter {
	return w.params[h]
}

// Name returns the name of the parameter behind h.
func (w *Workspace) Name(h Handle) string {
	return w.params[h].Name
}

// Value returns the current value of the parameter behind h.
func (w *Workspace) Value(h Handle) float64 {
	return w.params[h].Value
}

// SetValue sets the value without clipping.
func (w *Workspace) SetValue(h Handle, v float64) {
	w.params[h].Value = v
}

// SetBounds replaces the bounds and clips the value into them.
func (w *Workspace) SetBounds(h Handle, lo, hi float64) {
	p := &w.params[h]
	p.Min, p.Max = lo, hi
	if lo <= hi {
		p.Value = min(max(p.Value, lo), hi)
	}
}

// SetConstant fixes or releases the parameter behind h.
func (w *Workspace) SetConstant(h Handle, constant bool) {
	w.params[h].Constant = constant
}

// SetErrors records the symmetric and asymmetric errors of h.
func (w *Workspace) SetErrors(h Handle, symmetric, lo, hi float64) {
	p := &w.params[h]
	p.Error, p.ErrorLo, p.ErrorHi = symmetric, lo, hi
}

// Handles returns every handle in declaration order.
func (w *Workspace) Handles() []Handle {
	hs := make([]Handle, len(w.params))
	for i := range hs {
		hs[i] = Handle(i)
	}

	return hs
}
