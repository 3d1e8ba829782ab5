package fit

import (
	"math"

	"github.com/arloliu/yieldfit/model"
)

type boundKind uint8

const (
	boundNone boundKind = iota
	boundBoth
	boundLower
	boundUpper
)

// edgeMargin keeps a start value off an exact bound, where the sine
// transform has zero slope.
const edgeMargin = 1e-3

// paramTransform maps the bounded external parameters of a workspace onto
// the unbounded internal coordinates seen by the optimizer.
//
// Double bounded: ext = lo + (hi-lo)(sin x + 1)/2.
// Lower bounded:  ext = lo - 1 + sqrt(x² + 1).
// Upper bounded:  ext = hi + 1 - sqrt(x² + 1).
type paramTransform struct {
	ws      *model.Workspace
	handles []model.Handle
	lo, hi  []float64
	kinds   []boundKind
}

func newTransform(ws *model.Workspace, handles []model.Handle) *paramTransform {
	t := &paramTransform{
		ws:      ws,
		handles: handles,
		lo:      make([]float64, len(handles)),
		hi:      make([]float64, len(handles)),
		kinds:   make([]boundKind, len(handles)),
	}
	for i, h := range handles {
		p := ws.Param(h)
		t.lo[i], t.hi[i] = p.Min, p.Max
		loSet, hiSet := !math.IsInf(p.Min, -1), !math.IsInf(p.Max, 1)
		switch {
		case loSet && hiSet:
			t.kinds[i] = boundBoth
		case loSet:
			t.kinds[i] = boundLower
		case hiSet:
			t.kinds[i] = boundUpper
		}
	}

	return t
}

func (t *paramTransform) toExternal(i int, x float64) float64 {
	switch t.kinds[i] {
	case boundBoth:
		return t.lo[i] + (t.hi[i]-t.lo[i])*(math.Sin(x)+1)/2
	case boundLower:
		return t.lo[i] - 1 + math.Sqrt(x*x+1)
	case boundUpper:
		return t.hi[i] + 1 - math.Sqrt(x*x+1)
	default:
		return x
	}
}

func (t *paramTransform) toInternal(i int, v float64) float64 {
	switch t.kinds[i] {
	case boundBoth:
		width := t.hi[i] - t.lo[i]
		if width <= 0 {
			return 0
		}
		arg := 2*(v-t.lo[i])/width - 1
		arg = min(max(arg, -1+edgeMargin), 1-edgeMargin)

		return math.Asin(arg)
	case boundLower:
		d := max(v-t.lo[i], 0) + 1
		return math.Sqrt(d*d - 1)
	case boundUpper:
		d := max(t.hi[i]-v, 0) + 1
		return math.Sqrt(d*d - 1)
	default:
		return v
	}
}

// internal returns the internal coordinates of the current values.
func (t *paramTransform) internal() []float64 {
	x := make([]float64, len(t.handles))
	for i, h := range t.handles {
		x[i] = t.toInternal(i, t.ws.Value(h))
	}

	return x
}

// apply writes the external image of x into the workspace.
func (t *paramTransform) apply(x []float64) {
	for i, h := range t.handles {
		t.ws.SetValue(h, t.toExternal(i, x[i]))
	}
}

// external returns the external image of x without touching the workspace.
func (t *paramTransform) external(x []float64) []float64 {
	v := make([]float64, len(x))
	for i := range x {
		v[i] = t.toExternal(i, x[i])
	}

	return v
}

// clamp returns v limited to the bounds of parameter i.
func (t *paramTransform) clamp(i int, v float64) float64 {
	return min(max(v, t.lo[i]), t.hi[i])
}
