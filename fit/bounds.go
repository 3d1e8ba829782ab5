package fit

import (
	"fmt"
	"strings"

	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/model"
)

// BoundSide selects the lower or upper limit of a parameter.
type BoundSide uint8

const (
	LowerBound BoundSide = iota + 1
	UpperBound
)

func (s BoundSide) String() string {
	switch s {
	case LowerBound:
		return "lower"
	case UpperBound:
		return "upper"
	default:
		return "unknown"
	}
}

// Adjustment records one bound change made between robust attempts.
type Adjustment struct {
	Name string
	Side BoundSide
	Old  float64
	New  float64
}

func (a Adjustment) String() string {
	return fmt.Sprintf("%s %s bound %g -> %g", a.Name, a.Side, a.Old, a.New)
}

func containsAny(name string, subs []string) bool {
	for _, s := range subs {
		if s != "" && strings.Contains(name, s) {
			return true
		}
	}

	return false
}

// AdjustBounds widens the limits of floating parameters whose fitted value
// sits against a bound.
//
// With v the fitted value, e its error, k the limit-check factor and [lo, hi]
// the bounds, the upper bound is violated when v+k·e > hi, or v > 0 and
// 1.2·v > hi, or v < 0 and 0.8·v > hi; the lower bound mirrors this with
// v+k·e < lo, v > 0 and 0.8·v < lo, or v < 0 and 1.2·v < lo.
//
// A parameter matching a skip list keeps its bound. One matching an allow
// list gets a new bound: an upper bound is doubled for names containing "n"
// and set to v+e·factor otherwise; a lower bound is set to v+e·factor unless
// that would reach the upper bound. Parameters on neither list keep their
// bounds.
//
// Parameters:
//   - ws: workspace holding the parameters
//   - params: handles to inspect; constant parameters are ignored
//   - res: result providing v and e; missing names fall back to ws
//   - cfg: factors and name lists
//
// Returns:
//   - []Adjustment: the bound changes applied to ws, in params order
func AdjustBounds(ws *model.Workspace, params []model.Handle, res *Result, cfg config.FitConfiguration) []Adjustment {
	var out []Adjustment
	k := cfg.LimitCheckFactor
	factor := cfg.ParameterExpansionFactor

	for _, h := range params {
		p := ws.Param(h)
		if p.Constant {
			continue
		}
		v, e := p.Value, p.Error
		if res != nil {
			if est, ok := res.Estimate(p.Name); ok {
				v, e = est.Value, est.Error
			}
		}

		upper := v+k*e > p.Max || (v > 0 && 1.2*v > p.Max) || (v < 0 && 0.8*v > p.Max)
		if upper && !containsAny(p.Name, cfg.SkipUpperLimitParams) && containsAny(p.Name, cfg.AllowUpperExpansionParams) {
			hi := v + e*factor
			if strings.Contains(p.Name, "n") {
				hi = p.Max * 2
			}
			if hi != p.Max {
				out = append(out, Adjustment{Name: p.Name, Side: UpperBound, Old: p.Max, New: hi})
				ws.SetBounds(h, p.Min, hi)
				p.Max = hi
			}
		}

		lower := v+k*e < p.Min || (v > 0 && 0.8*v < p.Min) || (v < 0 && 1.2*v < p.Min)
		if lower && !containsAny(p.Name, cfg.SkipLowerLimitParams) && containsAny(p.Name, cfg.AllowLowerExpansionParams) {
			lo := v + e*factor
			if lo != p.Min && lo < p.Max {
				out = append(out, Adjustment{Name: p.Name, Side: LowerBound, Old: p.Min, New: lo})
				ws.SetBounds(h, lo, p.Max)
			}
		}
	}

	return out
}
