package fit

import (
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/internal/pool"
	"github.com/arloliu/yieldfit/model"
)

// minChunk is the smallest number of events worth a goroutine.
const minChunk = 2048

// Constraint is a Gaussian penalty 0.5·((p-Mean)/Sigma)² on one parameter.
type Constraint struct {
	Name   string
	Handle model.Handle
	Mean   float64
	Sigma  float64
}

// Penalty returns the constraint term at the current workspace value.
func (c Constraint) Penalty(ws *model.Workspace) float64 {
	z := (ws.Value(c.Handle) - c.Mean) / c.Sigma
	return 0.5 * z * z
}

func constraintPenalty(ws *model.Workspace, cs []Constraint) float64 {
	var sum float64
	for _, c := range cs {
		sum += c.Penalty(ws)
	}

	return sum
}

// unbinnedNLL is -Σ w·ln pdf(x) over the events in [lo, hi], with the pdf
// normalized over [lo, hi], plus the extended term ν - W·ln ν and the
// constraint penalties.
type unbinnedNLL struct {
	m           *model.Model
	x           []float64
	w           []float64
	sumW        float64
	lo, hi      float64
	extended    bool
	constraints []Constraint
	workers     int
}

func newUnbinnedNLL(m *model.Model, x, w []float64, lo, hi float64) *unbinnedNLL {
	l := &unbinnedNLL{m: m, x: x, w: w, lo: lo, hi: hi, workers: 1}
	if w == nil {
		l.sumW = float64(len(x))
	} else {
		for _, v := range w {
			l.sumW += v
		}
	}

	return l
}

func (l *unbinnedNLL) Value() float64 {
	e := l.m.PrepareRange(l.lo, l.hi)
	if !e.Valid() {
		return math.Inf(1)
	}

	var sum float64
	if l.workers > 1 && len(l.x) >= 2*minChunk {
		sum = l.parallel(e)
	} else {
		sum = l.partial(e, 0, len(l.x))
	}

	if l.extended {
		nu := l.m.ExpectedEvents()
		if !(nu > 0) {
			return math.Inf(1)
		}
		sum += nu - l.sumW*math.Log(nu)
	}

	return sum + constraintPenalty(l.m.Workspace(), l.constraints)
}

func (l *unbinnedNLL) partial(e model.Evaluation, from, to int) float64 {
	var sum float64
	for i := from; i < to; i++ {
		p := e.PDF(l.x[i])
		if !(p > 0) {
			return math.Inf(1)
		}
		w := 1.0
		if l.w != nil {
			w = l.w[i]
		}
		sum -= w * math.Log(p)
	}

	return sum
}

// parallel splits the events into one contiguous chunk per worker and adds
// the partial sums in chunk order, so the result does not depend on
// scheduling.
func (l *unbinnedNLL) parallel(e model.Evaluation) float64 {
	n := len(l.x)
	workers := min(l.workers, n/minChunk)
	chunk := (n + workers - 1) / workers

	partials, release := pool.GetFloat64Slice(workers)
	defer release()

	var g errgroup.Group
	for k := range workers {
		from, to := k*chunk, min((k+1)*chunk, n)
		g.Go(func() error {
			partials[k] = l.partial(e, from, to)
			return nil
		})
	}
	_ = g.Wait()

	var sum float64
	for _, v := range partials {
		sum += v
	}

	return sum
}

// binnedNLL is the multinomial -Σ n_i·ln p_i, or with the extended term the
// Poisson Σ (ν·p_i - n_i·ln(ν·p_i)), plus the constraint penalties.
type binnedNLL struct {
	m           *model.Model
	hist        *dataset.Binned
	extended    bool
	constraints []Constraint
}

func (l *binnedNLL) Value() float64 {
	e := l.m.PrepareRange(l.hist.Lo, l.hist.Hi)
	if !e.Valid() {
		return math.Inf(1)
	}

	nu := 1.0
	if l.extended {
		nu = l.m.ExpectedEvents()
		if !(nu > 0) {
			return math.Inf(1)
		}
	}

	var sum float64
	for i, n := range l.hist.Counts {
		lo, hi := l.hist.BinRange(i)
		p := e.Probability(lo, hi)
		mu := nu * p
		if l.extended {
			sum += mu
		}
		if n == 0 {
			continue
		}
		if !(mu > 0) {
			return math.Inf(1)
		}
		sum -= n * math.Log(mu)
	}

	return sum + constraintPenalty(l.m.Workspace(), l.constraints)
}
