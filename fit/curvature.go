package fit

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/arloliu/yieldfit/model"
)

type curvatureInfo struct {
	cov     *mat.SymDense
	errors  []float64
	edm     float64
	aux     int
	quality int
}

// curvature estimates the covariance at vbest.
//
// The Hessian is taken in coordinates u_i = (v_i - vbest_i) / s_i. A first
// pass with heuristic scales yields rough errors, which become the scales
// of a second pass, so both the steps and the matrix entries are of order
// one whatever the parameter units.
func (g *GonumMinimizer) curvature(p Problem, free []model.Handle, tr *paramTransform, vbest []float64, matrix bool) curvatureInfo {
	n := len(free)
	ws := p.Workspace
	defer func() {
		for i, h := range free {
			ws.SetValue(h, vbest[i])
		}
	}()

	scale := make([]float64, n)
	for i := range free {
		s := max(0.01*math.Abs(vbest[i]), 1e-8)
		if tr.kinds[i] == boundBoth {
			s = max(s, 1e-3*(tr.hi[i]-tr.lo[i]))
		}
		scale[i] = s
	}
	scaled := func(u []float64) float64 {
		for i, h := range free {
			ws.SetValue(h, tr.clamp(i, vbest[i]+u[i]*scale[i]))
		}
		return guard(p.Objective())
	}
	zero := make([]float64, n)
	hessian := func(step float64) *mat.SymDense {
		h := mat.NewSymDense(n, nil)
		fd.Hessian(h, scaled, zero, &fd.Settings{Formula: fd.Central, Step: step})
		return h
	}

	h := hessian(0.1)
	refined := true
	for i := range n {
		if d := h.At(i, i); d > 0 && finite(d) {
			continue
		}
		refined = false
	}
	if refined {
		for i := range n {
			scale[i] /= math.Sqrt(h.At(i, i))
		}
		h = hessian(0.25)
	}

	grad := fd.Gradient(make([]float64, n), scaled, zero, &fd.Settings{Formula: fd.Central, Step: 1e-2})

	info := curvatureInfo{errors: make([]float64, n), aux: AuxOK, quality: CovAccurate}
	cu := mat.NewSymDense(n, nil)

	if !matrix {
		info.quality = CovDiagonal
		for i := range n {
			d := h.At(i, i)
			if !(d > 0) || !finite(d) {
				info.aux, info.quality = AuxMatrixNotAvail, CovUnavailable
				break
			}
			cu.SetSym(i, i, 1/d)
		}
	} else {
		var chol mat.Cholesky
		if !chol.Factorize(h) || chol.InverseTo(cu) != nil {
			info.aux, info.quality = AuxMatrixNotAvail, CovUnavailable
			if shifted := forcePositiveDefinite(h); shifted != nil && chol.Factorize(shifted) && chol.InverseTo(cu) == nil {
				info.aux, info.quality = AuxForcedPosDef, CovForcedPosDef
			}
		}
	}

	if info.quality == CovUnavailable {
		info.edm = 0.5 * floats.Dot(grad, grad)
		for i := range n {
			if d := h.At(i, i); d > 0 && finite(d) {
				info.errors[i] = scale[i] / math.Sqrt(d)
			}
		}

		return info
	}

	gv := mat.NewVecDense(n, grad)
	info.edm = 0.5 * mat.Inner(gv, cu, gv)

	cov := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, cu.At(i, j)*scale[i]*scale[j])
		}
		info.errors[i] = math.Sqrt(math.Max(cov.At(i, i), 0))
	}
	info.cov = cov

	return info
}

// forcePositiveDefinite shifts the diagonal of h by just over its most
// negative eigenvalue. It returns nil when the eigen decomposition fails.
func forcePositiveDefinite(h *mat.SymDense) *mat.SymDense {
	var es mat.EigenSym
	if !es.Factorize(h, false) {
		return nil
	}
	vals := es.Values(nil)
	minEig := floats.Min(vals)
	maxAbs := math.Max(math.Abs(floats.Max(vals)), math.Abs(minEig))
	if maxAbs == 0 || !finite(maxAbs) {
		return nil
	}
	shift := 1e-3 * maxAbs
	if minEig < 0 {
		shift -= minEig
	}

	out := mat.NewSymDense(h.SymmetricDim(), nil)
	out.CopySym(h)
	for i := range h.SymmetricDim() {
		out.SetSym(i, i, out.At(i, i)+shift)
	}

	return out
}

// profileErrors finds, for every floating parameter, the displacements at
// which the profile likelihood rises by 0.5 above the minimum. The search
// starts at the parabolic error and rescales the step assuming a locally
// parabolic profile.
func (g *GonumMinimizer) profileErrors(p Problem, free []model.Handle, tr *paramTransform, vbest []float64, fmin float64, sigma []float64, level int) (lo, hi []float64) {
	n := len(free)
	lo = make([]float64, n)
	hi = make([]float64, n)

	for i := range n {
		if !(sigma[i] > 0) {
			continue
		}
		for _, dir := range []float64{1, -1} {
			t := dir * sigma[i]
			for range 6 {
				target := tr.clamp(i, vbest[i]+t)
				atBound := target != vbest[i]+t
				t = target - vbest[i]

				rise := g.profile(p, free, i, target, vbest, level) - fmin
				if atBound || math.Abs(rise-0.5) < 0.01 {
					break
				}
				if !(rise > 0) {
					t *= 2
					continue
				}
				t *= math.Sqrt(0.5 / rise)
			}
			if dir > 0 {
				hi[i] = t
			} else {
				lo[i] = t
			}
		}
	}

	return lo, hi
}

// profile minimizes the objective over every floating parameter but the
// fixed one, which is pinned at value.
func (g *GonumMinimizer) profile(p Problem, free []model.Handle, fixed int, value float64, start []float64, level int) float64 {
	ws := p.Workspace
	for i, h := range free {
		ws.SetValue(h, start[i])
	}
	ws.SetValue(free[fixed], value)

	others := slices.Delete(slices.Clone(free), fixed, fixed+1)
	if len(others) == 0 {
		return guard(p.Objective())
	}

	tr := newTransform(ws, others)
	objective := func(x []float64) float64 {
		tr.apply(x)
		return guard(p.Objective())
	}
	x0 := tr.internal()
	best := objective(x0)
	res, _ := optimize.Minimize(optimize.Problem{Func: objective, Grad: centralGradient(objective)},
		x0, g.settings(level, len(others)), &optimize.BFGS{})
	if res != nil && finite(res.F) && res.F < best {
		best = res.F
	}

	return best
}
