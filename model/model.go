// Package model describes signal-plus-background densities and their
// parameters.
//
// Every parameter of a model lives in one Workspace and is referenced by a
// Handle. A Model combines a signal Shape, a background Shape and a
// YieldModel into the total density
//
//	pdf(x) = fsig * S(x)/∫S + (1 - fsig) * B(x)/∫B
//
// normalized over the model range. Models are built by a Factory:
//
//	m, err := model.Build(model.StandardFactory{}, spec)
//	m.Yields().Initialize(data.SumOfWeights())
package model

import (
	"math"

	"github.com/arloliu/yieldfit/errs"
)

// Spec is everything needed to build a Model.
type Spec struct {
	Name       string         `yaml:"name"`
	Observable string         `yaml:"observable"`
	RangeMin   float64        `yaml:"range_min"`
	RangeMax   float64        `yaml:"range_max"`
	Signal     SignalSpec     `yaml:"signal"`
	Background BackgroundSpec `yaml:"background"`
	Yield      YieldSpec      `yaml:"yield"`
}

// Model is a signal shape plus a background shape mixed by a YieldModel.
type Model struct {
	name       string
	ws         *Workspace
	observable string
	lo, hi     float64
	signal     Shape
	background Shape
	yields     *YieldModel
	signalOnly bool
}

// Build creates a fresh workspace, asks factory for both shapes and composes
// the model.
//
// Returns:
//   - *Model: the composed model
//   - error: ModelConstructionError when the factory fails or returns no
//     shape, ValidationError when the pieces do not compose
func Build(factory Factory, spec Spec) (*Model, error) {
	if factory == nil {
		return nil, errs.ModelConstruction("model %q: nil factory", spec.Name)
	}
	if b, ok := factory.(ObservableBinder); ok && spec.Observable != "" {
		factory = b.BindObservable(spec.Observable)
	}

	ws := NewWorkspace()
	signal, err := factory.CreateSignal(ws, spec.Signal, "sig")
	if err != nil {
		return nil, err
	}
	if signal == nil {
		return nil, errs.ModelConstruction("model %q: factory returned no signal shape", spec.Name)
	}

	background, err := factory.CreateBackground(ws, spec.Background, "bkg")
	if err != nil {
		return nil, err
	}
	if background == nil {
		return nil, errs.ModelConstruction("model %q: factory returned no background shape", spec.Name)
	}

	yields, err := NewYieldModel(ws, spec.Yield)
	if err != nil {
		return nil, err
	}

	return Compose(spec.Name, ws, spec.Observable, spec.RangeMin, spec.RangeMax, signal, background, yields)
}

// Compose assembles a model from pieces already declared in ws.
//
// Returns:
//   - error: ValidationError listing every missing or inconsistent piece
func Compose(name string, ws *Workspace, observable string, lo, hi float64,
	signal, background Shape, yields *YieldModel,
) (*Model, error) {
	var v errs.ValidationError
	if ws == nil {
		v.Add("model %q: missing workspace", name)
	}
	if signal == nil {
		v.Add("model %q: missing signal shape", name)
	}
	if background == nil {
		v.Add("model %q: missing background shape", name)
	}
	if yields == nil {
		v.Add("model %q: missing yield model", name)
	} else if ws != nil && yields.ws != ws {
		v.Add("model %q: yield model belongs to another workspace", name)
	}
	if observable == "" {
		v.Add("model %q: missing observable", name)
	}
	if !(hi > lo) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		v.Add("model %q: invalid range [%g, %g]", name, lo, hi)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	return &Model{
		name:       name,
		ws:         ws,
		observable: observable,
		lo:         lo,
		hi:         hi,
		signal:     signal,
		background: background,
		yields:     yields,
	}, nil
}

// SignalModel returns a view of m containing only the signal shape. The view
// shares the workspace, so fitting it updates the signal parameters of m.
func (m *Model) SignalModel() *Model {
	view := *m
	view.signalOnly = true

	return &view
}

// WithRange returns a view of m normalized over [lo, hi]. The view shares the
// workspace; fitting it makes fsig the signal fraction inside [lo, hi].
//
// Returns:
//   - *Model: the range-scoped view
//   - error: ConfigurationError for an empty or infinite range
func (m *Model) WithRange(lo, hi float64) (*Model, error) {
	if !(hi > lo) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, errs.Configuration("model %q: invalid range [%g, %g]", m.name, lo, hi)
	}
	view := *m
	view.lo, view.hi = lo, hi

	return &view, nil
}

// IsSignalOnly reports whether m is a signal-only view.
func (m *Model) IsSignalOnly() bool {
	return m.signalOnly
}

func (m *Model) Name() string {
	return m.name
}

func (m *Model) Workspace() *Workspace {
	return m.ws
}

// Observable returns the name of the fitted dataset column.
func (m *Model) Observable() string {
	return m.observable
}

// Range returns the normalization range.
func (m *Model) Range() (lo, hi float64) {
	return m.lo, m.hi
}

func (m *Model) Signal() Shape {
	return m.signal
}

// Background returns the background shape, or nil for a signal-only view.
func (m *Model) Background() Shape {
	if m.signalOnly {
		return nil
	}

	return m.background
}

func (m *Model) Yields() *YieldModel {
	return m.yields
}

// Parameters returns the handles the model depends on: signal parameters,
// then background parameters, fsig and Ntot. A signal-only view returns the
// signal parameters only.
func (m *Model) Parameters() []Handle {
	hs := append([]Handle(nil), m.signal.Parameters()...)
	if m.signalOnly {
		return hs
	}
	hs = append(hs, m.background.Parameters()...)

	return append(hs, m.yields.Fraction(), m.yields.Total())
}

// FloatingParameters returns the non-constant subset of Parameters.
func (m *Model) FloatingParameters() []Handle {
	all := m.Parameters()
	out := all[:0]
	for _, h := range all {
		if !m.ws.Param(h).Constant {
			out = append(out, h)
		}
	}

	return out
}

// ExpectedEvents returns the current value of Ntot.
func (m *Model) ExpectedEvents() float64 {
	return m.ws.Value(m.yields.Total())
}

// Prepare freezes the normalization integrals over the model range at the
// current parameter values. The result is valid until the next parameter
// change.
func (m *Model) Prepare() Evaluation {
	return m.PrepareRange(m.lo, m.hi)
}

// PrepareRange is Prepare with each shape normalized over [lo, hi], so fsig
// is the signal fraction inside that range.
func (m *Model) PrepareRange(lo, hi float64) Evaluation {
	e := Evaluation{
		signal:  m.signal,
		sigNorm: m.signal.Integral(lo, hi),
		fsig:    1,
	}
	if !m.signalOnly {
		e.background = m.background
		e.bkgNorm = m.background.Integral(lo, hi)
		e.fsig = m.ws.Value(m.yields.Fraction())
	}

	return e
}

// Evaluation is a model with frozen normalization.
type Evaluation struct {
	signal     Shape
	background Shape
	sigNorm    float64
	bkgNorm    float64
	fsig       float64
}

// Valid reports whether every normalization integral is positive and finite.
func (e Evaluation) Valid() bool {
	ok := e.sigNorm > 0 && !math.IsInf(e.sigNorm, 0)
	if e.background != nil && e.fsig < 1 {
		ok = ok && e.bkgNorm > 0 && !math.IsInf(e.bkgNorm, 0)
	}

	return ok
}

// PDF returns the normalized total density at x.
func (e Evaluation) PDF(x float64) float64 {
	v := 0.0
	if e.fsig > 0 {
		v = e.fsig * e.signal.Density(x) / e.sigNorm
	}
	if e.background != nil && e.fsig < 1 {
		v += (1 - e.fsig) * e.background.Density(x) / e.bkgNorm
	}

	return v
}

// Probability returns the normalized probability of [a, b].
func (e Evaluation) Probability(a, b float64) float64 {
	v := 0.0
	if e.fsig > 0 {
		v = e.fsig * e.signal.Integral(a, b) / e.sigNorm
	}
	if e.background != nil && e.fsig < 1 {
		v += (1 - e.fsig) * e.background.Integral(a, b) / e.bkgNorm
	}

	return v
}
