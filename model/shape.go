package model

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/integrate/quad"
)

// ShapeKind identifies a shape family.
type ShapeKind int

const (
	// KindGaussian is exp(-((x-mean)/sigma)²/2).
	KindGaussian ShapeKind = iota + 1
	// KindExponential is e^(slope*x).
	KindExponential
	// KindPolynomial is 1 + c1*x + c2*x² + ...
	KindPolynomial
	// KindPowerLaw is x^index for x > 0.
	KindPowerLaw
)

var shapeKindNames = map[ShapeKind]string{
	KindGaussian:    "gaussian",
	KindExponential: "exponential",
	KindPolynomial:  "polynomial",
	KindPowerLaw:    "powerlaw",
}

func (k ShapeKind) String() string {
	if name, ok := shapeKindNames[k]; ok {
		return name
	}

	return "unknown"
}

// ShapeKindFromString returns the kind for a case-insensitive name, or 0.
func ShapeKindFromString(name string) ShapeKind {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range shapeKindNames {
		if n == name {
			return k
		}
	}

	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (k ShapeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode to
// 0 and are rejected by the factory.
func (k *ShapeKind) UnmarshalText(text []byte) error {
	*k = ShapeKindFromString(string(text))
	return nil
}

// Shape is an unnormalized density over one observable.
type Shape interface {
	Name() string
	Kind() ShapeKind
	// Observable is the name of the dataset column the shape describes.
	Observable() string
	// Density returns the unnormalized density at x; it may be negative for
	// shapes such as polynomials.
	Density(x float64) float64
	// Integral returns the integral of Density over [lo, hi].
	Integral(lo, hi float64) float64
	// Parameters returns the handles the shape depends on.
	Parameters() []Handle
}

// integrationPoints is the Gauss-Legendre order used for shapes without a
// closed-form integral.
const integrationPoints = 64

// IntegrateDensity integrates s numerically over [lo, hi].
func IntegrateDensity(s Shape, lo, hi float64) float64 {
	if !(hi > lo) {
		return 0
	}

	return quad.Fixed(s.Density, lo, hi, integrationPoints, nil, 0)
}

type baseShape struct {
	name       string
	observable string
	ws         *Workspace
}

func (b *baseShape) Name() string {
	return b.name
}

func (b *baseShape) Observable() string {
	return b.observable
}

// Gaussian is a normal density with a mean and a width parameter.
type Gaussian struct {
	baseShape
	mean, sigma Handle
}

var _ Shape = (*Gaussian)(nil)

func NewGaussian(ws *Workspace, name, observable string, mean, sigma Handle) *Gaussian {
	return &Gaussian{baseShape: baseShape{name, observable, ws}, mean: mean, sigma: sigma}
}

func (g *Gaussian) Kind() ShapeKind {
	return KindGaussian
}

func (g *Gaussian) Density(x float64) float64 {
	s := g.ws.Value(g.sigma)
	if s <= 0 {
		return 0
	}
	z := (x - g.ws.Value(g.mean)) / s

	return math.Exp(-0.5 * z * z)
}

func (g *Gaussian) Integral(lo, hi float64) float64 {
	s := g.ws.Value(g.sigma)
	if s <= 0 || !(hi > lo) {
		return 0
	}
	m := g.ws.Value(g.mean)
	k := s * math.Sqrt2

	return s * math.Sqrt(math.Pi/2) * (math.Erf((hi-m)/k) - math.Erf((lo-m)/k))
}

func (g *Gaussian) Parameters() []Handle {
	return []Handle{g.mean, g.sigma}
}

// Exponential is e^(slope*x).
type Exponential struct {
	baseShape
	slope Handle
}

var _ Shape = (*Exponential)(nil)

func NewExponential(ws *Workspace, name, observable string, slope Handle) *Exponential {
	return &Exponential{baseShape: baseShape{name, observable, ws}, slope: slope}
}

func (e *Exponential) Kind() ShapeKind {
	return KindExponential
}

func (e *Exponential) Density(x float64) float64 {
	return math.Exp(e.ws.Value(e.slope) * x)
}

func (e *Exponential) Integral(lo, hi float64) float64 {
	if !(hi > lo) {
		return 0
	}
	c := e.ws.Value(e.slope)
	if math.Abs(c*(hi-lo)) < 1e-10 {
		return (hi - lo) * math.Exp(c*lo)
	}

	return math.Exp(c*lo) * math.Expm1(c*(hi-lo)) / c
}

func (e *Exponential) Parameters() []Handle {
	return []Handle{e.slope}
}

// Polynomial is 1 + c1*x + c2*x² + ... with the constant term fixed so the
// coefficients stay identifiable after normalization.
type Polynomial struct {
	baseShape
	coeffs []Handle
}

var _ Shape = (*Polynomial)(nil)

func NewPolynomial(ws *Workspace, name, observable string, coeffs ...Handle) *Polynomial {
	return &Polynomial{baseShape: baseShape{name, observable, ws}, coeffs: coeffs}
}

func (p *Polynomial) Kind() ShapeKind {
	return KindPolynomial
}

func (p *Polynomial) Density(x float64) float64 {
	// Horner from the highest order down.
	v := 0.0
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		v = (v + p.ws.Value(p.coeffs[i])) * x
	}

	return 1 + v
}

func (p *Polynomial) Integral(lo, hi float64) float64 {
	if !(hi > lo) {
		return 0
	}

	total := hi - lo
	for i, h := range p.coeffs {
		n := float64(i + 2)
		total += p.ws.Value(h) * (math.Pow(hi, n) - math.Pow(lo, n)) / n
	}

	return total
}

func (p *Polynomial) Parameters() []Handle {
	return append([]Handle(nil), p.coeffs...)
}

// PowerLaw is x^index on x > 0 and zero elsewhere.
type PowerLaw struct {
	baseShape
	index Handle
}

var _ Shape = (*PowerLaw)(nil)

func NewPowerLaw(ws *Workspace, name, observable string, index Handle) *PowerLaw {
	return &PowerLaw{baseShape: baseShape{name, observable, ws}, index: index}
}

func (p *PowerLaw) Kind() ShapeKind {
	return KindPowerLaw
}

func (p *PowerLaw) Density(x float64) float64 {
	if x <= 0 {
		return 0
	}

	return math.Pow(x, p.ws.Value(p.index))
}

// Integral is exact on a positive range and numeric when the range touches
// zero, where the closed form diverges for negative indices.
func (p *PowerLaw) Integral(lo, hi float64) float64 {
	if !(hi > lo) || hi <= 0 {
		return 0
	}
	if lo <= 0 {
		return IntegrateDensity(p, 0, hi)
	}

	b := p.ws.Value(p.index)
	if math.Abs(b+1) < 1e-12 {
		return math.Log(hi / lo)
	}

	return (math.Pow(hi, b+1) - math.Pow(lo, b+1)) / (b + 1)
}

func (p *PowerLaw) Parameters() []Handle {
	return []Handle{p.index}
}
