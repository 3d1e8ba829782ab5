package model

import (
	"fmt"
	"math"

	"github.com/arloliu/yieldfit/errs"
)

// ParamSpec describes one parameter to declare.
//
// An empty Name lets the factory derive one from the shape name. Min == Max == 0
// declares an unbounded parameter.
type ParamSpec struct {
	Name     string  `yaml:"name"`
	Value    float64 `yaml:"value"`
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	Constant bool    `yaml:"constant"`
}

// SignalSpec describes the signal shape.
type SignalSpec struct {
	Kind  ShapeKind `yaml:"kind"`
	Mean  ParamSpec `yaml:"mean"`
	Sigma ParamSpec `yaml:"sigma"`
}

// BackgroundSpec describes the background shape. Only the fields of the
// selected Kind are used.
type BackgroundSpec struct {
	Kind         ShapeKind   `yaml:"kind"`
	Slope        ParamSpec   `yaml:"slope"`
	Coefficients []ParamSpec `yaml:"coefficients"`
	Index        ParamSpec   `yaml:"index"`
}

// Factory builds shapes inside a workspace.
type Factory interface {
	CreateSignal(ws *Workspace, spec SignalSpec, name string) (Shape, error)
	CreateBackground(ws *Workspace, spec BackgroundSpec, name string) (Shape, error)
}

// ObservableBinder is implemented by factories whose shapes carry the name of
// the observable they describe. Build binds such factories to Spec.Observable.
type ObservableBinder interface {
	BindObservable(observable string) Factory
}

// StandardFactory builds a Gaussian signal and exponential, polynomial or
// power-law backgrounds. The zero value binds shapes to "x".
type StandardFactory struct {
	observable string
}

var (
	_ Factory          = StandardFactory{}
	_ ObservableBinder = StandardFactory{}
)

// BindObservable returns a copy of f bound to observable.
func (f StandardFactory) BindObservable(observable string) Factory {
	f.observable = observable
	return f
}

func (f StandardFactory) obs() string {
	if f.observable == "" {
		return "x"
	}

	return f.observable
}

// CreateSignal declares the signal parameters and returns the shape.
//
// Returns:
//   - Shape: the signal shape
//   - error: ModelConstructionError for an unsupported kind or a bad parameter
func (f StandardFactory) CreateSignal(ws *Workspace, spec SignalSpec, name string) (Shape, error) {
	if ws == nil {
		return nil, errs.ModelConstruction("signal %q: nil workspace", name)
	}

	switch spec.Kind {
	case KindGaussian:
		mean, err := declare(ws, spec.Mean, name+"_mean")
		if err != nil {
			return nil, err
		}
		sigma, err := declare(ws, spec.Sigma, name+"_sigma")
		if err != nil {
			return nil, err
		}

		return NewGaussian(ws, name, f.obs(), mean, sigma), nil
	default:
		return nil, errs.ModelConstruction("signal %q: unsupported shape kind %s", name, spec.Kind)
	}
}

// CreateBackground declares the background parameters and returns the shape.
func (f StandardFactory) CreateBackground(ws *Workspace, spec BackgroundSpec, name string) (Shape, error) {
	if ws == nil {
		return nil, errs.ModelConstruction("background %q: nil workspace", name)
	}

	switch spec.Kind {
	case KindExponential:
		slope, err := declare(ws, spec.Slope, name+"_slope")
		if err != nil {
			return nil, err
		}

		return NewExponential(ws, name, f.obs(), slope), nil
	case KindPolynomial:
		coeffs := make([]Handle, 0, len(spec.Coefficients))
		for i, c := range spec.Coefficients {
			h, err := declare(ws, c, fmt.Sprintf("%s_c%d", name, i+1))
			if err != nil {
				return nil, err
			}
			coeffs = append(coeffs, h)
		}

		return NewPolynomial(ws, name, f.obs(), coeffs...), nil
	case KindPowerLaw:
		index, err := declare(ws, spec.Index, name+"_index")
		if err != nil {
			return nil, err
		}

		return NewPowerLaw(ws, name, f.obs(), index), nil
	default:
		return nil, errs.ModelConstruction("background %q: unsupported shape kind %s", name, spec.Kind)
	}
}

func declare(ws *Workspace, spec ParamSpec, defaultName string) (Handle, error) {
	name := spec.Name
	if name == "" {
		name = defaultName
	}

	lo, hi := spec.Min, spec.Max
	if lo == 0 && hi == 0 {
		lo, hi = math.Inf(-1), math.Inf(1)
	}

	h, err := ws.Declare(name, spec.Value, lo, hi)
	if err != nil {
		return -1, err
	}
	ws.SetConstant(h, spec.Constant)

	return h, nil
}
