package fit

import (
	"log/slog"

	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/format"
	"github.com/arloliu/yieldfit/internal/options"
)

// Selector maps fit methods onto strategies sharing one set of
// collaborators.
type Selector struct {
	env Env
}

// SelectorOption configures a Selector.
type SelectorOption = options.Option[*Selector]

// WithMinimizer sets the minimizer of every selected strategy.
func WithMinimizer(m Minimizer) SelectorOption {
	return options.New(func(s *Selector) error {
		if m == nil {
			return errs.Configuration("nil minimizer")
		}
		s.env.Minimizer = m

		return nil
	})
}

// WithLogger sets the logger of every selected strategy.
func WithLogger(logger *slog.Logger) SelectorOption {
	return options.NoError(func(s *Selector) {
		s.env.Logger = logger
	})
}

// WithObserver sets the observer of every selected strategy.
func WithObserver(o Observer) SelectorOption {
	return options.NoError(func(s *Selector) {
		s.env.Observer = o
	})
}

// NewSelector creates a Selector. Unset collaborators default to a
// GonumMinimizer, slog.Default and NopObserver.
func NewSelector(opts ...SelectorOption) (*Selector, error) {
	s := &Selector{}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}
	s.env = s.env.withDefaults()

	return s, nil
}

// Env returns the collaborators handed to selected strategies.
func (s *Selector) Env() Env {
	return s.env
}

// Select returns the strategy implementing method.
//
//	UnbinnedML       -> PlainStrategy
//	BinnedML         -> BinnedStrategy
//	ExtendedML       -> PlainStrategy, extended
//	RobustExtendedML -> RobustStrategy, extended
func (s *Selector) Select(method format.FitMethod) (Strategy, error) {
	switch method {
	case format.UnbinnedML:
		return NewPlainStrategy(false, s.env), nil
	case format.BinnedML:
		return NewBinnedStrategy("", false, s.env), nil
	case format.ExtendedML:
		return NewPlainStrategy(true, s.env), nil
	case format.RobustExtendedML:
		return NewRobustStrategy(true, s.env), nil
	default:
		return nil, errs.Configuration("unknown fit method %s (0x%x)", method, uint8(method))
	}
}

// Auxiliary returns the signal-only strategy.
func (s *Selector) Auxiliary() *AuxiliaryStrategy {
	return NewAuxiliaryStrategy(s.env)
}

// Constrained wraps inner with constraints on names derived from src.
func (s *Selector) Constrained(inner Strategy, src ConstraintSource, names []string) *ConstrainedStrategy {
	return NewConstrainedStrategy(inner, src, names, s.env)
}
