package fit

import (
	"context"
	"time"

	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/model"
)

// RobustStrategy refits until the minimizer converges or the retry budget
// is spent.
//
// Before every retry it widens the bounds of parameters stuck at a limit
// (when enabled) and lowers the minimizer strategy level by one, floored at
// 0. At most cfg.MaxRetries retries follow the initial attempt, and the
// most recent result is returned whether or not it converged.
type RobustStrategy struct {
	Extended    bool
	env         Env
	constraints []Constraint
}

// NewRobustStrategy creates a retrying unbinned strategy.
func NewRobustStrategy(extended bool, env Env) *RobustStrategy {
	return &RobustStrategy{Extended: extended, env: env.withDefaults()}
}

func (s *RobustStrategy) Name() string {
	return "robust"
}

// Execute runs the initial attempt and the retries.
//
// A cancelled context stops the loop before the next retry; the last result
// is returned together with the context error.
func (s *RobustStrategy) Execute(ctx context.Context, m *model.Model, data *dataset.Dataset, cfg config.FitConfiguration) (*Result, error) {
	start := time.Now()
	a := attempt{
		strategy:    s.Name(),
		number:      1,
		extended:    s.Extended,
		asymmetric:  cfg.UseAsymmetricErrors,
		level:       min(max(cfg.StrategyLevel, 0), 2),
		constraints: s.constraints,
	}

	res, err := s.env.unbinned(ctx, m, data, cfg, a)
	if err != nil {
		return nil, err
	}

	for retry := 1; retry <= cfg.MaxRetries && !res.Converged(); retry++ {
		if err := ctx.Err(); err != nil {
			return res.withOutcome(a.number, StateDoneWithWarning), err
		}

		if cfg.EnableParameterAdjustment {
			adj := AdjustBounds(m.Workspace(), m.FloatingParameters(), res, cfg)
			for _, ad := range adj {
				s.env.Logger.Debug("bound adjusted",
					"parameter", ad.Name, "side", ad.Side.String(), "old", ad.Old, "new", ad.New)
			}
			if len(adj) > 0 {
				s.env.Observer.BoundsAdjusted(s.Name(), adj)
			}
		}
		a.level = max(a.level-1, 0)
		a.number++

		s.env.Logger.Debug("retrying fit",
			"attempt", a.number, "level", a.level, "status", res.Status(), "aux_status", res.AuxStatus())

		next, err := s.env.unbinned(ctx, m, data, cfg, a)
		if err != nil {
			return res.withOutcome(a.number-1, StateDoneWithWarning), err
		}
		res = next
	}

	return s.env.finish(s.Name(), res, a.number, start), nil
}

func (s *RobustStrategy) withConstraints(cs []Constraint) Strategy {
	out := *s
	out.constraints = cs

	return &out
}
