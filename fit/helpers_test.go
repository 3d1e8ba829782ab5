package fit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/model"
)

func toySpec() model.Spec {
	return model.Spec{
		Name:       "toy",
		Observable: "x",
		RangeMin:   0,
		RangeMax:   10,
		Signal: model.SignalSpec{
			Kind:  model.KindGaussian,
			Mean:  model.ParamSpec{Value: 5, Min: 4, Max: 6},
			Sigma: model.ParamSpec{Value: 0.5, Min: 0.1, Max: 2},
		},
		Background: model.BackgroundSpec{
			Kind:  model.KindExponential,
			Slope: model.ParamSpec{Value: -0.2, Min: -2, Max: 2},
		},
		Yield: model.YieldSpec{Initial: 0.2, Min: 0, Max: 1},
	}
}

func toyModel(t *testing.T, count float64) *model.Model {
	t.Helper()
	m, err := model.Build(model.StandardFactory{}, toySpec())
	require.NoError(t, err)
	require.NoError(t, m.Yields().Initialize(count))

	return m
}

func toyData(t *testing.T, entries int, seed uint64) *dataset.Dataset {
	t.Helper()
	d, err := dataset.GenerateToy(dataset.ToySpec{
		Variable:       "x",
		Lo:             0,
		Hi:             10,
		Entries:        entries,
		SignalFraction: 0.1,
		Mean:           5,
		Sigma:          0.5,
		Slope:          -0.2,
	}, seed)
	require.NoError(t, err)

	return d
}

func testConfig(t *testing.T, opts ...config.Option) config.FitConfiguration {
	t.Helper()
	cfg, err := config.New(opts...)
	require.NoError(t, err)

	return cfg
}

// scriptedMinimizer returns results with a scripted status sequence; the
// last status repeats.
type scriptedMinimizer struct {
	mu       sync.Mutex
	statuses []int
	calls    []Problem
	nlls     []float64
}

func (s *scriptedMinimizer) Minimize(_ context.Context, p Problem) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.calls)
	s.calls = append(s.calls, p)
	s.nlls = append(s.nlls, p.Objective())
	status := s.statuses[min(i, len(s.statuses)-1)]

	est := make(map[string]Estimate, len(p.Parameters))
	for _, h := range p.Parameters {
		par := p.Workspace.Param(h)
		est[par.Name] = Estimate{
			Value:    par.Value,
			Error:    0.01,
			Lower:    par.Min,
			Upper:    par.Max,
			Constant: par.Constant,
		}
	}

	return NewResult(ResultParams{
		Status:        status,
		Estimates:     est,
		Attempts:      1,
		StrategyLevel: p.StrategyLevel,
	}), nil
}

func (s *scriptedMinimizer) levels() []int {
	out := make([]int, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.StrategyLevel
	}

	return out
}

type recordingObserver struct {
	attempts    []int
	adjustments [][]Adjustment
	finished    []*Result
}

func (r *recordingObserver) AttemptFinished(_ string, attempt int, _ *Result) {
	r.attempts = append(r.attempts, attempt)
}

func (r *recordingObserver) BoundsAdjusted(_ string, adj []Adjustment) {
	r.adjustments = append(r.adjustments, adj)
}

func (r *recordingObserver) FitFinished(_ string, res *Result, _ time.Duration) {
	r.finished = append(r.finished, res)
}
