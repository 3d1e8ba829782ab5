package fit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/yieldfit/config"
	"github.com/arloliu/yieldfit/model"
)

func boundsFixture(t *testing.T, name string, value, lo, hi float64) (*model.Workspace, model.Handle) {
	t.Helper()
	ws := model.NewWorkspace()
	h, err := ws.Declare(name, value, lo, hi)
	require.NoError(t, err)

	return ws, h
}

func boundsResult(name string, value, err float64) *Result {
	return NewResult(ResultParams{
		Status:    StatusEDMAboveMax,
		Estimates: map[string]Estimate{name: {Value: value, Error: err}},
	})
}

func TestAdjustBounds_Upper(t *testing.T) {
	tests := []struct {
		name    string
		param   string
		value   float64
		err     float64
		skip    []string
		allow   []string
		wantMax float64
	}{
		{"skip list wins over allow list", "nsig", 95, 2, []string{"sig"}, []string{"nsig"}, 100},
		{"allowed name with n doubles", "nsig", 95, 2, nil, []string{"sig"}, 200},
		{"allowed name without n expands by error", "mu", 95, 2, nil, []string{"mu"}, 95 + 2*9},
		{"unlisted violator unchanged", "mu", 95, 2, nil, nil, 100},
		{"far from bound unchanged", "nsig", 50, 2, nil, []string{"nsig"}, 100},
		{"1.2 v rule on positive value", "nsig", 85, 0.1, nil, []string{"nsig"}, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, h := boundsFixture(t, tt.param, tt.value, 0, 100)
			cfg := testConfig(t,
				config.WithSkipLimits(tt.skip, nil),
				config.WithAllowExpansion(tt.allow, nil),
			)

			adj := AdjustBounds(ws, []model.Handle{h}, boundsResult(tt.param, tt.value, tt.err), cfg)

			require.InDelta(t, tt.wantMax, ws.Param(h).Max, 1e-12)
			if tt.wantMax != 100 {
				require.Equal(t, []Adjustment{{Name: tt.param, Side: UpperBound, Old: 100, New: tt.wantMax}}, adj)
			} else {
				require.Empty(t, adj)
			}
		})
	}
}

func TestAdjustBounds_Lower(t *testing.T) {
	t.Run("allowed lower expansion", func(t *testing.T) {
		ws, h := boundsFixture(t, "slope", -1.9, -2, 2)
		cfg := testConfig(t, config.WithAllowExpansion(nil, []string{"slope"}))

		adj := AdjustBounds(ws, []model.Handle{h}, boundsResult("slope", -1.9, 0.05), cfg)

		// The new lower bound is v+e·factor even when that lies above v;
		// the value is clipped into the new range.
		want := -1.9 + 0.05*9
		require.Len(t, adj, 1)
		require.Equal(t, LowerBound, adj[0].Side)
		require.InDelta(t, want, ws.Param(h).Min, 1e-12)
		require.InDelta(t, want, ws.Param(h).Value, 1e-12)
	})

	t.Run("skip list wins", func(t *testing.T) {
		ws, h := boundsFixture(t, "slope", -1.9, -2, 2)
		cfg := testConfig(t,
			config.WithSkipLimits(nil, []string{"lop"}),
			config.WithAllowExpansion(nil, []string{"slope"}),
		)

		adj := AdjustBounds(ws, []model.Handle{h}, boundsResult("slope", -1.9, 0.05), cfg)
		require.Empty(t, adj)
		require.InDelta(t, -2.0, ws.Param(h).Min, 0)
	})

	t.Run("unlisted violator unchanged", func(t *testing.T) {
		ws, h := boundsFixture(t, "slope", -1.9, -2, 2)
		cfg := testConfig(t)

		adj := AdjustBounds(ws, []model.Handle{h}, boundsResult("slope", -1.9, 0.05), cfg)
		require.Empty(t, adj)
		require.InDelta(t, -2.0, ws.Param(h).Min, 0)
	})
}

func TestAdjustBounds_SkipListRepeated(t *testing.T) {
	tests := []struct {
		name  string
		param string
		value float64
		lo    float64
		hi    float64
		cfg   []config.Option
	}{
		{
			name: "upper", param: "nsig", value: 99, lo: 0, hi: 100,
			cfg: []config.Option{
				config.WithSkipLimits([]string{"sig"}, nil),
				config.WithAllowExpansion([]string{"nsig"}, nil),
			},
		},
		{
			name: "lower", param: "slope", value: -1.9, lo: -2, hi: 2,
			cfg: []config.Option{
				config.WithSkipLimits(nil, []string{"lop"}),
				config.WithAllowExpansion(nil, []string{"slope"}),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, h := boundsFixture(t, tt.param, tt.value, tt.lo, tt.hi)
			cfg := testConfig(t, tt.cfg...)

			for i := range 5 {
				adj := AdjustBounds(ws, []model.Handle{h}, boundsResult(tt.param, tt.value, 0.05), cfg)
				require.Empty(t, adj, "call %d", i)
				require.InDelta(t, tt.lo, ws.Param(h).Min, 0, "call %d", i)
				require.InDelta(t, tt.hi, ws.Param(h).Max, 0, "call %d", i)
				require.InDelta(t, tt.value, ws.Param(h).Value, 0, "call %d", i)
			}
		})
	}
}

func TestAdjustBounds_IgnoresConstants(t *testing.T) {
	ws, h := boundsFixture(t, "nsig", 99, 0, 100)
	ws.SetConstant(h, true)
	cfg := testConfig(t, config.WithAllowExpansion([]string{"nsig"}, nil))

	require.Empty(t, AdjustBounds(ws, []model.Handle{h}, boundsResult("nsig", 99, 1), cfg))
	require.InDelta(t, 100.0, ws.Param(h).Max, 0)
}

func TestAdjustBounds_FallsBackToWorkspace(t *testing.T) {
	ws, h := boundsFixture(t, "nsig", 99, 0, 100)
	ws.SetErrors(h, 1, 0, 0)
	cfg := testConfig(t, config.WithAllowExpansion([]string{"nsig"}, nil))

	adj := AdjustBounds(ws, []model.Handle{h}, nil, cfg)
	require.Len(t, adj, 1)
	require.InDelta(t, 200.0, ws.Param(h).Max, 0)
	require.Equal(t, "nsig upper bound 100 -> 200", adj[0].String())
}
