package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/yieldfit/container"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/fit"
	"github.com/arloliu/yieldfit/format"
	"github.com/arloliu/yieldfit/store"
)

func openTempArchive(t *testing.T, opts ...Option) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "runs.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, a.Close())
	})

	return a
}

// steppingClock advances by one minute per call.
func steppingClock() func() time.Time {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(time.Minute)
		return at
	}
}

func storedResult(name string, nsig float64) *store.StoredResult {
	res := fit.NewResult(fit.ResultParams{
		Status: fit.StatusOK,
		Estimates: map[string]fit.Estimate{
			"fsig":     {Value: nsig / 1000, Error: 0.01, Lower: 0, Upper: 1},
			"sig_mean": {Value: 5.01, Error: 0.02, Lower: 4, Upper: 6},
		},
		CovarianceNames: []string{"fsig", "sig_mean"},
		Covariance:      mat.NewSymDense(2, []float64{1e-4, 0, 0, 4e-4}),
		MinNLL:          -42,
		Attempts:        2,
		Terminal:        fit.StateDone,
	})

	return &store.StoredResult{
		Name:             name,
		Result:           res,
		Yields:           map[string]float64{"nsig": nsig, "nbkg": 1000 - nsig},
		YieldErrors:      map[string]float64{"nsig": 10, "nbkg": 10},
		ReducedChiSquare: 1.05,
		FitTypeTag:       "robust",
		Timestamp:        "2024-05-01T12:00:00Z",
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ")
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestOpen_InvalidContainerOption(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "runs.db"),
		WithContainerOptions(container.WithCompression(format.CompressionType(0xEE))))
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestArchive_PutAndGet(t *testing.T) {
	ctx := context.Background()
	a := openTempArchive(t, WithContainerOptions(container.WithCompression(format.CompressionS2)))

	want := storedResult("jpsi", 100)
	id, err := a.Put(ctx, want, false)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, got, err := a.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, run.ID)
	require.Equal(t, "jpsi", run.Name)
	require.Equal(t, "robust", run.FitTypeTag)
	require.Equal(t, fit.StatusOK, run.Status)
	require.Equal(t, 2, run.Attempts)
	require.InDelta(t, -42, run.MinNLL, 1e-12)
	require.InDelta(t, 100, run.SignalYield, 1e-12)
	require.InDelta(t, 10, run.SignalYieldError, 1e-12)

	require.Equal(t, want.Yields, got.Yields)
	require.Equal(t, want.YieldErrors, got.YieldErrors)
	require.Equal(t, want.Result.Params(), got.Result.Params())

	_, _, err = a.Get(ctx, "no-such-id")
	require.ErrorIs(t, err, errs.ErrResultNotFound)
}

func TestArchive_PutValidation(t *testing.T) {
	a := openTempArchive(t)
	_, err := a.Put(context.Background(), nil, false)
	require.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = a.Put(context.Background(), &store.StoredResult{}, false)
	require.ErrorIs(t, err, errs.ErrConfiguration)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Put(ctx, storedResult("jpsi", 1), false)
	require.ErrorIs(t, err, context.Canceled)
}

func TestArchive_ListAndLatest(t *testing.T) {
	ctx := context.Background()
	a := openTempArchive(t, WithClock(steppingClock()))

	for _, r := range []*store.StoredResult{
		storedResult("jpsi", 100),
		storedResult("psi2s", 20),
		storedResult("jpsi", 110),
	} {
		_, err := a.Put(ctx, r, true)
		require.NoError(t, err)
	}

	all, err := a.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "jpsi", all[0].Name)
	require.InDelta(t, 110, all[0].SignalYield, 1e-12)
	require.True(t, all[0].CreatedAt.After(all[1].CreatedAt))

	jpsi, err := a.List(ctx, "jpsi", 10)
	require.NoError(t, err)
	require.Len(t, jpsi, 2)

	limited, err := a.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	_, err = a.List(ctx, "", 0)
	require.ErrorIs(t, err, errs.ErrConfiguration)

	run, latest, err := a.Latest(ctx, "jpsi")
	require.NoError(t, err)
	require.Equal(t, all[0].ID, run.ID)
	require.InDelta(t, 110, latest.Yields["nsig"], 1e-12)

	_, _, err = a.Latest(ctx, "unknown")
	require.ErrorIs(t, err, errs.ErrResultNotFound)
}

func TestArchive_WithoutResult(t *testing.T) {
	ctx := context.Background()
	a := openTempArchive(t)

	r := storedResult("yields-only", 50)
	r.Result = nil
	id, err := a.Put(ctx, r, false)
	require.NoError(t, err)

	run, got, err := a.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, -1, run.Status)
	require.Nil(t, got.Result)

	_, err = a.Source("yields-only").Load(ctx)
	require.ErrorIs(t, err, errs.ErrResultNotFound)
}

func TestArchive_Source(t *testing.T) {
	ctx := context.Background()
	a := openTempArchive(t, WithClock(steppingClock()))

	_, err := a.Put(ctx, storedResult("aux", 100), false)
	require.NoError(t, err)
	_, err = a.Put(ctx, storedResult("aux", 200), false)
	require.NoError(t, err)

	src := a.Source("aux")
	require.Contains(t, src.Describe(), "aux")

	res, err := src.Load(ctx)
	require.NoError(t, err)
	require.InDelta(t, 0.2, res.Value("fsig"), 1e-12)

	_, err = a.Source("missing").Load(ctx)
	require.ErrorIs(t, err, errs.ErrResultNotFound)
}

func TestArchive_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	a, err := Open(path)
	require.NoError(t, err)
	id, err := a.Put(ctx, storedResult("jpsi", 100), false)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	run, _, err := b.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "jpsi", run.Name)
}
