package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/yieldfit/errs"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out, logs bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()

	return out.String(), err
}

// runID extracts the ID from the "archived as run <id>" line.
func runID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "archived as run "); ok {
			return strings.TrimSpace(rest)
		}
	}
	t.Fatalf("no run id in output:\n%s", out)

	return ""
}

func TestDemo_SaveInspectAndArchive(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "jpsi.yfc")
	db := filepath.Join(dir, "runs.db")

	out, err := execute(t, "demo", "--name", "jpsi", "-n", "4000", "--fsig", "0.2",
		"--out", file, "--archive", db, "--compression", "s2", "--snapshot")
	require.NoError(t, err)
	require.Contains(t, out, `fit "jpsi" finished`)
	require.Contains(t, out, "nsig")
	require.Contains(t, out, "nbkg")
	require.Contains(t, out, "chi2/ndf")
	require.Contains(t, out, "saved \"jpsi\" to "+file)
	id := runID(t, out)

	out, err = execute(t, "inspect", file)
	require.NoError(t, err)
	require.Contains(t, out, "1 result(s), compression S2")
	require.Contains(t, out, "jpsi")
	require.Contains(t, out, "robust")

	out, err = execute(t, "inspect", "--params", file)
	require.NoError(t, err)
	require.Contains(t, out, "sig_mean")
	require.Contains(t, out, "fsig")

	out, err = execute(t, "archive", "list", "--db", db)
	require.NoError(t, err)
	require.Contains(t, out, id)
	require.Contains(t, out, "jpsi")

	exported := filepath.Join(dir, "exported.yfc")
	out, err = execute(t, "archive", "show", id, "--db", db, "--out", exported)
	require.NoError(t, err)
	require.Contains(t, out, "exported run "+id)

	out, err = execute(t, "inspect", exported)
	require.NoError(t, err)
	require.Contains(t, out, "jpsi")
}

func TestDemo_MethodOverride(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ext.yfc")

	_, err := execute(t, "demo", "--method", "ExtendedML", "-n", "2000", "--out", file)
	require.NoError(t, err)

	out, err := execute(t, "inspect", file)
	require.NoError(t, err)
	require.Contains(t, out, "extended")
	require.Contains(t, out, "compression Zstd")
}

func TestDemo_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("fit_method: BinnedML\nhistogram_bin_count: 50\n"), 0o600))
	file := filepath.Join(dir, "binned.yfc")

	_, err := execute(t, "--config", cfgPath, "demo", "-n", "3000", "--out", file)
	require.NoError(t, err)

	out, err := execute(t, "inspect", file)
	require.NoError(t, err)
	require.Contains(t, out, "binned")
}

func TestDemo_Constrained(t *testing.T) {
	file := filepath.Join(t.TempDir(), "constrained.yfc")

	_, err := execute(t, "demo", "-n", "3000", "--constrain", "sig_mean, sig_sigma", "--aux-entries", "2000", "--out", file)
	require.NoError(t, err)

	out, err := execute(t, "inspect", file)
	require.NoError(t, err)
	require.Contains(t, out, "constrained-robust")
}

func TestDemo_ModelFile(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(`
observable: m
range_min: 0
range_max: 10
signal:
  kind: gaussian
  mean: {value: 5, min: 4, max: 6}
  sigma: {value: 0.5, min: 0.1, max: 2}
background:
  kind: exponential
  slope: {value: -0.2, min: -2, max: 2}
yield: {initial: 0.3, min: 0, max: 1}
`), 0o600))

	out, err := execute(t, "demo", "--model", modelPath, "-n", "2000", "--cut", "m > 1")
	require.NoError(t, err)
	require.Contains(t, out, "finished")
}

func TestDemo_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("max_retries: 0\n"), 0o600))

	tests := []struct {
		name     string
		args     []string
		sentinel error
	}{
		{name: "unknown method", args: []string{"demo", "--method", "Bayesian"}, sentinel: errs.ErrConfiguration},
		{name: "unknown compression", args: []string{"demo", "--compression", "brotli"}, sentinel: errs.ErrConfiguration},
		{name: "missing config", args: []string{"--config", filepath.Join(dir, "absent.yaml"), "demo"}, sentinel: errs.ErrConfiguration},
		{name: "invalid config", args: []string{"--config", bad, "demo"}, sentinel: errs.ErrConfiguration},
		{name: "missing model", args: []string{"demo", "--model", filepath.Join(dir, "absent.yaml")}, sentinel: errs.ErrConfiguration},
		{name: "negative entries", args: []string{"demo", "-n", "-5"}, sentinel: errs.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.ErrorIs(t, err, tt.sentinel)
		})
	}

	t.Run("failed fit", func(t *testing.T) {
		_, err := execute(t, "demo", "-n", "500", "--cut", "x > 100")
		require.ErrorContains(t, err, "failed")
	})
}

func TestInspect_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "inspect", filepath.Join(dir, "absent.yfc"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = execute(t, "inspect")
	require.Error(t, err)

	short := filepath.Join(dir, "short.yfc")
	require.NoError(t, os.WriteFile(short, []byte("nope"), 0o600))
	_, err = execute(t, "inspect", short)
	require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)
}

func TestArchive_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "archive", "list", "--db", db)
	require.NoError(t, err)
	require.Contains(t, out, "No runs found")

	_, err = execute(t, "archive", "show", "missing", "--db", db)
	require.ErrorIs(t, err, errs.ErrResultNotFound)

	_, err = execute(t, "archive", "list", "--db", db, "-n", "0")
	require.ErrorIs(t, err, errs.ErrConfiguration)
}
