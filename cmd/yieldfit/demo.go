package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/yieldfit/archive"
	"github.com/arloliu/yieldfit/container"
	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/format"
	"github.com/arloliu/yieldfit/model"
	"github.com/arloliu/yieldfit/orchestrator"
	"github.com/arloliu/yieldfit/store"
)

type demoOptions struct {
	name        string
	modelPath   string
	method      string
	entries     int
	fsig        float64
	seed        uint64
	lo, hi      float64
	mean, sigma float64
	slope       float64
	cut         string

	constrain  string
	auxEntries int

	out         string
	archivePath string
	compression string
	snapshot    bool
}

func newDemoCmd(a *app) *cobra.Command {
	o := &demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Fit a generated toy sample",
		Long: `Generate a Gaussian signal on an exponential background, fit it and
print the yields.

Examples:
  yieldfit demo                                   # 10000 entries, 10% signal
  yieldfit demo --method ExtendedML --fsig 0.3    # plain extended fit
  yieldfit demo --model jpsi.yaml --out jpsi.yfc  # custom model, saved result
  yieldfit demo --constrain sig_mean --aux-entries 5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDemo(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.name, "name", "demo", "Name the result is stored under")
	f.StringVar(&o.modelPath, "model", "", "YAML model specification; a Gaussian plus exponential model when empty")
	f.StringVar(&o.method, "method", "", "Fit method overriding the configuration (UnbinnedML, BinnedML, ExtendedML, RobustExtendedML)")
	f.IntVarP(&o.entries, "entries", "n", 10000, "Number of generated entries")
	f.Float64Var(&o.fsig, "fsig", 0.1, "True signal fraction")
	f.Uint64Var(&o.seed, "seed", 1, "Generator seed")
	f.Float64Var(&o.lo, "lo", 0, "Observable lower edge")
	f.Float64Var(&o.hi, "hi", 10, "Observable upper edge")
	f.Float64Var(&o.mean, "mean", 5, "True signal mean")
	f.Float64Var(&o.sigma, "sigma", 0.5, "True signal width")
	f.Float64Var(&o.slope, "slope", -0.2, "True background slope")
	f.StringVar(&o.cut, "cut", "", "Selection applied before fitting, e.g. \"x > 1 && x < 9\"")
	f.StringVar(&o.constrain, "constrain", "", "Comma separated parameters to constrain from an auxiliary signal sample")
	f.IntVar(&o.auxEntries, "aux-entries", 5000, "Entries of the auxiliary signal sample")
	f.StringVarP(&o.out, "out", "o", "", "Save the result to this container file")
	f.StringVar(&o.archivePath, "archive", "", "Archive the run in this SQLite database")
	f.StringVar(&o.compression, "compression", "zstd", "Container compression (none, zstd, s2, lz4)")
	f.BoolVar(&o.snapshot, "snapshot", false, "Include the model snapshot in saved results")

	return cmd
}

func (o *demoOptions) modelSpec() (model.Spec, error) {
	if o.modelPath == "" {
		return model.Spec{
			Name:       o.name,
			Observable: "x",
			RangeMin:   o.lo,
			RangeMax:   o.hi,
			Signal: model.SignalSpec{
				Kind:  model.KindGaussian,
				Mean:  model.ParamSpec{Value: o.mean, Min: o.lo, Max: o.hi},
				Sigma: model.ParamSpec{Value: o.sigma, Min: o.sigma / 10, Max: (o.hi - o.lo) / 2},
			},
			Background: model.BackgroundSpec{
				Kind:  model.KindExponential,
				Slope: model.ParamSpec{Value: o.slope, Min: -5, Max: 5},
			},
			Yield: model.YieldSpec{Initial: 0.5, Min: 0, Max: 1},
		}, nil
	}

	data, err := os.ReadFile(o.modelPath)
	if err != nil {
		return model.Spec{}, errs.Configuration("read model %s: %v", o.modelPath, err)
	}
	var spec model.Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return model.Spec{}, errs.Configuration("parse model %s: %v", o.modelPath, err)
	}
	if spec.Name == "" {
		spec.Name = o.name
	}

	return spec, nil
}

func (o *demoOptions) toy(spec model.Spec, entries int, fsig float64, seed uint64) (*dataset.Dataset, error) {
	return dataset.GenerateToy(dataset.ToySpec{
		Name:           spec.Name,
		Variable:       spec.Observable,
		Lo:             spec.RangeMin,
		Hi:             spec.RangeMax,
		Entries:        entries,
		SignalFraction: fsig,
		Mean:           o.mean,
		Sigma:          o.sigma,
		Slope:          o.slope,
	}, seed)
}

func (a *app) runDemo(ctx context.Context, w io.Writer, o *demoOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := a.cfg.Clone()
	if o.method != "" {
		m, err := format.ParseFitMethod(o.method)
		if err != nil {
			return errs.Configuration("%v", err)
		}
		cfg.FitMethod = m
	}

	ct, err := format.ParseCompression(o.compression)
	if err != nil {
		return errs.Configuration("%v", err)
	}
	containerOpts := []container.Option{container.WithCompression(ct)}

	spec, err := o.modelSpec()
	if err != nil {
		return err
	}
	data, err := o.toy(spec, o.entries, o.fsig, o.seed)
	if err != nil {
		return err
	}

	st, err := store.New(store.WithLogger(a.logger), store.WithContainerOptions(containerOpts...))
	if err != nil {
		return err
	}
	opts := []orchestrator.Option{orchestrator.WithLogger(a.logger), orchestrator.WithStore(st)}

	if o.archivePath != "" {
		arc, err := archive.Open(o.archivePath,
			archive.WithLogger(a.logger), archive.WithContainerOptions(containerOpts...))
		if err != nil {
			return err
		}
		defer arc.Close()
		opts = append(opts, orchestrator.WithArchive(arc))
	}

	fc, err := orchestrator.NewFitContext(cfg, opts...)
	if err != nil {
		return err
	}

	req := orchestrator.Request{
		Name:            o.name,
		Model:           spec,
		Data:            data,
		Cut:             o.cut,
		IncludeSnapshot: o.snapshot,
	}
	if names := splitNames(o.constrain); len(names) > 0 {
		aux, err := o.toy(spec, o.auxEntries, 1, o.seed+1)
		if err != nil {
			return err
		}
		req.Constraints = &orchestrator.Constraints{Names: names, AuxData: aux}
	}

	out := fc.Fit(ctx, req)
	if !out.OK {
		return errors.New(out.Message)
	}

	fmt.Fprintln(w, out.Message)
	printFit(w, fc, o.name)
	if out.RunID != "" {
		fmt.Fprintf(w, "archived as run %s\n", out.RunID)
	}

	if o.out != "" {
		if err := st.Save(o.name, o.out, o.snapshot); err != nil {
			return err
		}
		fmt.Fprintf(w, "saved %q to %s\n", o.name, o.out)
	}

	return nil
}

func splitNames(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	return names
}

func printFit(w io.Writer, fc *orchestrator.FitContext, name string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "YIELD\tVALUE\tERROR")
	fmt.Fprintf(tw, "%s\t%.1f\t%.1f\n", model.SignalYieldName, fc.Store.SignalYield(name), fc.Store.SignalYieldError(name))
	fmt.Fprintf(tw, "%s\t%.1f\t%.1f\n", model.BackgroundYieldName, fc.Store.BackgroundYield(name), fc.Store.BackgroundYieldError(name))
	tw.Flush()

	fmt.Fprintf(w, "chi2/ndf = %.2f/%g = %.3f (good fit: %t)\n",
		fc.Store.ChiSquare(name), fc.Store.NDF(name), fc.Store.ReducedChiSquare(name), fc.IsGoodFit(name))
}
