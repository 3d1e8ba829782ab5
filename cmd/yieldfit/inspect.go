package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arloliu/yieldfit/container"
	"github.com/arloliu/yieldfit/model"
	"github.com/arloliu/yieldfit/store"
)

func newInspectCmd(a *app) *cobra.Command {
	var params bool

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the results stored in a container file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(cmd.OutOrStdout(), args[0], params)
		},
	}
	cmd.Flags().BoolVarP(&params, "params", "p", false, "Also print the fitted parameters of each result")

	return cmd
}

func (a *app) runInspect(w io.Writer, path string, params bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	header, err := container.ParseHeader(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	results, err := store.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	a.logger.Debug("decoded container", "path", path, "bytes", len(data), "records", len(results))

	fmt.Fprintf(w, "%s: %d result(s), compression %s, %d of %d bytes, created %s\n",
		path, header.RecordCount, header.Compression, header.PayloadSize, header.RawPayloadSize,
		header.CreatedTime().UTC().Format(store.TimestampLayout))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFIT\tSTATUS\tATTEMPTS\tNSIG\tNBKG\tCHI2/NDF\tSTORED")
	for _, r := range results {
		status, attempts := "-", "-"
		if r.Result != nil {
			status = fmt.Sprint(r.Result.Status())
			attempts = fmt.Sprint(r.Result.Attempts())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%.3f\t%s\n",
			r.Name, r.FitTypeTag, status, attempts,
			yieldCell(r, model.SignalYieldName), yieldCell(r, model.BackgroundYieldName),
			r.ReducedChiSquare, r.Timestamp)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !params {
		return nil
	}
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", r.Name)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PARAMETER\tVALUE\tERROR\tRANGE")
		for _, n := range r.Result.Names() {
			e, _ := r.Result.Estimate(n)
			fixed := ""
			if e.Constant {
				fixed = " (fixed)"
			}
			fmt.Fprintf(tw, "%s\t%.6g\t%.3g\t[%g, %g]%s\n", n, e.Value, e.Error, e.Lower, e.Upper, fixed)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	return nil
}

func yieldCell(r *store.StoredResult, name string) string {
	v, ok := r.Yields[name]
	if !ok {
		return "-"
	}

	return fmt.Sprintf("%.1f ± %.1f", v, r.YieldErrors[name])
}
