package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arloliu/yieldfit/archive"
	"github.com/arloliu/yieldfit/store"
)

func newArchiveCmd(a *app) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Query archived fit runs",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "yieldfit.db", "SQLite archive path")

	var (
		name  string
		limit int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arc, err := archive.Open(dbPath, archive.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer arc.Close()

			runs, err := arc.List(cmd.Context(), name, limit)
			if err != nil {
				return err
			}

			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	list.Flags().StringVar(&name, "name", "", "Only runs stored under this name")
	list.Flags().IntVarP(&limit, "last", "n", 20, "Number of runs to show")

	var out string
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one archived run, optionally exporting it to a container file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := archive.Open(dbPath, archive.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer arc.Close()

			run, stored, err := arc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if err := printRuns(w, []archive.Run{run}); err != nil {
				return err
			}
			if stored.Result != nil {
				fmt.Fprintln(w, stored.Result.String())
			}
			if out == "" {
				return nil
			}

			st, err := store.New(store.WithLogger(a.logger))
			if err != nil {
				return err
			}
			st.Put(stored)
			if err := st.Save(stored.Name, out, stored.Snapshot != nil); err != nil {
				return err
			}
			fmt.Fprintf(w, "exported run %s to %s\n", run.ID, out)

			return nil
		},
	}
	show.Flags().StringVarP(&out, "out", "o", "", "Export the run to this container file")

	cmd.AddCommand(list, show)

	return cmd
}

func printRuns(w io.Writer, runs []archive.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFIT\tSTATUS\tATTEMPTS\tNSIG\tCHI2/NDF\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.1f ± %.1f\t%.3f\t%s\n",
			r.ID, r.Name, r.FitTypeTag, r.Status, r.Attempts,
			r.SignalYield, r.SignalYieldError, r.ReducedChiSquare,
			r.CreatedAt.UTC().Format(store.TimestampLayout))
	}

	return tw.Flush()
}
