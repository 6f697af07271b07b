package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/bode.report/internal/bode"
	"github.com/banshee-data/bode.report/internal/config"
)

func newPlanCmd() *cobra.Command {
	var in config.SweepInput
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the frequency plan of a sweep without touching any instrument",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := in.Plan()
			if err != nil {
				return err
			}
			points, err := bode.Frequencies(plan)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tFREQ_HZ")
			for _, p := range points {
				fmt.Fprintf(tw, "%d\t%g\n", p.Index, p.Freq)
			}
			return tw.Flush()
		},
	}
	addPlanFlags(cmd, &in)
	return cmd
}
