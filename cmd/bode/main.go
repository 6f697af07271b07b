// Command bode measures the frequency response of a circuit with a Rigol
// DS1000Z scope and a FeelTech FY32xx generator and writes Bode plots.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/bode.report/internal/config"
	"github.com/banshee-data/bode.report/internal/monitoring"
	"github.com/banshee-data/bode.report/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:           "bode",
		Short:         "Automated Bode plot measurements",
		Long:          `bode sweeps a sine stimulus across a frequency range, measures input and output of the device under test on the scope and writes gain and phase plots.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			monitoring.SetVerbose(verbose)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log per-poll and per-iteration details")

	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	})
	return rootCmd
}

// addPlanFlags binds the sweep request flags shared by sweep and plan.
func addPlanFlags(cmd *cobra.Command, in *config.SweepInput) {
	cmd.Flags().Float64Var(&in.StartFreq, "start", 10, "Start frequency, Hz")
	cmd.Flags().Float64Var(&in.EndFreq, "end", 100000, "End frequency, Hz")
	cmd.Flags().IntVar(&in.Steps, "steps", 30, "Number of frequency points")
	cmd.Flags().StringVar(&in.Spacing, "spacing", "log", "Point spacing: log or lin")
	cmd.Flags().Float64Var(&in.Vpp, "vpp", 2, "Stimulus amplitude, Vpp")
}
