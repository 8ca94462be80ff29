package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/batch"
	"github.com/edp1096/toy-powerflow/pkg/dataset"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

var batchCmd = &cobra.Command{
	Use:   "batch <input>",
	Short: "Run one calculation per scenario",
	Long: `Run one calculation per scenario. Scenarios come from the "update" list
of the input, a CSV profile (--profile) and/or an N-1 scan of every
in-service line (--n1).`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var (
	flagCalc        string
	flagProfile     string
	flagProfileKind string
	flagN1          bool
	flagThreads     int
	flagFailFast    bool
)

func init() {
	f := batchCmd.Flags()
	f.StringVar(&flagCalc, "calc", "power_flow", "power_flow or state_estimation")
	f.StringVar(&flagProfile, "profile", "", "CSV time series, one scenario per row")
	f.StringVar(&flagProfileKind, "profile-kind", "sym_load", "component kind the profile columns refer to")
	f.BoolVar(&flagN1, "n1", false, "add one scenario per in-service line opened")
	f.IntVar(&flagThreads, "threads", 1, "worker count, 0 = one per CPU")
	f.BoolVar(&flagFailFast, "fail-fast", false, "stop at the first failed scenario")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	calc, err := analysis.ParseCalculation(flagCalc)
	if err != nil {
		return err
	}
	opts, err := analysisOptions()
	if err != nil {
		return err
	}
	doc, net, err := loadNetwork(args[0])
	if err != nil {
		return err
	}

	updates := append([]network.Update(nil), doc.Updates...)
	if flagProfile != "" {
		kind, err := network.ParseKind(flagProfileKind)
		if err != nil {
			return err
		}
		f, err := os.Open(flagProfile)
		if err != nil {
			return fmt.Errorf("opening profile: %w", err)
		}
		defer f.Close()
		profile, err := dataset.LoadProfile(f, kind)
		if err != nil {
			return fmt.Errorf("%s: %w", flagProfile, err)
		}
		updates = append(updates, profile...)
	}
	if flagN1 {
		updates = append(updates, net.ContingencyUpdates()...)
	}
	if len(updates) == 0 {
		return fmt.Errorf("no scenarios: give an update list, --profile or --n1")
	}

	report, err := batch.Solve(cmd.Context(), net, updates, batch.Options{
		Calculation: calc,
		Analysis:    opts,
		Threads:     flagThreads,
		FailFast:    flagFailFast,
	})
	if report != nil {
		if flagOutput == "table" {
			printReport(cmd.OutOrStdout(), report)
		} else {
			format, ferr := dataset.ParseFormat(flagOutput)
			if ferr != nil {
				return ferr
			}
			if eerr := dataset.Encode(os.Stdout, format, newBatchResponse(report)); eerr != nil {
				return eerr
			}
		}
	}
	return err
}
