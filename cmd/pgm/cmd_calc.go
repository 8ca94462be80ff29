package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/dataset"
	"github.com/edp1096/toy-powerflow/pkg/util"
)

var pfCmd = &cobra.Command{
	Use:   "pf <input>",
	Short: "Run a power flow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCalculation(cmd, args[0], analysis.PowerFlow)
	},
}

var seCmd = &cobra.Command{
	Use:   "se <input>",
	Short: "Run a state estimation from the sensors in the input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCalculation(cmd, args[0], analysis.StateEstimation)
	},
}

func init() {
	rootCmd.AddCommand(pfCmd, seCmd)
}

func runCalculation(cmd *cobra.Command, path string, calc analysis.Calculation) error {
	opts, err := analysisOptions()
	if err != nil {
		return err
	}
	_, net, err := loadNetwork(path)
	if err != nil {
		return err
	}

	sw := util.StartStopwatch(calc.String())
	res, err := analysis.Run(net, calc, opts)
	elapsed := sw.Stop()
	if err != nil {
		return err
	}

	if flagOutput == "table" {
		printResult(cmd.OutOrStdout(), res)
		cmd.Printf("\n%v (%v) converged in %d iterations, %v\n", calc, res.Method, res.Iterations, elapsed)
		return nil
	}
	format, err := dataset.ParseFormat(flagOutput)
	if err != nil {
		return err
	}
	return dataset.Encode(os.Stdout, format, res)
}
