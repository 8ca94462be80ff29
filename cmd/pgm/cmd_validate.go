package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edp1096/toy-powerflow/pkg/dataset"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

var validateCmd = &cobra.Command{
	Use:   "validate <input>",
	Short: "Check an input file and list its issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := dataset.Load(args[0])
		if err != nil {
			return err
		}
		issues := network.Validate(&doc.Input)
		for _, is := range issues {
			cmd.Println(is)
		}
		if network.HasErrors(issues) {
			return fmt.Errorf("%s: input has errors", args[0])
		}
		cmd.Printf("%s: %d components, %d warnings\n", args[0], componentCount(&doc.Input), len(issues))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func componentCount(in *network.Input) int {
	return len(in.Nodes) + len(in.Lines) + len(in.Sources) + len(in.Loads) +
		len(in.VoltageSensors) + len(in.PowerSensors)
}
