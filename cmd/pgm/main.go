package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/dataset"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

var rootCmd = &cobra.Command{
	Use:   "pgm",
	Short: "Symmetric power flow and state estimation",
	Long: `pgm solves power flow and weighted-least-squares state estimation on
networks given as JSON or YAML component tables, one scenario or a batch.`,
	SilenceUsage: true,
}

var (
	flagMethod    string
	flagTolerance float64
	flagMaxIter   int
	flagOutput    string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagMethod, "method", "m", "", "newton_raphson, iterative_current, linear or iterative_linear")
	pf.Float64Var(&flagTolerance, "tolerance", 0, "convergence tolerance in p.u. (default 1e-8)")
	pf.IntVar(&flagMaxIter, "max-iterations", 0, "iteration cap (default 20)")
	pf.StringVarP(&flagOutput, "output", "o", "table", "table, json or yaml")
}

func analysisOptions() (analysis.Options, error) {
	opts := analysis.DefaultOptions()
	method, err := analysis.ParseMethod(flagMethod)
	if err != nil {
		return opts, err
	}
	opts.Method = method
	if flagTolerance > 0 {
		opts.Tolerance = flagTolerance
	}
	if flagMaxIter > 0 {
		opts.MaxIterations = flagMaxIter
	}
	return opts, nil
}

// loadNetwork reads an input file and builds its network, printing any
// validation warnings.
func loadNetwork(path string) (*dataset.Document, *network.Network, error) {
	doc, err := dataset.Load(path)
	if err != nil {
		return nil, nil, err
	}
	net, err := doc.Network()
	if err != nil {
		return nil, nil, err
	}
	for _, w := range net.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}
	return doc, net, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
