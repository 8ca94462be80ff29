package main

import (
	"fmt"
	"io"

	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/batch"
	"github.com/edp1096/toy-powerflow/pkg/util"
)

func printResult(w io.Writer, res *analysis.Result) {
	fmt.Fprintln(w, "\nNodes:")
	fmt.Fprintln(w, "------------------------------------------------------------------------")
	for _, n := range res.Nodes {
		if !n.Energized {
			fmt.Fprintf(w, "%6d  de-energized\n", n.ID)
			continue
		}
		fmt.Fprintf(w, "%6d  %s  %-12s %s  P=%-12s Q=%s\n", n.ID,
			util.FormatPerUnit(n.UPu),
			util.FormatValueFactor(n.U, "V"),
			util.FormatAngle(n.UAngle),
			util.FormatValueFactor(n.P, "W"),
			util.FormatValueFactor(n.Q, "var"))
	}

	if len(res.Lines) > 0 {
		fmt.Fprintln(w, "\nLines:")
		fmt.Fprintln(w, "------------------------------------------------------------------------")
		for _, l := range res.Lines {
			fmt.Fprintf(w, "%6d  from P=%-12s Q=%-12s I=%-10s  to P=%-12s Q=%-12s I=%-10s  loading=%.3f\n", l.ID,
				util.FormatValueFactor(l.PFrom, "W"), util.FormatValueFactor(l.QFrom, "var"), util.FormatValueFactor(l.IFrom, "A"),
				util.FormatValueFactor(l.PTo, "W"), util.FormatValueFactor(l.QTo, "var"), util.FormatValueFactor(l.ITo, "A"),
				l.Loading)
		}
	}

	printAppliances(w, "Sources", res.Sources)
	printAppliances(w, "Loads", res.Loads)

	if len(res.VoltageSensors)+len(res.PowerSensors) > 0 {
		fmt.Fprintln(w, "\nSensor residuals:")
		fmt.Fprintln(w, "------------------------------------------------------------------------")
		for _, s := range res.VoltageSensors {
			fmt.Fprintf(w, "%6d  u=%-12s angle=%s\n", s.ID,
				util.FormatValueFactor(s.UResidual, "V"), util.FormatAngle(s.UAngleResidual))
		}
		for _, s := range res.PowerSensors {
			fmt.Fprintf(w, "%6d  p=%-12s q=%s\n", s.ID,
				util.FormatValueFactor(s.PResidual, "W"), util.FormatValueFactor(s.QResidual, "var"))
		}
	}
}

func printAppliances(w io.Writer, title string, rows []analysis.ApplianceResult) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	fmt.Fprintln(w, "------------------------------------------------------------------------")
	for _, a := range rows {
		if !a.Energized {
			fmt.Fprintf(w, "%6d  disconnected\n", a.ID)
			continue
		}
		fmt.Fprintf(w, "%6d  P=%-12s Q=%-12s I=%-10s pf=%.4f\n", a.ID,
			util.FormatValueFactor(a.P, "W"), util.FormatValueFactor(a.Q, "var"),
			util.FormatValueFactor(a.I, "A"), a.PF)
	}
}

// printReport prints one line per scenario with its lowest node voltage.
func printReport(w io.Writer, report *batch.Report) {
	fmt.Fprintf(w, "\nBatch %s: %d scenarios in %v\n", report.RunID, len(report.Scenarios), report.Duration)
	fmt.Fprintln(w, "------------------------------------------------------------------------")
	for _, s := range report.Scenarios {
		if s.Err != nil {
			fmt.Fprintf(w, "%4d  %-24s error: %v\n", s.Index, s.Name, s.Err)
			continue
		}
		minU, minID := 0.0, 0
		for _, n := range s.Result.Nodes {
			if n.Energized && (minID == 0 || n.UPu < minU) {
				minU, minID = n.UPu, n.ID
			}
		}
		fmt.Fprintf(w, "%4d  %-24s iterations=%-3d min u=%s at node %d\n",
			s.Index, s.Name, s.Result.Iterations, util.FormatPerUnit(minU), minID)
	}
	if failed := report.Failed(); failed > 0 {
		fmt.Fprintf(w, "\n%d of %d scenarios failed\n", failed, len(report.Scenarios))
	}
}
