package analysis

import (
	"math"
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/admittance"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

type NodeResult struct {
	ID        int     `json:"id"`
	Energized bool    `json:"energized"`
	UPu       float64 `json:"u_pu"`
	U         float64 `json:"u"`       // V
	UAngle    float64 `json:"u_angle"` // rad
	P         float64 `json:"p"`       // injected into the network, W
	Q         float64 `json:"q"`
}

type LineResult struct {
	ID        int     `json:"id"`
	Energized bool    `json:"energized"`
	PFrom     float64 `json:"p_from"`
	QFrom     float64 `json:"q_from"`
	IFrom     float64 `json:"i_from"`
	SFrom     float64 `json:"s_from"`
	PTo       float64 `json:"p_to"`
	QTo       float64 `json:"q_to"`
	ITo       float64 `json:"i_to"`
	STo       float64 `json:"s_to"`
	Loading   float64 `json:"loading"`
}

// ApplianceResult holds the power of a source (generation positive) or a
// load (consumption positive).
type ApplianceResult struct {
	ID        int     `json:"id"`
	Energized bool    `json:"energized"`
	P         float64 `json:"p"`
	Q         float64 `json:"q"`
	I         float64 `json:"i"`
	S         float64 `json:"s"`
	PF        float64 `json:"pf"`
}

type VoltageSensorResult struct {
	ID             int     `json:"id"`
	UResidual      float64 `json:"u_residual"`
	UAngleResidual float64 `json:"u_angle_residual"`
}

type PowerSensorResult struct {
	ID        int     `json:"id"`
	PResidual float64 `json:"p_residual"`
	QResidual float64 `json:"q_residual"`
}

// Result is the outcome of one calculation. Slices follow the input order
// of the network it was computed on.
type Result struct {
	Calculation    Calculation           `json:"-"`
	Method         Method                `json:"-"`
	Iterations     int                   `json:"iterations"`
	Nodes          []NodeResult          `json:"node"`
	Lines          []LineResult          `json:"line"`
	Sources        []ApplianceResult     `json:"source"`
	Loads          []ApplianceResult     `json:"sym_load"`
	VoltageSensors []VoltageSensorResult `json:"sym_voltage_sensor,omitempty"`
	PowerSensors   []PowerSensorResult   `json:"sym_power_sensor,omitempty"`
}

// applianceFlows carries appliance powers in p.u.: generation for sources,
// consumption for loads.
type applianceFlows struct {
	sources []complex128
	loads   []complex128
}

func newResult(net *network.Network, bus *admittance.Bus, u []complex128, flows applianceFlows) *Result {
	energized := net.Energized()
	res := &Result{
		Nodes:          make([]NodeResult, net.Count(network.KindNode)),
		Lines:          make([]LineResult, net.Count(network.KindLine)),
		Sources:        make([]ApplianceResult, net.Count(network.KindSource)),
		Loads:          make([]ApplianceResult, net.Count(network.KindLoad)),
		VoltageSensors: make([]VoltageSensorResult, net.Count(network.KindVoltageSensor)),
		PowerSensors:   make([]PowerSensorResult, net.Count(network.KindPowerSensor)),
	}

	injection := make([]complex128, len(res.Nodes))
	for i := range res.Lines {
		l := net.Line(i)
		br := bus.Branches[i]
		sFrom, iFrom := br.Flow(network.BranchFrom, u)
		sTo, iTo := br.Flow(network.BranchTo, u)
		injection[br.From] += sFrom
		injection[br.To] += sTo

		base := net.BaseCurrent(br.From)
		lr := LineResult{
			ID:        l.ID,
			Energized: (l.FromStatus && energized[br.From]) || (l.ToStatus && energized[br.To]),
			PFrom:     real(sFrom) * consts.BasePower,
			QFrom:     imag(sFrom) * consts.BasePower,
			IFrom:     cmplx.Abs(iFrom) * base,
			SFrom:     cmplx.Abs(sFrom) * consts.BasePower,
			PTo:       real(sTo) * consts.BasePower,
			QTo:       imag(sTo) * consts.BasePower,
			ITo:       cmplx.Abs(iTo) * base,
			STo:       cmplx.Abs(sTo) * consts.BasePower,
		}
		if l.IN > 0 {
			lr.Loading = math.Max(lr.IFrom, lr.ITo) / l.IN
		}
		res.Lines[i] = lr
	}

	for i := range res.Nodes {
		n := net.Node(i)
		v := cmplx.Abs(u[i])
		res.Nodes[i] = NodeResult{
			ID:        n.ID,
			Energized: energized[i],
			UPu:       v,
			U:         v * n.URated,
			UAngle:    cmplx.Phase(u[i]),
			P:         real(injection[i]) * consts.BasePower,
			Q:         imag(injection[i]) * consts.BasePower,
		}
	}

	for i := range res.Sources {
		s := net.Source(i)
		node := net.SourceNode(i)
		res.Sources[i] = applianceResult(net, s.ID, s.Status && energized[node], node, flows.sources[i], u[node])
	}
	for i := range res.Loads {
		l := net.Load(i)
		node := net.LoadNode(i)
		res.Loads[i] = applianceResult(net, l.ID, l.Status && energized[node], node, flows.loads[i], u[node])
	}

	for i, s := range net.VoltageSensors() {
		node := res.Nodes[net.VoltageSensorNode(i)]
		sr := VoltageSensorResult{ID: s.ID, UResidual: s.UMeasured - node.U}
		if s.HasAngle() {
			sr.UAngleResidual = *s.UAngleMeasured - node.UAngle
		}
		res.VoltageSensors[i] = sr
	}

	for i, s := range net.PowerSensors() {
		obj := net.PowerSensorObject(i)
		var p, q float64
		switch s.MeasuredTerminalType {
		case network.BranchFrom:
			p, q = res.Lines[obj].PFrom, res.Lines[obj].QFrom
		case network.BranchTo:
			p, q = res.Lines[obj].PTo, res.Lines[obj].QTo
		case network.TerminalSource:
			p, q = res.Sources[obj].P, res.Sources[obj].Q
		case network.TerminalLoad:
			p, q = res.Loads[obj].P, res.Loads[obj].Q
		}
		res.PowerSensors[i] = PowerSensorResult{ID: s.ID, PResidual: s.PMeasured - p, QResidual: s.QMeasured - q}
	}

	return res
}

func applianceResult(net *network.Network, id int, energized bool, node int, s, u complex128) ApplianceResult {
	if !energized {
		return ApplianceResult{ID: id}
	}
	ar := ApplianceResult{
		ID:        id,
		Energized: true,
		P:         real(s) * consts.BasePower,
		Q:         imag(s) * consts.BasePower,
		S:         cmplx.Abs(s) * consts.BasePower,
	}
	if v := cmplx.Abs(u); v > 0 {
		ar.I = cmplx.Abs(s) / v * net.BaseCurrent(node)
	}
	if ar.S > 0 {
		ar.PF = ar.P / ar.S
	}
	return ar
}

// Table is a column view of one component kind, one row per component with
// the id in the first column.
type Table struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Table renders the results of one component kind.
func (r *Result) Table(kind network.ComponentKind) Table {
	var t Table
	switch kind {
	case network.KindNode:
		t.Columns = []string{"id", "energized", "u_pu", "u", "u_angle", "p", "q"}
		for _, n := range r.Nodes {
			t.Rows = append(t.Rows, []float64{float64(n.ID), flag(n.Energized), n.UPu, n.U, n.UAngle, n.P, n.Q})
		}
	case network.KindLine:
		t.Columns = []string{"id", "energized", "loading", "p_from", "q_from", "i_from", "s_from", "p_to", "q_to", "i_to", "s_to"}
		for _, l := range r.Lines {
			t.Rows = append(t.Rows, []float64{float64(l.ID), flag(l.Energized), l.Loading,
				l.PFrom, l.QFrom, l.IFrom, l.SFrom, l.PTo, l.QTo, l.ITo, l.STo})
		}
	case network.KindSource, network.KindLoad:
		t.Columns = []string{"id", "energized", "p", "q", "i", "s", "pf"}
		rows := r.Sources
		if kind == network.KindLoad {
			rows = r.Loads
		}
		for _, a := range rows {
			t.Rows = append(t.Rows, []float64{float64(a.ID), flag(a.Energized), a.P, a.Q, a.I, a.S, a.PF})
		}
	case network.KindVoltageSensor:
		t.Columns = []string{"id", "u_residual", "u_angle_residual"}
		for _, s := range r.VoltageSensors {
			t.Rows = append(t.Rows, []float64{float64(s.ID), s.UResidual, s.UAngleResidual})
		}
	case network.KindPowerSensor:
		t.Columns = []string{"id", "p_residual", "q_residual"}
		for _, s := range r.PowerSensors {
			t.Rows = append(t.Rows, []float64{float64(s.ID), s.PResidual, s.QResidual})
		}
	}
	return t
}
