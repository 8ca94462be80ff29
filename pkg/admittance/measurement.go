package admittance

import (
	"math"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

type MeasurementKind int

const (
	VoltageMagnitude MeasurementKind = iota
	VoltageAngle
	NodeInjection // P + jQ injected at Node
	BranchFlow    // P + jQ entering Line at Side
)

func (k MeasurementKind) String() string {
	switch k {
	case VoltageMagnitude:
		return "voltage_magnitude"
	case VoltageAngle:
		return "voltage_angle"
	case NodeInjection:
		return "node_injection"
	case BranchFlow:
		return "branch_flow"
	default:
		return "unknown"
	}
}

// Measurement is one entry of the observation vector in p.u.
type Measurement struct {
	Kind  MeasurementKind
	Node  int
	Line  int
	Side  network.TerminalType
	Value complex128 // magnitude or angle in the real part
	Sigma float64
}

// Appliance is a source or load connected to a node, with its merged
// sensor value as a node injection.
type Appliance struct {
	Kind     network.ComponentKind
	Pos      int
	Measured bool
	Value    complex128
	Variance float64
}

// Derivative is one non-zero of an H row.
type Derivative struct {
	Node   int
	DTheta float64
	DV     float64
}

// Row is a measurement evaluated at a state: z, h(x), sigma and grad h.
type Row struct {
	Z, H  float64
	Sigma float64
	Grad  []Derivative
}

// MeasurementModel maps the sensors of a network onto node injection,
// branch flow and voltage measurements.
type MeasurementModel struct {
	Bus          *Bus
	Measurements []Measurement
	Appliances   [][]Appliance // connected appliances per node
	minSigma     float64
}

func floorSigma(s float64) float64 {
	return math.Max(s, consts.SigmaFloor)
}

// NewMeasurementModel collects the measurements of net. Sensors on one
// appliance are merged by inverse variance; a node gets an injection
// measurement only when all its connected appliances are measured, and a
// zero injection when it has none.
func NewMeasurementModel(net *network.Network, bus *Bus) *MeasurementModel {
	m := &MeasurementModel{Bus: bus, minSigma: math.Inf(1)}
	add := func(meas Measurement) {
		meas.Sigma = floorSigma(meas.Sigma)
		m.minSigma = math.Min(m.minSigma, meas.Sigma)
		m.Measurements = append(m.Measurements, meas)
	}

	for i, s := range net.VoltageSensors() {
		node := net.VoltageSensorNode(i)
		uRated := net.Node(node).URated
		sigma := s.USigma / uRated
		add(Measurement{Kind: VoltageMagnitude, Node: node, Value: complex(s.UMeasured/uRated, 0), Sigma: sigma})
		if s.HasAngle() {
			add(Measurement{Kind: VoltageAngle, Node: node, Value: complex(*s.UAngleMeasured, 0), Sigma: sigma})
		}
	}

	type merged struct {
		weighted complex128
		inverse  float64
	}
	sources := make(map[int]*merged)
	loads := make(map[int]*merged)

	for i, s := range net.PowerSensors() {
		obj := net.PowerSensorObject(i)
		value := complex(s.PMeasured, s.QMeasured) / consts.BasePower
		sigma := floorSigma(s.PowerSigma / consts.BasePower)

		var acc map[int]*merged
		switch s.MeasuredTerminalType {
		case network.BranchFrom, network.BranchTo:
			l := net.Line(obj)
			if (s.MeasuredTerminalType == network.BranchFrom && !l.FromStatus) ||
				(s.MeasuredTerminalType == network.BranchTo && !l.ToStatus) {
				continue
			}
			add(Measurement{Kind: BranchFlow, Line: obj, Side: s.MeasuredTerminalType, Value: value, Sigma: sigma})
			continue
		case network.TerminalSource:
			if !net.Source(obj).Status {
				continue
			}
			acc = sources
		case network.TerminalLoad:
			if !net.Load(obj).Status {
				continue
			}
			acc = loads
		default:
			continue
		}
		mg := acc[obj]
		if mg == nil {
			mg = &merged{}
			acc[obj] = mg
		}
		w := 1 / (sigma * sigma)
		mg.weighted += value * complex(w, 0)
		mg.inverse += w
	}

	m.Appliances = make([][]Appliance, net.Count(network.KindNode))
	for node := range m.Appliances {
		var list []Appliance
		for _, pos := range net.NodeSources(node) {
			if !net.Source(pos).Status {
				continue
			}
			a := Appliance{Kind: network.KindSource, Pos: pos}
			if mg, ok := sources[pos]; ok {
				a.Measured = true
				a.Value = mg.weighted / complex(mg.inverse, 0)
				a.Variance = 1 / mg.inverse
			}
			list = append(list, a)
		}
		for _, pos := range net.NodeLoads(node) {
			if !net.Load(pos).Status {
				continue
			}
			a := Appliance{Kind: network.KindLoad, Pos: pos}
			if mg, ok := loads[pos]; ok {
				a.Measured = true
				// consumption counts against the injection
				a.Value = -mg.weighted / complex(mg.inverse, 0)
				a.Variance = 1 / mg.inverse
			}
			list = append(list, a)
		}
		m.Appliances[node] = list
	}

	var zeroInjection []int
	for node, list := range m.Appliances {
		if len(list) == 0 {
			zeroInjection = append(zeroInjection, node)
			continue
		}
		var value complex128
		var variance float64
		complete := true
		for _, a := range list {
			if !a.Measured {
				complete = false
				break
			}
			value += a.Value
			variance += a.Variance
		}
		if complete {
			add(Measurement{Kind: NodeInjection, Node: node, Value: value, Sigma: math.Sqrt(variance)})
		}
	}

	pseudo := m.minSigma
	if math.IsInf(pseudo, 1) {
		pseudo = 1
	}
	for _, node := range zeroInjection {
		add(Measurement{Kind: NodeInjection, Node: node, Sigma: pseudo})
	}
	return m
}

// AnglesMeasured reports whether any voltage angle is measured.
func (m *MeasurementModel) AnglesMeasured() bool {
	for _, meas := range m.Measurements {
		if meas.Kind == VoltageAngle {
			return true
		}
	}
	return false
}

// MinSigma is the smallest (floored) sigma of all measurements.
func (m *MeasurementModel) MinSigma() float64 {
	if math.IsInf(m.minSigma, 1) {
		return 1
	}
	return m.minSigma
}

// Weight returns 1/sigma^2 normalised to the smallest sigma.
func (m *MeasurementModel) Weight(sigma float64) float64 {
	r := m.MinSigma() / floorSigma(sigma)
	return r * r
}

// Evaluate returns one row per scalar measurement at st. Power
// measurements produce a P row followed by a Q row.
func (m *MeasurementModel) Evaluate(st State) []Row {
	rows := make([]Row, 0, 2*len(m.Measurements))
	for _, meas := range m.Measurements {
		switch meas.Kind {
		case VoltageMagnitude:
			rows = append(rows, Row{
				Z: real(meas.Value), H: st.V[meas.Node], Sigma: meas.Sigma,
				Grad: []Derivative{{Node: meas.Node, DV: 1}},
			})
		case VoltageAngle:
			rows = append(rows, Row{
				Z: real(meas.Value), H: st.Theta[meas.Node], Sigma: meas.Sigma,
				Grad: []Derivative{{Node: meas.Node, DTheta: 1}},
			})
		case NodeInjection, BranchFlow:
			var t Terms
			if meas.Kind == NodeInjection {
				t = m.Bus.InjectionTerms(meas.Node, st)
			} else {
				t = m.Bus.BranchTerms(meas.Line, meas.Side, st)
			}
			pRow := Row{Z: real(meas.Value), H: t.P, Sigma: meas.Sigma}
			qRow := Row{Z: imag(meas.Value), H: t.Q, Sigma: meas.Sigma}
			for _, p := range t.Partials {
				pRow.Grad = append(pRow.Grad, Derivative{Node: p.Node, DTheta: p.DPdTheta, DV: p.DPdV})
				qRow.Grad = append(qRow.Grad, Derivative{Node: p.Node, DTheta: p.DQdTheta, DV: p.DQdV})
			}
			rows = append(rows, pRow, qRow)
		}
	}
	return rows
}
