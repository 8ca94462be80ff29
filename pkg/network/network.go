package network

import (
	"slices"

	"github.com/edp1096/toy-powerflow/internal/consts"
)

// refs holds positions resolved once at build time. Updates never change
// ids or references, so every view of a network shares one refs value.
type refs struct {
	index       map[ComponentKind]map[int]int
	lineFrom    []int
	lineTo      []int
	sourceNode  []int
	loadNode    []int
	sensorNode  []int // voltage sensor -> node position
	sensorObj   []int // power sensor -> position in line/source/load slice
	nodeSources [][]int
	nodeLoads   [][]int
}

// Network is an immutable, validated component set. Views produced by
// WithUpdates share unchanged slices with their parent.
type Network struct {
	nodes          []Node
	lines          []Line
	sources        []Source
	loads          []SymLoad
	voltageSensors []VoltageSensor
	powerSensors   []PowerSensor
	refs           *refs
	warnings       []Issue
}

// New validates the input and builds a network from a copy of it.
func New(in *Input) (*Network, error) {
	if in == nil {
		return nil, ErrNilInput
	}

	issues := Validate(in)
	var errs, warnings []Issue
	for _, is := range issues {
		if is.Severity == SeverityError {
			errs = append(errs, is)
		} else {
			warnings = append(warnings, is)
		}
	}
	if len(errs) > 0 {
		return nil, &TopologyError{Issues: errs}
	}

	net := &Network{
		nodes:          slices.Clone(in.Nodes),
		lines:          slices.Clone(in.Lines),
		sources:        slices.Clone(in.Sources),
		loads:          slices.Clone(in.Loads),
		voltageSensors: slices.Clone(in.VoltageSensors),
		powerSensors:   slices.Clone(in.PowerSensors),
		warnings:       warnings,
	}
	for i := range net.sources {
		s := &net.sources[i]
		if s.Sk == 0 {
			s.Sk = consts.SourceSk
		}
		if s.RxRatio == nil {
			s.RxRatio = Float(consts.SourceRxRatio)
		}
	}
	net.refs = buildRefs(net)

	return net, nil
}

func buildRefs(net *Network) *refs {
	r := &refs{index: make(map[ComponentKind]map[int]int, len(Kinds))}
	add := func(kind ComponentKind, n int, id func(int) int) {
		m := make(map[int]int, n)
		for i := 0; i < n; i++ {
			m[id(i)] = i
		}
		r.index[kind] = m
	}
	add(KindNode, len(net.nodes), func(i int) int { return net.nodes[i].ID })
	add(KindLine, len(net.lines), func(i int) int { return net.lines[i].ID })
	add(KindSource, len(net.sources), func(i int) int { return net.sources[i].ID })
	add(KindLoad, len(net.loads), func(i int) int { return net.loads[i].ID })
	add(KindVoltageSensor, len(net.voltageSensors), func(i int) int { return net.voltageSensors[i].ID })
	add(KindPowerSensor, len(net.powerSensors), func(i int) int { return net.powerSensors[i].ID })

	nodeIdx := r.index[KindNode]
	r.nodeSources = make([][]int, len(net.nodes))
	r.nodeLoads = make([][]int, len(net.nodes))

	for _, l := range net.lines {
		r.lineFrom = append(r.lineFrom, nodeIdx[l.FromNode])
		r.lineTo = append(r.lineTo, nodeIdx[l.ToNode])
	}
	for i, s := range net.sources {
		n := nodeIdx[s.Node]
		r.sourceNode = append(r.sourceNode, n)
		r.nodeSources[n] = append(r.nodeSources[n], i)
	}
	for i, l := range net.loads {
		n := nodeIdx[l.Node]
		r.loadNode = append(r.loadNode, n)
		r.nodeLoads[n] = append(r.nodeLoads[n], i)
	}
	for _, s := range net.voltageSensors {
		r.sensorNode = append(r.sensorNode, nodeIdx[s.MeasuredObject])
	}
	for _, s := range net.powerSensors {
		kind, _ := s.MeasuredTerminalType.MeasuredKind()
		r.sensorObj = append(r.sensorObj, r.index[kind][s.MeasuredObject])
	}
	return r
}

// Count returns the number of components of a kind.
func (n *Network) Count(kind ComponentKind) int {
	switch kind {
	case KindNode:
		return len(n.nodes)
	case KindLine:
		return len(n.lines)
	case KindSource:
		return len(n.sources)
	case KindLoad:
		return len(n.loads)
	case KindVoltageSensor:
		return len(n.voltageSensors)
	case KindPowerSensor:
		return len(n.powerSensors)
	default:
		return 0
	}
}

// Index returns the position of a component id within its kind.
func (n *Network) Index(kind ComponentKind, id int) (int, bool) {
	pos, ok := n.refs.index[kind][id]
	return pos, ok
}

func (n *Network) Warnings() []Issue { return slices.Clone(n.warnings) }

func (n *Network) Nodes() []Node                   { return slices.Clone(n.nodes) }
func (n *Network) Lines() []Line                   { return slices.Clone(n.lines) }
func (n *Network) Sources() []Source               { return slices.Clone(n.sources) }
func (n *Network) Loads() []SymLoad                { return slices.Clone(n.loads) }
func (n *Network) VoltageSensors() []VoltageSensor { return slices.Clone(n.voltageSensors) }
func (n *Network) PowerSensors() []PowerSensor     { return slices.Clone(n.powerSensors) }

func (n *Network) Node(i int) Node                   { return n.nodes[i] }
func (n *Network) Line(i int) Line                   { return n.lines[i] }
func (n *Network) Source(i int) Source               { return n.sources[i] }
func (n *Network) Load(i int) SymLoad                { return n.loads[i] }
func (n *Network) VoltageSensor(i int) VoltageSensor { return n.voltageSensors[i] }
func (n *Network) PowerSensor(i int) PowerSensor     { return n.powerSensors[i] }

// LineNodes returns the node positions of line i.
func (n *Network) LineNodes(i int) (from, to int) { return n.refs.lineFrom[i], n.refs.lineTo[i] }

func (n *Network) SourceNode(i int) int        { return n.refs.sourceNode[i] }
func (n *Network) LoadNode(i int) int          { return n.refs.loadNode[i] }
func (n *Network) VoltageSensorNode(i int) int { return n.refs.sensorNode[i] }

// PowerSensorObject returns the position of the measured line, source or
// load, depending on the sensor's terminal type.
func (n *Network) PowerSensorObject(i int) int { return n.refs.sensorObj[i] }

// NodeSources and NodeLoads list appliance positions attached to node i,
// regardless of their status.
func (n *Network) NodeSources(i int) []int { return n.refs.nodeSources[i] }
func (n *Network) NodeLoads(i int) []int   { return n.refs.nodeLoads[i] }

// BaseImpedance returns the per-unit impedance base of node i (ohm).
func (n *Network) BaseImpedance(i int) float64 {
	u := n.nodes[i].URated
	return u * u / consts.BasePower
}

// BaseCurrent returns the per-unit current base of node i (A).
func (n *Network) BaseCurrent(i int) float64 {
	return consts.BasePower / (consts.Sqrt3 * n.nodes[i].URated)
}
