package network

import (
	"fmt"
	"math"
)

type validator struct {
	in     *Input
	issues []Issue
	ids    map[ComponentKind]map[int]int
}

// Validate checks referential integrity and parameter sanity of an input.
// It reports every problem it finds instead of stopping at the first one.
func Validate(in *Input) []Issue {
	if in == nil {
		return []Issue{{Component: KindNode, Rule: ErrNilInput.Error(), Severity: SeverityError}}
	}

	v := &validator{in: in, ids: make(map[ComponentKind]map[int]int)}
	v.collectIDs()
	v.checkNodes()
	v.checkLines()
	v.checkSources()
	v.checkLoads()
	v.checkVoltageSensors()
	v.checkPowerSensors()
	v.checkConnectivity()
	return v.issues
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (v *validator) fail(kind ComponentKind, id int, format string, args ...any) {
	v.issues = append(v.issues, Issue{Component: kind, ID: id, Rule: fmt.Sprintf(format, args...), Severity: SeverityError})
}

func (v *validator) warn(kind ComponentKind, id int, format string, args ...any) {
	v.issues = append(v.issues, Issue{Component: kind, ID: id, Rule: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

func (v *validator) register(kind ComponentKind, id, pos int) {
	m := v.ids[kind]
	if m == nil {
		m = make(map[int]int)
		v.ids[kind] = m
	}
	if _, dup := m[id]; dup {
		v.fail(kind, id, "duplicate id")
		return
	}
	m[id] = pos
}

func (v *validator) collectIDs() {
	for i, n := range v.in.Nodes {
		v.register(KindNode, n.ID, i)
	}
	for i, l := range v.in.Lines {
		v.register(KindLine, l.ID, i)
	}
	for i, s := range v.in.Sources {
		v.register(KindSource, s.ID, i)
	}
	for i, l := range v.in.Loads {
		v.register(KindLoad, l.ID, i)
	}
	for i, s := range v.in.VoltageSensors {
		v.register(KindVoltageSensor, s.ID, i)
	}
	for i, s := range v.in.PowerSensors {
		v.register(KindPowerSensor, s.ID, i)
	}
}

func (v *validator) node(id int) (Node, bool) {
	pos, ok := v.ids[KindNode][id]
	if !ok {
		return Node{}, false
	}
	return v.in.Nodes[pos], true
}

func positive(x float64) bool { return x > 0 && !math.IsInf(x, 1) }

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func (v *validator) checkNodes() {
	for _, n := range v.in.Nodes {
		if !positive(n.URated) {
			v.fail(KindNode, n.ID, "u_rated must be positive, got %g", n.URated)
		}
	}
}

func (v *validator) checkLines() {
	for _, l := range v.in.Lines {
		from, okFrom := v.node(l.FromNode)
		to, okTo := v.node(l.ToNode)
		if !okFrom {
			v.fail(KindLine, l.ID, "from_node %d does not exist", l.FromNode)
		}
		if !okTo {
			v.fail(KindLine, l.ID, "to_node %d does not exist", l.ToNode)
		}
		if l.FromNode == l.ToNode {
			v.fail(KindLine, l.ID, "from_node and to_node are both %d", l.FromNode)
		}
		if okFrom && okTo && from.URated != to.URated {
			v.fail(KindLine, l.ID, "connects nodes of different rated voltage (%g V, %g V)", from.URated, to.URated)
		}
		if l.R1 < 0 || math.IsNaN(l.R1) {
			v.fail(KindLine, l.ID, "r1 must be non-negative, got %g", l.R1)
		}
		if l.R1 == 0 && l.X1 == 0 {
			v.fail(KindLine, l.ID, "series impedance is zero")
		}
		if l.C1 < 0 || math.IsNaN(l.C1) {
			v.fail(KindLine, l.ID, "c1 must be non-negative, got %g", l.C1)
		}
		if !positive(l.IN) {
			v.warn(KindLine, l.ID, "i_n is not set, loading is reported as zero")
		}
	}
}

func (v *validator) checkSources() {
	if len(v.in.Sources) == 0 {
		v.warn(KindSource, 0, "network has no source")
	}
	for _, s := range v.in.Sources {
		if _, ok := v.node(s.Node); !ok {
			v.fail(KindSource, s.ID, "node %d does not exist", s.Node)
		}
		if !positive(s.URef) {
			v.fail(KindSource, s.ID, "u_ref must be positive, got %g", s.URef)
		}
		if s.Sk < 0 || math.IsNaN(s.Sk) {
			v.fail(KindSource, s.ID, "sk must be positive, got %g", s.Sk)
		}
		if !finite(s.URefAngle) {
			v.fail(KindSource, s.ID, "u_ref_angle must be finite, got %g", s.URefAngle)
		}
		if s.RxRatio != nil && (*s.RxRatio < 0 || math.IsNaN(*s.RxRatio)) {
			v.fail(KindSource, s.ID, "rx_ratio must be non-negative, got %g", *s.RxRatio)
		}
	}
}

func (v *validator) checkLoads() {
	for _, l := range v.in.Loads {
		if _, ok := v.node(l.Node); !ok {
			v.fail(KindLoad, l.ID, "node %d does not exist", l.Node)
		}
		if !finite(l.PSpecified) || !finite(l.QSpecified) {
			v.fail(KindLoad, l.ID, "p_specified and q_specified must be finite, got %g, %g", l.PSpecified, l.QSpecified)
		}
		if l.Type < ConstPower || l.Type > ConstCurrent {
			v.fail(KindLoad, l.ID, "unknown load type %d", int(l.Type))
		}
	}
}

func (v *validator) checkSigma(kind ComponentKind, id int, name string, sigma float64) {
	switch {
	case sigma < 0 || math.IsNaN(sigma):
		v.fail(kind, id, "%s must be non-negative, got %g", name, sigma)
	case sigma == 0:
		v.warn(kind, id, "%s is zero, measurement is treated as exact", name)
	}
}

func (v *validator) checkVoltageSensors() {
	for _, s := range v.in.VoltageSensors {
		if _, ok := v.node(s.MeasuredObject); !ok {
			v.fail(KindVoltageSensor, s.ID, "measured node %d does not exist", s.MeasuredObject)
		}
		v.checkSigma(KindVoltageSensor, s.ID, "u_sigma", s.USigma)
		if s.UMeasured < 0 || !finite(s.UMeasured) {
			v.fail(KindVoltageSensor, s.ID, "u_measured must be non-negative, got %g", s.UMeasured)
		}
		if s.UAngleMeasured != nil && !finite(*s.UAngleMeasured) {
			v.fail(KindVoltageSensor, s.ID, "u_angle_measured must be finite, omit it instead")
		}
	}
}

func (v *validator) checkPowerSensors() {
	for _, s := range v.in.PowerSensors {
		kind, ok := s.MeasuredTerminalType.MeasuredKind()
		if !ok {
			v.fail(KindPowerSensor, s.ID, "unknown measured_terminal_type %d", int(s.MeasuredTerminalType))
			continue
		}
		pos, exists := v.ids[kind][s.MeasuredObject]
		if !exists {
			v.fail(KindPowerSensor, s.ID, "measured %s %d does not exist", kind, s.MeasuredObject)
		}
		v.checkSigma(KindPowerSensor, s.ID, "power_sigma", s.PowerSigma)
		if !finite(s.PMeasured) || !finite(s.QMeasured) {
			v.fail(KindPowerSensor, s.ID, "p_measured and q_measured must be finite, got %g, %g", s.PMeasured, s.QMeasured)
		}
		if !exists {
			continue
		}

		connected := true
		switch kind {
		case KindLine:
			l := v.in.Lines[pos]
			connected = (s.MeasuredTerminalType == BranchFrom && l.FromStatus) ||
				(s.MeasuredTerminalType == BranchTo && l.ToStatus)
		case KindSource:
			connected = v.in.Sources[pos].Status
		case KindLoad:
			connected = v.in.Loads[pos].Status
		}
		if !connected {
			v.warn(KindPowerSensor, s.ID, "measured %s %d is disconnected", kind, s.MeasuredObject)
		}
	}
}

func (v *validator) checkConnectivity() {
	used := make(map[int]bool, len(v.in.Nodes))
	for _, l := range v.in.Lines {
		used[l.FromNode] = true
		used[l.ToNode] = true
	}
	for _, s := range v.in.Sources {
		used[s.Node] = true
	}
	for _, l := range v.in.Loads {
		used[l.Node] = true
	}
	for _, n := range v.in.Nodes {
		if !used[n.ID] {
			v.warn(KindNode, n.ID, "node is not connected to any line or appliance")
		}
	}
}
