package network

import "fmt"

type ComponentKind int

const (
	KindNode ComponentKind = iota
	KindLine
	KindSource
	KindLoad
	KindVoltageSensor
	KindPowerSensor
)

var kindNames = [...]string{
	KindNode:          "node",
	KindLine:          "line",
	KindSource:        "source",
	KindLoad:          "sym_load",
	KindVoltageSensor: "sym_voltage_sensor",
	KindPowerSensor:   "sym_power_sensor",
}

// Kinds lists every component kind in input order.
var Kinds = []ComponentKind{KindNode, KindLine, KindSource, KindLoad, KindVoltageSensor, KindPowerSensor}

func (k ComponentKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k ComponentKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ComponentKind) UnmarshalText(text []byte) error {
	kind, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseKind maps an input section name to its kind.
func ParseKind(name string) (ComponentKind, error) {
	for k, n := range kindNames {
		if n == name {
			return ComponentKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown component kind %q", name)
}

type LoadType int

const (
	ConstPower     LoadType = iota // S
	ConstImpedance                 // S*|U|^2
	ConstCurrent                   // S*|U|
)

// Exponent is the voltage exponent of the load model.
func (t LoadType) Exponent() float64 {
	switch t {
	case ConstImpedance:
		return 2
	case ConstCurrent:
		return 1
	default:
		return 0
	}
}

func (t LoadType) String() string {
	switch t {
	case ConstPower:
		return "const_power"
	case ConstImpedance:
		return "const_impedance"
	case ConstCurrent:
		return "const_current"
	default:
		return fmt.Sprintf("load_type(%d)", int(t))
	}
}

type TerminalType int

const (
	BranchFrom     TerminalType = 0
	BranchTo       TerminalType = 1
	TerminalSource TerminalType = 2
	TerminalLoad   TerminalType = 4
)

func (t TerminalType) String() string {
	switch t {
	case BranchFrom:
		return "branch_from"
	case BranchTo:
		return "branch_to"
	case TerminalSource:
		return "source"
	case TerminalLoad:
		return "load"
	default:
		return fmt.Sprintf("terminal(%d)", int(t))
	}
}

// MeasuredKind is the component kind a power sensor on this terminal points at.
func (t TerminalType) MeasuredKind() (ComponentKind, bool) {
	switch t {
	case BranchFrom, BranchTo:
		return KindLine, true
	case TerminalSource:
		return KindSource, true
	case TerminalLoad:
		return KindLoad, true
	default:
		return 0, false
	}
}

type Node struct {
	ID     int     `json:"id" yaml:"id"`
	URated float64 `json:"u_rated" yaml:"u_rated"` // line-to-line rated voltage (V)
}

type Line struct {
	ID         int     `json:"id" yaml:"id"`
	FromNode   int     `json:"from_node" yaml:"from_node"`
	ToNode     int     `json:"to_node" yaml:"to_node"`
	FromStatus bool    `json:"from_status" yaml:"from_status"`
	ToStatus   bool    `json:"to_status" yaml:"to_status"`
	R1         float64 `json:"r1" yaml:"r1"`     // series resistance (ohm)
	X1         float64 `json:"x1" yaml:"x1"`     // series reactance (ohm)
	C1         float64 `json:"c1" yaml:"c1"`     // shunt capacitance (F)
	Tan1       float64 `json:"tan1" yaml:"tan1"` // shunt loss factor
	IN         float64 `json:"i_n" yaml:"i_n"`   // rated current (A)
}

// Closed reports whether the line connects both of its nodes.
func (l Line) Closed() bool { return l.FromStatus && l.ToStatus }

type Source struct {
	ID        int      `json:"id" yaml:"id"`
	Node      int      `json:"node" yaml:"node"`
	Status    bool     `json:"status" yaml:"status"`
	URef      float64  `json:"u_ref" yaml:"u_ref"`             // p.u.
	URefAngle float64  `json:"u_ref_angle" yaml:"u_ref_angle"` // rad
	Sk        float64  `json:"sk,omitempty" yaml:"sk,omitempty"`
	RxRatio   *float64 `json:"rx_ratio,omitempty" yaml:"rx_ratio,omitempty"`
}

type SymLoad struct {
	ID         int      `json:"id" yaml:"id"`
	Node       int      `json:"node" yaml:"node"`
	Status     bool     `json:"status" yaml:"status"`
	Type       LoadType `json:"type" yaml:"type"`
	PSpecified float64  `json:"p_specified" yaml:"p_specified"` // W, consumption positive
	QSpecified float64  `json:"q_specified" yaml:"q_specified"` // var
}

type VoltageSensor struct {
	ID             int      `json:"id" yaml:"id"`
	MeasuredObject int      `json:"measured_object" yaml:"measured_object"`
	USigma         float64  `json:"u_sigma" yaml:"u_sigma"`       // V
	UMeasured      float64  `json:"u_measured" yaml:"u_measured"` // V
	UAngleMeasured *float64 `json:"u_angle_measured,omitempty" yaml:"u_angle_measured,omitempty"`
}

// HasAngle reports whether the sensor measures the voltage angle.
func (s VoltageSensor) HasAngle() bool { return s.UAngleMeasured != nil }

type PowerSensor struct {
	ID                   int          `json:"id" yaml:"id"`
	MeasuredObject       int          `json:"measured_object" yaml:"measured_object"`
	MeasuredTerminalType TerminalType `json:"measured_terminal_type" yaml:"measured_terminal_type"`
	PowerSigma           float64      `json:"power_sigma" yaml:"power_sigma"` // VA
	PMeasured            float64      `json:"p_measured" yaml:"p_measured"`
	QMeasured            float64      `json:"q_measured" yaml:"q_measured"`
}

// Input is the raw component set a network is built from.
type Input struct {
	Nodes          []Node          `json:"node" yaml:"node"`
	Lines          []Line          `json:"line,omitempty" yaml:"line,omitempty"`
	Sources        []Source        `json:"source,omitempty" yaml:"source,omitempty"`
	Loads          []SymLoad       `json:"sym_load,omitempty" yaml:"sym_load,omitempty"`
	VoltageSensors []VoltageSensor `json:"sym_voltage_sensor,omitempty" yaml:"sym_voltage_sensor,omitempty"`
	PowerSensors   []PowerSensor   `json:"sym_power_sensor,omitempty" yaml:"sym_power_sensor,omitempty"`
}

func Float(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }
