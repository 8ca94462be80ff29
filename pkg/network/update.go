package network

import (
	"fmt"
	"math"
	"slices"
)

// Update is a partial change of statuses and specified or measured values,
// keyed by component id. Nil fields keep the current value.
type Update struct {
	Name           string                `json:"name,omitempty" yaml:"name,omitempty"`
	Lines          []LineUpdate          `json:"line,omitempty" yaml:"line,omitempty"`
	Sources        []SourceUpdate        `json:"source,omitempty" yaml:"source,omitempty"`
	Loads          []LoadUpdate          `json:"sym_load,omitempty" yaml:"sym_load,omitempty"`
	VoltageSensors []VoltageSensorUpdate `json:"sym_voltage_sensor,omitempty" yaml:"sym_voltage_sensor,omitempty"`
	PowerSensors   []PowerSensorUpdate   `json:"sym_power_sensor,omitempty" yaml:"sym_power_sensor,omitempty"`
}

type LineUpdate struct {
	ID         int   `json:"id" yaml:"id"`
	FromStatus *bool `json:"from_status,omitempty" yaml:"from_status,omitempty"`
	ToStatus   *bool `json:"to_status,omitempty" yaml:"to_status,omitempty"`
}

type SourceUpdate struct {
	ID        int      `json:"id" yaml:"id"`
	Status    *bool    `json:"status,omitempty" yaml:"status,omitempty"`
	URef      *float64 `json:"u_ref,omitempty" yaml:"u_ref,omitempty"`
	URefAngle *float64 `json:"u_ref_angle,omitempty" yaml:"u_ref_angle,omitempty"`
}

type LoadUpdate struct {
	ID         int      `json:"id" yaml:"id"`
	Status     *bool    `json:"status,omitempty" yaml:"status,omitempty"`
	PSpecified *float64 `json:"p_specified,omitempty" yaml:"p_specified,omitempty"`
	QSpecified *float64 `json:"q_specified,omitempty" yaml:"q_specified,omitempty"`
}

type VoltageSensorUpdate struct {
	ID             int      `json:"id" yaml:"id"`
	USigma         *float64 `json:"u_sigma,omitempty" yaml:"u_sigma,omitempty"`
	UMeasured      *float64 `json:"u_measured,omitempty" yaml:"u_measured,omitempty"`
	UAngleMeasured *float64 `json:"u_angle_measured,omitempty" yaml:"u_angle_measured,omitempty"`
}

type PowerSensorUpdate struct {
	ID         int      `json:"id" yaml:"id"`
	PowerSigma *float64 `json:"power_sigma,omitempty" yaml:"power_sigma,omitempty"`
	PMeasured  *float64 `json:"p_measured,omitempty" yaml:"p_measured,omitempty"`
	QMeasured  *float64 `json:"q_measured,omitempty" yaml:"q_measured,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return len(u.Lines) == 0 && len(u.Sources) == 0 && len(u.Loads) == 0 &&
		len(u.VoltageSensors) == 0 && len(u.PowerSensors) == 0
}

// WithUpdates returns a view of the network with the update applied. The
// receiver is left untouched; only the component slices the update touches
// are copied.
func (n *Network) WithUpdates(u Update) (*Network, error) {
	view := *n

	if len(u.Lines) > 0 {
		view.lines = slices.Clone(n.lines)
		for _, up := range u.Lines {
			pos, ok := n.Index(KindLine, up.ID)
			if !ok {
				return nil, topologyError(KindLine, up.ID, "update references unknown id")
			}
			l := &view.lines[pos]
			if up.FromStatus != nil {
				l.FromStatus = *up.FromStatus
			}
			if up.ToStatus != nil {
				l.ToStatus = *up.ToStatus
			}
		}
	}

	if len(u.Sources) > 0 {
		view.sources = slices.Clone(n.sources)
		for _, up := range u.Sources {
			pos, ok := n.Index(KindSource, up.ID)
			if !ok {
				return nil, topologyError(KindSource, up.ID, "update references unknown id")
			}
			s := &view.sources[pos]
			if up.Status != nil {
				s.Status = *up.Status
			}
			if up.URef != nil {
				if !positive(*up.URef) {
					return nil, topologyError(KindSource, up.ID, "u_ref must be positive, got %g", *up.URef)
				}
				s.URef = *up.URef
			}
			if err := checkUpdatedValue(KindSource, up.ID, "u_ref_angle", up.URefAngle); err != nil {
				return nil, err
			}
			if up.URefAngle != nil {
				s.URefAngle = *up.URefAngle
			}
		}
	}

	if len(u.Loads) > 0 {
		view.loads = slices.Clone(n.loads)
		for _, up := range u.Loads {
			pos, ok := n.Index(KindLoad, up.ID)
			if !ok {
				return nil, topologyError(KindLoad, up.ID, "update references unknown id")
			}
			l := &view.loads[pos]
			if up.Status != nil {
				l.Status = *up.Status
			}
			if err := checkUpdatedValue(KindLoad, up.ID, "p_specified", up.PSpecified); err != nil {
				return nil, err
			}
			if err := checkUpdatedValue(KindLoad, up.ID, "q_specified", up.QSpecified); err != nil {
				return nil, err
			}
			if up.PSpecified != nil {
				l.PSpecified = *up.PSpecified
			}
			if up.QSpecified != nil {
				l.QSpecified = *up.QSpecified
			}
		}
	}

	if len(u.VoltageSensors) > 0 {
		view.voltageSensors = slices.Clone(n.voltageSensors)
		for _, up := range u.VoltageSensors {
			pos, ok := n.Index(KindVoltageSensor, up.ID)
			if !ok {
				return nil, topologyError(KindVoltageSensor, up.ID, "update references unknown id")
			}
			s := &view.voltageSensors[pos]
			if err := checkUpdatedSigma(KindVoltageSensor, up.ID, up.USigma); err != nil {
				return nil, err
			}
			if up.USigma != nil {
				s.USigma = *up.USigma
			}
			if err := checkUpdatedValue(KindVoltageSensor, up.ID, "u_measured", up.UMeasured); err != nil {
				return nil, err
			}
			if up.UMeasured != nil && *up.UMeasured < 0 {
				return nil, topologyError(KindVoltageSensor, up.ID, "u_measured must be non-negative, got %g", *up.UMeasured)
			}
			if err := checkUpdatedValue(KindVoltageSensor, up.ID, "u_angle_measured", up.UAngleMeasured); err != nil {
				return nil, err
			}
			if up.UMeasured != nil {
				s.UMeasured = *up.UMeasured
			}
			if up.UAngleMeasured != nil {
				s.UAngleMeasured = Float(*up.UAngleMeasured)
			}
		}
	}

	if len(u.PowerSensors) > 0 {
		view.powerSensors = slices.Clone(n.powerSensors)
		for _, up := range u.PowerSensors {
			pos, ok := n.Index(KindPowerSensor, up.ID)
			if !ok {
				return nil, topologyError(KindPowerSensor, up.ID, "update references unknown id")
			}
			s := &view.powerSensors[pos]
			if err := checkUpdatedSigma(KindPowerSensor, up.ID, up.PowerSigma); err != nil {
				return nil, err
			}
			if up.PowerSigma != nil {
				s.PowerSigma = *up.PowerSigma
			}
			if err := checkUpdatedValue(KindPowerSensor, up.ID, "p_measured", up.PMeasured); err != nil {
				return nil, err
			}
			if err := checkUpdatedValue(KindPowerSensor, up.ID, "q_measured", up.QMeasured); err != nil {
				return nil, err
			}
			if up.PMeasured != nil {
				s.PMeasured = *up.PMeasured
			}
			if up.QMeasured != nil {
				s.QMeasured = *up.QMeasured
			}
		}
	}

	return &view, nil
}

func checkUpdatedSigma(kind ComponentKind, id int, sigma *float64) error {
	if sigma != nil && (*sigma < 0 || math.IsNaN(*sigma)) {
		return topologyError(kind, id, "sigma must be non-negative, got %g", *sigma)
	}
	return nil
}

func checkUpdatedValue(kind ComponentKind, id int, name string, v *float64) error {
	if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
		return topologyError(kind, id, "%s must be finite, got %g", name, *v)
	}
	return nil
}

// ContingencyUpdates returns one update per closed line that opens both of
// its sides, in line order.
func (n *Network) ContingencyUpdates() []Update {
	var updates []Update
	for _, l := range n.lines {
		if !l.Closed() {
			continue
		}
		updates = append(updates, Update{
			Name:  fmt.Sprintf("line %d out", l.ID),
			Lines: []LineUpdate{{ID: l.ID, FromStatus: Bool(false), ToStatus: Bool(false)}},
		})
	}
	return updates
}
