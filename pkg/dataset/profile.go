package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/edp1096/toy-powerflow/pkg/network"
)

var unitMap = map[string]float64{
	"G":   1e9,  // giga
	"M":   1e6,  // mega
	"meg": 1e6,  // mega
	"k":   1e3,  // kilo
	"K":   1e3,  // kilo
	"m":   1e-3, // milli
	"u":   1e-6, // micro
}

// ParseValue parses a number with an optional SI suffix, e.g. "20M" or "1.5k".
func ParseValue(val string) (float64, error) {
	val = strings.TrimSpace(val)
	if v, err := strconv.ParseFloat(val, 64); err == nil {
		return v, nil
	}
	// "meg" before "m"
	for _, unit := range []string{"meg", "G", "M", "k", "K", "m", "u"} {
		if strings.HasSuffix(val, unit) {
			num, err := strconv.ParseFloat(strings.TrimSuffix(val, unit), 64)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", val)
			}
			return num * unitMap[unit], nil
		}
	}
	return 0, fmt.Errorf("invalid value %q", val)
}

// ProfileError reports a malformed cell of a profile.
type ProfileError struct {
	Line   int
	Column string
	Err    error
}

func (e *ProfileError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d, column %q: %v", e.Line, e.Column, e.Err)
}

func (e *ProfileError) Unwrap() error { return e.Err }

var errEmptyProfile = errors.New("profile has no header")

// defaultField is the field of a bare "<id>" column.
var defaultField = map[network.ComponentKind]string{
	network.KindLine:          "to_status",
	network.KindSource:        "u_ref",
	network.KindLoad:          "p_specified",
	network.KindVoltageSensor: "u_measured",
	network.KindPowerSensor:   "p_measured",
}

type column struct {
	header string
	id     int
	field  string
}

// LoadProfile reads a CSV time series for one component kind: a header of
// "<id>" or "<id>:<field>" columns, optionally led by a "name" column, and
// one scenario per row.
//
//	name,6:p_specified,6:q_specified,7:p_specified
//	t0,20M,5M,10M
func LoadProfile(r io.Reader, kind network.ComponentKind) ([]network.Update, error) {
	if _, ok := defaultField[kind]; !ok {
		return nil, fmt.Errorf("%v has no time series fields", kind)
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errEmptyProfile
	}
	if err != nil {
		return nil, &ProfileError{Line: 1, Err: err}
	}

	named := len(header) > 0 && strings.EqualFold(header[0], "name")
	var cols []column
	for i, h := range header {
		if i == 0 && named {
			continue
		}
		c, err := parseColumn(kind, h)
		if err != nil {
			return nil, &ProfileError{Line: 1, Column: h, Err: err}
		}
		cols = append(cols, c)
	}

	var updates []network.Update
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &ProfileError{Line: pe.Line, Err: pe.Err}
			}
			return nil, &ProfileError{Err: err}
		}
		line, _ := cr.FieldPos(0)

		u := network.Update{}
		fields := record
		if named {
			u.Name = record[0]
			fields = record[1:]
		}
		for i, cell := range fields {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			if err := applyCell(&u, kind, cols[i], cell); err != nil {
				return nil, &ProfileError{Line: line, Column: cols[i].header, Err: err}
			}
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func parseColumn(kind network.ComponentKind, h string) (column, error) {
	idPart, field, found := strings.Cut(strings.TrimSpace(h), ":")
	if !found {
		field = defaultField[kind]
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return column{}, fmt.Errorf("invalid component id %q", idPart)
	}
	if _, err := cellSetter(kind, field); err != nil {
		return column{}, err
	}
	return column{header: h, id: id, field: field}, nil
}

type setter func(u *network.Update, id int, cell string) error

// cellSetter returns the function that writes one field of one component
// into an update, merging with earlier columns for the same id.
func cellSetter(kind network.ComponentKind, field string) (setter, error) {
	num := func(assign func(u *network.Update, id int, v float64)) setter {
		return func(u *network.Update, id int, cell string) error {
			v, err := ParseValue(cell)
			if err != nil {
				return err
			}
			assign(u, id, v)
			return nil
		}
	}
	flag := func(assign func(u *network.Update, id int, v bool)) setter {
		return func(u *network.Update, id int, cell string) error {
			v, err := strconv.ParseBool(strings.TrimSpace(cell))
			if err != nil {
				return fmt.Errorf("invalid status %q", cell)
			}
			assign(u, id, v)
			return nil
		}
	}

	switch kind {
	case network.KindLine:
		switch field {
		case "from_status":
			return flag(func(u *network.Update, id int, v bool) { lineUpdate(u, id).FromStatus = network.Bool(v) }), nil
		case "to_status":
			return flag(func(u *network.Update, id int, v bool) { lineUpdate(u, id).ToStatus = network.Bool(v) }), nil
		}
	case network.KindSource:
		switch field {
		case "status":
			return flag(func(u *network.Update, id int, v bool) { sourceUpdate(u, id).Status = network.Bool(v) }), nil
		case "u_ref":
			return num(func(u *network.Update, id int, v float64) { sourceUpdate(u, id).URef = network.Float(v) }), nil
		case "u_ref_angle":
			return num(func(u *network.Update, id int, v float64) { sourceUpdate(u, id).URefAngle = network.Float(v) }), nil
		}
	case network.KindLoad:
		switch field {
		case "status":
			return flag(func(u *network.Update, id int, v bool) { loadUpdate(u, id).Status = network.Bool(v) }), nil
		case "p_specified":
			return num(func(u *network.Update, id int, v float64) { loadUpdate(u, id).PSpecified = network.Float(v) }), nil
		case "q_specified":
			return num(func(u *network.Update, id int, v float64) { loadUpdate(u, id).QSpecified = network.Float(v) }), nil
		}
	case network.KindVoltageSensor:
		switch field {
		case "u_sigma":
			return num(func(u *network.Update, id int, v float64) { voltageSensorUpdate(u, id).USigma = network.Float(v) }), nil
		case "u_measured":
			return num(func(u *network.Update, id int, v float64) { voltageSensorUpdate(u, id).UMeasured = network.Float(v) }), nil
		case "u_angle_measured":
			return num(func(u *network.Update, id int, v float64) { voltageSensorUpdate(u, id).UAngleMeasured = network.Float(v) }), nil
		}
	case network.KindPowerSensor:
		switch field {
		case "power_sigma":
			return num(func(u *network.Update, id int, v float64) { powerSensorUpdate(u, id).PowerSigma = network.Float(v) }), nil
		case "p_measured":
			return num(func(u *network.Update, id int, v float64) { powerSensorUpdate(u, id).PMeasured = network.Float(v) }), nil
		case "q_measured":
			return num(func(u *network.Update, id int, v float64) { powerSensorUpdate(u, id).QMeasured = network.Float(v) }), nil
		}
	}
	return nil, fmt.Errorf("unknown %v field %q", kind, field)
}

func applyCell(u *network.Update, kind network.ComponentKind, c column, cell string) error {
	set, err := cellSetter(kind, c.field)
	if err != nil {
		return err
	}
	return set(u, c.id, cell)
}

func lineUpdate(u *network.Update, id int) *network.LineUpdate {
	for i := range u.Lines {
		if u.Lines[i].ID == id {
			return &u.Lines[i]
		}
	}
	u.Lines = append(u.Lines, network.LineUpdate{ID: id})
	return &u.Lines[len(u.Lines)-1]
}

func sourceUpdate(u *network.Update, id int) *network.SourceUpdate {
	for i := range u.Sources {
		if u.Sources[i].ID == id {
			return &u.Sources[i]
		}
	}
	u.Sources = append(u.Sources, network.SourceUpdate{ID: id})
	return &u.Sources[len(u.Sources)-1]
}

func loadUpdate(u *network.Update, id int) *network.LoadUpdate {
	for i := range u.Loads {
		if u.Loads[i].ID == id {
			return &u.Loads[i]
		}
	}
	u.Loads = append(u.Loads, network.LoadUpdate{ID: id})
	return &u.Loads[len(u.Loads)-1]
}

func voltageSensorUpdate(u *network.Update, id int) *network.VoltageSensorUpdate {
	for i := range u.VoltageSensors {
		if u.VoltageSensors[i].ID == id {
			return &u.VoltageSensors[i]
		}
	}
	u.VoltageSensors = append(u.VoltageSensors, network.VoltageSensorUpdate{ID: id})
	return &u.VoltageSensors[len(u.VoltageSensors)-1]
}

func powerSensorUpdate(u *network.Update, id int) *network.PowerSensorUpdate {
	for i := range u.PowerSensors {
		if u.PowerSensors[i].ID == id {
			return &u.PowerSensors[i]
		}
	}
	u.PowerSensors = append(u.PowerSensors, network.PowerSensorUpdate{ID: id})
	return &u.PowerSensors[len(u.PowerSensors)-1]
}
