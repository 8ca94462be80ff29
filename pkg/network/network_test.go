package network_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

func threeNode() *network.Input {
	line := func(id, from, to int) network.Line {
		return network.Line{ID: id, FromNode: from, ToNode: to, FromStatus: true, ToStatus: true,
			R1: 0.25, X1: 0.2, C1: 10e-6, IN: 1000}
	}
	return &network.Input{
		Nodes: []network.Node{{ID: 1, URated: 10.5e3}, {ID: 2, URated: 10.5e3}, {ID: 3, URated: 10.5e3}},
		Lines: []network.Line{line(4, 1, 2), line(5, 2, 3)},
		Loads: []network.SymLoad{
			{ID: 6, Node: 2, Status: true, PSpecified: 20e6, QSpecified: 5e6},
			{ID: 7, Node: 3, Status: true, PSpecified: 10e6, QSpecified: 2e6},
		},
		Sources: []network.Source{{ID: 8, Node: 1, Status: true, URef: 1.0}},
	}
}

func TestNewIndexesComponents(t *testing.T) {
	net, err := network.New(threeNode())
	require.NoError(t, err)

	assert.Equal(t, 3, net.Count(network.KindNode))
	assert.Equal(t, 2, net.Count(network.KindLine))
	assert.Equal(t, 1, net.Count(network.KindSource))
	assert.Equal(t, 2, net.Count(network.KindLoad))
	assert.Equal(t, 0, net.Count(network.KindVoltageSensor))
	assert.Empty(t, net.Warnings())

	pos, ok := net.Index(network.KindLoad, 7)
	require.True(t, ok)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 2, net.LoadNode(pos))

	from, to := net.LineNodes(1)
	assert.Equal(t, 1, from)
	assert.Equal(t, 2, to)
	assert.Equal(t, []int{0}, net.NodeLoads(1))
	assert.Equal(t, []int{0}, net.NodeSources(0))

	_, ok = net.Index(network.KindNode, 42)
	assert.False(t, ok)
}

func TestNewAppliesSourceDefaults(t *testing.T) {
	net, err := network.New(threeNode())
	require.NoError(t, err)

	s := net.Source(0)
	assert.Equal(t, consts.SourceSk, s.Sk)
	require.NotNil(t, s.RxRatio)
	assert.Equal(t, consts.SourceRxRatio, *s.RxRatio)
}

func TestNewCopiesInput(t *testing.T) {
	in := threeNode()
	net, err := network.New(in)
	require.NoError(t, err)

	in.Loads[0].PSpecified = 0
	assert.Equal(t, 20e6, net.Load(0).PSpecified)

	loads := net.Loads()
	loads[0].PSpecified = 0
	assert.Equal(t, 20e6, net.Load(0).PSpecified)
}

func TestNewRejectsBadReferences(t *testing.T) {
	tests := []struct {
		name   string
		modify func(in *network.Input)
		kind   network.ComponentKind
		id     int
	}{
		{"load on missing node", func(in *network.Input) { in.Loads[0].Node = 99 }, network.KindLoad, 6},
		{"line to missing node", func(in *network.Input) { in.Lines[1].ToNode = 99 }, network.KindLine, 5},
		{"duplicate node id", func(in *network.Input) { in.Nodes[2].ID = 2 }, network.KindNode, 2},
		{"sensor on missing node", func(in *network.Input) {
			in.VoltageSensors = []network.VoltageSensor{{ID: 10, MeasuredObject: 99, USigma: 1, UMeasured: 10e3}}
		}, network.KindVoltageSensor, 10},
		{"power sensor on missing line", func(in *network.Input) {
			in.PowerSensors = []network.PowerSensor{{ID: 11, MeasuredObject: 6, MeasuredTerminalType: network.BranchFrom, PowerSigma: 1}}
		}, network.KindPowerSensor, 11},
		{"negative resistance", func(in *network.Input) { in.Lines[0].R1 = -1 }, network.KindLine, 4},
		{"zero rated voltage", func(in *network.Input) { in.Nodes[0].URated = 0 }, network.KindNode, 1},
		{"negative sigma", func(in *network.Input) {
			in.VoltageSensors = []network.VoltageSensor{{ID: 10, MeasuredObject: 1, USigma: -1, UMeasured: 10e3}}
		}, network.KindVoltageSensor, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := threeNode()
			tt.modify(in)

			_, err := network.New(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, network.ErrTopology))

			var topo *network.TopologyError
			require.ErrorAs(t, err, &topo)
			require.NotEmpty(t, topo.Issues)
			assert.Equal(t, tt.kind, topo.Issues[0].Component)
			assert.Equal(t, tt.id, topo.Issues[0].ID)
		})
	}
}

func TestNewNilInput(t *testing.T) {
	_, err := network.New(nil)
	assert.ErrorIs(t, err, network.ErrNilInput)
}

func TestValidateReportsWarnings(t *testing.T) {
	in := threeNode()
	in.Nodes = append(in.Nodes, network.Node{ID: 20, URated: 10.5e3})
	in.Lines[0].IN = 0
	in.VoltageSensors = []network.VoltageSensor{{ID: 10, MeasuredObject: 1, USigma: 0, UMeasured: 10.5e3}}

	issues := network.Validate(in)
	assert.False(t, network.HasErrors(issues))
	require.Len(t, issues, 3)
	for _, is := range issues {
		assert.Equal(t, network.SeverityWarning, is.Severity, is.String())
	}

	net, err := network.New(in)
	require.NoError(t, err)
	assert.Len(t, net.Warnings(), 3)
}

func TestWithUpdatesLeavesBaseUntouched(t *testing.T) {
	net, err := network.New(threeNode())
	require.NoError(t, err)

	view, err := net.WithUpdates(network.Update{
		Loads: []network.LoadUpdate{{ID: 7, PSpecified: network.Float(1e6)}},
		Lines: []network.LineUpdate{{ID: 5, ToStatus: network.Bool(false)}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1e6, view.Load(1).PSpecified)
	assert.Equal(t, 2e6, view.Load(1).QSpecified)
	assert.False(t, view.Line(1).ToStatus)
	assert.True(t, view.Line(1).FromStatus)

	assert.Equal(t, 10e6, net.Load(1).PSpecified)
	assert.True(t, net.Line(1).ToStatus)
}

func TestWithUpdatesSensorAngles(t *testing.T) {
	in := threeNode()
	in.VoltageSensors = []network.VoltageSensor{{ID: 10, MeasuredObject: 2, USigma: 1, UMeasured: 9.5e3}}
	net, err := network.New(in)
	require.NoError(t, err)
	require.False(t, net.VoltageSensor(0).HasAngle())

	view, err := net.WithUpdates(network.Update{
		VoltageSensors: []network.VoltageSensorUpdate{{ID: 10, UAngleMeasured: network.Float(-0.05)}},
	})
	require.NoError(t, err)
	require.True(t, view.VoltageSensor(0).HasAngle())
	assert.Equal(t, -0.05, *view.VoltageSensor(0).UAngleMeasured)
	assert.Equal(t, 9.5e3, view.VoltageSensor(0).UMeasured)
	assert.False(t, net.VoltageSensor(0).HasAngle())
}

func TestWithUpdatesRejectsUnknownID(t *testing.T) {
	net, err := network.New(threeNode())
	require.NoError(t, err)

	_, err = net.WithUpdates(network.Update{Loads: []network.LoadUpdate{{ID: 99, Status: network.Bool(false)}}})
	assert.ErrorIs(t, err, network.ErrTopology)

	_, err = net.WithUpdates(network.Update{Sources: []network.SourceUpdate{{ID: 8, URef: network.Float(-1)}}})
	assert.ErrorIs(t, err, network.ErrTopology)
}

func TestWithUpdatesRejectsNonFiniteValues(t *testing.T) {
	in := threeNode()
	in.VoltageSensors = []network.VoltageSensor{{ID: 10, MeasuredObject: 2, USigma: 1, UMeasured: 9.5e3}}
	in.PowerSensors = []network.PowerSensor{{ID: 11, MeasuredObject: 6, MeasuredTerminalType: network.TerminalLoad, PowerSigma: 1e3}}
	net, err := network.New(in)
	require.NoError(t, err)

	nan, inf := network.Float(math.NaN()), network.Float(math.Inf(1))
	tests := []struct {
		name string
		up   network.Update
	}{
		{"load p nan", network.Update{Loads: []network.LoadUpdate{{ID: 6, PSpecified: nan}}}},
		{"load q inf", network.Update{Loads: []network.LoadUpdate{{ID: 7, QSpecified: inf}}}},
		{"source angle nan", network.Update{Sources: []network.SourceUpdate{{ID: 8, URefAngle: nan}}}},
		{"u_measured nan", network.Update{VoltageSensors: []network.VoltageSensorUpdate{{ID: 10, UMeasured: nan}}}},
		{"u_measured negative", network.Update{VoltageSensors: []network.VoltageSensorUpdate{{ID: 10, UMeasured: network.Float(-1)}}}},
		{"angle inf", network.Update{VoltageSensors: []network.VoltageSensorUpdate{{ID: 10, UAngleMeasured: inf}}}},
		{"p_measured nan", network.Update{PowerSensors: []network.PowerSensorUpdate{{ID: 11, PMeasured: nan}}}},
		{"q_measured inf", network.Update{PowerSensors: []network.PowerSensorUpdate{{ID: 11, QMeasured: inf}}}},
		{"sigma nan", network.Update{PowerSensors: []network.PowerSensorUpdate{{ID: 11, PowerSigma: nan}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := net.WithUpdates(tt.up)
			assert.ErrorIs(t, err, network.ErrTopology)
		})
	}
}

func TestValidateRejectsNonFiniteValues(t *testing.T) {
	in := threeNode()
	in.Loads[0].PSpecified = math.NaN()
	in.Sources[0].URefAngle = math.Inf(-1)

	issues := network.Validate(in)
	require.True(t, network.HasErrors(issues))
	var kinds []network.ComponentKind
	for _, is := range issues {
		kinds = append(kinds, is.Component)
	}
	assert.Contains(t, kinds, network.KindLoad)
	assert.Contains(t, kinds, network.KindSource)
}

func TestIssueJSONRoundTrip(t *testing.T) {
	in := threeNode()
	in.Loads[1].Node = 9
	issues := network.Validate(in)
	require.NotEmpty(t, issues)

	data, err := json.Marshal(issues)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"sym_load"`)
	assert.Contains(t, string(data), `"severity":"error"`)

	var decoded []network.Issue
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, issues, decoded)

	var bad network.Issue
	assert.Error(t, json.Unmarshal([]byte(`{"component":"transformer"}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"severity":"fatal"}`), &bad))

	for _, s := range []network.Severity{network.SeverityError, network.SeverityWarning} {
		got, err := network.ParseSeverity(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestEnergized(t *testing.T) {
	net, err := network.New(threeNode())
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, net.Energized())
	assert.Empty(t, net.IslandedNodes())

	view, err := net.WithUpdates(network.Update{Lines: []network.LineUpdate{{ID: 5, FromStatus: network.Bool(false)}}})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, view.Energized())
	assert.Equal(t, []int{3}, view.IslandedNodes())

	view, err = net.WithUpdates(network.Update{Sources: []network.SourceUpdate{{ID: 8, Status: network.Bool(false)}}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, view.IslandedNodes())
}

func TestContingencyUpdates(t *testing.T) {
	in := threeNode()
	in.Lines[1].FromStatus = false
	net, err := network.New(in)
	require.NoError(t, err)

	updates := net.ContingencyUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, "line 4 out", updates[0].Name)
	require.Len(t, updates[0].Lines, 1)
	assert.False(t, *updates[0].Lines[0].FromStatus)
	assert.False(t, *updates[0].Lines[0].ToStatus)
	assert.False(t, updates[0].Empty())
	assert.True(t, network.Update{}.Empty())
}

func TestParseKind(t *testing.T) {
	for _, k := range network.Kinds {
		got, err := network.ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := network.ParseKind("transformer")
	assert.Error(t, err)
}

func TestBaseQuantities(t *testing.T) {
	net, err := network.New(threeNode())
	require.NoError(t, err)
	assert.InDelta(t, 110.25, net.BaseImpedance(0), 1e-9)
	assert.InDelta(t, 54.986, net.BaseCurrent(0), 1e-3)
}
