package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

// measured returns the three-node network with voltage magnitude sensors
// taken from its own power flow result.
func measured(t *testing.T, sigma float64) (*network.Input, *analysis.Result) {
	t.Helper()
	in := threeNode()
	pf := solvePF(t, build(t, in), analysis.NewtonRaphson)
	for i, n := range pf.Nodes {
		in.VoltageSensors = append(in.VoltageSensors, network.VoltageSensor{
			ID: 10 + i, MeasuredObject: n.ID, USigma: sigma, UMeasured: n.U,
		})
	}
	return in, pf
}

func withAngles(in *network.Input, pf *analysis.Result) {
	for i := range in.VoltageSensors {
		in.VoltageSensors[i].UAngleMeasured = network.Float(pf.Nodes[i].UAngle)
	}
}

func withPowerSensors(in *network.Input, pf *analysis.Result, sigma float64) {
	add := func(id, obj int, term network.TerminalType, p, q float64) {
		in.PowerSensors = append(in.PowerSensors, network.PowerSensor{
			ID: id, MeasuredObject: obj, MeasuredTerminalType: term, PowerSigma: sigma, PMeasured: p, QMeasured: q,
		})
	}
	add(20, 4, network.BranchFrom, pf.Lines[0].PFrom, pf.Lines[0].QFrom)
	add(21, 5, network.BranchFrom, pf.Lines[1].PFrom, pf.Lines[1].QFrom)
	add(22, 6, network.TerminalLoad, pf.Loads[0].P, pf.Loads[0].Q)
	add(23, 7, network.TerminalLoad, pf.Loads[1].P, pf.Loads[1].Q)
	add(24, 8, network.TerminalSource, pf.Sources[0].P, pf.Sources[0].Q)
}

func solveSE(t *testing.T, net *network.Network) *analysis.Result {
	t.Helper()
	res, err := analysis.SolveStateEstimation(net, analysis.DefaultOptions())
	require.NoError(t, err)
	return res
}

func TestEstimationUnobservableWithoutAngles(t *testing.T) {
	in, _ := measured(t, 10.5)

	_, err := analysis.SolveStateEstimation(build(t, in), analysis.DefaultOptions())
	require.ErrorIs(t, err, analysis.ErrUnobservableSystem)

	var unobservable *analysis.UnobservableSystemError
	require.ErrorAs(t, err, &unobservable)
	assert.Equal(t, []analysis.StateVariable{
		{NodeID: 2, Quantity: "angle"},
		{NodeID: 3, Quantity: "angle"},
	}, unobservable.Unobserved)
	assert.Contains(t, err.Error(), "node 2 angle")
}

func TestEstimationWithMeasuredAngles(t *testing.T) {
	in, pf := measured(t, 10.5)
	withAngles(in, pf)

	se := solveSE(t, build(t, in))
	assert.Equal(t, analysis.StateEstimation, se.Calculation)
	assert.Equal(t, analysis.IterativeLinear, se.Method)
	for i := range pf.Nodes {
		assert.InEpsilon(t, pf.Nodes[i].UPu, se.Nodes[i].UPu, 1e-4)
		assert.InDelta(t, pf.Nodes[i].UAngle, se.Nodes[i].UAngle, 1e-6)
	}
	for _, r := range se.VoltageSensors {
		assert.InDelta(t, 0, r.UResidual, 1e-3)
		assert.InDelta(t, 0, r.UAngleResidual, 1e-6)
	}

	// unmeasured loads take the estimated node injection
	assert.InEpsilon(t, pf.Loads[0].P, se.Loads[0].P, 1e-4)
	assert.InEpsilon(t, pf.Sources[0].Q, se.Sources[0].Q, 1e-4)
}

func TestEstimationWithPowerSensors(t *testing.T) {
	in, pf := measured(t, 10.5)
	withPowerSensors(in, pf, 1e3)

	se := solveSE(t, build(t, in))

	// angles are anchored at the source node, compare differences only
	for i := range pf.Nodes {
		assert.InEpsilon(t, pf.Nodes[i].UPu, se.Nodes[i].UPu, 1e-4)
		assert.InDelta(t, pf.Nodes[i].UAngle-pf.Nodes[0].UAngle, se.Nodes[i].UAngle-se.Nodes[0].UAngle, 1e-6)
	}
	assert.InDelta(t, 0, se.Nodes[0].UAngle, 1e-12)

	for _, r := range se.PowerSensors {
		assert.InDelta(t, 0, r.PResidual, 3e3, "sensor %d", r.ID)
		assert.InDelta(t, 0, r.QResidual, 3e3, "sensor %d", r.ID)
	}
	assert.InDelta(t, pf.Lines[0].PFrom, se.Lines[0].PFrom, 3e3)
	assert.InDelta(t, pf.Loads[1].P, se.Loads[1].P, 3e3)
}

func TestEstimationSourceReferenceAngle(t *testing.T) {
	in, pf := measured(t, 10.5)
	withPowerSensors(in, pf, 1e3)
	in.Sources[0].URefAngle = 0.5

	se := solveSE(t, build(t, in))
	assert.InDelta(t, 0.5, se.Nodes[0].UAngle, 1e-12)
	assert.InDelta(t, pf.Nodes[2].UAngle-pf.Nodes[0].UAngle, se.Nodes[2].UAngle-0.5, 1e-6)
}

func TestEstimationZeroSigma(t *testing.T) {
	in, pf := measured(t, 0)
	withAngles(in, pf)

	net, err := network.New(in)
	require.NoError(t, err)
	assert.NotEmpty(t, net.Warnings())

	se := solveSE(t, net)
	for i := range pf.Nodes {
		assert.InEpsilon(t, pf.Nodes[i].UPu, se.Nodes[i].UPu, 1e-6)
		assert.InDelta(t, pf.Nodes[i].UAngle, se.Nodes[i].UAngle, 1e-7)
	}
}

func TestEstimationZeroSigmaPowerSensors(t *testing.T) {
	in, pf := measured(t, 0)
	withPowerSensors(in, pf, 0)

	se := solveSE(t, build(t, in))

	// without angle sensors the source node is pinned at u_ref_angle, so the
	// state matches the power flow up to a rotation of all angles
	require.Len(t, se.Nodes, 3)
	assert.Equal(t, 0.0, se.Nodes[0].UAngle)
	shift := pf.Nodes[0].UAngle - se.Nodes[0].UAngle
	assert.InDelta(t, -0.0031957, shift, 1e-6)
	for i := range pf.Nodes {
		assert.InEpsilon(t, pf.Nodes[i].UPu, se.Nodes[i].UPu, 1e-7)
		assert.InDelta(t, pf.Nodes[i].UAngle, se.Nodes[i].UAngle+shift, 1e-7)
	}
	for _, r := range se.PowerSensors {
		assert.InDelta(t, 0, r.PResidual, 1.0, "sensor %d", r.ID)
		assert.InDelta(t, 0, r.QResidual, 1.0, "sensor %d", r.ID)
	}
	assert.InDelta(t, pf.Sources[0].P, se.Sources[0].P, 1.0)
}

func TestEstimationIncrementalUpdate(t *testing.T) {
	in, pf := measured(t, 10.5)
	net := build(t, in)

	_, err := analysis.SolveStateEstimation(net, analysis.DefaultOptions())
	require.ErrorIs(t, err, analysis.ErrUnobservableSystem)

	var up network.Update
	for i, n := range pf.Nodes {
		up.VoltageSensors = append(up.VoltageSensors, network.VoltageSensorUpdate{
			ID: 10 + i, UAngleMeasured: network.Float(n.UAngle),
		})
	}
	view, err := net.WithUpdates(up)
	require.NoError(t, err)

	se := solveSE(t, view)
	assert.InEpsilon(t, pf.Nodes[2].UPu, se.Nodes[2].UPu, 1e-4)

	// the base network is unchanged
	_, err = analysis.SolveStateEstimation(net, analysis.DefaultOptions())
	assert.ErrorIs(t, err, analysis.ErrUnobservableSystem)
}

func TestEstimationRejectsPowerFlowMethods(t *testing.T) {
	in, pf := measured(t, 10.5)
	withAngles(in, pf)
	net := build(t, in)

	for _, method := range []analysis.Method{analysis.NewtonRaphson, analysis.Linear, analysis.IterativeCurrent} {
		opts := analysis.DefaultOptions()
		opts.Method = method
		_, err := analysis.SolveStateEstimation(net, opts)
		assert.ErrorIs(t, err, analysis.ErrUnsupportedMethod, method.String())
	}
}

func TestEstimationIslanded(t *testing.T) {
	in, pf := measured(t, 10.5)
	withAngles(in, pf)
	in.Lines[1].FromStatus = false

	_, err := analysis.SolveStateEstimation(build(t, in), analysis.DefaultOptions())
	assert.ErrorIs(t, err, analysis.ErrIslandedNetwork)
}
