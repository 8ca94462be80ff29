package analysis_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-powerflow/pkg/analysis"
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
			{ID: 6, Node: 2, Status: true, Type: network.ConstPower, PSpecified: 20e6, QSpecified: 5e6},
			{ID: 7, Node: 3, Status: true, Type: network.ConstPower, PSpecified: 10e6, QSpecified: 2e6},
		},
		Sources: []network.Source{{ID: 8, Node: 1, Status: true, URef: 1.0}},
	}
}

func lightLoad(in *network.Input) *network.Input {
	in.Loads[0].PSpecified, in.Loads[0].QSpecified = 1e6, 1e6
	in.Loads[1].PSpecified, in.Loads[1].QSpecified = 2e6, 1e6
	return in
}

func build(t *testing.T, in *network.Input) *network.Network {
	t.Helper()
	net, err := network.New(in)
	require.NoError(t, err)
	return net
}

func solvePF(t *testing.T, net *network.Network, method analysis.Method) *analysis.Result {
	t.Helper()
	opts := analysis.DefaultOptions()
	opts.Method = method
	res, err := analysis.SolvePowerFlow(net, opts)
	require.NoError(t, err)
	return res
}

var (
	expectedU     = []float64{0.9987928, 0.9085937, 0.8788004}
	expectedAngle = []float64{-0.0031957, -0.0467362, -0.0641562}
)

func TestNewtonRaphsonThreeNode(t *testing.T) {
	res := solvePF(t, build(t, threeNode()), analysis.NewtonRaphson)

	assert.Equal(t, analysis.PowerFlow, res.Calculation)
	assert.Equal(t, analysis.NewtonRaphson, res.Method)
	assert.LessOrEqual(t, res.Iterations, 6)
	require.Len(t, res.Nodes, 3)
	for i, n := range res.Nodes {
		assert.True(t, n.Energized)
		assert.InDelta(t, expectedU[i], n.UPu, 1e-3, "node %d", n.ID)
		assert.InDelta(t, expectedAngle[i], n.UAngle, 1e-4, "node %d", n.ID)
		assert.InDelta(t, n.UPu*10.5e3, n.U, 1e-6)
	}

	// constant power loads draw exactly what is specified
	assert.InDelta(t, 20e6, res.Loads[0].P, 1e-2)
	assert.InDelta(t, 5e6, res.Loads[0].Q, 1e-2)
	assert.InDelta(t, 10e6, res.Loads[1].P, 1e-2)
	assert.InDelta(t, 20e6/res.Loads[0].S, res.Loads[0].PF, 1e-12)

	assert.Greater(t, res.Lines[0].Loading, res.Lines[1].Loading)
	assert.InDelta(t, res.Lines[0].IFrom/1000, res.Lines[0].Loading, 1e-2)
}

func TestDefaultMethodIsNewtonRaphson(t *testing.T) {
	res := solvePF(t, build(t, threeNode()), analysis.DefaultMethod)
	assert.Equal(t, analysis.NewtonRaphson, res.Method)
}

func TestNewtonRaphsonPowerBalance(t *testing.T) {
	res := solvePF(t, build(t, threeNode()), analysis.NewtonRaphson)

	var pSource, qSource, pLoad, qLoad, pLoss, qLoss float64
	for _, s := range res.Sources {
		pSource += s.P
		qSource += s.Q
	}
	for _, l := range res.Loads {
		pLoad += l.P
		qLoad += l.Q
	}
	for _, l := range res.Lines {
		pLoss += l.PFrom + l.PTo
		qLoss += l.QFrom + l.QTo
	}

	assert.Greater(t, pLoss, 0.0)
	assert.InDelta(t, pSource-pLoad, pLoss, 1.0)
	assert.InDelta(t, qSource-qLoad, qLoss, 1.0)

	// node injections match the appliances
	assert.InDelta(t, res.Sources[0].P, res.Nodes[0].P, 1.0)
	assert.InDelta(t, -res.Loads[0].P, res.Nodes[1].P, 1.0)
	assert.InDelta(t, -res.Loads[1].Q, res.Nodes[2].Q, 1.0)
}

func TestLinearAgreesWithNewtonRaphson(t *testing.T) {
	for name, in := range map[string]*network.Input{
		"heavy": threeNode(),
		"light": lightLoad(threeNode()),
	} {
		t.Run(name, func(t *testing.T) {
			net := build(t, in)
			nr := solvePF(t, net, analysis.NewtonRaphson)
			lin := solvePF(t, net, analysis.Linear)

			assert.Equal(t, 1, lin.Iterations)
			for i := range nr.Nodes {
				assert.InEpsilon(t, nr.Nodes[i].UPu, lin.Nodes[i].UPu, 0.03, "node %d", nr.Nodes[i].ID)
			}
		})
	}

	net := build(t, lightLoad(threeNode()))
	lin := solvePF(t, net, analysis.Linear)
	for i, want := range []float64{0.999841, 0.990474, 0.984531} {
		assert.InDelta(t, want, lin.Nodes[i].UPu, 1e-5)
	}
}

func TestIterativeCurrentAgreesWithNewtonRaphson(t *testing.T) {
	net := build(t, threeNode())
	nr := solvePF(t, net, analysis.NewtonRaphson)
	ic := solvePF(t, net, analysis.IterativeCurrent)

	assert.Equal(t, analysis.IterativeCurrent, ic.Method)
	assert.Greater(t, ic.Iterations, 1)
	for i := range nr.Nodes {
		assert.InDelta(t, nr.Nodes[i].UPu, ic.Nodes[i].UPu, 1e-6)
		assert.InDelta(t, nr.Nodes[i].UAngle, ic.Nodes[i].UAngle, 1e-6)
	}
}

func TestVoltageDependentLoads(t *testing.T) {
	for _, typ := range []network.LoadType{network.ConstImpedance, network.ConstCurrent} {
		t.Run(typ.String(), func(t *testing.T) {
			in := threeNode()
			in.Loads[0].Type = typ
			in.Loads[1].Type = typ
			net := build(t, in)

			nr := solvePF(t, net, analysis.NewtonRaphson)
			ic := solvePF(t, net, analysis.IterativeCurrent)
			for i := range nr.Nodes {
				assert.InDelta(t, nr.Nodes[i].UPu, ic.Nodes[i].UPu, 1e-6)
			}

			// the load scales with |U|^k, so it draws less than specified
			k := typ.Exponent()
			v := nr.Nodes[1].UPu
			assert.InDelta(t, 20e6*math.Pow(v, k), nr.Loads[0].P, 1e-2)
			assert.Less(t, nr.Loads[0].P, 20e6)
		})
	}
}

func TestIterationLimit(t *testing.T) {
	net := build(t, threeNode())
	opts := analysis.DefaultOptions()
	opts.MaxIterations = 1

	_, err := analysis.SolvePowerFlow(net, opts)
	require.ErrorIs(t, err, analysis.ErrIterationLimitExceeded)

	var limit *analysis.IterationLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 1, limit.Iterations)
	assert.Equal(t, analysis.NewtonRaphson, limit.Method)
	assert.Greater(t, limit.MaxDeviation, opts.Tolerance)
}

func TestIslandedNetwork(t *testing.T) {
	net := build(t, threeNode())
	view, err := net.WithUpdates(network.Update{
		Lines: []network.LineUpdate{{ID: 5, FromStatus: network.Bool(false), ToStatus: network.Bool(false)}},
	})
	require.NoError(t, err)

	for _, method := range []analysis.Method{analysis.NewtonRaphson, analysis.IterativeCurrent, analysis.Linear} {
		opts := analysis.DefaultOptions()
		opts.Method = method
		_, err := analysis.SolvePowerFlow(view, opts)
		require.ErrorIs(t, err, analysis.ErrIslandedNetwork, method.String())

		var island *analysis.IslandedNetworkError
		require.ErrorAs(t, err, &island)
		assert.Equal(t, []int{3}, island.NodeIDs)
	}
}

func TestOpenLineSideCarriesNoCurrent(t *testing.T) {
	in := threeNode()
	in.Lines = append(in.Lines, network.Line{ID: 10, FromNode: 1, ToNode: 3, FromStatus: true, ToStatus: true,
		R1: 0.25, X1: 0.2, C1: 10e-6, IN: 1000})
	in.Lines[1].ToStatus = false
	in.Loads[0].Status = false
	res := solvePF(t, build(t, in), analysis.NewtonRaphson)

	require.Len(t, res.Lines, 3)
	assert.Zero(t, res.Lines[1].PTo)
	assert.Zero(t, res.Lines[1].ITo)
	// charging current of the open line still flows at the closed side
	assert.Greater(t, res.Lines[1].IFrom, 0.0)
	assert.Less(t, res.Lines[1].QFrom, 0.0)
	assert.True(t, res.Lines[1].Energized)

	assert.False(t, res.Loads[0].Energized)
	assert.Zero(t, res.Loads[0].P)
	assert.InDelta(t, 10e6, res.Loads[1].P, 1e-2)
}

func TestUnsupportedMethod(t *testing.T) {
	net := build(t, threeNode())
	opts := analysis.DefaultOptions()
	opts.Method = analysis.IterativeLinear
	_, err := analysis.SolvePowerFlow(net, opts)
	assert.ErrorIs(t, err, analysis.ErrUnsupportedMethod)

	_, err = analysis.ParseMethod("fast_decoupled")
	assert.ErrorIs(t, err, analysis.ErrUnsupportedMethod)

	m, err := analysis.ParseMethod("iterative_current")
	require.NoError(t, err)
	assert.Equal(t, analysis.IterativeCurrent, m)
}

func TestResultTable(t *testing.T) {
	res := solvePF(t, build(t, threeNode()), analysis.NewtonRaphson)

	nodes := res.Table(network.KindNode)
	assert.Equal(t, []string{"id", "energized", "u_pu", "u", "u_angle", "p", "q"}, nodes.Columns)
	require.Len(t, nodes.Rows, 3)
	assert.Equal(t, 2.0, nodes.Rows[1][0])
	assert.Equal(t, 1.0, nodes.Rows[1][1])
	assert.Equal(t, res.Nodes[1].UPu, nodes.Rows[1][2])

	loads := res.Table(network.KindLoad)
	require.Len(t, loads.Rows, 2)
	assert.Equal(t, 7.0, loads.Rows[1][0])
	assert.Len(t, res.Table(network.KindLine).Columns, 11)
	assert.Empty(t, res.Table(network.KindVoltageSensor).Rows)
}
