package analysis

import (
	"fmt"
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/pkg/admittance"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

// NRPowerFlow solves the polar power-flow equations by Newton-Raphson. The
// unknowns are angle and magnitude of every node; source internal buses
// are fixed.
type NRPowerFlow struct{ BaseAnalysis }

func NewNRPowerFlow(opts Options) *NRPowerFlow {
	return &NRPowerFlow{BaseAnalysis: *NewBaseAnalysis(NewtonRaphson, opts)}
}

func (nr *NRPowerFlow) Execute() error {
	net := nr.Network
	if net == nil {
		return fmt.Errorf("network not set")
	}

	bus := admittance.BuildWithSources(net)
	n := bus.Size
	st := initialState(bus)

	mat, err := matrix.NewMatrix(2 * n)
	if err != nil {
		return err
	}
	defer mat.Destroy()

	mismatch := make([]float64, 2*n)
	for iter := 0; ; iter++ {
		mat.Clear()

		for i := 0; i < n; i++ {
			t := bus.InjectionTerms(i, st)
			p, q, dp, dq := nodeConsumption(net, i, st.V[i])
			mismatch[2*i] = -p - t.P
			mismatch[2*i+1] = -q - t.Q

			rowP, rowQ := 2*i+1, 2*i+2
			for _, d := range t.Partials {
				if d.Node >= n {
					continue
				}
				colT, colV := 2*d.Node+1, 2*d.Node+2
				mat.AddElement(rowP, colT, d.DPdTheta)
				mat.AddElement(rowP, colV, d.DPdV)
				mat.AddElement(rowQ, colT, d.DQdTheta)
				mat.AddElement(rowQ, colV, d.DQdV)
			}
			// voltage dependent loads
			mat.AddElement(rowP, 2*i+2, dp)
			mat.AddElement(rowQ, 2*i+2, dq)

			mat.AddRHS(rowP, mismatch[2*i])
			mat.AddRHS(rowQ, mismatch[2*i+1])
		}

		converged, maxDev := nr.CheckConvergence(mismatch)
		if converged {
			nr.result = powerFlowResult(net, bus, st.Phasors(), false)
			nr.result.Method = NewtonRaphson
			nr.result.Iterations = iter
			return nil
		}
		if iter >= nr.convergence.maxIter {
			return nr.iterationLimit(maxDev)
		}

		if err := mat.Solve(); err != nil {
			return &IslandedNetworkError{Err: err}
		}
		solution := mat.Solution()
		for i := 0; i < n; i++ {
			st.Theta[i] += solution[2*i+1]
			st.V[i] += solution[2*i+2]
		}
	}
}

// initialState is a flat start at the first source's reference angle, with
// internal buses at their source voltage.
func initialState(bus *admittance.Bus) admittance.State {
	angle := 0.0
	if len(bus.Sources) > 0 {
		angle = cmplx.Phase(bus.Sources[0].U)
	}
	st := admittance.FlatState(bus.Size+len(bus.Sources), angle)
	for _, sb := range bus.Sources {
		st.V[sb.Bus] = cmplx.Abs(sb.U)
		st.Theta[sb.Bus] = cmplx.Phase(sb.U)
	}
	return st
}

// nodeConsumption sums the connected loads of a node at magnitude v.
func nodeConsumption(net *network.Network, node int, v float64) (p, q, dp, dq float64) {
	for _, pos := range net.NodeLoads(node) {
		lp, lq, ldp, ldq := admittance.LoadPower(net.Load(pos), v)
		p += lp
		q += lq
		dp += ldp
		dq += ldq
	}
	return p, q, dp, dq
}

// powerFlowResult derives appliance powers from the node voltages. With
// asImpedance every load is evaluated as constant impedance.
func powerFlowResult(net *network.Network, bus *admittance.Bus, u []complex128, asImpedance bool) *Result {
	flows := applianceFlows{
		sources: make([]complex128, net.Count(network.KindSource)),
		loads:   make([]complex128, net.Count(network.KindLoad)),
	}
	for _, sb := range bus.Sources {
		i := sb.Y * (sb.U - u[sb.Node])
		flows.sources[sb.Source] = u[sb.Node] * cmplx.Conj(i)
	}
	for i := range flows.loads {
		l := net.Load(i)
		if asImpedance {
			l.Type = network.ConstImpedance
		}
		p, q, _, _ := admittance.LoadPower(l, cmplx.Abs(u[net.LoadNode(i)]))
		flows.loads[i] = complex(p, q)
	}

	res := newResult(net, bus, u, flows)
	res.Calculation = PowerFlow
	return res
}
