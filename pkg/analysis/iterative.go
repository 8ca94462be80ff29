package analysis

import (
	"fmt"
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/pkg/admittance"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

// stampAdmittance writes Y into a complex system over node positions.
// Couplings to source internal buses move to the right-hand side.
func stampAdmittance(mat matrix.Stamper, bus *admittance.Bus) {
	for i, row := range bus.Rows {
		for _, e := range row {
			if e.Col < bus.Size {
				mat.AddComplexElement(i+1, e.Col+1, real(e.Value), imag(e.Value))
			}
		}
	}
	for _, sb := range bus.Sources {
		inj := sb.Y * sb.U
		mat.AddComplexRHS(sb.Node+1, real(inj), imag(inj))
	}
}

func complexSolution(mat *matrix.SystemMatrix, n int) []complex128 {
	u := make([]complex128, n)
	for i := range u {
		u[i] = mat.ComplexSolution(i + 1)
	}
	return u
}

// CurrentPowerFlow iterates a fixed point on Y U = I(U), where loads are
// current injections evaluated at the previous voltage.
type CurrentPowerFlow struct{ BaseAnalysis }

func NewCurrentPowerFlow(opts Options) *CurrentPowerFlow {
	return &CurrentPowerFlow{BaseAnalysis: *NewBaseAnalysis(IterativeCurrent, opts)}
}

func (ic *CurrentPowerFlow) Execute() error {
	net := ic.Network
	if net == nil {
		return fmt.Errorf("network not set")
	}

	bus := admittance.BuildWithSources(net)
	n := bus.Size
	u := initialState(bus).Phasors()[:n]

	mat, err := matrix.NewComplexMatrix(n)
	if err != nil {
		return err
	}
	defer mat.Destroy()

	delta := make([]float64, n)
	for iter := 1; ; iter++ {
		mat.Clear()
		stampAdmittance(mat, bus)
		for i := 0; i < net.Count(network.KindLoad); i++ {
			node := net.LoadNode(i)
			if u[node] == 0 {
				continue
			}
			p, q, _, _ := admittance.LoadPower(net.Load(i), cmplx.Abs(u[node]))
			inj := cmplx.Conj(complex(-p, -q) / u[node])
			mat.AddComplexRHS(node+1, real(inj), imag(inj))
		}

		if err := mat.Solve(); err != nil {
			return &IslandedNetworkError{Err: err}
		}
		next := complexSolution(mat, n)
		for i := range next {
			delta[i] = cmplx.Abs(next[i] - u[i])
		}
		u = next

		converged, maxDev := ic.CheckConvergence(delta)
		if converged {
			ic.result = powerFlowResult(net, bus, u, false)
			ic.result.Method = IterativeCurrent
			ic.result.Iterations = iter
			return nil
		}
		if iter >= ic.convergence.maxIter {
			return ic.iterationLimit(maxDev)
		}
	}
}

// LinearPowerFlow treats every load as a constant impedance at rated
// voltage and solves Y U = I once.
type LinearPowerFlow struct{ BaseAnalysis }

func NewLinearPowerFlow(opts Options) *LinearPowerFlow {
	return &LinearPowerFlow{BaseAnalysis: *NewBaseAnalysis(Linear, opts)}
}

func (lin *LinearPowerFlow) Execute() error {
	net := lin.Network
	if net == nil {
		return fmt.Errorf("network not set")
	}

	bus := admittance.BuildWithSources(net)
	n := bus.Size

	mat, err := matrix.NewComplexMatrix(n)
	if err != nil {
		return err
	}
	defer mat.Destroy()

	stampAdmittance(mat, bus)
	for i := 0; i < net.Count(network.KindLoad); i++ {
		node := net.LoadNode(i)
		y := admittance.LoadAdmittance(net.Load(i))
		mat.AddComplexElement(node+1, node+1, real(y), imag(y))
	}

	if err := mat.Solve(); err != nil {
		return &IslandedNetworkError{Err: err}
	}

	lin.result = powerFlowResult(net, bus, complexSolution(mat, n), true)
	lin.result.Method = Linear
	lin.result.Iterations = 1
	return nil
}
