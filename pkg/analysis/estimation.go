package analysis

import (
	"fmt"
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/pkg/admittance"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

const observabilityTolerance = 1e-9

// stateIndex maps node angles and magnitudes to 1-based columns of the
// gain matrix. A zero angle column marks the fixed reference.
type stateIndex struct {
	theta []int
	v     []int
	size  int
}

func newStateIndex(n, ref int) stateIndex {
	idx := stateIndex{theta: make([]int, n), v: make([]int, n)}
	for i := 0; i < n; i++ {
		if i != ref {
			idx.size++
			idx.theta[i] = idx.size
		}
		idx.size++
		idx.v[i] = idx.size
	}
	return idx
}

type coeff struct {
	col int
	val float64
}

func (idx stateIndex) columns(grad []admittance.Derivative) []coeff {
	out := make([]coeff, 0, 2*len(grad))
	for _, d := range grad {
		if c := idx.theta[d.Node]; c > 0 && d.DTheta != 0 {
			out = append(out, coeff{c, d.DTheta})
		}
		if d.DV != 0 {
			out = append(out, coeff{idx.v[d.Node], d.DV})
		}
	}
	return out
}

// variable names the state variable behind a 1-based column.
func (idx stateIndex) variable(net *network.Network, col int) StateVariable {
	for i := range idx.v {
		if idx.theta[i] == col {
			return StateVariable{NodeID: net.Node(i).ID, Quantity: "angle"}
		}
		if idx.v[i] == col {
			return StateVariable{NodeID: net.Node(i).ID, Quantity: "magnitude"}
		}
	}
	return StateVariable{}
}

// WLSEstimation is an iterative weighted-least-squares estimator solving
// (H^T W H) dx = H^T W (z - h(x)) until dx is below the tolerance.
type WLSEstimation struct{ BaseAnalysis }

func NewWLSEstimation(opts Options) *WLSEstimation {
	return &WLSEstimation{BaseAnalysis: *NewBaseAnalysis(IterativeLinear, opts)}
}

// reference returns the node and angle the estimate is anchored to when no
// angle is measured.
func reference(net *network.Network) (node int, angle float64) {
	for i, s := range net.Sources() {
		if s.Status {
			return net.SourceNode(i), s.URefAngle
		}
	}
	return 0, 0
}

func (se *WLSEstimation) Execute() error {
	net := se.Network
	if net == nil {
		return fmt.Errorf("network not set")
	}

	bus := admittance.Build(net)
	model := admittance.NewMeasurementModel(net, bus)
	n := bus.Size

	ref, angle := reference(net)
	if model.AnglesMeasured() {
		ref = -1
	}
	idx := newStateIndex(n, ref)
	st := admittance.FlatState(n, angle)

	if err := checkObservability(net, model, idx, st); err != nil {
		return err
	}

	mat, err := matrix.NewMatrix(idx.size)
	if err != nil {
		return err
	}
	defer mat.Destroy()

	delta := make([]float64, idx.size)
	for iter := 1; ; iter++ {
		mat.Clear()
		for _, row := range model.Evaluate(st) {
			w := model.Weight(row.Sigma)
			r := row.Z - row.H
			cs := idx.columns(row.Grad)
			for _, a := range cs {
				mat.AddRHS(a.col, w*a.val*r)
				for _, b := range cs {
					mat.AddElement(a.col, b.col, w*a.val*b.val)
				}
			}
		}

		if err := mat.Solve(); err != nil {
			return fmt.Errorf("%w: gain matrix: %v", ErrUnobservableSystem, err)
		}
		solution := mat.Solution()
		for i := 0; i < n; i++ {
			if c := idx.theta[i]; c > 0 {
				st.Theta[i] += solution[c]
			}
			st.V[i] += solution[idx.v[i]]
		}
		copy(delta, solution[1:])

		converged, maxDev := se.CheckConvergence(delta)
		if converged {
			se.result = estimationResult(net, bus, model, st.Phasors())
			se.result.Method = IterativeLinear
			se.result.Iterations = iter
			return nil
		}
		if iter >= se.convergence.maxIter {
			return se.iterationLimit(maxDev)
		}
	}
}

// checkObservability requires H at the initial state to have full column
// rank and names every state variable that is not determined.
func checkObservability(net *network.Network, model *admittance.MeasurementModel, idx stateIndex, st admittance.State) error {
	rows := model.Evaluate(st)
	h := matrix.NewDense(len(rows), idx.size)
	for r, row := range rows {
		for _, c := range idx.columns(row.Grad) {
			h.Add(r, c.col-1, c.val)
		}
	}

	dependent := h.DependentColumns(observabilityTolerance)
	if len(dependent) == 0 {
		return nil
	}
	err := &UnobservableSystemError{}
	for _, c := range dependent {
		err.Unobserved = append(err.Unobserved, idx.variable(net, c+1))
	}
	return err
}

// estimationResult distributes each estimated node injection over the
// connected appliances: unmeasured appliances share the remainder equally,
// otherwise measured ones absorb it in proportion to their variance.
func estimationResult(net *network.Network, bus *admittance.Bus, model *admittance.MeasurementModel, u []complex128) *Result {
	flows := applianceFlows{
		sources: make([]complex128, net.Count(network.KindSource)),
		loads:   make([]complex128, net.Count(network.KindLoad)),
	}

	for node, list := range model.Appliances {
		if len(list) == 0 {
			continue
		}
		est := u[node] * cmplx.Conj(bus.Current(node, u))

		var measured complex128
		var variance float64
		unmeasured := 0
		for _, a := range list {
			if a.Measured {
				measured += a.Value
				variance += a.Variance
			} else {
				unmeasured++
			}
		}
		rest := est - measured

		for _, a := range list {
			value := a.Value
			switch {
			case unmeasured > 0:
				if !a.Measured {
					value = rest / complex(float64(unmeasured), 0)
				}
			case variance > 0:
				value += rest * complex(a.Variance/variance, 0)
			default:
				value += rest / complex(float64(len(list)), 0)
			}

			if a.Kind == network.KindSource {
				flows.sources[a.Pos] = value
			} else {
				flows.loads[a.Pos] = -value
			}
		}
	}

	res := newResult(net, bus, u, flows)
	res.Calculation = StateEstimation
	return res
}
