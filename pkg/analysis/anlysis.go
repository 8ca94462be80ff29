package analysis

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

type Calculation int

const (
	PowerFlow Calculation = iota
	StateEstimation
)

func (c Calculation) String() string {
	switch c {
	case PowerFlow:
		return "power_flow"
	case StateEstimation:
		return "state_estimation"
	default:
		return fmt.Sprintf("calculation(%d)", int(c))
	}
}

func ParseCalculation(s string) (Calculation, error) {
	switch s {
	case "power_flow", "pf":
		return PowerFlow, nil
	case "state_estimation", "se":
		return StateEstimation, nil
	}
	return 0, fmt.Errorf("unknown calculation %q", s)
}

type Method int

const (
	DefaultMethod Method = iota // newton_raphson for power flow, iterative_linear for estimation
	NewtonRaphson
	IterativeCurrent
	Linear
	IterativeLinear
)

var methodNames = [...]string{
	DefaultMethod:    "default",
	NewtonRaphson:    "newton_raphson",
	IterativeCurrent: "iterative_current",
	Linear:           "linear",
	IterativeLinear:  "iterative_linear",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("method(%d)", int(m))
	}
	return methodNames[m]
}

func ParseMethod(s string) (Method, error) {
	if s == "" {
		return DefaultMethod, nil
	}
	for m, name := range methodNames {
		if name == s {
			return Method(m), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
}

// Options configures a single calculation. Zero values fall back to the
// defaults.
type Options struct {
	Method        Method  `json:"method" yaml:"method"`
	Tolerance     float64 `json:"tolerance" yaml:"tolerance"`
	MaxIterations int     `json:"max_iterations" yaml:"max_iterations"`
}

func DefaultOptions() Options {
	return Options{
		Method:        DefaultMethod,
		Tolerance:     consts.Tolerance,
		MaxIterations: consts.MaxIterations,
	}
}

type Analysis interface {
	Setup(net *network.Network) error
	Execute() error
	Result() *Result
}

type BaseAnalysis struct {
	Network     *network.Network
	result      *Result
	method      Method
	convergence struct {
		maxIter int
		tol     float64
	}
}

func NewBaseAnalysis(method Method, opts Options) *BaseAnalysis {
	ba := &BaseAnalysis{method: method}

	ba.convergence.maxIter = opts.MaxIterations
	if ba.convergence.maxIter <= 0 {
		ba.convergence.maxIter = consts.MaxIterations
	}
	ba.convergence.tol = opts.Tolerance
	if ba.convergence.tol <= 0 {
		ba.convergence.tol = consts.Tolerance
	}

	return ba
}

func (a *BaseAnalysis) Setup(net *network.Network) error {
	if net == nil {
		return network.ErrNilInput
	}
	if islanded := net.IslandedNodes(); len(islanded) > 0 {
		return &IslandedNetworkError{NodeIDs: islanded}
	}
	a.Network = net
	return nil
}

// CheckConvergence returns the largest absolute entry of delta and whether
// it is below the tolerance.
func (a *BaseAnalysis) CheckConvergence(delta []float64) (bool, float64) {
	maxDev := 0.0
	for _, d := range delta {
		maxDev = math.Max(maxDev, math.Abs(d))
	}
	return maxDev < a.convergence.tol, maxDev
}

func (a *BaseAnalysis) Result() *Result {
	return a.result
}

func (a *BaseAnalysis) iterationLimit(maxDev float64) error {
	return &IterationLimitError{Method: a.method, Iterations: a.convergence.maxIter, MaxDeviation: maxDev}
}

// New returns the analysis for a calculation and method.
func New(calc Calculation, opts Options) (Analysis, error) {
	switch calc {
	case PowerFlow:
		switch opts.Method {
		case DefaultMethod, NewtonRaphson:
			return NewNRPowerFlow(opts), nil
		case IterativeCurrent:
			return NewCurrentPowerFlow(opts), nil
		case Linear:
			return NewLinearPowerFlow(opts), nil
		}
	case StateEstimation:
		switch opts.Method {
		case DefaultMethod, IterativeLinear:
			return NewWLSEstimation(opts), nil
		}
	default:
		return nil, fmt.Errorf("unknown calculation %v", calc)
	}
	return nil, fmt.Errorf("%w: %v for %v", ErrUnsupportedMethod, opts.Method, calc)
}

// Run sets up and executes one calculation on net.
func Run(net *network.Network, calc Calculation, opts Options) (*Result, error) {
	a, err := New(calc, opts)
	if err != nil {
		return nil, err
	}
	if err := a.Setup(net); err != nil {
		return nil, err
	}
	if err := a.Execute(); err != nil {
		return nil, err
	}
	return a.Result(), nil
}

func SolvePowerFlow(net *network.Network, opts Options) (*Result, error) {
	return Run(net, PowerFlow, opts)
}

func SolveStateEstimation(net *network.Network, opts Options) (*Result, error) {
	return Run(net, StateEstimation, opts)
}
