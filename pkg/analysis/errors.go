package analysis

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIslandedNetwork        = errors.New("islanded network")
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")
	ErrUnobservableSystem     = errors.New("unobservable system")
	ErrUnsupportedMethod      = errors.New("unsupported method")
)

// IslandedNetworkError lists nodes that no connected source energizes, or
// wraps the factorisation failure of a singular system.
type IslandedNetworkError struct {
	NodeIDs []int
	Err     error
}

func (e *IslandedNetworkError) Error() string {
	if len(e.NodeIDs) > 0 {
		return fmt.Sprintf("%v: nodes %v are not energized", ErrIslandedNetwork, e.NodeIDs)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", ErrIslandedNetwork, e.Err)
	}
	return ErrIslandedNetwork.Error()
}

func (e *IslandedNetworkError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrIslandedNetwork, e.Err}
	}
	return []error{ErrIslandedNetwork}
}

type IterationLimitError struct {
	Method       Method
	Iterations   int
	MaxDeviation float64
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("%v: %v did not converge in %d iterations (max deviation %g)",
		ErrIterationLimitExceeded, e.Method, e.Iterations, e.MaxDeviation)
}

func (e *IterationLimitError) Unwrap() error { return ErrIterationLimitExceeded }

// StateVariable names one unknown of the estimator.
type StateVariable struct {
	NodeID   int    `json:"node_id"`
	Quantity string `json:"quantity"` // "angle" or "magnitude"
}

func (v StateVariable) String() string {
	return fmt.Sprintf("node %d %s", v.NodeID, v.Quantity)
}

type UnobservableSystemError struct {
	Unobserved []StateVariable
}

func (e *UnobservableSystemError) Error() string {
	names := make([]string, len(e.Unobserved))
	for i, v := range e.Unobserved {
		names[i] = v.String()
	}
	return fmt.Sprintf("%v: no measurement determines %s", ErrUnobservableSystem, strings.Join(names, ", "))
}

func (e *UnobservableSystemError) Unwrap() error { return ErrUnobservableSystem }
