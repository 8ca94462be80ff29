package network

import (
	"errors"
	"fmt"
)

var (
	// ErrTopology is wrapped by every TopologyError.
	ErrTopology = errors.New("topology error")
	// ErrNilInput is returned when there is nothing to build from.
	ErrNilInput = errors.New("nil network input")
)

type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

func ParseSeverity(name string) (Severity, error) {
	switch name {
	case "error":
		return SeverityError, nil
	case "warning":
		return SeverityWarning, nil
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(text []byte) error {
	sev, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// Issue is one violated rule of one component.
type Issue struct {
	Component ComponentKind `json:"component"`
	ID        int           `json:"id"`
	Rule      string        `json:"rule"`
	Severity  Severity      `json:"severity"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s %d: %s", i.Severity, i.Component, i.ID, i.Rule)
}

// ValidationWarning is a non-fatal data quality note.
type ValidationWarning = Issue

// TopologyError carries the error-severity issues that rejected a network.
type TopologyError struct {
	Issues []Issue
}

func (e *TopologyError) Error() string {
	if len(e.Issues) == 0 {
		return ErrTopology.Error()
	}
	first := e.Issues[0]
	msg := fmt.Sprintf("%v: %s %d: %s", ErrTopology, first.Component, first.ID, first.Rule)
	if len(e.Issues) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(e.Issues)-1)
	}
	return msg
}

func (e *TopologyError) Unwrap() error { return ErrTopology }

func topologyError(kind ComponentKind, id int, format string, args ...any) *TopologyError {
	return &TopologyError{Issues: []Issue{{
		Component: kind,
		ID:        id,
		Rule:      fmt.Sprintf(format, args...),
		Severity:  SeverityError,
	}}}
}
