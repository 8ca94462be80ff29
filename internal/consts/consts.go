package consts

import "math"

const (
	BasePower = 1e6  // System base power (VA)
	Frequency = 50.0 // Nominal frequency (Hz)
)

const (
	SourceSk      = 1e10 // Default short circuit power of a source (VA)
	SourceRxRatio = 0.1  // Default R/X ratio of a source impedance
)

const (
	Tolerance     = 1e-8 // Default convergence tolerance (p.u.)
	MaxIterations = 20   // Default iteration cap
	SigmaFloor    = 1e-12
)

var (
	Sqrt3 = math.Sqrt(3)
	Omega = 2 * math.Pi * Frequency
)
