package util

import (
	"fmt"
	"math"
)

// FormatValueFactor prints a value with an SI prefix, e.g. "10.500 kV".
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1e9:
		return fmt.Sprintf("%.3f G%s", value/1e9, unit)
	case absValue >= 1e6:
		return fmt.Sprintf("%.3f M%s", value/1e6, unit)
	case absValue >= 1e3:
		return fmt.Sprintf("%.3f k%s", value/1e3, unit)
	case absValue >= 1:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	case absValue == 0:
		return fmt.Sprintf("0.000 %s", unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

func FormatPerUnit(value float64) string {
	return fmt.Sprintf("%8.6f pu", value)
}

// FormatAngle prints radians as degrees.
func FormatAngle(rad float64) string {
	return fmt.Sprintf("%8.4f deg", rad*180/math.Pi)
}

func FormatMagnitudePhase(name string, magnitude, rad float64) string {
	return fmt.Sprintf("%s=%s<%sdeg", name, FormatMagnitude(magnitude), FormatPhase(rad*180/math.Pi))
}

func FormatMagnitude(value float64) string {
	if value >= 1000 || (value < 0.001 && value != 0) {
		return fmt.Sprintf("%8.2e", value) // "1.00e+03" or "5.43e-05"
	}
	return fmt.Sprintf("%8.3g", value) // "  732.5 "
}

func FormatPhase(value float64) string {
	return fmt.Sprintf("%6.1f", value) // "  90.0"
}
