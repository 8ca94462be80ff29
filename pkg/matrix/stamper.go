package matrix

// Stamper accumulates coefficients into a linear system. Indices are 1-based.
type Stamper interface {
	AddElement(i, j int, value float64)
	AddRHS(i int, value float64)
	// Complex variants address complex unknown k, stored as the real pair
	// (2k-1, 2k).
	AddComplexElement(i, j int, real, imag float64)
	AddComplexRHS(i int, real, imag float64)
}
