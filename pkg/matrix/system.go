package matrix

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/edp1096/sparse"
)

// ErrSingular is returned when the system cannot be factored.
var ErrSingular = errors.New("singular matrix")

// SystemMatrix is a real sparse linear system with 1-based indexing. The
// matrix translates indices so it can be cleared and restamped after a
// factorisation has reordered it.
type SystemMatrix struct {
	Size     int
	matrix   *sparse.Matrix
	rhs      []float64
	solution []float64
	config   *sparse.Configuration
}

func NewMatrix(size int) (*SystemMatrix, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid matrix size %d", size)
	}

	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 false,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               true,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("creating sparse matrix: %w", err)
	}

	return &SystemMatrix{
		Size:     size,
		matrix:   mat,
		rhs:      make([]float64, size+1), // 1-based indexing
		solution: make([]float64, size+1),
		config:   config,
	}, nil
}

// NewComplexMatrix sizes a real system for n complex unknowns.
func NewComplexMatrix(n int) (*SystemMatrix, error) {
	return NewMatrix(2 * n)
}

func (m *SystemMatrix) inBounds(i, j int) bool {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		log.Printf("Warning: Matrix index out of bounds (i=%d, j=%d, size=%d)", i, j, m.Size)
		return false
	}
	return true
}

func (m *SystemMatrix) AddElement(i, j int, value float64) {
	if !m.inBounds(i, j) {
		return
	}
	m.matrix.GetElement(int64(i), int64(j)).Real += value
}

func (m *SystemMatrix) AddRHS(i int, value float64) {
	if !m.inBounds(i, i) {
		return
	}
	m.rhs[i] += value
}

// AddComplexElement stamps (real + j imag) * x_j into equation i, where
// both are complex unknowns:
//
//	[re_i]   [ real  -imag ] [re_j]
//	[im_i] = [ imag   real ] [im_j]
func (m *SystemMatrix) AddComplexElement(i, j int, real, imag float64) {
	ri, ii := 2*i-1, 2*i
	rj, ij := 2*j-1, 2*j
	m.AddElement(ri, rj, real)
	m.AddElement(ri, ij, -imag)
	m.AddElement(ii, rj, imag)
	m.AddElement(ii, ij, real)
}

func (m *SystemMatrix) AddComplexRHS(i int, real, imag float64) {
	m.AddRHS(2*i-1, real)
	m.AddRHS(2*i, imag)
}

func (m *SystemMatrix) Clear() {
	m.matrix.Clear()
	for i := range m.rhs {
		m.rhs[i] = 0
	}
}

func (m *SystemMatrix) Solve() error {
	err := m.matrix.Factor()
	if err != nil {
		return fmt.Errorf("%w: factorization failed: %v", ErrSingular, err)
	}

	rhs := make([]float64, len(m.rhs))
	copy(rhs, m.rhs)
	solution, err := m.matrix.Solve(rhs)
	if err != nil {
		return fmt.Errorf("%w: solve failed: %v", ErrSingular, err)
	}
	for i := 1; i <= m.Size && i < len(solution); i++ {
		if math.IsNaN(solution[i]) || math.IsInf(solution[i], 0) {
			return fmt.Errorf("%w: non-finite solution at x%d", ErrSingular, i)
		}
		m.solution[i] = solution[i]
	}

	return nil
}

func (m *SystemMatrix) Solution() []float64 {
	return m.solution
}

// ComplexSolution returns complex unknown i of a system sized by
// NewComplexMatrix.
func (m *SystemMatrix) ComplexSolution(i int) complex128 {
	if i <= 0 || 2*i > m.Size {
		return 0
	}
	return complex(m.solution[2*i-1], m.solution[2*i])
}

func (m *SystemMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
}
