package matrix

import "math"

// Dense is a row-major real matrix with 0-based indexing.
type Dense struct {
	Rows, Cols int
	data       []float64
}

func NewDense(rows, cols int) *Dense {
	return &Dense{Rows: rows, Cols: cols, data: make([]float64, rows*cols)}
}

func (d *Dense) At(i, j int) float64 { return d.data[i*d.Cols+j] }

func (d *Dense) Set(i, j int, v float64) { d.data[i*d.Cols+j] = v }

func (d *Dense) Add(i, j int, v float64) { d.data[i*d.Cols+j] += v }

// DependentColumns eliminates columns left to right and returns those that
// are linear combinations of the columns before them. Rows are scaled to a
// unit maximum first, so tol is relative per row.
func (d *Dense) DependentColumns(tol float64) []int {
	a := make([]float64, len(d.data))
	copy(a, d.data)

	for i := 0; i < d.Rows; i++ {
		row := a[i*d.Cols : (i+1)*d.Cols]
		maxAbs := 0.0
		for _, v := range row {
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
		if maxAbs == 0 {
			continue
		}
		for j := range row {
			row[j] /= maxAbs
		}
	}

	used := make([]bool, d.Rows)
	var dependent []int
	for c := 0; c < d.Cols; c++ {
		pivot, best := -1, tol
		for r := 0; r < d.Rows; r++ {
			if used[r] {
				continue
			}
			if v := math.Abs(a[r*d.Cols+c]); v > best {
				pivot, best = r, v
			}
		}
		if pivot < 0 {
			dependent = append(dependent, c)
			continue
		}
		used[pivot] = true

		pv := a[pivot*d.Cols+c]
		for r := 0; r < d.Rows; r++ {
			if used[r] {
				continue
			}
			f := a[r*d.Cols+c] / pv
			if f == 0 {
				continue
			}
			for j := c; j < d.Cols; j++ {
				a[r*d.Cols+j] -= f * a[pivot*d.Cols+j]
			}
		}
	}
	return dependent
}

// Rank returns the numerical rank under the same tolerance.
func (d *Dense) Rank(tol float64) int {
	return d.Cols - len(d.DependentColumns(tol))
}
