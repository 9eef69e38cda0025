// Package matrix provides the dense complex matrix used for gate operators.
package matrix

import (
	"errors"
	"fmt"
	"math/cmplx"
	"strings"
)

// DefaultTolerance is the elementwise tolerance used by Equal.
const DefaultTolerance = 1e-5

var (
	// ErrInvalidDimensions is returned when rows or cols are not positive.
	ErrInvalidDimensions = errors.New("matrix: dimensions must be > 0")
	// ErrDimensionMismatch is returned when operand shapes are incompatible.
	ErrDimensionMismatch = errors.New("matrix: dimension mismatch")
	// ErrIndexOutOfBounds is returned for a row or column outside the matrix.
	ErrIndexOutOfBounds = errors.New("matrix: index out of bounds")
)

func shapeErrorf(op string, a, b *Matrix) error {
	return fmt.Errorf("%s %dx%d by %dx%d: %w", op, a.rows, a.cols, b.rows, b.cols, ErrDimensionMismatch)
}

// Matrix is a row-major matrix of complex amplitudes.
type Matrix struct {
	rows, cols int
	data       []complex128
}

// New returns a rows x cols zero matrix.
func New(rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrInvalidDimensions
	}
	return &Matrix{rows: rows, cols: cols, data: make([]complex128, rows*cols)}, nil
}

// FromRows builds a matrix from nested rows. All rows must have equal length.
func FromRows(rows [][]complex128) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrInvalidDimensions
	}
	m, _ := New(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != m.cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), m.cols, ErrDimensionMismatch)
		}
		copy(m.data[i*m.cols:], row)
	}
	return m, nil
}

// MustFromRows is FromRows for literal tables known to be well formed.
func MustFromRows(rows [][]complex128) *Matrix {
	m, err := FromRows(rows)
	if err != nil {
		panic(err)
	}
	return m
}

// Identity returns the n x n identity.
func Identity(n int) *Matrix {
	m, err := New(n, n)
	if err != nil {
		panic(err)
	}
	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1
	}
	return m
}

func (m *Matrix) Rows() int { return m.rows }

func (m *Matrix) Cols() int { return m.cols }

// At returns the element at (row, col).
func (m *Matrix) At(row, col int) (complex128, error) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		return 0, fmt.Errorf("At(%d,%d): %w", row, col, ErrIndexOutOfBounds)
	}
	return m.data[row*m.cols+col], nil
}

// Set writes v at (row, col).
func (m *Matrix) Set(row, col int, v complex128) error {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		return fmt.Errorf("Set(%d,%d): %w", row, col, ErrIndexOutOfBounds)
	}
	m.data[row*m.cols+col] = v
	return nil
}

// Row returns a copy of row i, or nil when i is out of range.
func (m *Matrix) Row(i int) []complex128 {
	if i < 0 || i >= m.rows {
		return nil
	}
	out := make([]complex128, m.cols)
	copy(out, m.data[i*m.cols:(i+1)*m.cols])
	return out
}

// at is the unchecked accessor used within this package.
func (m *Matrix) at(row, col int) complex128 {
	return m.data[row*m.cols+col]
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	data := make([]complex128, len(m.data))
	copy(data, m.data)
	return &Matrix{rows: m.rows, cols: m.cols, data: data}
}

// Add returns m + o.
func (m *Matrix) Add(o *Matrix) (*Matrix, error) {
	if m.rows != o.rows || m.cols != o.cols {
		return nil, shapeErrorf("add", m, o)
	}
	out := m.Clone()
	for i, v := range o.data {
		out.data[i] += v
	}
	return out, nil
}

// Sub returns m - o.
func (m *Matrix) Sub(o *Matrix) (*Matrix, error) {
	if m.rows != o.rows || m.cols != o.cols {
		return nil, shapeErrorf("sub", m, o)
	}
	out := m.Clone()
	for i, v := range o.data {
		out.data[i] -= v
	}
	return out, nil
}

// Mul returns the matrix product m · o.
func (m *Matrix) Mul(o *Matrix) (*Matrix, error) {
	if m.cols != o.rows {
		return nil, shapeErrorf("mul", m, o)
	}
	out, _ := New(m.rows, o.cols)
	for i := 0; i < m.rows; i++ {
		for k := 0; k < m.cols; k++ {
			a := m.at(i, k)
			if a == 0 {
				continue
			}
			for j := 0; j < o.cols; j++ {
				out.data[i*o.cols+j] += a * o.at(k, j)
			}
		}
	}
	return out, nil
}

// Scale returns x · m.
func (m *Matrix) Scale(x complex128) *Matrix {
	out := m.Clone()
	for i := range out.data {
		out.data[i] *= x
	}
	return out
}

// MulVec returns m · v for a column vector v.
func (m *Matrix) MulVec(v []complex128) ([]complex128, error) {
	if len(v) != m.cols {
		return nil, fmt.Errorf("mulvec %dx%d by %d: %w", m.rows, m.cols, len(v), ErrDimensionMismatch)
	}
	out := make([]complex128, m.rows)
	for i := 0; i < m.rows; i++ {
		var sum complex128
		for j := 0; j < m.cols; j++ {
			sum += m.at(i, j) * v[j]
		}
		out[i] = sum
	}
	return out, nil
}

// Tensor returns the Kronecker product m ⊗ o.
func (m *Matrix) Tensor(o *Matrix) *Matrix {
	out, _ := New(m.rows*o.rows, m.cols*o.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			a := m.at(i, j)
			if a == 0 {
				continue
			}
			for k := 0; k < o.rows; k++ {
				row := (i*o.rows + k) * out.cols
				for l := 0; l < o.cols; l++ {
					out.data[row+j*o.cols+l] = a * o.at(k, l)
				}
			}
		}
	}
	return out
}

// Dagger returns the conjugate transpose.
func (m *Matrix) Dagger() *Matrix {
	out := &Matrix{rows: m.cols, cols: m.rows, data: make([]complex128, len(m.data))}
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			out.data[j*m.rows+i] = cmplx.Conj(m.at(i, j))
		}
	}
	return out
}

// Equal reports approximate equality with DefaultTolerance.
func (m *Matrix) Equal(o *Matrix) bool {
	return m.EqualTol(o, DefaultTolerance)
}

// EqualTol reports whether m and o have the same shape and every element
// differs by at most tol.
func (m *Matrix) EqualTol(o *Matrix, tol float64) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for i, v := range m.data {
		if cmplx.Abs(v-o.data[i]) > tol {
			return false
		}
	}
	return true
}

// IsUnitary reports whether m · m† is the identity within tol.
func (m *Matrix) IsUnitary(tol float64) bool {
	if m.rows != m.cols {
		return false
	}
	p, _ := m.Mul(m.Dagger())
	return p.EqualTol(Identity(m.rows), tol)
}

func (m *Matrix) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < m.rows; i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("[")
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%v", m.at(i, j))
		}
		if i < m.rows-1 {
			sb.WriteString("],\n")
		} else {
			sb.WriteString("]]")
		}
	}
	return sb.String()
}
