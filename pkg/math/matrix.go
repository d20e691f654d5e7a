package math

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrMalformedRecord is returned when a serialized matrix cannot be rebuilt.
var ErrMalformedRecord = errors.New("malformed matrix record")

// Float64Source is the subset of a random generator used for initialization
type Float64Source interface {
	Float64() float64
}

// Matrix is a dense row-major 2D buffer with a gradient buffer of the same shape.
// DW only ever accumulates; the solver zeroes it after consuming it.
type Matrix struct {
	N  int // rows
	D  int // columns
	W  []float64
	DW []float64
}

// NewMatrix creates a zero-filled matrix with given dimensions
func NewMatrix(n, d int) *Matrix {
	return &Matrix{
		N:  n,
		D:  d,
		W:  make([]float64, n*d),
		DW: make([]float64, n*d),
	}
}

// NewMatrixFrom creates a matrix that adopts w as its value buffer
func NewMatrixFrom(n, d int, w []float64) (*Matrix, error) {
	if n <= 0 || d <= 0 {
		return nil, fmt.Errorf("invalid matrix shape (%d,%d)", n, d)
	}
	if len(w) != n*d {
		return nil, fmt.Errorf("matrix (%d,%d) needs %d values, got %d", n, d, n*d, len(w))
	}
	return &Matrix{N: n, D: d, W: w, DW: make([]float64, n*d)}, nil
}

// RandomMatrix creates a matrix with values drawn uniformly from [-std, std]
func RandomMatrix(n, d int, std float64, src Float64Source) *Matrix {
	m := NewMatrix(n, d)
	for i := range m.W {
		m.W[i] = src.Float64()*2*std - std
	}
	return m
}

// ZeroGrad clears the gradient buffer
func (m *Matrix) ZeroGrad() {
	for i := range m.DW {
		m.DW[i] = 0
	}
}

// Clone returns a deep copy of values and gradients
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.N, m.D)
	copy(out.W, m.W)
	copy(out.DW, m.DW)
	return out
}

// Softmax returns the softmax of the flattened value buffer as a new matrix.
// No tape entry is recorded; callers seed the loss gradient themselves.
func (m *Matrix) Softmax() *Matrix {
	out := NewMatrix(m.N, m.D)
	if len(m.W) == 0 {
		return out
	}

	maxVal := floats.Max(m.W)
	for i, v := range m.W {
		out.W[i] = math.Exp(v - maxVal)
	}
	floats.Scale(1/floats.Sum(out.W), out.W)
	return out
}

// Record is the persisted form of a matrix. Gradients are not stored.
type Record struct {
	N int       `json:"n"`
	D int       `json:"d"`
	W []float64 `json:"w"`
}

// Record returns a copy of the matrix values as a plain record
func (m *Matrix) Record() Record {
	w := make([]float64, len(m.W))
	copy(w, m.W)
	return Record{N: m.N, D: m.D, W: w}
}

// FromRecord rebuilds a matrix, rejecting bad shapes and non-finite values
func FromRecord(r Record) (*Matrix, error) {
	if r.N <= 0 || r.D <= 0 {
		return nil, fmt.Errorf("%w: shape (%d,%d)", ErrMalformedRecord, r.N, r.D)
	}
	if len(r.W) != r.N*r.D {
		return nil, fmt.Errorf("%w: shape (%d,%d) with %d values", ErrMalformedRecord, r.N, r.D, len(r.W))
	}
	w := make([]float64, len(r.W))
	for i, v := range r.W {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite value at %d", ErrMalformedRecord, i)
		}
		w[i] = v
	}
	return NewMatrixFrom(r.N, r.D, w)
}

// ShapeError reports operands with incompatible dimensions
type ShapeError struct {
	Op   string
	A, B [2]int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch in %s: (%d,%d) vs (%d,%d)", e.Op, e.A[0], e.A[1], e.B[0], e.B[1])
}

// SameShape checks that a and b can be combined elementwise
func SameShape(op string, a, b *Matrix) error {
	if a.N != b.N || a.D != b.D {
		return &ShapeError{Op: op, A: [2]int{a.N, a.D}, B: [2]int{b.N, b.D}}
	}
	return nil
}

// CheckMul checks that a can be multiplied by b
func CheckMul(a, b *Matrix) error {
	if a.D != b.N {
		return &ShapeError{Op: "Mul", A: [2]int{a.N, a.D}, B: [2]int{b.N, b.D}}
	}
	return nil
}

// RowPluck copies row ix of m into a new column vector
func RowPluck(m *Matrix, ix int) *Matrix {
	out := NewMatrix(m.D, 1)
	copy(out.W, m.W[m.D*ix:m.D*(ix+1)])
	return out
}

// MatMul performs matrix multiplication (A @ B)
func MatMul(a, b *Matrix) (*Matrix, error) {
	if err := CheckMul(a, b); err != nil {
		return nil, err
	}

	out := NewMatrix(a.N, b.D)
	for i := 0; i < a.N; i++ {
		for j := 0; j < b.D; j++ {
			dot := 0.0
			for k := 0; k < a.D; k++ {
				dot += a.W[a.D*i+k] * b.W[b.D*k+j]
			}
			out.W[b.D*i+j] = dot
		}
	}
	return out, nil
}

// Add performs element-wise addition
func Add(a, b *Matrix) (*Matrix, error) {
	if err := SameShape("Add", a, b); err != nil {
		return nil, err
	}
	out := NewMatrix(a.N, a.D)
	floats.AddTo(out.W, a.W, b.W)
	return out, nil
}

// EltMul performs element-wise multiplication
func EltMul(a, b *Matrix) (*Matrix, error) {
	if err := SameShape("EltMul", a, b); err != nil {
		return nil, err
	}
	out := NewMatrix(a.N, a.D)
	floats.MulTo(out.W, a.W, b.W)
	return out, nil
}

// Sigmoid applies the logistic function element-wise
func Sigmoid(m *Matrix) *Matrix {
	out := NewMatrix(m.N, m.D)
	for i, v := range m.W {
		out.W[i] = 1.0 / (1.0 + math.Exp(-v))
	}
	return out
}

// Tanh applies tanh element-wise
func Tanh(m *Matrix) *Matrix {
	out := NewMatrix(m.N, m.D)
	for i, v := range m.W {
		out.W[i] = math.Tanh(v)
	}
	return out
}

// OneMinus computes 1 - x element-wise
func OneMinus(m *Matrix) *Matrix {
	out := NewMatrix(m.N, m.D)
	for i, v := range m.W {
		out.W[i] = 1 - v
	}
	return out
}
