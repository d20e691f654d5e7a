package graph

import (
	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
)

// Forward ops. Operand shape errors are construction bugs, so they panic
// with the *tmath.ShapeError instead of being returned.

// RowPluck returns row ix of m as a column vector
func (g *Graph) RowPluck(m *tmath.Matrix, ix int) *tmath.Matrix {
	if ix < 0 || ix >= m.N {
		panic(&IndexError{Index: ix, Rows: m.N})
	}
	out := tmath.RowPluck(m, ix)
	g.record(OpRowPluck, out, ix, m)
	return out
}

// Add returns a + b
func (g *Graph) Add(a, b *tmath.Matrix) *tmath.Matrix {
	out, err := tmath.Add(a, b)
	if err != nil {
		panic(err)
	}
	g.record(OpAdd, out, 0, a, b)
	return out
}

// EltMul returns the element-wise product of a and b
func (g *Graph) EltMul(a, b *tmath.Matrix) *tmath.Matrix {
	out, err := tmath.EltMul(a, b)
	if err != nil {
		panic(err)
	}
	g.record(OpEltMul, out, 0, a, b)
	return out
}

// Mul returns the matrix product a @ b
func (g *Graph) Mul(a, b *tmath.Matrix) *tmath.Matrix {
	out, err := tmath.MatMul(a, b)
	if err != nil {
		panic(err)
	}
	g.record(OpMul, out, 0, a, b)
	return out
}

// Sigmoid applies the logistic function
func (g *Graph) Sigmoid(m *tmath.Matrix) *tmath.Matrix {
	out := tmath.Sigmoid(m)
	g.record(OpSigmoid, out, 0, m)
	return out
}

// Tanh applies tanh
func (g *Graph) Tanh(m *tmath.Matrix) *tmath.Matrix {
	out := tmath.Tanh(m)
	g.record(OpTanh, out, 0, m)
	return out
}

// OneMinus returns 1 - m
func (g *Graph) OneMinus(m *tmath.Matrix) *tmath.Matrix {
	out := tmath.OneMinus(m)
	g.record(OpOneMinus, out, 0, m)
	return out
}

// Affine returns w @ x + b, the pattern every gate and the decoder share
func (g *Graph) Affine(w, x, b *tmath.Matrix) *tmath.Matrix {
	return g.Add(g.Mul(w, x), b)
}
