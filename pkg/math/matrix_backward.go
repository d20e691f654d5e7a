package math

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Backward rules for the forward kernels in matrix.go.
// Every rule reads out.DW and only ever adds into the inputs' DW buffers,
// so a matrix feeding several ops collects the sum of all contributions.

// RowPluckBackward scatters out's gradient back into row ix of m
func RowPluckBackward(out, m *Matrix, ix int) {
	floats.Add(m.DW[m.D*ix:m.D*(ix+1)], out.DW)
}

// AddBackward passes the output gradient through to both inputs
func AddBackward(out, a, b *Matrix) {
	floats.Add(a.DW, out.DW)
	floats.Add(b.DW, out.DW)
}

// EltMulBackward computes gradients for C = A * B (element-wise)
func EltMulBackward(out, a, b *Matrix) {
	for i, g := range out.DW {
		a.DW[i] += b.W[i] * g
		b.DW[i] += a.W[i] * g
	}
}

// MatMulBackward computes gradients for C = A @ B:
// dA += dC @ B^T and dB += A^T @ dC
func MatMulBackward(out, a, b *Matrix) {
	for i := 0; i < a.N; i++ {
		for j := 0; j < b.D; j++ {
			g := out.DW[b.D*i+j]
			if g == 0 {
				continue
			}
			for k := 0; k < a.D; k++ {
				a.DW[a.D*i+k] += b.W[b.D*k+j] * g
				b.DW[b.D*k+j] += a.W[a.D*i+k] * g
			}
		}
	}
}

// SigmoidBackward uses the cached output: d/dx sigmoid = out * (1 - out)
func SigmoidBackward(out, m *Matrix) {
	for i, y := range out.W {
		m.DW[i] += y * (1 - y) * out.DW[i]
	}
}

// TanhBackward uses the cached output: d/dx tanh = 1 - out^2
func TanhBackward(out, m *Matrix) {
	for i, y := range out.W {
		m.DW[i] += (1 - y*y) * out.DW[i]
	}
}

// OneMinusBackward negates the output gradient
func OneMinusBackward(out, m *Matrix) {
	floats.Sub(m.DW, out.DW)
}

// CrossEntropyGrad adds the softmax cross-entropy gradient (probs - onehot(target))
// into logits.DW and returns -log2(probs[target]).
// The result is +Inf when the target probability underflows to zero.
func CrossEntropyGrad(logits, probs *Matrix, target int) float64 {
	floats.Add(logits.DW, probs.W)
	logits.DW[target] -= 1
	return -math.Log2(probs.W[target])
}
