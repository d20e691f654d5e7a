package math

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestMatMul(t *testing.T) {
	tests := []struct {
		name    string
		a       *Matrix
		b       *Matrix
		want    []float64
		wantErr bool
	}{
		{
			name: "basic 2x2 multiplication",
			a:    mustMatrix(t, 2, 2, 1, 2, 3, 4),
			b:    mustMatrix(t, 2, 2, 5, 6, 7, 8),
			want: []float64{19, 22, 43, 50},
		},
		{
			name: "matrix times column vector",
			a:    mustMatrix(t, 2, 3, 1, 2, 3, 4, 5, 6),
			b:    mustMatrix(t, 3, 1, 1, 0, -1),
			want: []float64{-2, -2},
		},
		{
			name:    "dimension mismatch",
			a:       mustMatrix(t, 1, 2, 1, 2),
			b:       mustMatrix(t, 3, 1, 1, 2, 3),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatMul(tt.a, tt.b)
			if (err != nil) != tt.wantErr {
				t.Errorf("MatMul() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				var shapeErr *ShapeError
				if !errors.As(err, &shapeErr) {
					t.Errorf("MatMul() error = %T, want *ShapeError", err)
				}
				return
			}
			if !sliceEqual(got.W, tt.want) {
				t.Errorf("MatMul() = %v, want %v", got.W, tt.want)
			}
		})
	}
}

func TestAddAndEltMul(t *testing.T) {
	a := mustMatrix(t, 2, 2, 1, 2, 3, 4)
	b := mustMatrix(t, 2, 2, 5, 6, 7, 8)

	sum, err := Add(a, b)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !sliceEqual(sum.W, []float64{6, 8, 10, 12}) {
		t.Errorf("Add() = %v", sum.W)
	}

	prod, err := EltMul(a, b)
	if err != nil {
		t.Fatalf("EltMul failed: %v", err)
	}
	if !sliceEqual(prod.W, []float64{5, 12, 21, 32}) {
		t.Errorf("EltMul() = %v", prod.W)
	}

	if _, err := Add(a, NewMatrix(4, 1)); err == nil {
		t.Error("Add() with mismatched shapes should fail")
	}
	if _, err := EltMul(a, NewMatrix(2, 1)); err == nil {
		t.Error("EltMul() with mismatched shapes should fail")
	}
}

func TestRowPluck(t *testing.T) {
	m := mustMatrix(t, 3, 2, 1, 2, 3, 4, 5, 6)
	got := RowPluck(m, 1)

	if got.N != 2 || got.D != 1 {
		t.Fatalf("RowPluck() shape = (%d,%d), want (2,1)", got.N, got.D)
	}
	if !sliceEqual(got.W, []float64{3, 4}) {
		t.Errorf("RowPluck() = %v, want [3 4]", got.W)
	}
}

func TestSoftmax(t *testing.T) {
	m := mustMatrix(t, 4, 1, 1.0, 2.0, 3.0, -4.0)
	result := m.Softmax()

	sum := 0.0
	for i, val := range result.W {
		if val <= 0 {
			t.Errorf("Softmax[%d] = %v, want positive value", i, val)
		}
		sum += val
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("Softmax sum = %v, want 1.0", sum)
	}

	for _, c := range []float64{-1000, -3.5, 0.25, 800} {
		shifted := m.Clone()
		for i := range shifted.W {
			shifted.W[i] += c
		}
		got := shifted.Softmax()
		for i := range got.W {
			if math.Abs(got.W[i]-result.W[i]) > 1e-9 {
				t.Errorf("Softmax(x+%v)[%d] = %v, want %v", c, i, got.W[i], result.W[i])
			}
		}
	}

	if m.DW[0] != 0 || result.DW[0] != 0 {
		t.Error("Softmax must not touch gradients")
	}
}

func TestSoftmaxLargeLogits(t *testing.T) {
	m := mustMatrix(t, 3, 1, 1000, 1000, 999)
	got := m.Softmax()
	for i, v := range got.W {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("Softmax[%d] = %v, want finite", i, v)
		}
	}
}

func TestRandomMatrix(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := RandomMatrix(10, 20, 0.08, rng)

	if len(m.W) != 200 || len(m.DW) != 200 {
		t.Fatalf("RandomMatrix buffers = %d/%d, want 200", len(m.W), len(m.DW))
	}
	nonZero := 0
	for i, v := range m.W {
		if v < -0.08 || v > 0.08 {
			t.Errorf("W[%d] = %v outside [-0.08, 0.08]", i, v)
		}
		if v != 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		t.Error("RandomMatrix produced all zeros")
	}
}

func TestFromRecord(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{name: "valid", rec: Record{N: 2, D: 1, W: []float64{0.5, -0.5}}},
		{name: "short buffer", rec: Record{N: 2, D: 2, W: []float64{1, 2, 3}}, wantErr: true},
		{name: "zero rows", rec: Record{N: 0, D: 2, W: nil}, wantErr: true},
		{name: "NaN value", rec: Record{N: 1, D: 1, W: []float64{math.NaN()}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromRecord(tt.rec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedRecord) {
					t.Errorf("FromRecord() error = %v, want ErrMalformedRecord", err)
				}
				return
			}
			if !sliceEqual(got.W, tt.rec.W) || len(got.DW) != len(got.W) {
				t.Errorf("FromRecord() = %+v", got)
			}
		})
	}
}

func TestRecordCopiesValues(t *testing.T) {
	m := mustMatrix(t, 1, 2, 1, 2)
	rec := m.Record()
	rec.W[0] = 42
	if m.W[0] != 1 {
		t.Error("Record() must not alias the value buffer")
	}
}

func mustMatrix(t *testing.T, n, d int, w ...float64) *Matrix {
	t.Helper()
	m, err := NewMatrixFrom(n, d, w)
	if err != nil {
		t.Fatalf("NewMatrixFrom(%d, %d): %v", n, d, err)
	}
	return m
}

// Helper function to compare buffers
func sliceEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}
