package model

import (
	"fmt"

	"github.com/crislerwin/recurrent-lm/pkg/graph"
	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
)

// CellType selects the recurrent cell used by every layer of a model
type CellType string

const (
	LSTM CellType = "lstm"
	GRU  CellType = "gru"
)

// Param is a trainable matrix with its stable name
type Param struct {
	Name   string
	Matrix *tmath.Matrix
}

// Gate holds the input-side weight, hidden-side weight and bias of one gate
type Gate struct {
	Wx *tmath.Matrix // (hidden, prev)
	Wh *tmath.Matrix // (hidden, hidden)
	B  *tmath.Matrix // (hidden, 1)
}

func newGate(hiddenSize, prevSize int, std float64, src tmath.Float64Source) Gate {
	return Gate{
		Wx: tmath.RandomMatrix(hiddenSize, prevSize, std, src),
		Wh: tmath.RandomMatrix(hiddenSize, hiddenSize, std, src),
		B:  tmath.NewMatrix(hiddenSize, 1),
	}
}

// preact computes Wx@x + Wh@h + b
func (gt *Gate) preact(g *graph.Graph, x, h *tmath.Matrix) *tmath.Matrix {
	return g.Add(g.Add(g.Mul(gt.Wx, x), g.Mul(gt.Wh, h)), gt.B)
}

// params names the gate's matrices after its letter, e.g. Wix, Wih, bi
func (gt *Gate) params(letter string) []Param {
	return []Param{
		{Name: "W" + letter + "x", Matrix: gt.Wx},
		{Name: "W" + letter + "h", Matrix: gt.Wh},
		{Name: "b" + letter, Matrix: gt.B},
	}
}

func gateFromRecord(letter string, rec map[string]tmath.Record, hiddenSize, prevSize int) (Gate, error) {
	var gt Gate
	shapes := []struct {
		name string
		dst  **tmath.Matrix
		n, d int
	}{
		{"W" + letter + "x", &gt.Wx, hiddenSize, prevSize},
		{"W" + letter + "h", &gt.Wh, hiddenSize, hiddenSize},
		{"b" + letter, &gt.B, hiddenSize, 1},
	}
	for _, s := range shapes {
		r, ok := rec[s.name]
		if !ok {
			return Gate{}, fmt.Errorf("missing %s", s.name)
		}
		m, err := tmath.FromRecord(r)
		if err != nil {
			return Gate{}, fmt.Errorf("%s: %w", s.name, err)
		}
		if m.N != s.n || m.D != s.d {
			return Gate{}, fmt.Errorf("%s has shape (%d,%d), want (%d,%d)", s.name, m.N, m.D, s.n, s.d)
		}
		*s.dst = m
	}
	return gt, nil
}

// LayerState is the recurrent state a layer hands to its next time step
type LayerState struct {
	Hidden *tmath.Matrix
	Cell   *tmath.Matrix
}

// Layer is one stacked recurrent layer. The only implementations are
// *LSTMLayer and *GRULayer.
type Layer interface {
	Cell() CellType
	HiddenSize() int
	InputSize() int
	// Step advances the layer by one time step, recording onto g
	Step(g *graph.Graph, x *tmath.Matrix, prev LayerState) LayerState
	// Params returns the layer's matrices in their fixed visiting order
	Params() []Param
	sealed()
}

func newLayer(cell CellType, hiddenSize, prevSize int, std float64, src tmath.Float64Source) (Layer, error) {
	switch cell {
	case LSTM:
		return newLSTMLayer(hiddenSize, prevSize, std, src), nil
	case GRU:
		return newGRULayer(hiddenSize, prevSize, std, src), nil
	default:
		return nil, fmt.Errorf("unknown cell type %q", cell)
	}
}

func layerFromRecord(cell CellType, rec map[string]tmath.Record, prevSize int) (Layer, error) {
	var first string
	var expected int
	switch cell {
	case LSTM:
		first, expected = "Wix", 12
	case GRU:
		first, expected = "Wrx", 9
	default:
		return nil, fmt.Errorf("unknown cell type %q", cell)
	}
	if len(rec) != expected {
		return nil, fmt.Errorf("%s layer needs %d matrices, got %d", cell, expected, len(rec))
	}
	r, ok := rec[first]
	if !ok {
		return nil, fmt.Errorf("missing %s", first)
	}
	hiddenSize := r.N

	if cell == LSTM {
		return lstmFromRecord(rec, hiddenSize, prevSize)
	}
	return gruFromRecord(rec, hiddenSize, prevSize)
}

// layerRecord maps parameter names (without layer suffix) to records
func layerRecord(l Layer) map[string]tmath.Record {
	out := make(map[string]tmath.Record)
	for _, p := range l.Params() {
		out[p.Name] = p.Matrix.Record()
	}
	return out
}
