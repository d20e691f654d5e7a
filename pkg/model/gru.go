package model

import (
	"github.com/crislerwin/recurrent-lm/pkg/graph"
	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
)

// GRULayer holds the reset, update and candidate gates.
// Its hidden output is its cell state.
type GRULayer struct {
	Reset     Gate
	Update    Gate
	Candidate Gate
}

func newGRULayer(hiddenSize, prevSize int, std float64, src tmath.Float64Source) *GRULayer {
	return &GRULayer{
		Reset:     newGate(hiddenSize, prevSize, std, src),
		Update:    newGate(hiddenSize, prevSize, std, src),
		Candidate: newGate(hiddenSize, prevSize, std, src),
	}
}

func gruFromRecord(rec map[string]tmath.Record, hiddenSize, prevSize int) (*GRULayer, error) {
	l := &GRULayer{}
	gates := []struct {
		letter string
		dst    *Gate
	}{
		{"r", &l.Reset},
		{"z", &l.Update},
		{"h", &l.Candidate},
	}
	for _, gt := range gates {
		g, err := gateFromRecord(gt.letter, rec, hiddenSize, prevSize)
		if err != nil {
			return nil, err
		}
		*gt.dst = g
	}
	return l, nil
}

func (l *GRULayer) Cell() CellType  { return GRU }
func (l *GRULayer) HiddenSize() int { return l.Reset.Wx.N }
func (l *GRULayer) InputSize() int  { return l.Reset.Wx.D }
func (l *GRULayer) sealed()         {}

// Params returns Wrx Wrh br Wzx Wzh bz Whx Whh bh
func (l *GRULayer) Params() []Param {
	out := make([]Param, 0, 9)
	out = append(out, l.Reset.params("r")...)
	out = append(out, l.Update.params("z")...)
	out = append(out, l.Candidate.params("h")...)
	return out
}

// Step computes
//
//	r  = sigmoid(Wrx@x + Wrh@c_prev + br)
//	z  = sigmoid(Wzx@x + Wzh@c_prev + bz)
//	h~ = tanh(Whx@x + Whh@(r*c_prev) + bh)
//	c  = z*c_prev + (1-z)*h~
func (l *GRULayer) Step(g *graph.Graph, x *tmath.Matrix, prev LayerState) LayerState {
	resetGate := g.Sigmoid(l.Reset.preact(g, x, prev.Cell))
	updateGate := g.Sigmoid(l.Update.preact(g, x, prev.Cell))

	candidate := g.Tanh(l.Candidate.preact(g, x, g.EltMul(resetGate, prev.Cell)))

	cell := g.Add(
		g.EltMul(updateGate, prev.Cell),
		g.EltMul(g.OneMinus(updateGate), candidate),
	)

	return LayerState{Hidden: cell, Cell: cell}
}
