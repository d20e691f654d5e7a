package model

import (
	"github.com/crislerwin/recurrent-lm/pkg/graph"
	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
)

// LSTMLayer holds the input, forget and output gates plus the cell write parameters
type LSTMLayer struct {
	Input     Gate
	Forget    Gate
	Output    Gate
	CellWrite Gate
}

func newLSTMLayer(hiddenSize, prevSize int, std float64, src tmath.Float64Source) *LSTMLayer {
	return &LSTMLayer{
		Input:     newGate(hiddenSize, prevSize, std, src),
		Forget:    newGate(hiddenSize, prevSize, std, src),
		Output:    newGate(hiddenSize, prevSize, std, src),
		CellWrite: newGate(hiddenSize, prevSize, std, src),
	}
}

func lstmFromRecord(rec map[string]tmath.Record, hiddenSize, prevSize int) (*LSTMLayer, error) {
	l := &LSTMLayer{}
	gates := []struct {
		letter string
		dst    *Gate
	}{
		{"i", &l.Input},
		{"f", &l.Forget},
		{"o", &l.Output},
		{"c", &l.CellWrite},
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

func (l *LSTMLayer) Cell() CellType  { return LSTM }
func (l *LSTMLayer) HiddenSize() int { return l.Input.Wx.N }
func (l *LSTMLayer) InputSize() int  { return l.Input.Wx.D }
func (l *LSTMLayer) sealed()         {}

// Params returns Wix Wih bi Wfx Wfh bf Wox Woh bo Wcx Wch bc
func (l *LSTMLayer) Params() []Param {
	out := make([]Param, 0, 12)
	out = append(out, l.Input.params("i")...)
	out = append(out, l.Forget.params("f")...)
	out = append(out, l.Output.params("o")...)
	out = append(out, l.CellWrite.params("c")...)
	return out
}

// Step computes
//
//	i, f, o = sigmoid(Wgx@x + Wgh@h + bg)
//	c~ = tanh(Wcx@x + Wch@h + bc)
//	c  = f*c_prev + i*c~
//	h  = o*tanh(c)
func (l *LSTMLayer) Step(g *graph.Graph, x *tmath.Matrix, prev LayerState) LayerState {
	inputGate := g.Sigmoid(l.Input.preact(g, x, prev.Hidden))
	forgetGate := g.Sigmoid(l.Forget.preact(g, x, prev.Hidden))
	outputGate := g.Sigmoid(l.Output.preact(g, x, prev.Hidden))
	cellWrite := g.Tanh(l.CellWrite.preact(g, x, prev.Hidden))

	retain := g.EltMul(forgetGate, prev.Cell)
	write := g.EltMul(inputGate, cellWrite)
	cell := g.Add(retain, write)

	hidden := g.EltMul(outputGate, g.Tanh(cell))

	return LayerState{Hidden: hidden, Cell: cell}
}
