package model

import (
	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
)

// State is the per-layer recurrent state after one time step, plus the
// decoder output (unnormalized logits over the vocabulary)
type State struct {
	Hidden []*tmath.Matrix
	Cell   []*tmath.Matrix
	Output *tmath.Matrix
}

// layer returns the previous state of layer i
func (s *State) layer(i int) LayerState {
	return LayerState{Hidden: s.Hidden[i], Cell: s.Cell[i]}
}

// InitialState returns all-zero hidden and cell vectors for every layer
func (m *Model) InitialState() *State {
	s := &State{
		Hidden: make([]*tmath.Matrix, len(m.Layers)),
		Cell:   make([]*tmath.Matrix, len(m.Layers)),
	}
	for i, l := range m.Layers {
		s.Hidden[i] = tmath.NewMatrix(l.HiddenSize(), 1)
		if l.Cell() == GRU {
			s.Cell[i] = s.Hidden[i]
		} else {
			s.Cell[i] = tmath.NewMatrix(l.HiddenSize(), 1)
		}
	}
	return s
}
