package model

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/crislerwin/recurrent-lm/pkg/graph"
	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
)

// ErrMalformedModel is returned when a model record cannot be rebuilt
var ErrMalformedModel = errors.New("malformed model record")

// Model is a stack of recurrent layers between a symbol embedding and a
// linear decoder
type Model struct {
	Cell    CellType
	InitStd float64

	Wil    *tmath.Matrix // embedding, (inputSize, letterSize)
	Layers []Layer
	Whd    *tmath.Matrix // decoder, (outputSize, lastHidden)
	Bd     *tmath.Matrix // decoder bias, (outputSize, 1)

	src tmath.Float64Source
}

// NewModel creates a randomly initialized model. Layer k reads the output
// of layer k-1, and layer 0 reads the letterSize-wide embedding.
func NewModel(cell CellType, inputSize, letterSize int, hiddenSizes []int, outputSize int, std float64, src tmath.Float64Source) (*Model, error) {
	if inputSize <= 0 || letterSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("sizes must be positive: input %d, letter %d, output %d", inputSize, letterSize, outputSize)
	}
	if len(hiddenSizes) == 0 {
		return nil, fmt.Errorf("at least one hidden layer is required")
	}

	m := &Model{Cell: cell, InitStd: std, src: src}
	m.SetWil(inputSize, letterSize)
	for i, h := range hiddenSizes {
		if h <= 0 {
			return nil, fmt.Errorf("hidden size %d of layer %d must be positive", h, i)
		}
		if err := m.AddGate(h); err != nil {
			return nil, err
		}
	}
	m.SetDecoder(outputSize)
	return m, nil
}

// SetWil creates the symbol embedding
func (m *Model) SetWil(inputSize, letterSize int) {
	m.Wil = tmath.RandomMatrix(inputSize, letterSize, m.InitStd, m.src)
}

// AddGate appends a layer of the model's cell type on top of the stack
func (m *Model) AddGate(hiddenSize int) error {
	l, err := newLayer(m.Cell, hiddenSize, m.topWidth(), m.InitStd, m.src)
	if err != nil {
		return err
	}
	m.Layers = append(m.Layers, l)
	return nil
}

// SetDecoder creates the decoder reading the top layer
func (m *Model) SetDecoder(outputSize int) {
	m.Whd = tmath.RandomMatrix(outputSize, m.topWidth(), m.InitStd, m.src)
	m.Bd = tmath.NewMatrix(outputSize, 1)
}

// topWidth is the width of the vector the next layer or decoder reads
func (m *Model) topWidth() int {
	if len(m.Layers) == 0 {
		return m.Wil.D
	}
	return m.Layers[len(m.Layers)-1].HiddenSize()
}

// InputSize returns the number of symbol indices the embedding accepts
func (m *Model) InputSize() int { return m.Wil.N }

// OutputSize returns the number of logits the decoder produces
func (m *Model) OutputSize() int { return m.Whd.N }

// IterateParameters visits Wil, then each layer's matrices suffixed with the
// layer index, then Whd and bd. The order never changes.
func (m *Model) IterateParameters(fn func(p *tmath.Matrix, key string)) {
	fn(m.Wil, "Wil")
	for i, l := range m.Layers {
		suffix := strconv.Itoa(i)
		for _, p := range l.Params() {
			fn(p.Matrix, p.Name+suffix)
		}
	}
	fn(m.Whd, "Whd")
	fn(m.Bd, "bd")
}

// ZeroGrad clears the gradient of every parameter
func (m *Model) ZeroGrad() {
	m.IterateParameters(func(p *tmath.Matrix, _ string) {
		p.ZeroGrad()
	})
}

// Forward advances the model by one symbol. A nil prev means the all-zero
// initial state.
func (m *Model) Forward(g *graph.Graph, ix int, prev *State) (*State, error) {
	if ix < 0 || ix >= m.Wil.N {
		return nil, fmt.Errorf("symbol index %d out of range [0, %d)", ix, m.Wil.N)
	}
	if prev == nil {
		prev = m.InitialState()
	}
	if len(prev.Hidden) != len(m.Layers) || len(prev.Cell) != len(m.Layers) {
		return nil, fmt.Errorf("state has %d layers, model has %d", len(prev.Hidden), len(m.Layers))
	}

	x := g.RowPluck(m.Wil, ix)

	next := &State{
		Hidden: make([]*tmath.Matrix, len(m.Layers)),
		Cell:   make([]*tmath.Matrix, len(m.Layers)),
	}
	for i, l := range m.Layers {
		s := l.Step(g, x, prev.layer(i))
		next.Hidden[i] = s.Hidden
		next.Cell[i] = s.Cell
		x = s.Hidden
	}

	next.Output = g.Affine(m.Whd, x, m.Bd)
	return next, nil
}

// ModelRecord is the persisted form of a model. Gate maps are keyed by
// parameter name without the layer suffix.
type ModelRecord struct {
	Cell    CellType                  `json:"cell"`
	InitStd float64                   `json:"init_std"`
	Wil     tmath.Record              `json:"Wil"`
	Layers  []map[string]tmath.Record `json:"layers"`
	Whd     tmath.Record              `json:"Whd"`
	Bd      tmath.Record              `json:"bd"`
}

// Record returns a deep copy of the model parameters
func (m *Model) Record() ModelRecord {
	rec := ModelRecord{
		Cell:    m.Cell,
		InitStd: m.InitStd,
		Wil:     m.Wil.Record(),
		Layers:  make([]map[string]tmath.Record, len(m.Layers)),
		Whd:     m.Whd.Record(),
		Bd:      m.Bd.Record(),
	}
	for i, l := range m.Layers {
		rec.Layers[i] = layerRecord(l)
	}
	return rec
}

// ModelFromRecord rebuilds a model, checking the cell type, every gate key,
// every shape and that each layer reads the width of the one below it
func ModelFromRecord(rec ModelRecord) (*Model, error) {
	if rec.Cell != LSTM && rec.Cell != GRU {
		return nil, fmt.Errorf("%w: unknown cell type %q", ErrMalformedModel, rec.Cell)
	}
	if len(rec.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrMalformedModel)
	}

	wil, err := tmath.FromRecord(rec.Wil)
	if err != nil {
		return nil, fmt.Errorf("%w: Wil: %w", ErrMalformedModel, err)
	}

	m := &Model{Cell: rec.Cell, InitStd: rec.InitStd, Wil: wil}
	for i, lr := range rec.Layers {
		l, err := layerFromRecord(rec.Cell, lr, m.topWidth())
		if err != nil {
			return nil, fmt.Errorf("%w: layer %d: %w", ErrMalformedModel, i, err)
		}
		m.Layers = append(m.Layers, l)
	}

	whd, err := tmath.FromRecord(rec.Whd)
	if err != nil {
		return nil, fmt.Errorf("%w: Whd: %w", ErrMalformedModel, err)
	}
	if whd.D != m.topWidth() {
		return nil, fmt.Errorf("%w: Whd reads %d values, top layer has %d", ErrMalformedModel, whd.D, m.topWidth())
	}
	bd, err := tmath.FromRecord(rec.Bd)
	if err != nil {
		return nil, fmt.Errorf("%w: bd: %w", ErrMalformedModel, err)
	}
	if bd.N != whd.N || bd.D != 1 {
		return nil, fmt.Errorf("%w: bd has shape (%d,%d), want (%d,1)", ErrMalformedModel, bd.N, bd.D, whd.N)
	}
	m.Whd = whd
	m.Bd = bd

	return m, nil
}
