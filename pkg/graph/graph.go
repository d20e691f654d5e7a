// Package graph records forward matrix operations on a tape and replays
// their gradient rules in reverse.
//
// The tape is a flat list of tagged entries. Each entry names an op and the
// arena slots of its operands and output, so a recorded pass can be inspected
// entry by entry. Branching needs no bookkeeping: a matrix consumed by two ops
// collects both contributions in its DW before the entry that produced it is
// replayed.
package graph

import (
	"fmt"

	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
)

// Op identifies a differentiable operation
type Op uint8

const (
	OpRowPluck Op = iota
	OpAdd
	OpEltMul
	OpMul
	OpSigmoid
	OpTanh
	OpOneMinus
)

var opNames = [...]string{
	OpRowPluck: "rowPluck",
	OpAdd:      "add",
	OpEltMul:   "eltmul",
	OpMul:      "mul",
	OpSigmoid:  "sigmoid",
	OpTanh:     "tanh",
	OpOneMinus: "oneMinus",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Arity returns the number of matrix operands the op reads
func (o Op) Arity() int {
	switch o {
	case OpAdd, OpEltMul, OpMul:
		return 2
	default:
		return 1
	}
}

// Entry is one recorded forward node. In holds arena slots of the operands
// (In[1] is unused for unary ops), Out the slot of the result.
// Row is the plucked row index for OpRowPluck.
type Entry struct {
	Op  Op
	In  [2]int
	Out int
	Row int
}

// IndexError reports a row index outside the plucked matrix
type IndexError struct {
	Index, Rows int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("row index %d out of range [0,%d)", e.Index, e.Rows)
}

// Graph is the tape for one forward pass
type Graph struct {
	needsBackprop bool
	arena         []*tmath.Matrix
	slots         map[*tmath.Matrix]int
	tape          []Entry
}

// New creates an empty graph. When needsBackprop is false nothing is recorded.
func New(needsBackprop bool) *Graph {
	g := &Graph{}
	g.Reset(needsBackprop)
	return g
}

// Reset discards the tape and the arena
func (g *Graph) Reset(needsBackprop bool) {
	g.needsBackprop = needsBackprop
	g.arena = nil
	g.slots = nil
	g.tape = nil
	if needsBackprop {
		g.slots = make(map[*tmath.Matrix]int)
	}
}

// NeedsBackprop reports whether forward ops are being recorded
func (g *Graph) NeedsBackprop() bool {
	return g.needsBackprop
}

// Len returns the number of recorded entries
func (g *Graph) Len() int {
	return len(g.tape)
}

// Entries returns a copy of the tape in forward order
func (g *Graph) Entries() []Entry {
	out := make([]Entry, len(g.tape))
	copy(out, g.tape)
	return out
}

// Matrix returns the matrix stored in arena slot i
func (g *Graph) Matrix(i int) *tmath.Matrix {
	return g.arena[i]
}

func (g *Graph) slot(m *tmath.Matrix) int {
	if i, ok := g.slots[m]; ok {
		return i
	}
	i := len(g.arena)
	g.arena = append(g.arena, m)
	g.slots[m] = i
	return i
}

func (g *Graph) record(op Op, out *tmath.Matrix, row int, in ...*tmath.Matrix) {
	if !g.needsBackprop {
		return
	}
	e := Entry{Op: op, Row: row, In: [2]int{-1, -1}}
	for k, m := range in {
		e.In[k] = g.slot(m)
	}
	e.Out = g.slot(out)
	g.tape = append(g.tape, e)
}

// Backward replays every recorded entry once, last to first, then clears the tape.
// The caller seeds the gradient of the final output(s) beforehand.
func (g *Graph) Backward() {
	for i := len(g.tape) - 1; i >= 0; i-- {
		g.backwardEntry(g.tape[i])
	}
	g.Reset(g.needsBackprop)
}

func (g *Graph) backwardEntry(e Entry) {
	out := g.arena[e.Out]
	a := g.arena[e.In[0]]

	switch e.Op {
	case OpRowPluck:
		tmath.RowPluckBackward(out, a, e.Row)
	case OpAdd:
		tmath.AddBackward(out, a, g.arena[e.In[1]])
	case OpEltMul:
		tmath.EltMulBackward(out, a, g.arena[e.In[1]])
	case OpMul:
		tmath.MatMulBackward(out, a, g.arena[e.In[1]])
	case OpSigmoid:
		tmath.SigmoidBackward(out, a)
	case OpTanh:
		tmath.TanhBackward(out, a)
	case OpOneMinus:
		tmath.OneMinusBackward(out, a)
	default:
		panic(fmt.Sprintf("graph: unknown op %v", e.Op))
	}
}
