// Package random provides the seedable generator shared by initialization,
// corpus sampling and text generation. Nothing here is process-global, and a
// Source can be recorded and restored mid-stream.
package random

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// ErrMalformedRecord is returned when a generator state cannot be restored
var ErrMalformedRecord = errors.New("malformed random source record")

// stream separates this generator's PCG stream from other uses of the same seed
const stream = 0x9e3779b97f4a7c15

// Source wraps a seeded PCG generator
type Source struct {
	pcg *rand.PCG
	rng *rand.Rand
}

// New creates a Source seeded with seed
func New(seed int64) *Source {
	return newSource(rand.NewPCG(uint64(seed), stream))
}

func newSource(pcg *rand.PCG) *Source {
	return &Source{pcg: pcg, rng: rand.New(pcg)}
}

// Float64 returns a uniform value in [0, 1)
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// Randf returns a uniform value in [a, b)
func (s *Source) Randf(a, b float64) float64 {
	return s.rng.Float64()*(b-a) + a
}

// Randi returns a uniform integer in [a, b)
func (s *Source) Randi(a, b int) int {
	return int(math.Floor(s.Randf(float64(a), float64(b))))
}

// Sample draws an index from w, assuming w holds probabilities summing to one.
// Rounding slack at the tail resolves to the last index.
func (s *Source) Sample(w []float64) int {
	r := s.rng.Float64()
	x := 0.0
	for i, p := range w {
		x += p
		if r < x {
			return i
		}
	}
	return len(w) - 1
}

// Argmax returns the index of the largest value in w, or -1 when w is empty
func Argmax(w []float64) int {
	if len(w) == 0 {
		return -1
	}
	return floats.MaxIdx(w)
}

// Record is the persisted generator state
type Record struct {
	State []byte `json:"state"`
}

// Record captures the generator so that a restored Source continues the
// same stream of draws
func (s *Source) Record() Record {
	state, err := s.pcg.MarshalBinary()
	if err != nil {
		// PCG marshaling cannot fail
		panic(err)
	}
	return Record{State: state}
}

// FromRecord restores a Source at the recorded position
func FromRecord(r Record) (*Source, error) {
	pcg := &rand.PCG{}
	if err := pcg.UnmarshalBinary(r.State); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return newSource(pcg), nil
}
