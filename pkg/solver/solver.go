// Package solver implements the RMSProp update used for training, with
// element-wise gradient clipping and L2 weight decay.
package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"

	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
)

// ErrMalformedRecord is returned when a serialized solver cannot be rebuilt
var ErrMalformedRecord = errors.New("malformed solver record")

// Parameters is anything that can enumerate its trainable matrices with stable keys
type Parameters interface {
	IterateParameters(visit func(m *tmath.Matrix, key string))
}

// Config holds the solver hyperparameters
type Config struct {
	DecayRate float64 `json:"decay_rate"`
	SmoothEps float64 `json:"smooth_eps"`
	ClipVal   float64 `json:"clipval"`
	Regc      float64 `json:"regc"`
}

// DefaultConfig returns the standard RMSProp settings
func DefaultConfig() Config {
	return Config{
		DecayRate: 0.999,
		SmoothEps: 1e-8,
		ClipVal:   5,
		Regc:      1e-6,
	}
}

// Validate checks the hyperparameters
func (c Config) Validate() error {
	if c.DecayRate < 0 || c.DecayRate >= 1 {
		return fmt.Errorf("decay_rate must be in [0, 1), got %v", c.DecayRate)
	}
	if c.SmoothEps <= 0 {
		return fmt.Errorf("smooth_eps must be positive, got %v", c.SmoothEps)
	}
	if c.ClipVal <= 0 {
		return fmt.Errorf("clipval must be positive, got %v", c.ClipVal)
	}
	if c.Regc < 0 {
		return fmt.Errorf("regc must be non-negative, got %v", c.Regc)
	}
	return nil
}

// Solver keeps a moving average of squared gradients per parameter key
type Solver struct {
	cfg   Config
	cache map[string]*tmath.Matrix
}

// New creates a solver with the given configuration
func New(cfg Config) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid solver config: %w", err)
	}
	return &Solver{cfg: cfg, cache: make(map[string]*tmath.Matrix)}, nil
}

// Default creates a solver with DefaultConfig
func Default() *Solver {
	s, _ := New(DefaultConfig())
	return s
}

// Config returns the solver hyperparameters
func (s *Solver) Config() Config {
	return s.cfg
}

// Cache returns the moving-average matrix for key, or nil before its first step
func (s *Solver) Cache(key string) *tmath.Matrix {
	return s.cache[key]
}

// Step applies one update to every parameter and clears its gradient:
//
//	dw = clip(dw, -clipval, clipval)
//	s  = s*decay + (1-decay)*dw^2
//	w += -stepRate*dw/sqrt(s+eps) - regc*w
func (s *Solver) Step(params Parameters, stepRate float64) {
	cfg := s.cfg
	params.IterateParameters(func(m *tmath.Matrix, key string) {
		cached, ok := s.cache[key]
		if !ok {
			cached = tmath.NewMatrix(m.N, m.D)
			s.cache[key] = cached
		}
		if err := tmath.SameShape("solver cache "+key, cached, m); err != nil {
			panic(err)
		}

		for j := range m.W {
			dw := m.DW[j]
			if dw > cfg.ClipVal {
				dw = cfg.ClipVal
			} else if dw < -cfg.ClipVal {
				dw = -cfg.ClipVal
			}

			cached.W[j] = cached.W[j]*cfg.DecayRate + (1-cfg.DecayRate)*dw*dw
			m.W[j] += -stepRate*dw/math.Sqrt(cached.W[j]+cfg.SmoothEps) - cfg.Regc*m.W[j]
			m.DW[j] = 0
		}
	})
}

// CheckCompatible verifies that every cache entry names a live parameter of the same shape
func (s *Solver) CheckCompatible(params Parameters) error {
	live := make(map[string]*tmath.Matrix)
	params.IterateParameters(func(m *tmath.Matrix, key string) {
		live[key] = m
	})
	for key, cached := range s.cache {
		m, ok := live[key]
		if !ok {
			return fmt.Errorf("%w: cache key %q has no parameter", ErrMalformedRecord, key)
		}
		if err := tmath.SameShape(key, cached, m); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
		}
	}
	return nil
}

// CacheEntry is one persisted moving-average matrix
type CacheEntry struct {
	Key    string       `json:"key"`
	Matrix tmath.Record `json:"matrix"`
}

// Record is the persisted form of a solver
type Record struct {
	Config
	StepCache []CacheEntry `json:"step_cache"`
}

// Record returns the hyperparameters and the cache sorted by key
func (s *Solver) Record() Record {
	keys := make([]string, 0, len(s.cache))
	for k := range s.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rec := Record{Config: s.cfg, StepCache: make([]CacheEntry, 0, len(keys))}
	for _, k := range keys {
		rec.StepCache = append(rec.StepCache, CacheEntry{Key: k, Matrix: s.cache[k].Record()})
	}
	return rec
}

// FromRecord rebuilds a solver, validating every cache entry
func FromRecord(rec Record) (*Solver, error) {
	s, err := New(rec.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	for _, e := range rec.StepCache {
		if e.Key == "" {
			return nil, fmt.Errorf("%w: empty cache key", ErrMalformedRecord)
		}
		if _, dup := s.cache[e.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate cache key %q", ErrMalformedRecord, e.Key)
		}
		m, err := tmath.FromRecord(e.Matrix)
		if err != nil {
			return nil, fmt.Errorf("%w: cache %q: %w", ErrMalformedRecord, e.Key, err)
		}
		for i, v := range m.W {
			if v < 0 {
				return nil, fmt.Errorf("%w: cache %q has negative mean square at %d", ErrMalformedRecord, e.Key, i)
			}
		}
		s.cache[e.Key] = m
	}
	return s, nil
}
