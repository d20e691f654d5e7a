package solver

import (
	"errors"
	"math"
	"testing"

	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
)

// params is a minimal ordered parameter set for tests
type params struct {
	keys []string
	mats []*tmath.Matrix
}

func (p *params) IterateParameters(visit func(m *tmath.Matrix, key string)) {
	for i, m := range p.mats {
		visit(m, p.keys[i])
	}
}

func single(key string, w, dw float64) *params {
	m := tmath.NewMatrix(1, 1)
	m.W[0], m.DW[0] = w, dw
	return &params{keys: []string{key}, mats: []*tmath.Matrix{m}}
}

func TestStepClipsBeforeCacheUpdate(t *testing.T) {
	tests := []struct {
		name    string
		grad    float64
		clipped float64
	}{
		{name: "large positive", grad: 1000, clipped: 5},
		{name: "large negative", grad: -1000, clipped: -5},
		{name: "within range", grad: 0.5, clipped: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			p := single("W", 1.0, tt.grad)
			const stepRate = 0.01

			s.Step(p, stepRate)

			cfg := DefaultConfig()
			wantCache := (1 - cfg.DecayRate) * tt.clipped * tt.clipped
			wantW := 1.0 + (-stepRate*tt.clipped/math.Sqrt(wantCache+cfg.SmoothEps) - cfg.Regc*1.0)

			if got := s.Cache("W").W[0]; math.Abs(got-wantCache) > 1e-15 {
				t.Errorf("cache = %v, want %v", got, wantCache)
			}
			if got := p.mats[0].W[0]; math.Abs(got-wantW) > 1e-15 {
				t.Errorf("w = %v, want %v", got, wantW)
			}
			if p.mats[0].DW[0] != 0 {
				t.Errorf("dw = %v, want 0 after step", p.mats[0].DW[0])
			}
		})
	}
}

func TestStepMovingAverage(t *testing.T) {
	s := Default()
	p := single("W", 0, 0)
	cfg := DefaultConfig()

	want := 0.0
	for i := 1; i <= 3; i++ {
		g := float64(i)
		p.mats[0].DW[0] = g
		s.Step(p, 0.01)
		want = want*cfg.DecayRate + (1-cfg.DecayRate)*g*g
		if got := s.Cache("W").W[0]; math.Abs(got-want) > 1e-15 {
			t.Fatalf("step %d: cache = %v, want %v", i, got, want)
		}
	}
}

func TestStepWeightDecayOnly(t *testing.T) {
	s := Default()
	p := single("W", 2.0, 0)

	s.Step(p, 0.5)

	want := 2.0 - DefaultConfig().Regc*2.0
	if got := p.mats[0].W[0]; got != want {
		t.Errorf("w = %v, want %v", got, want)
	}
}

func TestStepShapeMismatchPanics(t *testing.T) {
	s := Default()
	s.Step(single("W", 1, 1), 0.01)

	defer func() {
		if recover() == nil {
			t.Error("expected panic for cache shape mismatch")
		}
	}()
	p := &params{keys: []string{"W"}, mats: []*tmath.Matrix{tmath.NewMatrix(2, 1)}}
	s.Step(p, 0.01)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "decay of one", mutate: func(c *Config) { c.DecayRate = 1 }, wantErr: true},
		{name: "zero eps", mutate: func(c *Config) { c.SmoothEps = 0 }, wantErr: true},
		{name: "negative clip", mutate: func(c *Config) { c.ClipVal = -1 }, wantErr: true},
		{name: "negative regc", mutate: func(c *Config) { c.Regc = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	s := Default()
	p := &params{
		keys: []string{"b", "a"},
		mats: []*tmath.Matrix{tmath.NewMatrix(2, 1), tmath.NewMatrix(1, 3)},
	}
	p.mats[0].DW[0], p.mats[1].DW[2] = 0.3, -2
	s.Step(p, 0.1)

	rec := s.Record()
	if len(rec.StepCache) != 2 || rec.StepCache[0].Key != "a" {
		t.Fatalf("Record() cache = %+v, want sorted by key", rec.StepCache)
	}

	restored, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord failed: %v", err)
	}
	if restored.Config() != s.Config() {
		t.Errorf("config = %+v, want %+v", restored.Config(), s.Config())
	}
	for _, key := range p.keys {
		want, got := s.Cache(key), restored.Cache(key)
		for i := range want.W {
			if got.W[i] != want.W[i] {
				t.Errorf("cache %s[%d] = %v, want %v", key, i, got.W[i], want.W[i])
			}
		}
	}
	if err := restored.CheckCompatible(p); err != nil {
		t.Errorf("CheckCompatible() = %v", err)
	}
}

func TestFromRecordRejectsMalformed(t *testing.T) {
	good := tmath.Record{N: 1, D: 1, W: []float64{0.1}}

	tests := []struct {
		name string
		rec  Record
	}{
		{name: "bad config", rec: Record{Config: Config{}}},
		{name: "bad matrix", rec: Record{Config: DefaultConfig(), StepCache: []CacheEntry{{Key: "W", Matrix: tmath.Record{N: 2, D: 1, W: []float64{1}}}}}},
		{name: "empty key", rec: Record{Config: DefaultConfig(), StepCache: []CacheEntry{{Matrix: good}}}},
		{name: "duplicate key", rec: Record{Config: DefaultConfig(), StepCache: []CacheEntry{{Key: "W", Matrix: good}, {Key: "W", Matrix: good}}}},
		{name: "negative mean square", rec: Record{Config: DefaultConfig(), StepCache: []CacheEntry{{Key: "W", Matrix: tmath.Record{N: 1, D: 1, W: []float64{-1}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromRecord(tt.rec); !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("FromRecord() error = %v, want ErrMalformedRecord", err)
			}
		})
	}
}

func TestCheckCompatible(t *testing.T) {
	rec := Record{
		Config:    DefaultConfig(),
		StepCache: []CacheEntry{{Key: "W", Matrix: tmath.Record{N: 2, D: 1, W: []float64{0, 0}}}},
	}
	s, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord failed: %v", err)
	}

	if err := s.CheckCompatible(single("W", 0, 0)); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("shape mismatch: error = %v, want ErrMalformedRecord", err)
	}
	if err := s.CheckCompatible(single("V", 0, 0)); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("unknown key: error = %v, want ErrMalformedRecord", err)
	}
}
