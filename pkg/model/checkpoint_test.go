package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crislerwin/recurrent-lm/pkg/config"
	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
)

func TestCheckpointRoundTrip(t *testing.T) {
	n, vocab := testNetwork(t, config.CellGRU, []int{5, 4}, "abcab", "bca")
	for i := 0; i < 10; i++ {
		if _, err := n.TrainStep(0.01); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "net-state.json")
	if err := SaveCheckpoint(path, n, vocab); err != nil {
		t.Fatalf("SaveCheckpoint() = %v", err)
	}
	// overwriting an existing checkpoint must work too
	if err := SaveCheckpoint(path, n, vocab); err != nil {
		t.Fatalf("SaveCheckpoint() over existing file = %v", err)
	}

	loaded, loadedVocab, err := LoadCheckpoint(path, nil, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("LoadCheckpoint() = %v", err)
	}
	if loadedVocab.Size() != vocab.Size() {
		t.Fatalf("vocabulary size %d, want %d", loadedVocab.Size(), vocab.Size())
	}
	for i, sym := range vocab.Vocab {
		if loadedVocab.Vocab[i] != sym {
			t.Errorf("symbol %d = %q, want %q", i+1, loadedVocab.Vocab[i], sym)
		}
	}
	if loaded.Model.Cell != GRU || loaded.Steps() != 10 {
		t.Errorf("loaded cell %q steps %d", loaded.Model.Cell, loaded.Steps())
	}

	want := make(map[string][]float64)
	n.Model.IterateParameters(func(p *tmath.Matrix, key string) { want[key] = p.W })
	loaded.Model.IterateParameters(func(p *tmath.Matrix, key string) {
		if !sliceEqual(p.W, want[key]) {
			t.Errorf("%s differs after reload", key)
		}
	})

	a, err := n.Predict(0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := loaded.Predict(0)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("greedy samples differ: %q vs %q", a, b)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("checkpoint dir holds %d files, want 1", len(entries))
	}
}

func TestLoadCheckpointErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"vocab":`},
		{name: "empty vocabulary", body: `{"vocab": {"charset": []}, "network": {}}`},
		{name: "missing network", body: `{"vocab": {"charset": ["a", "b"], "max_length": 2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, _, err := LoadCheckpoint(path, nil); err == nil {
				t.Error("LoadCheckpoint() expected error")
			}
		})
	}

	if _, _, err := LoadCheckpoint(filepath.Join(dir, "missing.json"), nil); err == nil {
		t.Error("LoadCheckpoint() on missing file expected error")
	}
}
