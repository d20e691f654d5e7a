package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crislerwin/recurrent-lm/pkg/tokenizer"
)

// Checkpoint is the on-disk form of a trained network and its vocabulary
type Checkpoint struct {
	Vocab   tokenizer.Record `json:"vocab"`
	Network NetworkRecord    `json:"network"`
}

// SaveCheckpoint writes the network and vocabulary to filename as JSON.
// The file is replaced only once the new content is fully written.
func SaveCheckpoint(filename string, n *Network, vocab *tokenizer.Tokenizer) error {
	data, err := json.Marshal(Checkpoint{
		Vocab:   vocab.Record(),
		Network: n.Record(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint
func LoadCheckpoint(filename string, corpus Corpus, opts ...Option) (*Network, *tokenizer.Tokenizer, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}

	vocab, err := tokenizer.FromRecord(cp.Vocab)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid checkpoint vocabulary: %w", err)
	}
	n, err := NetworkFromRecord(cp.Network, vocab, corpus, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid checkpoint network: %w", err)
	}
	return n, vocab, nil
}
