package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/crislerwin/recurrent-lm/pkg/solver"
)

// Cell types understood by the model package
const (
	CellLSTM = "lstm"
	CellGRU  = "gru"
)

// ModelConfig holds the network architecture and solver settings
type ModelConfig struct {
	Cell        string        `json:"cell"`
	LetterSize  int           `json:"letter_size"`
	HiddenSizes []int         `json:"hidden_sizes"`
	MaxGen      int           `json:"max_gen"` // 0 uses the vocabulary's longest entry
	InitStd     float64       `json:"init_std"`
	Seed        int64         `json:"seed"`
	Solver      solver.Config `json:"solver"`
}

// TrainConfig holds the settings of the training driver
type TrainConfig struct {
	Iterations     int     `json:"iterations"`
	StepRate       float64 `json:"step_rate"`
	SampleEvery    int     `json:"sample_every"`
	Temperature    float64 `json:"temperature"`
	CorpusPath     string  `json:"corpus_path"`
	CheckpointPath string  `json:"checkpoint_path"`
}

// Config is the on-disk configuration file
type Config struct {
	Model ModelConfig `json:"model"`
	Train TrainConfig `json:"train"`
}

// Validate checks if the configuration is valid
func (c *ModelConfig) Validate() error {
	if c.Cell != CellLSTM && c.Cell != CellGRU {
		return fmt.Errorf("cell must be %q or %q, got %q", CellLSTM, CellGRU, c.Cell)
	}
	if c.LetterSize <= 0 {
		return fmt.Errorf("letter_size must be positive, got %d", c.LetterSize)
	}
	if len(c.HiddenSizes) == 0 {
		return fmt.Errorf("hidden_sizes cannot be empty")
	}
	for i, h := range c.HiddenSizes {
		if h <= 0 {
			return fmt.Errorf("hidden_sizes[%d] must be positive, got %d", i, h)
		}
	}
	if c.MaxGen < 0 {
		return fmt.Errorf("max_gen must be non-negative, got %d", c.MaxGen)
	}
	if c.InitStd <= 0 {
		c.InitStd = 0.08 // Default init range
	}
	if c.Solver == (solver.Config{}) {
		c.Solver = solver.DefaultConfig()
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	return nil
}

// Validate checks if the training settings are valid
func (c *TrainConfig) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.StepRate <= 0 {
		return fmt.Errorf("step_rate must be positive, got %v", c.StepRate)
	}
	if c.SampleEvery < 0 {
		return fmt.Errorf("sample_every must be non-negative, got %d", c.SampleEvery)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("temperature must be non-negative, got %v", c.Temperature)
	}
	if c.CorpusPath == "" {
		return fmt.Errorf("corpus_path cannot be empty")
	}
	return nil
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := config.Model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	if err := config.Train.Validate(); err != nil {
		return nil, fmt.Errorf("invalid train config: %w", err)
	}

	return config, nil
}

// DefaultModelConfig returns the default architecture: a two-layer LSTM
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Cell:        CellLSTM,
		LetterSize:  5,
		HiddenSizes: []int{20, 20},
		MaxGen:      140,
		InitStd:     0.08,
		Seed:        1,
		Solver:      solver.DefaultConfig(),
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Model: DefaultModelConfig(),
		Train: TrainConfig{
			Iterations:     100000,
			StepRate:       0.01,
			SampleEvery:    100,
			Temperature:    1,
			CorpusPath:     "data/corpus.txt",
			CheckpointPath: "data/net-state.json",
		},
	}
}
