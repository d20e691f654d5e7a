package model

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/crislerwin/recurrent-lm/pkg/config"
	"github.com/crislerwin/recurrent-lm/pkg/graph"
	tmath "github.com/crislerwin/recurrent-lm/pkg/math"
	"github.com/crislerwin/recurrent-lm/pkg/random"
	"github.com/crislerwin/recurrent-lm/pkg/solver"
)

var (
	// ErrEmptySequence is returned when a training text encodes to no symbols
	ErrEmptySequence = errors.New("empty sequence")
	// ErrNoCorpus is returned by TrainStep when the network has nothing to sample
	ErrNoCorpus = errors.New("no training corpus")
)

// Vocabulary maps symbols to indices. Index 0 is the start/end boundary and
// is never produced by Encode.
type Vocabulary interface {
	Encode(text string) ([]int, error)
	Symbol(ix int) (string, error)
	Size() int
	MaxSequenceLength() int
}

// Corpus is the list of training sentences
type Corpus interface {
	Len() int
	Entry(i int) string
}

// Option configures a Network
type Option func(*Network)

// WithLogger sets the logger used for training and sampling events
func WithLogger(logger *logrus.Logger) Option {
	return func(n *Network) {
		n.log = logger
	}
}

// WithSource replaces the generator seeded from the model config
func WithSource(src *random.Source) Option {
	return func(n *Network) {
		n.src = src
	}
}

// Network couples a model with its solver, vocabulary and training corpus
type Network struct {
	Model  *Model
	Solver *solver.Solver
	Vocab  Vocabulary

	corpus Corpus
	maxGen int
	steps  int
	src    *random.Source
	log    *logrus.Logger
}

func defaultLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

// NewNetwork builds a randomly initialized network sized to the vocabulary.
// corpus may be nil for a network that only samples.
func NewNetwork(cfg config.ModelConfig, vocab Vocabulary, corpus Corpus, opts ...Option) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	if vocab == nil || vocab.Size() < 2 {
		return nil, fmt.Errorf("vocabulary must hold at least one symbol")
	}

	s, err := solver.New(cfg.Solver)
	if err != nil {
		return nil, err
	}

	n := &Network{
		Solver: s,
		Vocab:  vocab,
		corpus: corpus,
		maxGen: cfg.MaxGen,
		src:    random.New(cfg.Seed),
		log:    defaultLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.maxGen == 0 {
		n.maxGen = vocab.MaxSequenceLength()
	}

	size := vocab.Size()
	n.Model, err = NewModel(CellType(cfg.Cell), size, cfg.LetterSize, cfg.HiddenSizes, size, cfg.InitStd, n.src)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	n.log.WithFields(logrus.Fields{
		"cell":    cfg.Cell,
		"vocab":   size,
		"letter":  cfg.LetterSize,
		"hidden":  cfg.HiddenSizes,
		"max_gen": n.maxGen,
	}).Info("network initialized")

	return n, nil
}

// MaxGen returns the longest sample Predict produces
func (n *Network) MaxGen() int { return n.maxGen }

// Steps returns the number of completed training steps
func (n *Network) Steps() int { return n.steps }

// SetCorpus replaces the training corpus
func (n *Network) SetCorpus(corpus Corpus) { n.corpus = corpus }

// Cost runs the model over text framed by boundary symbols, seeds the
// cross-entropy gradient of every step's logits and returns the recorded
// graph with the sequence perplexity. The caller runs Backward.
func (n *Network) Cost(text string) (*graph.Graph, float64, error) {
	ixs, err := n.Vocab.Encode(text)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode %q: %w", text, err)
	}
	if len(ixs) == 0 {
		return nil, 0, ErrEmptySequence
	}

	g := graph.New(true)
	log2ppl := 0.0
	var prev *State

	// input is [0, x1..xn], target is [x1..xn, 0]
	for i := -1; i < len(ixs); i++ {
		source := 0
		if i >= 0 {
			source = ixs[i]
		}
		target := 0
		if i+1 < len(ixs) {
			target = ixs[i+1]
		}

		st, err := n.Model.Forward(g, source, prev)
		if err != nil {
			return nil, 0, fmt.Errorf("step %d: %w", i+1, err)
		}
		prev = st

		probs := st.Output.Softmax()
		log2ppl += tmath.CrossEntropyGrad(st.Output, probs, target)
	}

	ppl := math.Pow(2, log2ppl/float64(max(len(ixs)-1, 1)))
	return g, ppl, nil
}

// TrainStep samples one sentence, backpropagates through the whole sequence
// and applies a solver update. It returns the sentence perplexity; +Inf
// signals a degenerate probability and is not an error.
func (n *Network) TrainStep(stepRate float64) (float64, error) {
	if n.corpus == nil || n.corpus.Len() == 0 {
		return 0, ErrNoCorpus
	}

	text := n.corpus.Entry(n.src.Randi(0, n.corpus.Len()))
	g, ppl, err := n.Cost(text)
	if err != nil {
		n.Model.ZeroGrad()
		return 0, err
	}

	g.Backward()
	n.Solver.Step(n.Model, stepRate)
	n.steps++

	entry := n.log.WithFields(logrus.Fields{
		"step": n.steps,
		"ppl":  ppl,
	})
	if math.IsInf(ppl, 0) || math.IsNaN(ppl) {
		entry.Warn("degenerate perplexity")
	} else {
		entry.Debug("train step")
	}

	return ppl, nil
}

// Predict samples text until the boundary symbol or MaxGen symbols.
// Logits are divided by temperature before sampling; a temperature of zero
// or less picks the most likely symbol at every step.
func (n *Network) Predict(temperature float64) (string, error) {
	g := graph.New(false)
	var prev *State
	var sb strings.Builder

	ix, count := 0, 0
	for ; count < n.maxGen; count++ {
		st, err := n.Model.Forward(g, ix, prev)
		if err != nil {
			return "", err
		}
		prev = st

		logits := st.Output
		if temperature <= 0 {
			ix = random.Argmax(logits.W)
		} else {
			if temperature != 1 {
				logits = logits.Clone()
				for i := range logits.W {
					logits.W[i] /= temperature
				}
			}
			ix = n.src.Sample(logits.Softmax().W)
		}

		if ix == 0 {
			break
		}
		sym, err := n.Vocab.Symbol(ix)
		if err != nil {
			return "", err
		}
		sb.WriteString(sym)
	}

	n.log.WithFields(logrus.Fields{
		"temperature": temperature,
		"symbols":     count,
	}).Debug("sampled")

	return sb.String(), nil
}

// NetworkRecord is the persisted form of a network
type NetworkRecord struct {
	Model  ModelRecord   `json:"model"`
	Solver solver.Record `json:"solver"`
	Source random.Record `json:"source"`
	MaxGen int           `json:"max_gen"`
	Steps  int           `json:"steps"`
}

// Record returns a deep copy of the network state, including the generator
// position, so that a restored network draws the same sentences and samples
func (n *Network) Record() NetworkRecord {
	return NetworkRecord{
		Model:  n.Model.Record(),
		Solver: n.Solver.Record(),
		Source: n.src.Record(),
		MaxGen: n.maxGen,
		Steps:  n.steps,
	}
}

// NetworkFromRecord rebuilds a network at the recorded generator position.
// The solver cache must match the model parameters and the vocabulary must
// match the model's input width.
func NetworkFromRecord(rec NetworkRecord, vocab Vocabulary, corpus Corpus, opts ...Option) (*Network, error) {
	m, err := ModelFromRecord(rec.Model)
	if err != nil {
		return nil, err
	}
	s, err := solver.FromRecord(rec.Solver)
	if err != nil {
		return nil, err
	}
	if err := s.CheckCompatible(m); err != nil {
		return nil, err
	}
	if vocab == nil || vocab.Size() != m.InputSize() || vocab.Size() != m.OutputSize() {
		return nil, fmt.Errorf("%w: model expects %d symbols", ErrMalformedModel, m.InputSize())
	}
	if rec.MaxGen < 0 {
		return nil, fmt.Errorf("%w: negative max_gen %d", ErrMalformedModel, rec.MaxGen)
	}
	src, err := random.FromRecord(rec.Source)
	if err != nil {
		return nil, err
	}

	n := &Network{
		Model:  m,
		Solver: s,
		Vocab:  vocab,
		corpus: corpus,
		maxGen: rec.MaxGen,
		steps:  rec.Steps,
		src:    src,
		log:    defaultLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.maxGen == 0 {
		n.maxGen = vocab.MaxSequenceLength()
	}
	m.src = n.src

	return n, nil
}
