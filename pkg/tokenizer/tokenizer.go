package tokenizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rivo/uniseg"
)

// BoundaryID is the reserved index that marks both start and end of a sequence
const BoundaryID = 0

var (
	// ErrUnknownSymbol is returned when text contains a symbol outside the vocabulary
	ErrUnknownSymbol = errors.New("symbol not in vocabulary")
	// ErrEmptyCorpus is returned when a vocabulary or corpus is built from no text
	ErrEmptyCorpus = errors.New("empty corpus")
)

// Split breaks text into symbols: extended grapheme clusters, so that
// combining marks and multi-rune emoji stay a single symbol
func Split(text string) []string {
	symbols := make([]string, 0, len(text))
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		symbols = append(symbols, g.Str())
	}
	return symbols
}

// Tokenizer maps symbols to dense indices starting at 1; index 0 is the boundary
type Tokenizer struct {
	Vocab     []string // Vocab[i] has index i+1
	VocabMap  map[string]int
	MaxLength int
}

// NewTokenizer creates a tokenizer with the given symbols, in order
func NewTokenizer(vocab []string, maxLength int) (*Tokenizer, error) {
	if len(vocab) == 0 {
		return nil, ErrEmptyCorpus
	}
	vocabMap := make(map[string]int, len(vocab))
	for i, sym := range vocab {
		if sym == "" {
			return nil, fmt.Errorf("empty symbol at position %d", i)
		}
		if _, dup := vocabMap[sym]; dup {
			return nil, fmt.Errorf("duplicate symbol %q", sym)
		}
		vocabMap[sym] = i + 1
	}

	return &Tokenizer{
		Vocab:     vocab,
		VocabMap:  vocabMap,
		MaxLength: maxLength,
	}, nil
}

// FromCorpus builds a tokenizer from every symbol in data, in first-occurrence order.
// MaxLength is the longest entry measured in symbols.
func FromCorpus(data []string) (*Tokenizer, error) {
	seen := make(map[string]bool)
	var vocab []string
	maxLength := 0
	for _, entry := range data {
		symbols := Split(entry)
		if len(symbols) > maxLength {
			maxLength = len(symbols)
		}
		for _, sym := range symbols {
			if !seen[sym] {
				seen[sym] = true
				vocab = append(vocab, sym)
			}
		}
	}
	return NewTokenizer(vocab, maxLength)
}

// Encode converts text to symbol indices
func (t *Tokenizer) Encode(text string) ([]int, error) {
	symbols := Split(text)
	tokens := make([]int, 0, len(symbols))

	for _, sym := range symbols {
		id, exists := t.VocabMap[sym]
		if !exists {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, sym)
		}
		tokens = append(tokens, id)
	}

	return tokens, nil
}

// Symbol returns the symbol for index id. The boundary has no symbol.
func (t *Tokenizer) Symbol(id int) (string, error) {
	if id <= BoundaryID || id > len(t.Vocab) {
		return "", fmt.Errorf("invalid token ID: %d (vocab size: %d)", id, t.Size())
	}
	return t.Vocab[id-1], nil
}

// Decode converts symbol indices back to text
func (t *Tokenizer) Decode(tokens []int) (string, error) {
	var b strings.Builder
	for _, id := range tokens {
		sym, err := t.Symbol(id)
		if err != nil {
			return "", err
		}
		b.WriteString(sym)
	}
	return b.String(), nil
}

// Size returns the number of indices, including the boundary
func (t *Tokenizer) Size() int {
	return len(t.Vocab) + 1
}

// MaxSequenceLength returns the longest training entry in symbols
func (t *Tokenizer) MaxSequenceLength() int {
	return t.MaxLength
}

// Record is the persisted form of a tokenizer
type Record struct {
	Charset   []string `json:"charset"`
	MaxLength int      `json:"max_length"`
}

// Record returns the tokenizer as a plain record
func (t *Tokenizer) Record() Record {
	charset := make([]string, len(t.Vocab))
	copy(charset, t.Vocab)
	return Record{Charset: charset, MaxLength: t.MaxLength}
}

// FromRecord rebuilds a tokenizer with identical indices
func FromRecord(r Record) (*Tokenizer, error) {
	if r.MaxLength < 0 {
		return nil, fmt.Errorf("negative max length %d", r.MaxLength)
	}
	return NewTokenizer(r.Charset, r.MaxLength)
}
