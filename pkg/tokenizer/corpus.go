package tokenizer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Corpus is an ordered, non-empty collection of training strings
type Corpus struct {
	entries []string
}

// NewCorpus creates a corpus, dropping blank entries
func NewCorpus(entries []string) (*Corpus, error) {
	kept := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e) != "" {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return nil, ErrEmptyCorpus
	}
	return &Corpus{entries: kept}, nil
}

// ReadCorpus reads one entry per line
func ReadCorpus(r io.Reader) (*Corpus, error) {
	var entries []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		entries = append(entries, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	return NewCorpus(entries)
}

// LoadCorpus reads a corpus file with one entry per line
func LoadCorpus(filename string) (*Corpus, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()
	return ReadCorpus(f)
}

// Len returns the number of entries
func (c *Corpus) Len() int {
	return len(c.entries)
}

// Entry returns entry i
func (c *Corpus) Entry(i int) string {
	return c.entries[i]
}

// Entries returns all entries
func (c *Corpus) Entries() []string {
	return c.entries
}
