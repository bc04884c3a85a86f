package indexer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer wraps the BPE encoding used for token counting. One instance
// is shared process-wide and released at shutdown.
type Tokenizer struct {
	mu  sync.RWMutex
	enc *tiktoken.Tiktoken
}

// NewTokenizer acquires the cl100k_base encoding, the encoding used by
// text-embedding-3-small.
func NewTokenizer() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer: %w", err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Count returns the number of tokens in text
func (t *Tokenizer) Count(text string) int {
	t.mu.RLock()
	enc := t.enc
	t.mu.RUnlock()
	if enc == nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// Close releases the encoding handle. Counting after Close returns 0.
func (t *Tokenizer) Close() {
	t.mu.Lock()
	t.enc = nil
	t.mu.Unlock()
}
