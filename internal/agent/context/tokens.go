package context

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for context-budget decisions, using
// tiktoken's cl100k_base encoding as a cross-provider approximation (close
// enough for Claude and GPT-family models alike).
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

var (
	globalTokenCounter *TokenCounter
	counterInitOnce    sync.Once
)

// GetTokenCounter returns the process-wide token counter, initializing the
// encoder lazily on first use.
func GetTokenCounter() *TokenCounter {
	counterInitOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			globalTokenCounter = &TokenCounter{}
			return
		}
		globalTokenCounter = &TokenCounter{encoder: enc}
	})
	return globalTokenCounter
}

// Count returns the token count for text, falling back to a char/4
// approximation if the encoder failed to load.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if tc.encoder == nil {
		return len(text) / 4
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil))
}
