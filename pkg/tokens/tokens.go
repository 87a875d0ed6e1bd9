// Package tokens provides token counting for budget enforcement and
// per-turn accounting.
//
// Counting uses tiktoken encodings when available. When a model has no
// known encoding, the word-based estimator is used; it intentionally
// overestimates so budgets stay conservative.
package tokens

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter handles token counting for a specific model.
type Counter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	// Encodings are cached; tiktoken initialization is expensive.
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewCounter creates a counter for the given model. Unknown models fall
// back to the cl100k_base encoding.
func NewCounter(model string) (*Counter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()

	if exists {
		return &Counter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &Counter{encoding: encoding, model: model}, nil
}

// Count returns the token count for text.
func (c *Counter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// Model returns the model this counter was built for.
func (c *Counter) Model() string {
	return c.model
}

// Estimate returns a word-based token estimate for providers that cannot
// tokenize. The result is always >= ceil(words * 1.3).
func Estimate(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * 1.3))
}
