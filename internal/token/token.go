// Package token provides pluggable token counting for chunking and budgeting.
package token

import (
	"errors"
	"strings"
)

// ErrUnavailable is returned when the underlying tokenization model cannot be used.
var ErrUnavailable = errors.New("tokenizer unavailable")

// Counter counts tokens for arbitrary text.
type Counter interface {
	Count(text string) (int, error)
}

// Estimator is a deterministic heuristic counter: one token per word plus one
// per non-ASCII rune (CJK and similar scripts tokenize near one token per
// character). It never fails and is the default Counter.
type Estimator struct{}

// Count returns the estimated token count for text.
func (Estimator) Count(text string) (int, error) {
	return Estimate(text), nil
}

// Estimate is the heuristic behind Estimator, usable as a plain function.
func Estimate(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

// CounterFunc adapts a function to the Counter interface.
type CounterFunc func(text string) (int, error)

// Count calls f(text).
func (f CounterFunc) Count(text string) (int, error) {
	return f(text)
}
