// Package token provides approximate token counting for budget
// enforcement across the chunking and retrieval pipeline.
package token

import "strings"

// Estimator converts text to an approximate token count.
type Estimator interface {
	// Estimate returns the approximate number of tokens in text.
	Estimate(text string) int
}

// Heuristic estimates tokens from character and word counts. It
// approximates BPE-style tokenizers (roughly 4 characters per token for
// English prose) and makes no attempt to reproduce any specific
// tokenizer's exact counts.
type Heuristic struct{}

// NewHeuristic creates the default estimator.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Estimate returns the approximate token count of text.
// Empty or whitespace-only text counts as zero.
func (e *Heuristic) Estimate(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	chars := len(trimmed)
	words := len(strings.Fields(trimmed))

	// Average of the char/4 rule and a 0.75 words-per-token rule. The
	// blend tracks prose better than either rule alone: char/4 overshoots
	// on long words, the word rule undershoots on punctuation-dense text.
	byChars := (chars + 3) / 4
	byWords := (words*4 + 2) / 3

	estimate := (byChars + byWords) / 2
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

// CharBudget converts a token budget to an approximate character budget.
func CharBudget(tokens int) int {
	return tokens * 4
}
