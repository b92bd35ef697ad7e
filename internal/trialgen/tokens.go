package trialgen

import "strings"

// TokenCounter estimates the token count of generated text for cost and
// usage accounting.
type TokenCounter interface {
	Count(text string) int
}

// ApproxCounter is the default counter: a whitespace and punctuation split.
// The ingestion pipeline owns exact tokenizer-based counts; this keeps cost
// accounting in the right order of magnitude when generation happens here.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	return len(strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ' ', '\n', '\r', '\t', '.', ',', '!', '?':
			return true
		}
		return false
	}))
}
