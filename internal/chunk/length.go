package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// LengthEstimator returns an integer length estimate used to bound chunk size.
// The unit is opaque to the chunker; it only compares estimates to TargetLength.
type LengthEstimator interface {
	Estimate(text string) int
}

// CharEstimator approximates tokens as ceil(characters / CharsPerUnit).
type CharEstimator struct {
	CharsPerUnit int
}

// Estimate implements LengthEstimator.
func (e CharEstimator) Estimate(text string) int {
	ratio := e.CharsPerUnit
	if ratio <= 0 {
		ratio = DefaultCharsPerUnit
	}
	n := utf8.RuneCountInString(text)
	return (n + ratio - 1) / ratio
}

// WordEstimator approximates tokens as 4/3 of the whitespace-separated word count.
type WordEstimator struct{}

// Estimate implements LengthEstimator.
func (WordEstimator) Estimate(text string) int {
	words := len(strings.Fields(text))
	return (words*4 + 2) / 3
}

// EstimatorFunc adapts a plain function to LengthEstimator.
type EstimatorFunc func(string) int

// Estimate implements LengthEstimator.
func (f EstimatorFunc) Estimate(text string) int { return f(text) }

// NewEstimator returns the estimator registered under name ("chars" or "words").
func NewEstimator(name string, charsPerUnit int) (LengthEstimator, error) {
	switch strings.ToLower(name) {
	case "", "chars":
		return CharEstimator{CharsPerUnit: charsPerUnit}, nil
	case "words":
		return WordEstimator{}, nil
	default:
		return nil, fmt.Errorf("unknown length estimator %q (use: chars, words)", name)
	}
}
