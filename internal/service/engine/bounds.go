package engine

import (
	"fmt"
	"strings"
)

// LengthBounds are the summary length limits handed to the summarizer,
// expressed in words.
type LengthBounds struct {
	MinLength int `json:"min_length"`
	MaxLength int `json:"max_length"`
}

// LengthPolicy derives bounds from a transcript word count.
type LengthPolicy func(wordCount int) LengthBounds

const (
	PolicyProportional = "proportional"
	PolicyQuarter      = "quarter"
)

// PolicyByName returns the named policy. One policy is chosen per deployment.
func PolicyByName(name string) (LengthPolicy, error) {
	switch name {
	case "", PolicyProportional:
		return ProportionalBounds, nil
	case PolicyQuarter:
		return QuarterBounds, nil
	default:
		return nil, fmt.Errorf("unknown length policy %q", name)
	}
}

// ProportionalBounds caps the summary at half the transcript and asks for
// at least 80% of that, with floors of 30 and 15 words.
func ProportionalBounds(wordCount int) LengthBounds {
	if wordCount < 0 {
		wordCount = 0
	}
	maxLen := wordCount / 2
	minLen := (maxLen * 8) / 10
	if maxLen < 30 {
		maxLen = 30
	}
	if minLen < 15 {
		minLen = 15
	}
	return LengthBounds{MinLength: minLen, MaxLength: maxLen}.Normalize()
}

// QuarterBounds caps the summary at half the transcript (at least 20 words)
// and asks for a quarter of that (at least 10 words).
func QuarterBounds(wordCount int) LengthBounds {
	if wordCount < 0 {
		wordCount = 0
	}
	maxLen := max(20, wordCount/2)
	minLen := max(10, maxLen/4)
	return LengthBounds{MinLength: minLen, MaxLength: maxLen}.Normalize()
}

// Normalize widens an inverted pair instead of rejecting it.
func (b LengthBounds) Normalize() LengthBounds {
	if b.MaxLength < b.MinLength {
		b.MaxLength = b.MinLength + 20
	}
	return b
}

// Valid reports whether the bounds can be passed to an engine.
func (b LengthBounds) Valid() bool {
	return b.MinLength > 0 && b.MaxLength >= b.MinLength
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
