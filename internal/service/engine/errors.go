package engine

import (
	"errors"
	"fmt"
)

var (
	ErrSourceMissing     = errors.New("audio source missing")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrEmptyTranscript   = errors.New("empty transcript")
	ErrEmptyInput        = errors.New("empty summarization input")
	ErrDegenerateBounds  = errors.New("degenerate length bounds")
	ErrEmptySummary      = errors.New("empty summary")
	ErrTimeout           = errors.New("engine call timed out")
)

// TranscriptionError is returned by TranscriptionAdapter for every failure.
type TranscriptionError struct {
	Path string
	Err  error
}

func (e *TranscriptionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("transcribe %s: %v", e.Path, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SummarizationError is returned by SummarizationAdapter for every failure.
type SummarizationError struct {
	Bounds LengthBounds
	Err    error
}

func (e *SummarizationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("summarize (min %d, max %d): %v", e.Bounds.MinLength, e.Bounds.MaxLength, e.Err)
}

func (e *SummarizationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
