package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Transcriber is a speech-to-text engine.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Summarizer is a text summarization engine.
type Summarizer interface {
	Summarize(ctx context.Context, text string, bounds LengthBounds) (string, error)
}

// AdapterOptions tunes how an adapter drives its engine.
type AdapterOptions struct {
	Timeout       time.Duration // per call, zero disables
	MaxConcurrent int           // concurrent engine calls, defaults to 1
}

// TranscriptionAdapter turns every transcription outcome into either
// non-empty text or a *TranscriptionError.
type TranscriptionAdapter struct {
	engine  *Lazy[Transcriber]
	limit   *limiter
	timeout time.Duration
}

func NewTranscriptionAdapter(engine *Lazy[Transcriber], opts AdapterOptions) *TranscriptionAdapter {
	return &TranscriptionAdapter{
		engine:  engine,
		limit:   newLimiter(opts.MaxConcurrent),
		timeout: opts.Timeout,
	}
}

// Ready builds the engine if needed and reports whether it is usable.
func (a *TranscriptionAdapter) Ready(ctx context.Context) error {
	if _, err := a.engine.Get(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

func (a *TranscriptionAdapter) Transcribe(ctx context.Context, audioPath string) (string, error) {
	fail := func(err error) (string, error) {
		return "", &TranscriptionError{Path: audioPath, Err: err}
	}
	if err := checkSource(audioPath); err != nil {
		return fail(err)
	}

	callCtx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.limit.acquire(callCtx); err != nil {
		return fail(callError(ctx, callCtx, err))
	}
	defer a.limit.release()

	eng, err := a.engine.Get(callCtx)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrEngineUnavailable, err))
	}

	var text string
	err = guard(func() error {
		var callErr error
		text, callErr = eng.Transcribe(callCtx, audioPath)
		return callErr
	})
	if err != nil {
		return fail(callError(ctx, callCtx, err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fail(ErrEmptyTranscript)
	}
	return text, nil
}

// SummarizationAdapter turns every summarization outcome into either
// non-empty text or a *SummarizationError.
type SummarizationAdapter struct {
	engine  *Lazy[Summarizer]
	limit   *limiter
	timeout time.Duration
}

func NewSummarizationAdapter(engine *Lazy[Summarizer], opts AdapterOptions) *SummarizationAdapter {
	return &SummarizationAdapter{
		engine:  engine,
		limit:   newLimiter(opts.MaxConcurrent),
		timeout: opts.Timeout,
	}
}

// Ready builds the engine if needed and reports whether it is usable.
func (a *SummarizationAdapter) Ready(ctx context.Context) error {
	if _, err := a.engine.Get(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

func (a *SummarizationAdapter) Summarize(ctx context.Context, text string, bounds LengthBounds) (string, error) {
	bounds = bounds.Normalize()
	fail := func(err error) (string, error) {
		return "", &SummarizationError{Bounds: bounds, Err: err}
	}
	// never hand blank input to the engine
	if strings.TrimSpace(text) == "" {
		return fail(ErrEmptyInput)
	}
	if !bounds.Valid() {
		return fail(ErrDegenerateBounds)
	}

	callCtx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.limit.acquire(callCtx); err != nil {
		return fail(callError(ctx, callCtx, err))
	}
	defer a.limit.release()

	eng, err := a.engine.Get(callCtx)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrEngineUnavailable, err))
	}

	var summary string
	err = guard(func() error {
		var callErr error
		summary, callErr = eng.Summarize(callCtx, text, bounds)
		return callErr
	})
	if err != nil {
		return fail(callError(ctx, callCtx, err))
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fail(ErrEmptySummary)
	}
	return summary, nil
}

func checkSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrSourceMissing, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	return f.Close()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// callError reports a deadline that fired on the adapter's own timeout as
// ErrTimeout while keeping caller cancellation visible through errors.Is.
func callError(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %v", parent.Err(), err)
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// guard converts an engine panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return fn()
}
