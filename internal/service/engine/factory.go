package engine

import (
	"context"
	"time"

	"audiodigest/internal/config"
)

// NewTranscription builds the configured transcription engine behind an
// adapter. The engine itself is constructed on first use.
func NewTranscription(cfg *config.Config) *TranscriptionAdapter {
	tc := cfg.Engines.Transcriber
	gemini := cfg.Provider("gemini")
	lazy := NewLazy(func(ctx context.Context) (Transcriber, error) {
		switch tc.Kind {
		case "gemini":
			t, err := NewGeminiTranscriber(ctx, gemini.APIKey, tc.Model)
			if err != nil {
				return nil, err
			}
			return t, nil
		default:
			t, err := NewWhisperCLI(tc)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
	})
	return NewTranscriptionAdapter(lazy, AdapterOptions{
		Timeout:       seconds(tc.TimeoutSeconds),
		MaxConcurrent: tc.MaxConcurrent,
	})
}

// NewSummarization builds the configured chat summarizer behind an adapter.
func NewSummarization(cfg *config.Config) *SummarizationAdapter {
	sc := cfg.Engines.Summarizer
	provCfg := cfg.Provider(sc.Provider)
	lazy := NewLazy(func(ctx context.Context) (Summarizer, error) {
		s, err := NewChatSummarizer(ctx, sc.Provider, provCfg, sc.Model)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	return NewSummarizationAdapter(lazy, AdapterOptions{
		Timeout:       seconds(sc.TimeoutSeconds),
		MaxConcurrent: sc.MaxConcurrent,
	})
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
