package engine

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"
)

const (
	transcribePrompt = "Transcribe the speech in this audio verbatim. " +
		"Output only the spoken words as plain text, without timestamps, speaker labels or commentary. " +
		"If there is no intelligible speech, output nothing."

	// request size ceiling for inline audio parts
	maxInlineAudioBytes = 20 << 20
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiTranscriber sends the audio inline to a Gemini model.
type GeminiTranscriber struct {
	models contentGenerator
	model  string
}

func NewGeminiTranscriber(ctx context.Context, apiKey, model string) (*GeminiTranscriber, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiTranscriber{models: client.Models, model: model}, nil
}

func (g *GeminiTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return "", nil
	}
	if len(data) > maxInlineAudioBytes {
		return "", fmt.Errorf("audio too large for inline request: %d bytes", len(data))
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: transcribePrompt},
			{InlineData: &genai.Blob{MIMEType: audioMIMEType(audioPath, data), Data: data}},
		},
	}}
	result, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return responseText(result), nil
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func audioMIMEType(path string, data []byte) string {
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "audio/") {
		return sniffed
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(byExt, "audio/") {
		return byExt
	}
	return "audio/mpeg"
}
