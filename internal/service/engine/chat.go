package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"audiodigest/internal/config"
)

const summarySystemPrompt = "You are a helpful assistant that summarizes transcripts of spoken audio. " +
	"Produce a faithful summary of the key points in plain prose. " +
	"Do not invent facts that are not in the transcript and do not add headings or commentary."

// ChatSummarizer summarizes through an eino chat model.
type ChatSummarizer struct {
	chatModel model.BaseChatModel
}

// NewChatSummarizer builds the chat model for provider ("openai", "claude" or "gemini").
func NewChatSummarizer(ctx context.Context, provider string, provCfg config.ProviderConfig, modelName string) (*ChatSummarizer, error) {
	if modelName == "" {
		modelName = provCfg.Model
	}
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("api key for provider %s not configured", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return &ChatSummarizer{chatModel: chatModel}, nil
}

func (s *ChatSummarizer) Summarize(ctx context.Context, text string, bounds LengthBounds) (string, error) {
	if s == nil || s.chatModel == nil {
		return "", errors.New("chat model not initialized")
	}
	messages := []*schema.Message{
		{
			Role:    schema.System,
			Content: summarySystemPrompt,
		},
		{
			Role:    schema.User,
			Content: summaryPrompt(text, bounds),
		},
	}
	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate summary failed: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

func summaryPrompt(text string, bounds LengthBounds) string {
	return fmt.Sprintf("Summarize the following transcript in %d to %d words.\n\nTranscript:\n%s\n",
		bounds.MinLength, bounds.MaxLength, text)
}
