package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/ragerr"
)

const systemPrompt = `You are a careful document-reading assistant. Answer strictly from the provided sources. Cite sources inline as [Source N]. If the sources do not contain the answer, say so.`

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAIProvider builds a provider from config.
func NewOpenAIProvider(cfg config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (p *OpenAIProvider) GenerateCompletion(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(p.model),
		Temperature: openai.Float(p.temperature),
	}
	if maxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxOutputTokens))
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ragerr.New(ragerr.ErrServiceUnavailable, "empty_completion", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			return ragerr.New(ragerr.ErrRateLimited, "generation", err)
		case apierr.StatusCode >= 500:
			return ragerr.New(ragerr.ErrServiceUnavailable, "generation", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ragerr.New(ragerr.ErrServiceUnavailable, "generation_timeout", err)
	}
	return fmt.Errorf("generation: %w", err)
}
