package embedding

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

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a provider from config.
func NewOpenAIProvider(cfg config.EmbeddingConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding: model is required")
	}
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, classify("embedding", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ragerr.New(ragerr.ErrServiceUnavailable, "empty_embedding", nil)
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// classify maps transport errors onto the shared taxonomy so the breaker
// and degradation chain can treat providers uniformly.
func classify(op string, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			return ragerr.New(ragerr.ErrRateLimited, op, err)
		case apierr.StatusCode >= 500:
			return ragerr.New(ragerr.ErrServiceUnavailable, op, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ragerr.New(ragerr.ErrServiceUnavailable, op+"_timeout", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
