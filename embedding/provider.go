// Package embedding adapts external text-embedding services.
package embedding

import "context"

// Provider turns text into an embedding vector. Implementations may fail
// with ragerr.ErrRateLimited or ragerr.ErrServiceUnavailable.
type Provider interface {
	// GetEmbedding embeds a single text.
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	// Model identifies the backing model, used in cache keys.
	Model() string
}
