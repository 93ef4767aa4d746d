// Package llm adapts external text-generation services.
package llm

import "context"

// Provider generates text from an assembled prompt. Implementations may
// fail with ragerr.ErrRateLimited or ragerr.ErrServiceUnavailable; timeouts
// surface as context errors and count as failures for breaker accounting.
type Provider interface {
	GenerateCompletion(ctx context.Context, prompt string, maxOutputTokens int) (string, error)
}
