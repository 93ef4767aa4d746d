package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks cross-field constraints. It aggregates every violation so
// a misconfigured deployment reports all problems at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Retrieval.TopK <= 0 {
		problems = append(problems, "retrieval.top_k must be positive")
	}
	if c.Retrieval.BreadthMultiplier < 1 {
		problems = append(problems, "retrieval.breadth_multiplier must be >= 1")
	}
	if c.Retrieval.VectorWeight <= 0 || c.Retrieval.LexicalWeight < 0 {
		problems = append(problems, "retrieval fusion weights must be positive")
	}
	if c.Retrieval.VectorWeight < c.Retrieval.LexicalWeight {
		problems = append(problems, "retrieval.vector_weight must be >= retrieval.lexical_weight")
	}
	for name, spec := range map[string]CacheSpec{
		"cache.embedding": c.Cache.Embedding,
		"cache.answer":    c.Cache.Answer,
		"cache.chunk":     c.Cache.Chunk,
	} {
		if spec.MaxEntries <= 0 {
			problems = append(problems, name+".max_entries must be positive")
		}
		if spec.TTL <= 0 {
			problems = append(problems, name+".ttl must be positive")
		}
	}
	if c.Conversation.MaxContextTokens < c.Conversation.SummaryMaxTokens {
		problems = append(problems, "conversation.max_context_tokens must cover summary_max_tokens")
	}
	if c.Prompt.MaxTokens <= 0 {
		problems = append(problems, "prompt.max_tokens must be positive")
	}
	if c.Resilience.FailureThreshold <= 0 {
		problems = append(problems, "resilience.failure_threshold must be positive")
	}
	if c.Resilience.RecoveryTimeout <= 0 || c.Resilience.CallTimeout <= 0 {
		problems = append(problems, "resilience timeouts must be positive")
	}
	if c.Question.MinLength > c.Question.MaxLength {
		problems = append(problems, "question.min_length must not exceed question.max_length")
	}
	switch c.VectorDB.Provider {
	case "memory":
	case "milvus":
		if c.VectorDB.Host == "" || c.VectorDB.Collection == "" {
			problems = append(problems, "vectordb: milvus requires host and collection")
		}
	default:
		problems = append(problems, fmt.Sprintf("vectordb: unknown provider %q", c.VectorDB.Provider))
	}
	switch c.Session.Backend {
	case "memory":
	case "dynamodb":
		if c.Session.Table == "" {
			problems = append(problems, "session: dynamodb backend requires table")
		}
	default:
		problems = append(problems, fmt.Sprintf("session: unknown backend %q", c.Session.Backend))
	}

	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
