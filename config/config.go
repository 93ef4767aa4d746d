// Package config declares every tunable of the QA core with documented
// defaults, validated at construction.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the QA core.
type Config struct {
	Retrieval    RetrievalConfig    `json:"retrieval" yaml:"retrieval"`
	Cache        CacheConfig        `json:"cache" yaml:"cache"`
	Conversation ConversationConfig `json:"conversation" yaml:"conversation"`
	Prompt       PromptConfig       `json:"prompt" yaml:"prompt"`
	Resilience   ResilienceConfig   `json:"resilience" yaml:"resilience"`
	Question     QuestionConfig     `json:"question" yaml:"question"`
	Answer       AnswerConfig       `json:"answer" yaml:"answer"`
	Embedding    EmbeddingConfig    `json:"embedding" yaml:"embedding"`
	LLM          LLMConfig          `json:"llm" yaml:"llm"`
	VectorDB     VectorDBConfig     `json:"vectordb" yaml:"vectordb"`
	Session      SessionConfig      `json:"session" yaml:"session"`
	Log          LogConfig          `json:"log" yaml:"log"`
}

// RetrievalConfig tunes the three-stage retrieval engine.
type RetrievalConfig struct {
	// TopK is the final candidate count returned per query. Default 5.
	TopK int `json:"top_k" yaml:"top_k"`
	// BreadthMultiplier widens the rough vector search to
	// BreadthMultiplier*topK candidates. Default 4.
	BreadthMultiplier int `json:"breadth_multiplier" yaml:"breadth_multiplier"`
	// VectorWeight and LexicalWeight combine the normalized path scores
	// during fusion. VectorWeight must be >= LexicalWeight.
	// Defaults 0.7 / 0.3.
	VectorWeight  float64 `json:"vector_weight" yaml:"vector_weight"`
	LexicalWeight float64 `json:"lexical_weight" yaml:"lexical_weight"`
	// MinTermLength is the shortest question term used for lexical
	// matching. Default 3.
	MinTermLength int `json:"min_term_length" yaml:"min_term_length"`
	// RerankBaseWeight is the share of the fused score carried into the
	// rerank pass. Default 0.5.
	RerankBaseWeight float64 `json:"rerank_base_weight" yaml:"rerank_base_weight"`
}

// CacheSpec sizes one cache.
type CacheSpec struct {
	MaxEntries int           `json:"max_entries" yaml:"max_entries"`
	TTL        time.Duration `json:"ttl" yaml:"ttl"`
}

// CacheConfig sizes the three caches. Embeddings live longest (text→vector
// is stable), answers shortest (context drifts).
type CacheConfig struct {
	Embedding CacheSpec `json:"embedding" yaml:"embedding"`
	Answer    CacheSpec `json:"answer" yaml:"answer"`
	Chunk     CacheSpec `json:"chunk" yaml:"chunk"`
}

// ConversationConfig tunes history compression.
type ConversationConfig struct {
	// RetainRecentTurns is the number of newest turns kept verbatim in a
	// context window. Default 6.
	RetainRecentTurns int `json:"retain_recent_turns" yaml:"retain_recent_turns"`
	// MaxContextTokens bounds the context window estimate. Default 2000.
	MaxContextTokens int `json:"max_context_tokens" yaml:"max_context_tokens"`
	// MaxKeyEntities caps the extracted entity map. Default 12.
	MaxKeyEntities int `json:"max_key_entities" yaml:"max_key_entities"`
	// SummaryMaxSentences bounds the topic summary. Default 5.
	SummaryMaxSentences int `json:"summary_max_sentences" yaml:"summary_max_sentences"`
	// SummaryMaxTokens hard-caps the summary's token share. Default 80.
	SummaryMaxTokens int `json:"summary_max_tokens" yaml:"summary_max_tokens"`
}

// PromptConfig tunes prompt assembly.
type PromptConfig struct {
	// MaxTokens is the total prompt budget. Default 3000.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// MaxOutputTokens is passed to the generation service. Default 1024.
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`
}

// ResilienceConfig tunes the circuit breakers guarding external services.
type ResilienceConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// breaker. Default 5.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// RecoveryTimeout is how long a breaker stays open before a single
	// trial call is admitted. Default 30s.
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`
	// CallTimeout bounds every external call; exceeding it counts as a
	// failure. Default 10s.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`
}

// QuestionConfig bounds inbound questions.
type QuestionConfig struct {
	MinLength int `json:"min_length" yaml:"min_length"` // default 2
	MaxLength int `json:"max_length" yaml:"max_length"` // default 1000, longer input is truncated
}

// AnswerConfig bounds post-processed answers.
type AnswerConfig struct {
	MinLength int `json:"min_length" yaml:"min_length"` // default 20
	MaxLength int `json:"max_length" yaml:"max_length"` // default 4000
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // openai
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model" yaml:"model"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// LLMConfig selects the generation provider.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // openai
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// VectorDBConfig selects the vector store backend.
type VectorDBConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // milvus, memory
	Host       string `json:"host,omitempty" yaml:"host,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database   string `json:"database,omitempty" yaml:"database,omitempty"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
}

// SessionConfig selects durable session persistence.
type SessionConfig struct {
	Backend string `json:"backend" yaml:"backend"` // memory, dynamodb
	Table   string `json:"table,omitempty" yaml:"table,omitempty"`
	Region  string `json:"region,omitempty" yaml:"region,omitempty"`
}

// LogConfig configures the package logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
}

// Default returns a fully populated configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields with documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.BreadthMultiplier <= 0 {
		c.Retrieval.BreadthMultiplier = 4
	}
	if c.Retrieval.VectorWeight == 0 && c.Retrieval.LexicalWeight == 0 {
		c.Retrieval.VectorWeight = 0.7
		c.Retrieval.LexicalWeight = 0.3
	}
	if c.Retrieval.MinTermLength <= 0 {
		c.Retrieval.MinTermLength = 3
	}
	if c.Retrieval.RerankBaseWeight <= 0 {
		c.Retrieval.RerankBaseWeight = 0.5
	}
	if c.Cache.Embedding.MaxEntries <= 0 {
		c.Cache.Embedding.MaxEntries = 2000
	}
	if c.Cache.Embedding.TTL <= 0 {
		c.Cache.Embedding.TTL = 6 * time.Hour
	}
	if c.Cache.Answer.MaxEntries <= 0 {
		c.Cache.Answer.MaxEntries = 500
	}
	if c.Cache.Answer.TTL <= 0 {
		c.Cache.Answer.TTL = 30 * time.Minute
	}
	if c.Cache.Chunk.MaxEntries <= 0 {
		c.Cache.Chunk.MaxEntries = 4000
	}
	if c.Cache.Chunk.TTL <= 0 {
		c.Cache.Chunk.TTL = 2 * time.Hour
	}
	if c.Conversation.RetainRecentTurns <= 0 {
		c.Conversation.RetainRecentTurns = 6
	}
	if c.Conversation.MaxContextTokens <= 0 {
		c.Conversation.MaxContextTokens = 2000
	}
	if c.Conversation.MaxKeyEntities <= 0 {
		c.Conversation.MaxKeyEntities = 12
	}
	if c.Conversation.SummaryMaxSentences <= 0 {
		c.Conversation.SummaryMaxSentences = 5
	}
	if c.Conversation.SummaryMaxTokens <= 0 {
		c.Conversation.SummaryMaxTokens = 80
	}
	if c.Prompt.MaxTokens <= 0 {
		c.Prompt.MaxTokens = 3000
	}
	if c.Prompt.MaxOutputTokens <= 0 {
		c.Prompt.MaxOutputTokens = 1024
	}
	if c.Resilience.FailureThreshold <= 0 {
		c.Resilience.FailureThreshold = 5
	}
	if c.Resilience.RecoveryTimeout <= 0 {
		c.Resilience.RecoveryTimeout = 30 * time.Second
	}
	if c.Resilience.CallTimeout <= 0 {
		c.Resilience.CallTimeout = 10 * time.Second
	}
	if c.Question.MinLength <= 0 {
		c.Question.MinLength = 2
	}
	if c.Question.MaxLength <= 0 {
		c.Question.MaxLength = 1000
	}
	if c.Answer.MinLength <= 0 {
		c.Answer.MinLength = 20
	}
	if c.Answer.MaxLength <= 0 {
		c.Answer.MaxLength = 4000
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.VectorDB.Provider == "" {
		c.VectorDB.Provider = "memory"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// LoadFile reads a yaml config, applies defaults and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
