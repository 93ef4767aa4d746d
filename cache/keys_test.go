package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingKeyNormalizesTextAndSeparatesModels(t *testing.T) {
	a := EmbeddingKey("text-embedding-3-small", "  What   Changed? ")
	b := EmbeddingKey("text-embedding-3-small", "what changed?")
	assert.Equal(t, a, b, "whitespace and case differences share a key")

	other := EmbeddingKey("text-embedding-3-large", "what changed?")
	assert.NotEqual(t, a, other, "a model switch must never reuse cached vectors")
}

func TestAnswerKeySeparatesContexts(t *testing.T) {
	fpA := ContextFingerprint([]string{"c1", "c2"}, "")
	fpB := ContextFingerprint([]string{"c1", "c3"}, "")

	a := AnswerKey("what changed", "doc-1", fpA)
	b := AnswerKey("what changed", "doc-1", fpB)
	assert.NotEqual(t, a, b, "identical questions with different contexts never collide")

	assert.NotEqual(t,
		AnswerKey("what changed", "doc-1", fpA),
		AnswerKey("what changed", "doc-2", fpA))
}

func TestContextFingerprintIgnoresChunkOrder(t *testing.T) {
	a := ContextFingerprint([]string{"c2", "c1", "c3"}, "summary")
	b := ContextFingerprint([]string{"c1", "c3", "c2"}, "summary")
	assert.Equal(t, a, b)

	c := ContextFingerprint([]string{"c1", "c3", "c2"}, "different summary")
	assert.NotEqual(t, a, c, "the history summary is part of the fingerprint")
}

func TestChunkKeyStable(t *testing.T) {
	assert.Equal(t, "chunk:doc-1:4", ChunkKey("doc-1", 4))
}
