package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Key construction is correctness-critical: two textually identical
// questions answered against different retrieved contexts must never share
// an answer-cache entry, and switching embedding models must never surface
// stale vectors.

// EmbeddingKey keys a text→vector entry. The model identifier is part of
// the key so model changes cannot collide with cached vectors.
func EmbeddingKey(model, text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return "emb:" + model + ":" + shortHash(normalized)
}

// AnswerKey keys a structured answer by question text, document and the
// fused context fingerprint.
func AnswerKey(question, documentID, fingerprint string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	return "ans:" + documentID + ":" + shortHash(normalized) + ":" + fingerprint
}

// ChunkKey keys a chunk by document and ordinal, stable for the chunk's
// lifetime.
func ChunkKey(documentID string, ordinal int) string {
	return "chunk:" + documentID + ":" + strconv.Itoa(ordinal)
}

// ContextFingerprint produces a stable hash over the retrieved chunk ids
// and any included history summary. Ids are sorted so candidate ordering
// does not change the fingerprint.
func ContextFingerprint(chunkIDs []string, historySummary string) string {
	ids := make([]string, len(chunkIDs))
	copy(ids, chunkIDs)
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte(';')
	}
	b.WriteByte('|')
	b.WriteString(historySummary)
	return shortHash(b.String())
}

func shortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
