package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Cache keys are a SHA-256 over a canonical serialization of the inputs.
// encoding/json writes map keys in sorted order, so identical inputs always
// hash identically regardless of map iteration order. If serialization fails
// (an unencodable value smuggled into a filter map), the key degrades to a
// hash of the primary string alone — key derivation never fails, so Get and
// Set never do either.

// ResponseKey derives the response-cache key from the query, the retrieved
// context it was answered against, and the classified query type.
func ResponseKey(query string, context []map[string]any, queryType string) string {
	return deriveKey(query, query, context, queryType)
}

// VectorKey derives the vector-result cache key from the exact search inputs.
func VectorKey(query string, n int, filters map[string]any) string {
	return deriveKey(query, query, n, filters)
}

// EmbeddingKey derives the embedding-cache key from the text and model name.
func EmbeddingKey(text, modelName string) string {
	return deriveKey(text, text, modelName)
}

func deriveKey(primary string, parts ...any) string {
	encoded, err := json.Marshal(parts)
	if err != nil {
		return hashBytes([]byte(primary))
	}
	return hashBytes(encoded)
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
