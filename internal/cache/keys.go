// Package cache implements the two Redis-backed retrieval caches: one for
// query embeddings and one for ranked search results. Both are
// content-addressed and degrade every backend failure to a miss; caching
// is an optimization, never a correctness requirement.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"partychat-go/pkg/textnorm"
)

const (
	embeddingKeyPrefix = "embedding:"
	searchKeyPrefix    = "search:"
)

// EmbeddingKey derives the cache key for a text: sha256 over the
// normalized form, namespaced. Texts that are equal after normalization
// share a key.
func EmbeddingKey(text string) string {
	return embeddingKeyPrefix + hashHex(textnorm.Normalize(text))
}

// SearchKey derives the cache key for a search tuple. The query is
// lowercased and trimmed before hashing so semantically identical queries
// collide regardless of casing and surrounding whitespace; the party code
// is lowercased to match the case-insensitive search filter. The
// threshold is encoded losslessly so that results cached under one
// threshold are never served for a stricter one.
func SearchKey(query, partyCode string, limit int, minSimilarity float64) string {
	tuple := fmt.Sprintf("%s|%s|%d|%s",
		strings.ToLower(strings.TrimSpace(query)),
		strings.ToLower(partyCode),
		limit,
		strconv.FormatFloat(minSimilarity, 'g', -1, 64),
	)
	return searchKeyPrefix + hashHex(tuple)
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
