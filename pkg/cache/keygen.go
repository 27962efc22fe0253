// Package cache provides the two-tier response cache: a process-local LRU
// tier backed by a Redis tier, fronted by a manager that reads through and
// writes through both. Keys are derived from the optimized prompt and the
// routed model so identical requests share an entry.
package cache

import (
	"crypto/sha256"
	"encoding/base64"
)

const (
	// DefaultKeyPrefix namespaces every cache key.
	DefaultKeyPrefix = "llm"

	// keyHashLength truncates the digest; 12 url-safe base64 chars keep
	// roughly 72 bits, plenty for a TTL-bounded non-authoritative cache.
	keyHashLength = 12
)

// KeyGenerator builds deterministic cache keys of the form "<prefix>:<hash>".
type KeyGenerator struct {
	prefix string
}

// NewKeyGenerator returns a generator using the given prefix, or the default
// prefix when empty.
func NewKeyGenerator(prefix string) *KeyGenerator {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &KeyGenerator{prefix: prefix}
}

// Prefix returns the configured key prefix.
func (g *KeyGenerator) Prefix() string {
	return g.prefix
}

// Key derives the cache key for a prompt routed to a model.
func (g *KeyGenerator) Key(prompt, modelID string) string {
	return g.prefix + ":" + hashKey(prompt+"|"+modelID)
}

// KeyWithParams derives a key that also distinguishes request parameters
// such as temperature or token limits.
func (g *KeyGenerator) KeyWithParams(prompt, modelID, params string) string {
	if params == "" {
		return g.Key(prompt, modelID)
	}
	return g.prefix + ":" + hashKey(prompt+"|"+modelID+"|"+params)
}

func hashKey(material string) string {
	sum := sha256.Sum256([]byte(material))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:keyHashLength]
}
