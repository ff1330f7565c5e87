package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Keyer derives deterministic cache keys from structured request parameters.
//
// Contract:
//   - Determinism: same inputs must produce same key, regardless of map iteration order.
//   - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key in category from input.
	Key(category string, input any) (string, error)
}

// DefaultKeyer generates SHA-256 based cache keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates a deterministic cache key.
// Format: <category>:<hash>
// where hash is the first 16 characters of SHA-256(canonical JSON(input))
func (k *DefaultKeyer) Key(category string, input any) (string, error) {
	if category == "" {
		return "", ErrInvalidKey
	}
	canonical, err := canonicalize(input)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize input: %w", err)
	}

	hash := sha256.Sum256(canonical)
	return Key(category, hex.EncodeToString(hash[:8])), nil
}

// NormalizeQuery lowercases q and collapses runs of whitespace, so equivalent
// search phrases share one key.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// canonicalize produces a deterministic encoding of v. encoding/json sorts
// map keys at every depth; strings and byte slices are hashed as-is.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return []byte(val), nil
	case []byte:
		return val, nil
	}
	return json.Marshal(v)
}

var _ Keyer = (*DefaultKeyer)(nil)
