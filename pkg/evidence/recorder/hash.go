package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"mercator-hq/guardrails/pkg/providers"
)

// MaxHashSize caps how much of the content is hashed.
const MaxHashSize = 1024 * 1024 // 1MB

// HashContent returns the hex SHA-256 of at most the first MaxHashSize bytes
// of content, or "" for empty content.
func HashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	if len(content) > MaxHashSize {
		content = content[:MaxHashSize]
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashMessages hashes the JSON encoding of messages. Identical conversations
// hash identically, so repeated attempts of one call share a hash.
func HashMessages(messages []providers.Message) string {
	if len(messages) == 0 {
		return ""
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return ""
	}
	return HashContent(data)
}

// TruncateString shortens s to at most maxLen bytes, appending "..." when cut.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
