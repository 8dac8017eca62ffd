// Package memory implements an ordered, append-only message log persisted
// as JSON, with anti-loop detection and two layers of pruning
// (occurrence-based and character-budget) run on every append.
//
// Grounded on llm/conversation/convo.go for the *shape* of an
// append-ordered, ID-stamped log (ulid+crock32 ids are reused verbatim
// from that file) but the pruning semantics are new: the teacher relies
// on the provider's context window and a manual /compact command, never
// pruning automatically.
package memory

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Role mirrors llm.Role without importing llm, so memory has no
// dependency on the streaming client.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
)

// Message is one entry of the ordered memory.
type Message struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	ActionType string         `json:"action_type,omitempty"`
	Memorized  bool           `json:"memorized"`
	Meta       map[string]any `json:"meta,omitempty"`
}

func (m *Message) meta() map[string]any {
	if m.Meta == nil {
		m.Meta = map[string]any{}
	}
	return m.Meta
}

func (m *Message) metaString(key string) string {
	if m.Meta == nil {
		return ""
	}
	switch v := m.Meta[key].(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// newID returns a lexicographically-sortable message id, grounded on
// llm/conversation/convo.go's SendMessage id scheme (ulid.Make().String()).
func newID() string {
	return ulid.Make().String()
}

// sha1Hex16 returns the first 16 hex characters of sha1(s), the digest
// width used for repeat_hash/prune_hash/toolCallKey.
func sha1Hex16(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// normalizeForHash collapses whitespace runs so near-identical retries
// (differing only in incidental whitespace) still hash equal.
func normalizeForHash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
