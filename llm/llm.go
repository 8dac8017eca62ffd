// Package llm provides the ambient message/usage vocabulary shared by the
// streaming client, the control loop, and the memory store.
//
// Unlike a provider-native tool-calling client, this package does not model
// structured tool_use content blocks: tool calls in this system travel as
// inline XML/JSON text inside a message's content and are recovered by
// actionkit, not by the wire protocol.
package llm

import (
	"fmt"
	"log/slog"
	"time"
)

// Role is the role of a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
	RoleSystem    Role = "system"
)

// Message is a single turn of raw text exchanged with the model.
type Message struct {
	Role    Role
	Content string
}

// Options carries the pass-through completion parameters the client
// forwards to the provider. Any field not set here is dropped rather than
// forwarded.
type Options struct {
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	Stop           []string
	Stream         bool
	AssistantID    string
	ResponseFormat any
	Tools          any
	EnableThinking bool
}

// Usage tracks billing/rate-limit consumption for a single completion call.
type Usage struct {
	InputTokens              uint64
	CacheCreationInputTokens uint64
	CacheReadInputTokens     uint64
	OutputTokens             uint64
	CostUSD                  float64
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
	u.OutputTokens += other.OutputTokens
	u.CostUSD += other.CostUSD
}

func (u Usage) String() string {
	return fmt.Sprintf("in: %d, out: %d, $%.4f", u.InputTokens, u.OutputTokens, u.CostUSD)
}

func (u Usage) Attr() slog.Attr {
	return slog.Group("usage",
		slog.Uint64("input_tokens", u.InputTokens),
		slog.Uint64("output_tokens", u.OutputTokens),
		slog.Uint64("cache_read_input_tokens", u.CacheReadInputTokens),
		slog.Float64("cost_usd", u.CostUSD),
	)
}

// Result is what a completion call returns: the fully accumulated text
// (reasoning, if any, already folded into a leading <think> block) plus
// usage and timing.
type Result struct {
	Text      string
	Usage     Usage
	StartTime time.Time
	EndTime   time.Time
}

func (r *Result) Attr() slog.Attr {
	return slog.Group("llm_result",
		slog.Int("text_len", len(r.Text)),
		slog.Duration("elapsed", r.EndTime.Sub(r.StartTime)),
	)
}
