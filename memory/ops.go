package memory

import (
	"fmt"
	"strings"
)

// RemoveLastAssistantMessage drops the most recent assistant message and
// persists the result: used by the control loop when an LLM turn produced
// an empty or unparseable output.
func (s *Store) RemoveLastAssistantMessage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return s.persistLocked()
		}
	}
	return nil
}

// PopLastMessage drops the very last message regardless of role.
func (s *Store) PopLastMessage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil
	}
	s.messages = s.messages[:len(s.messages)-1]
	return s.persistLocked()
}

// RemoveMessagesWhere deletes every message matching predicate, preserving
// relative order of the rest, and persists the result.
func (s *Store) RemoveMessagesWhere(predicate func(Message) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.messages[:0:0]
	for _, m := range s.messages {
		if !predicate(m) {
			out = append(out, m)
		}
	}
	s.messages = out
	return s.persistLocked()
}

// PurgeTerminalRun removes a terminal_run's result, any error-feedback
// message carrying its run-id marker, and the immediately preceding
// assistant tool call. Matches runID against either the
// `[terminal_run_id:<id>]` text marker or meta.run_id, since callers may
// have only one or the other on hand.
func (s *Store) PurgeTerminalRun(runID string) error {
	marker := fmt.Sprintf("[terminal_run_id:%s]", runID)
	matches := func(m Message) bool {
		if m.metaString("run_id") == runID {
			return true
		}
		return strings.Contains(m.Content, marker)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[int]bool)
	for i, m := range s.messages {
		if matches(m) {
			drop[i] = true
			if i > 0 && s.messages[i-1].Role == RoleAssistant {
				drop[i-1] = true
			}
		}
	}
	if len(drop) == 0 {
		return nil
	}
	out := s.messages[:0:0]
	for i, m := range s.messages {
		if !drop[i] {
			out = append(out, m)
		}
	}
	s.messages = out
	return s.persistLocked()
}

// GetMemorizedContent concatenates meta.action_memory (or a synthesized
// "TYPE: content" line) for every memorized message, sanitized of
// workspace paths.
func (s *Store) GetMemorizedContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for _, m := range s.messages {
		if !m.Memorized {
			continue
		}
		line, ok := m.Meta["action_memory"].(string)
		if !ok || line == "" {
			typ := m.ActionType
			if typ == "" {
				typ = string(m.Role)
			}
			line = fmt.Sprintf("%s: %s", strings.ToUpper(typ), m.Content)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.sanitize(line))
	}
	return b.String()
}
