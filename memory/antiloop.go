package memory

import "fmt"

// runAntiLoop queues a correction if the incoming assistant message repeats
// any of the last RepeatDetectWindow non-pruned assistant messages, compared
// after collapsing whitespace runs.
func (s *Store) runAntiLoop(msg *Message) {
	window := s.RepeatDetectWindow
	if window <= 0 {
		window = DefaultRepeatDetectWindow
	}

	repeatHash := sha1Hex16(normalizeForHash(msg.Content))
	msg.meta()["repeat_hash"] = repeatHash

	seen := 0
	for i := len(s.messages) - 1; i >= 0 && seen < window; i-- {
		prev := s.messages[i]
		if prev.Role != RoleAssistant || prev.metaString("pruned") == "true" {
			continue
		}
		seen++
		if prev.metaString("repeat_hash") == repeatHash {
			s.pendingRepeatError = fmt.Sprintf(
				"ERROR: repeated assistant output detected (hash %s). Do not repeat the same tool call; change your approach or report an evaluation failure.",
				repeatHash,
			)
			return
		}
	}
}
