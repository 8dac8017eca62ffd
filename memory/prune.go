package memory

import "fmt"

// occurrence is one (assistant tool-call message) plus its immediately
// following user result, identified by index into Store.messages.
type occurrence struct {
	callIdx   int
	resultIdx int // -1 if no result followed yet
}

// pruneOccurrences blanks earlier occurrences of the same tool call once
// more than PruneKeepOccurences remain, keeping only the most recent ones.
// toolCallKey/prune_hash have already been set on msg by deriveKeys; msg
// itself has not yet been appended to s.messages.
func (s *Store) pruneOccurrences(msg Message) error {
	toolCallKey := msg.metaString("toolCallKey")
	pruneHash := msg.metaString("prune_hash")

	var occs []occurrence
	sharedHash := ""
	for i, m := range s.messages {
		if m.Role != RoleAssistant || m.metaString("toolCallKey") != toolCallKey {
			continue
		}
		h := m.metaString("prune_hash")
		if sharedHash == "" {
			sharedHash = h
		} else if h != sharedHash {
			return fmt.Errorf("memory: tool call key %s has divergent prune_hash values (%s vs %s); refusing to prune", toolCallKey, sharedHash, h)
		}
		resultIdx := -1
		if i+1 < len(s.messages) && s.messages[i+1].metaString("prune_hash") == h {
			resultIdx = i + 1
		}
		occs = append(occs, occurrence{callIdx: i, resultIdx: resultIdx})
	}
	if sharedHash != "" && sharedHash != pruneHash {
		return fmt.Errorf("memory: tool call key %s has divergent prune_hash values (%s vs %s); refusing to prune", toolCallKey, sharedHash, pruneHash)
	}

	keep := s.PruneKeepOccurences
	if keep <= 0 {
		keep = DefaultPruneKeepOccurences
	}
	// keep-N-total including the about-to-be-appended one, i.e. keep N-1
	// from history.
	keepFromHistory := keep - 1
	if len(occs) <= keepFromHistory {
		return nil
	}
	toBlank := occs[:len(occs)-keepFromHistory]
	for _, occ := range toBlank {
		s.blank(occ.callIdx, "pruned: superseded by a more recent occurrence of the same tool call")
		if occ.resultIdx >= 0 {
			s.blank(occ.resultIdx, "pruned: superseded by a more recent occurrence of the same tool call")
		}
	}
	return nil
}

func (s *Store) blank(idx int, reason string) {
	m := &s.messages[idx]
	m.Content = ""
	m.Memorized = false
	for _, key := range []string{"action_memory", "diff", "stdout", "stderr", "result"} {
		delete(m.Meta, key)
	}
	if action, ok := m.Meta["action"].(map[string]any); ok {
		if params, ok := action["params"].(map[string]any); ok {
			for _, key := range []string{"content", "diff", "code_block"} {
				delete(params, key)
			}
		}
	}
	m.meta()["pruned"] = true
	m.meta()["pruned_reason"] = reason
}

// pruneByCharBudget drops whole contiguous prune_hash groups, oldest
// first, once the running char budget from newest to oldest is exceeded.
// Called after the new message has already been appended.
func (s *Store) pruneByCharBudget() {
	budget := s.PruneMaxChars
	if budget <= 0 {
		budget = DefaultPruneMaxChars
	}

	groups := groupByPruneHash(s.messages)
	if len(groups) == 0 {
		return
	}

	total := 0
	cutAt := 0 // drop groups[:cutAt] once set; 0 means nothing to drop
	for gi := len(groups) - 1; gi >= 0; gi-- {
		for _, idx := range groups[gi] {
			total += messageCharCost(s.messages[idx])
		}
		if total > budget {
			// The group that pushed the running total over budget is itself
			// dropped, not kept, so the final kept total stays within budget.
			cutAt = gi + 1
			break
		}
	}
	if cutAt <= 0 {
		return
	}
	for gi := 0; gi < cutAt; gi++ {
		for _, idx := range groups[gi] {
			if !s.messages[idx].Memorized && s.messages[idx].metaString("pruned") == "true" {
				continue // already blanked
			}
			s.blank(idx, "pruned: character budget exceeded")
		}
	}
}

// groupByPruneHash partitions messages into contiguous runs sharing the
// same (non-empty) prune_hash, preserving message order. A message with
// no prune_hash is its own single-element group.
func groupByPruneHash(messages []Message) [][]int {
	var groups [][]int
	var cur []int
	curHash := ""
	for i, m := range messages {
		h := m.metaString("prune_hash")
		if h != "" && h == curHash && len(cur) > 0 {
			cur = append(cur, i)
			continue
		}
		if len(cur) > 0 {
			groups = append(groups, cur)
		}
		cur = []int{i}
		curHash = h
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func messageCharCost(m Message) int {
	cost := len(m.Content) + len(m.ActionType)
	if am, ok := m.Meta["action_memory"].(string); ok {
		cost += len(am)
	}
	return cost
}
