package memory

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, "conv1", "task1")
	require.NoError(t, err)
	return s
}

func TestAddMessagePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "conv1", "task1")
	require.NoError(t, err)

	require.NoError(t, s.AddMessage(RoleUser, "do the thing", "", true, nil))
	require.NoError(t, s.AddMessage(RoleAssistant, "<read_file><path>a.go</path></read_file>", "", true, nil))

	reloaded, err := Open(dir, "conv1", "task1")
	require.NoError(t, err)
	require.Len(t, reloaded.Messages(), 2)
	require.Equal(t, "read_file", reloaded.Messages()[1].ActionType)
}

func TestAddMessageDropsExactAdjacentDuplicate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddMessage(RoleUser, "Acknowledged.", "", false, nil))
	require.NoError(t, s.AddMessage(RoleUser, "Acknowledged.", "", false, nil))
	require.Len(t, s.Messages(), 1)
}

func TestAntiLoopReplacesNextAcknowledged(t *testing.T) {
	s := newTestStore(t)
	repeated := "<write_code><path>a.go</path><content>same</content></write_code>"

	require.NoError(t, s.AddMessage(RoleAssistant, repeated, "", true, map[string]any{"path": "a.go"}))
	require.NoError(t, s.AddMessage(RoleUser, "result one", "", true, nil))
	require.NoError(t, s.AddMessage(RoleAssistant, repeated, "", true, map[string]any{"path": "a.go"}))

	require.NoError(t, s.AddMessage(RoleUser, "Acknowledged.", "", false, nil))
	msgs := s.Messages()
	last := msgs[len(msgs)-1]
	require.NotEqual(t, "Acknowledged.", last.Content)
	require.Contains(t, last.Content, "repeated assistant output")
}

func TestAntiLoopPrependsWhenNoAcknowledgedFollows(t *testing.T) {
	s := newTestStore(t)
	repeated := "<write_code><path>a.go</path><content>same</content></write_code>"
	require.NoError(t, s.AddMessage(RoleAssistant, repeated, "", true, map[string]any{"path": "b.go"}))
	// Second occurrence triggers detection; no "Acknowledged." arrives before
	// the next assistant append, so the queued correction prepends instead.
	require.NoError(t, s.AddMessage(RoleAssistant, repeated, "", true, map[string]any{"path": "c.go"}))
	require.NoError(t, s.AddMessage(RoleAssistant, "<finish><status>SUCCESS</status></finish>", "", true, nil))

	msgs := s.Messages()
	require.Contains(t, msgs[len(msgs)-1].Content, "repeated assistant output")
}

func TestPruneOccurrencesKeepsOnlyLatestN(t *testing.T) {
	s := newTestStore(t)
	s.PruneKeepOccurences = 2

	for i := 0; i < 4; i++ {
		require.NoError(t, s.AddMessage(RoleAssistant,
			"<read_file><path>a.go</path></read_file>", "", true,
			map[string]any{"path": "a.go"}))
		require.NoError(t, s.AddMessage(RoleUser, "content of a.go", "", true, nil))
	}

	msgs := s.Messages()
	prunedCount := 0
	liveCount := 0
	for _, m := range msgs {
		if m.metaString("pruned") == "true" {
			prunedCount++
			require.Empty(t, m.Content)
			require.False(t, m.Memorized)
		} else if m.ActionType == "read_file" || strings.Contains(m.Content, "content of a.go") {
			liveCount++
		}
	}
	require.Equal(t, 4, prunedCount) // 2 blanked occurrences x 2 messages each
	require.Equal(t, 4, liveCount)   // 2 kept occurrences x 2 messages each
}

func TestCharBudgetPruneDropsOldestFullGroups(t *testing.T) {
	s := newTestStore(t)
	s.PruneMaxChars = 100

	// Distinct contents: exact adjacent duplicates would be dropped on add.
	require.NoError(t, s.AddMessage(RoleUser, strings.Repeat("x", 80), "", true, nil))
	require.NoError(t, s.AddMessage(RoleUser, strings.Repeat("y", 80), "", true, nil))
	require.NoError(t, s.AddMessage(RoleUser, strings.Repeat("z", 80), "", true, nil))

	msgs := s.Messages()
	require.Empty(t, msgs[0].Content)
	require.NotEmpty(t, msgs[len(msgs)-1].Content)
}

func TestGetMemorizedContentSkipsUnmemorized(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddMessage(RoleUser, "hello", "", true, nil))
	require.NoError(t, s.AddMessage(RoleUser, "secret", "", false, nil))

	content := s.GetMemorizedContent()
	require.Contains(t, content, "hello")
	require.NotContains(t, content, "secret")
}

func TestSanitizePathsStripsWorkspaceRoot(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "conv1", "task1")
	require.NoError(t, err)
	s.WorkspaceRoots = []string{"/workspace/user_1"}

	require.NoError(t, s.AddMessage(RoleUser, "wrote /workspace/user_1/a.go", "", true, nil))
	require.Equal(t, "wrote <workspace>/a.go", s.Messages()[0].Content)
}

func TestPurgeTerminalRunDropsCallResultAndMarker(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddMessage(RoleAssistant, "<terminal_run><command>ls</command></terminal_run>", "terminal_run", true, nil))
	require.NoError(t, s.AddMessage(RoleUser, "out", "", true, map[string]any{"run_id": "abc123"}))
	require.NoError(t, s.AddMessage(RoleUser, "unrelated", "", true, nil))

	require.NoError(t, s.PurgeTerminalRun("abc123"))
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "unrelated", msgs[0].Content)
}

func TestTaskKeyIsFilesystemSafe(t *testing.T) {
	k := TaskKey()
	require.False(t, strings.ContainsAny(k, "/\\:*?\"<>|"))
	require.Equal(t, k, filepath.Base(k))
}
