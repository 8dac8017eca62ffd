package prompt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lemonai.dev/codeact/agent"
	"lemonai.dev/codeact/memory"
)

func newTestBuilder(t *testing.T) (*Builder, string) {
	t.Helper()
	dir := t.TempDir()
	return &Builder{WorkspaceDir: dir, SessionID: "sess1", ConversationID: "conv1"}, dir
}

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.Open(t.TempDir(), "conv1", "task1")
	require.NoError(t, err)
	return s
}

func TestBuildIncludesGoalAndHeader(t *testing.T) {
	b, _ := newTestBuilder(t)
	mem := newTestStore(t)
	task := agent.NewTask("write a parser")

	out, err := b.Build(context.Background(), task, mem)
	require.NoError(t, err)
	require.Contains(t, out, "write a parser")
	require.Contains(t, out, "Mode: build")
	require.Contains(t, out, "=== Available Tools ===")
	require.Contains(t, out, "<finish>")
}

func TestBuildUsesCodeCorrectorHeaderWhenModeSwitched(t *testing.T) {
	b, _ := newTestBuilder(t)
	mem := newTestStore(t)
	task := agent.NewTask("fix the build")
	task.PromptMode = agent.ModeCodeCorrector

	out, err := b.Build(context.Background(), task, mem)
	require.NoError(t, err)
	require.Contains(t, out, "Mode: codecorrector")
}

func TestBuildOmitsErrorFeedbackAfterSuccessFinish(t *testing.T) {
	b, _ := newTestBuilder(t)
	mem := newTestStore(t)
	task := agent.NewTask("do a thing")
	task.Reflection = "previous terminal_run failed: exit 1"
	task.LastFinishStatus = "SUCCESS"

	out, err := b.Build(context.Background(), task, mem)
	require.NoError(t, err)
	require.NotContains(t, out, "=== Error Feedback ===")
}

func TestBuildIncludesErrorFeedbackWhenNotSuccess(t *testing.T) {
	b, _ := newTestBuilder(t)
	mem := newTestStore(t)
	task := agent.NewTask("do a thing")
	task.Reflection = "previous terminal_run failed: exit 1"
	task.LastFinishStatus = "FAILED"

	out, err := b.Build(context.Background(), task, mem)
	require.NoError(t, err)
	require.Contains(t, out, "=== Error Feedback ===")
	require.Contains(t, out, "previous terminal_run failed")
}

func TestBuildWritesFirstTurnPromptToMemoryOnlyOnce(t *testing.T) {
	b, _ := newTestBuilder(t)
	mem := newTestStore(t)
	task := agent.NewTask("do a thing")

	_, err := b.Build(context.Background(), task, mem)
	require.NoError(t, err)
	require.Len(t, mem.Messages(), 1)

	_, err = b.Build(context.Background(), task, mem)
	require.NoError(t, err)
	require.Len(t, mem.Messages(), 1, "second build must not append another copy")
}

func TestBuildIncludesWorkspaceListingSkippingIgnoredDirs(t *testing.T) {
	b, dir := newTestBuilder(t)
	mem := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))
	task := agent.NewTask("do a thing")

	out, err := b.Build(context.Background(), task, mem)
	require.NoError(t, err)
	require.Contains(t, out, "main.go")
	require.NotContains(t, out, ".git")
}

func TestBuildIncludesMemorizedContent(t *testing.T) {
	b, _ := newTestBuilder(t)
	mem := newTestStore(t)
	require.NoError(t, mem.AddMessage(memory.RoleUser, "<write_code><path>a.py</path></write_code>", "write_code", true, nil))
	task := agent.NewTask("do a thing")

	out, err := b.Build(context.Background(), task, mem)
	require.NoError(t, err)
	require.Contains(t, out, "=== Memorized Content ===")
}

type stubHistory struct{ digest string }

func (s stubHistory) Digest(ctx context.Context, conversationID string) (string, error) {
	return s.digest, nil
}

func TestBuildIncludesHistoryDigestWhenConfigured(t *testing.T) {
	b, _ := newTestBuilder(t)
	b.History = stubHistory{digest: "earlier the user asked for X"}
	mem := newTestStore(t)
	task := agent.NewTask("do a thing")

	out, err := b.Build(context.Background(), task, mem)
	require.NoError(t, err)
	require.True(t, strings.Contains(out, "earlier the user asked for X"))
}
