package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"lemonai.dev/codeact/actionkit"
	"lemonai.dev/codeact/workspace"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	dir := t.TempDir()
	var ui []UIMessage
	d := &Dispatcher{
		Root: workspace.Root{Base: dir},
		OnUI: func(m UIMessage) { ui = append(ui, m) },
	}
	return d, dir
}

func TestDispatchWriteThenReadFile(t *testing.T) {
	d, _ := newTestDispatcher(t)

	writeResult := d.Dispatch(context.Background(), actionkit.Action{
		Type:   actionkit.WriteFile,
		Params: map[string]string{"path": "a.go", "content": "package a\n"},
	})
	require.Equal(t, actionkit.StatusSuccess, writeResult.Status)

	readResult := d.Dispatch(context.Background(), actionkit.Action{
		Type:   actionkit.ReadFile,
		Params: map[string]string{"path": "a.go"},
	})
	require.Equal(t, actionkit.StatusSuccess, readResult.Status)
	require.Equal(t, "package a\n", readResult.Content)
}

func TestDispatchReadFileNotFoundClassifiesError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	result := d.Dispatch(context.Background(), actionkit.Action{
		Type:   actionkit.ReadFile,
		Params: map[string]string{"path": "missing.go"},
	})
	require.Equal(t, actionkit.StatusFailure, result.Status)
	require.Equal(t, "NOT_FOUND", result.Meta["error_class"])
}

func TestDispatchWriteFileRejectsPathTraversal(t *testing.T) {
	d, _ := newTestDispatcher(t)
	result := d.Dispatch(context.Background(), actionkit.Action{
		Type:   actionkit.WriteFile,
		Params: map[string]string{"path": "../../etc/passwd", "content": "x"},
	})
	require.Equal(t, actionkit.StatusFailure, result.Status)
}

func TestDispatchReplaceCodeBlockNoOpSetsKeyID(t *testing.T) {
	d, dir := newTestDispatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("func a() {\n\treturn 1\n}\n"), 0o644))

	result := d.Dispatch(context.Background(), actionkit.Action{
		Type: actionkit.ReplaceCodeBlock,
		Params: map[string]string{
			"path":       "a.go",
			"code_block": "func a() {\n\treturn 1\n}",
		},
	})
	require.Equal(t, actionkit.StatusFailure, result.Status)
	require.Equal(t, "replace_code_block_noop", result.Meta["keyid"])
}

func TestDispatchRejectsLocalOnlyTools(t *testing.T) {
	d, _ := newTestDispatcher(t)
	result := d.Dispatch(context.Background(), actionkit.Action{Type: actionkit.Information, Params: map[string]string{}})
	require.Equal(t, actionkit.StatusFailure, result.Status)
}

func TestDispatchTerminalRunAttachesRunMetadata(t *testing.T) {
	d, _ := newTestDispatcher(t)
	result := d.Dispatch(context.Background(), actionkit.Action{
		Type:   actionkit.TerminalRun,
		Params: map[string]string{"command": "true"},
	})
	require.NotEmpty(t, result.Meta["run_id"])
	require.Contains(t, result.Meta["origin_path"], "terminal_run:")
}
