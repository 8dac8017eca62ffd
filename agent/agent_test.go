package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"lemonai.dev/codeact/actionkit"
	"lemonai.dev/codeact/llm"
	"lemonai.dev/codeact/memory"
	"lemonai.dev/codeact/runtime"
	"lemonai.dev/codeact/workspace"
)

// scriptedChat replies with one fixed response per call, in order; the
// last response repeats once the script is exhausted.
type scriptedChat struct {
	responses []string
	calls     int
}

func (c *scriptedChat) Chat(ctx context.Context, system string, history []llm.Message, prompt string, opts llm.Options, onToken func(string)) (*llm.Result, error) {
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	return &llm.Result{Text: c.responses[i]}, nil
}

type erroringChat struct{ err error }

func (c erroringChat) Chat(ctx context.Context, system string, history []llm.Message, prompt string, opts llm.Options, onToken func(string)) (*llm.Result, error) {
	return nil, c.err
}

type stubPrompt struct{}

func (stubPrompt) Build(ctx context.Context, task *Task, mem *memory.Store) (string, error) {
	return "do the task: " + task.Requirement, nil
}

func newTestDeps(t *testing.T, chat ChatClient) Deps {
	t.Helper()
	dir := t.TempDir()
	mem, err := memory.Open(t.TempDir(), "conv1", "task1")
	require.NoError(t, err)
	return Deps{
		Memory:     mem,
		Dispatcher: &runtime.Dispatcher{Root: workspace.Root{Base: dir}},
		Chat:       chat,
		Prompt:     stubPrompt{},
	}
}

func TestRunFinishSuccessEndsTask(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`<finish><status>SUCCESS</status><message>done</message></finish>`,
	}}
	d := newTestDeps(t, chat)
	task := NewTask("build a thing")

	res, err := Run(context.Background(), task, d)
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", res.Status)
	require.Equal(t, "", task.Reflection)
	require.Equal(t, "SUCCESS", task.LastFinishStatus)
}

func TestRunFinishInvalidStatusDoesNotEndTask(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`<finish><message>done</message></finish>`,
		`<finish><status>SUCCESS</status><message>done now</message></finish>`,
	}}
	d := newTestDeps(t, chat)
	task := NewTask("build a thing")

	res, err := Run(context.Background(), task, d)
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", res.Status)
	require.Equal(t, "SUCCESS", task.LastFinishStatus, "only the second, valid finish sets it")
	require.Equal(t, 0, task.RetryCount)
}

func TestRunEmptyOutputRetriesWithoutPenalty(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		"",
		`<finish><status>SUCCESS</status></finish>`,
	}}
	d := newTestDeps(t, chat)
	task := NewTask("build a thing")

	res, err := Run(context.Background(), task, d)
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", res.Status)
	require.Equal(t, 0, task.RetryCount)
}

func TestRunWriteCodeThenFinish(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`<write_code><path>a.py</path><content><![CDATA[print(1)\n]]></content></write_code>`,
		`<finish><status>SUCCESS</status></finish>`,
	}}
	d := newTestDeps(t, chat)
	task := NewTask("write a.py")

	res, err := Run(context.Background(), task, d)
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", res.Status)

	found := false
	for _, m := range d.Memory.Messages() {
		if m.ActionType == "write_code" {
			found = true
		}
	}
	require.True(t, found)
}

func TestRunTerminalFailureSwitchesToCodeCorrectorAndDoesNotPenalizeTestFailure(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`<terminal_run><command>pytest</command><args>-q</args></terminal_run>`,
		`<finish><status>FAILED</status><message>could not make tests pass</message></finish>`,
	}}
	d := newTestDeps(t, chat)
	// Force a failing pytest invocation regardless of environment.
	d.Dispatcher.Terminal = fakeTerminal{exitCode: 1, stdout: "E AssertionError: boom"}
	task := NewTask("fix the failing test")

	res, err := Run(context.Background(), task, d)
	require.NoError(t, err)
	require.Equal(t, "FAILED", res.Status)
	require.Equal(t, ModeCodeCorrector, task.PromptMode)
	require.Equal(t, 0, task.RetryCount, "pytest failures must not count as technical retries")
}

type fakeTerminal struct {
	exitCode int
	stdout   string
}

func (f fakeTerminal) Run(ctx context.Context, cwd, command, args string, timeoutMS int) (*actionkit.Result, error) {
	status := actionkit.StatusSuccess
	if f.exitCode != 0 {
		status = actionkit.StatusFailure
	}
	return &actionkit.Result{
		Status:  status,
		Content: f.stdout,
		Stdout:  f.stdout,
		Meta:    map[string]any{"exitCode": f.exitCode},
	}, nil
}

func TestRunChatExceptionRetriesThenFails(t *testing.T) {
	d := newTestDeps(t, erroringChat{err: errors.New("connection reset")})
	d.MaxRetryTimes = 2
	task := NewTask("build a thing")

	res, err := Run(context.Background(), task, d)
	require.NoError(t, err)
	require.Equal(t, "FAILED", res.Status)
	require.Equal(t, "max consecutive exceptions", res.Message)
}

func TestRunInfraPauseReturnsPausedImmediately(t *testing.T) {
	d := newTestDeps(t, erroringChat{err: errors.New("insufficient credits on this account")})
	task := NewTask("build a thing")

	res, err := Run(context.Background(), task, d)
	require.NoError(t, err)
	require.Equal(t, "PAUSED", res.Status)
}

func TestRunUnsupportedToolTriggersParseErrorCorrection(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`<nonexistent_tool><foo>bar</foo></nonexistent_tool>`,
		`<finish><status>SUCCESS</status></finish>`,
	}}
	d := newTestDeps(t, chat)
	task := NewTask("build a thing")

	res, err := Run(context.Background(), task, d)
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", res.Status)

	var sawCorrection bool
	for _, m := range d.Memory.Messages() {
		if m.Role == memory.RoleDeveloper && m.ActionType == "parse_error" {
			sawCorrection = true
		}
	}
	require.True(t, sawCorrection)
}
