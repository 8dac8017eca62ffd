package actionkit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeStripsChannelEnvelope(t *testing.T) {
	raw := `<|channel|>commentary to=terminal_run<|message|>{"command":"ls","args":"-la"}<|end|>`
	got := Normalize(raw)
	require.Contains(t, got, "<terminal_run>")
	require.Contains(t, got, "<command>ls</command>")
}

func TestNormalizeConvertsOpenAIToolCallsShape(t *testing.T) {
	raw := `{"tool_calls":[{"function":{"name":"read_file","arguments":"{\"path\":\"main.go\"}"}}]}`
	got := Normalize(raw)
	require.Contains(t, got, "<read_file>")
	require.Contains(t, got, "<path>main.go</path>")
}

func TestNormalizeConvertsFinishAttrForm(t *testing.T) {
	raw := `<finish status="SUCCESS" message="all done"/>`
	got := Normalize(raw)
	require.Contains(t, got, "<status>SUCCESS</status>")
	require.Contains(t, got, "<![CDATA[all done]]>")
}

func TestNormalizeWrapsPayloadFieldsInCDATA(t *testing.T) {
	raw := `<write_file><path>a.go</path><content>if a < b {}</content></write_file>`
	got := Normalize(raw)
	require.Contains(t, got, "<![CDATA[if a < b {}]]>")
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := `<finish status="SUCCESS" message="done"/>`
	once := Normalize(raw)
	twice := Normalize(once)
	require.Equal(t, once, twice)
}

func TestScanExtractsMultipleBlocksAroundProse(t *testing.T) {
	text := `Let me check the file first.
<read_file><path>a.go</path></read_file>
Looks fine, now let's run the tests.
<terminal_run><command>go</command><args>test ./...</args></terminal_run>
Done.`
	blocks := Scan(text)
	require.Len(t, blocks, 2)
	require.Equal(t, "read_file", blocks[0].ToolName)
	require.Equal(t, "terminal_run", blocks[1].ToolName)
}

func TestScanToleratesAngleBracketsInsideCDATA(t *testing.T) {
	text := `<write_file><path>a.go</path><content><![CDATA[if a < b && c > d {}]]></content></write_file>`
	blocks := Scan(text)
	require.Len(t, blocks, 1)
	require.Equal(t, "write_file", blocks[0].ToolName)
}

func TestScanIgnoresUnknownTags(t *testing.T) {
	text := `<thinking>not a tool</thinking><finish><status>SUCCESS</status></finish>`
	blocks := Scan(text)
	require.Len(t, blocks, 1)
	require.Equal(t, "finish", blocks[0].ToolName)
}

func TestParseExtractsFields(t *testing.T) {
	block := Block{
		ToolName: "write_file",
		XML:      `<write_file><path>a.go</path><content><![CDATA[package a]]></content></write_file>`,
	}
	act := Parse(block)
	require.Equal(t, WriteFile, act.Type)
	require.Equal(t, "a.go", act.Get("path"))
	require.Equal(t, "package a", act.Get("content"))
}

func TestParseSplitsTerminalRunCommandWithArgs(t *testing.T) {
	block := Block{
		ToolName: "terminal_run",
		XML:      `<terminal_run><command>go test ./...</command></terminal_run>`,
	}
	act := Parse(block)
	require.Equal(t, "go", act.Get("command"))
	require.Equal(t, "test ./...", act.Get("args"))
}

func TestParseCoercesJSONArrayArgs(t *testing.T) {
	block := Block{
		ToolName: "terminal_run",
		XML:      `<terminal_run><command>go</command><args>["test", "./..."]</args></terminal_run>`,
	}
	act := Parse(block)
	require.Equal(t, "go", act.Get("command"))
	require.Equal(t, "test ./...", act.Get("args"))
}

func TestValidateRejectsTerminalRunWithPath(t *testing.T) {
	a := Action{Type: TerminalRun, Params: map[string]string{"command": "ls", "path": "a.go"}}
	got := Validate(a)
	require.Equal(t, Evaluation, got.Type)
	require.Equal(t, "FAILED", got.Get("status"))
}

func TestValidateRejectsWriteFileWithCommand(t *testing.T) {
	a := Action{Type: WriteFile, Params: map[string]string{"path": "a.go", "content": "x", "command": "rm -rf /"}}
	got := Validate(a)
	require.Equal(t, Evaluation, got.Type)
}

func TestValidateRejectsFinishWithBadStatus(t *testing.T) {
	a := Action{Type: Finish, Params: map[string]string{"status": "MAYBE"}}
	got := Validate(a)
	require.Equal(t, Evaluation, got.Type)
}

func TestValidateRequiresToolArguments(t *testing.T) {
	a := Action{Type: ReadFile, Params: map[string]string{}}
	got := Validate(a)
	require.Equal(t, Evaluation, got.Type)
	require.Contains(t, got.Get("comments"), "path")
}

func TestValidatePassesWellFormedAction(t *testing.T) {
	a := Action{Type: ReadFile, Params: map[string]string{"path": "a.go"}}
	got := Validate(a)
	require.Equal(t, ReadFile, got.Type)
}

func TestExtractEndToEnd(t *testing.T) {
	raw := "I'll fix the bug now.\n" +
		`<write_file><path>a.go</path><content>package a</content></write_file>` +
		"\nThen run the tests.\n" +
		`<terminal_run><command>go test ./...</command></terminal_run>`
	actions := Extract(raw)
	require.Len(t, actions, 2)
	require.Equal(t, WriteFile, actions[0].Type)
	require.Equal(t, TerminalRun, actions[1].Type)
	require.Equal(t, "go", actions[1].Get("command"))
	require.Equal(t, "test ./...", actions[1].Get("args"))
}
