// Package runtime takes a validated actionkit.Action, resolves its path
// under the conversation's workspace, executes it (locally, via the
// sandbox HTTP server, via MCP, or via a headless browser), and
// normalizes the result shape.
//
// Grounded on claudetool/bash.go (terminal_run process-group execution),
// claudetool/edit.go (path validation, read/write), and mcp/client.go
// (MCP tool dispatch), generalized from the teacher's llm.Tool-per-call
// model to a single actionkit.Action dispatch table.
package runtime

import (
	"context"
	"fmt"

	"lemonai.dev/codeact/actionkit"
	"lemonai.dev/codeact/workspace"
)

// UIMessage is one of the two notifications emitted per executed action:
// a "running" placeholder emitted before dispatch, and the final result
// emitted after.
type UIMessage struct {
	Phase  string // "running" or "done"
	Action actionkit.Action
	Result *actionkit.Result // nil during "running"
}

// Sink receives UI messages as the dispatcher emits them.
type Sink func(UIMessage)

// Dispatcher routes actions to their executors and normalizes results.
type Dispatcher struct {
	Root     workspace.Root
	Sandbox  *SandboxClient // nil to force local execution
	MCP      *MCPDispatcher // nil disables mcp_tool
	Browser  BrowserDispatcher
	OnUI     Sink
	Terminal TerminalRunner

	// TerminalTimeoutMS is the wall-clock timeout for terminal_run, wired
	// from config; 0 falls back to a default of 30000ms.
	TerminalTimeoutMS int
}

// TerminalRunner executes a terminal_run action. Swappable so a sandboxed
// deployment can substitute the SandboxClient's HTTP path without the
// dispatcher itself branching on deployment mode outside this seam.
type TerminalRunner interface {
	Run(ctx context.Context, cwd, command, args string, timeoutMS int) (*actionkit.Result, error)
}

// BrowserDispatcher executes a browser action.
type BrowserDispatcher interface {
	Ask(ctx context.Context, question string) (*actionkit.Result, error)
}

func (d *Dispatcher) emit(msg UIMessage) {
	if d.OnUI != nil {
		d.OnUI(msg)
	}
}

// Dispatch executes a, recording origin_path/origin_cwd/origin_command/run_id
// in the result's Meta where the action type calls for it, and always returns a non-nil Result
// (a synthesized failure diagnostic rather than a bare error) so callers
// never have to special-case an empty failure.
func (d *Dispatcher) Dispatch(ctx context.Context, a actionkit.Action) *actionkit.Result {
	if actionkit.LocalOnlyTools[a.Type] {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: fmt.Sprintf("%s is local-only and must not reach the runtime dispatcher", a.Type)}
	}

	d.emit(UIMessage{Phase: "running", Action: a})
	result := d.dispatchOne(ctx, a)
	if result == nil {
		result = &actionkit.Result{Status: actionkit.StatusFailure, Error: "dispatcher returned no result"}
	}
	d.emit(UIMessage{Phase: "done", Action: a, Result: result})
	return result
}

func (d *Dispatcher) dispatchOne(ctx context.Context, a actionkit.Action) *actionkit.Result {
	switch a.Type {
	case actionkit.TerminalRun:
		return d.dispatchTerminalRun(ctx, a)
	case actionkit.WriteCode, actionkit.WriteFile:
		return d.dispatchWriteFile(a)
	case actionkit.ReadFile:
		return d.dispatchReadFile(a)
	case actionkit.PatchCode:
		return d.dispatchPatchCode(a)
	case actionkit.ReplaceCodeBlock:
		return d.dispatchReplaceCodeBlock(a)
	case actionkit.MCPTool:
		return d.dispatchMCPTool(ctx, a)
	case actionkit.Browser:
		return d.dispatchBrowser(ctx, a)
	case actionkit.WebSearch, actionkit.ReadURL, actionkit.DocumentQuery, actionkit.DocumentUpload:
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: fmt.Sprintf("%s requires an external collaborator not wired into this deployment", a.Type)}
	case actionkit.RevisePlan, actionkit.Finish, actionkit.Evaluation:
		// Handled by the agent control loop itself; reaching the dispatcher
		// means the caller routed something it should have intercepted.
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: fmt.Sprintf("%s must be handled by the control loop, not dispatched", a.Type)}
	default:
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: fmt.Sprintf("unrecognized action type %q", a.Type)}
	}
}

// resolvePath prepends the conversation-scoped workspace directory to
// declared while preserving a stable origin_path for keying and memory.
func (d *Dispatcher) resolvePath(declared string) (onDisk, originPath string, err error) {
	onDisk, err = d.Root.Resolve(declared)
	if err != nil {
		return "", "", err
	}
	return onDisk, workspace.OriginPath(declared), nil
}
