package agent

import (
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"lemonai.dev/codeact/actionkit"
	"lemonai.dev/codeact/memory"
)

// actionCallMeta carries the fields memory's stableKey derivation needs
// for a canonical re-inserted call message, mirroring what the dispatcher
// later stamps onto the result.
func actionCallMeta(a actionkit.Action) map[string]any {
	meta := map[string]any{}
	if a.Type == actionkit.TerminalRun {
		meta["command"] = a.Get("command")
		meta["args"] = a.Get("args")
		meta["cwd"] = a.Get("cwd")
		return meta
	}
	if path := a.Get("path"); path != "" {
		meta["path"] = path
	}
	return meta
}

// modeAfter: a terminal_run failure switches the next prompt to the
// code-corrector role header; anything else (or a terminal_run success)
// switches back to build.
func modeAfter(a actionkit.Action, res *actionkit.Result) PromptMode {
	if a.Type == actionkit.TerminalRun && res.IsFailure() {
		return ModeCodeCorrector
	}
	return ModeBuild
}

// diagnosticBlock builds a fallback description of a failed ActionResult so
// the recorded message is never empty: a synthetic block naming the
// action, its origin, and the raw runtime payload, used when the
// dispatcher's own Content is blank.
func diagnosticBlock(a actionkit.Action, res *actionkit.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "action_failed id=%s type=%s\n", ulid.Make().String(), a.Type)
	if cmd := a.Get("command"); cmd != "" {
		fmt.Fprintf(&b, "command: %s %s\n", cmd, a.Get("args"))
	}
	if path := a.Get("path"); path != "" {
		fmt.Fprintf(&b, "path: %s\n", path)
	}
	if cwd := a.Get("cwd"); cwd != "" {
		fmt.Fprintf(&b, "cwd: %s\n", cwd)
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", res.Error)
	}
	if res.Stderr != "" {
		fmt.Fprintf(&b, "stderr: %s\n", res.Stderr)
	}
	if res.Stdout != "" {
		fmt.Fprintf(&b, "stdout: %s\n", res.Stdout)
	}
	return strings.TrimRight(b.String(), "\n")
}

// resultContent renders the text recorded to memory for res, filling in
// diagnosticBlock when the dispatcher left Content empty (true for file-tool
// failures, which put the failure reason in Error; a failed terminal_run
// carries its stdout as Content and is recorded as such).
func resultContent(a actionkit.Action, res *actionkit.Result) string {
	if res.Content != "" {
		return res.Content
	}
	if res.IsFailure() {
		return diagnosticBlock(a, res)
	}
	return ""
}

// recordActionResult appends the executed action's outcome to memory as a
// user-role message, immediately after the (already-appended) assistant
// call, so it inherits the call's prune_hash and the two stay adjacent for
// pruning.
func recordActionResult(mem *memory.Store, a actionkit.Action, res *actionkit.Result) error {
	meta := map[string]any{}
	for k, v := range res.Meta {
		meta[k] = v
	}
	if meta["path"] == nil && a.Get("path") != "" {
		meta["path"] = a.Get("path")
	}
	return mem.AddMessage(memory.RoleUser, resultContent(a, res), "", true, meta)
}
