package actionkit

import "fmt"

// Validate applies the structural and per-tool argument checks. An
// Action that fails validation is replaced by a synthetic
// evaluation(failure) carrying the reason, never silently dropped.
func Validate(a Action) Action {
	if reason := structuralViolation(a); reason != "" {
		return synthesizeEvaluationFailure(reason)
	}
	if reason := argumentViolation(a); reason != "" {
		return synthesizeEvaluationFailure(reason)
	}
	return a
}

// ValidateAll validates every action, in order.
func ValidateAll(actions []Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		out = append(out, Validate(a))
	}
	return out
}

// structuralViolation hard-rejects field combinations that indicate the
// model confused two tool shapes: a terminal_run carrying file fields meant
// for write_file, or a write tool carrying a shell command.
func structuralViolation(a Action) string {
	switch a.Type {
	case TerminalRun:
		if a.Get("path") != "" {
			return "terminal_run must not carry a path argument"
		}
		if a.Get("content") != "" {
			return "terminal_run must not carry a content argument"
		}
	case WriteCode, WriteFile:
		if a.Get("command") != "" {
			return fmt.Sprintf("%s must not carry a command argument", a.Type)
		}
	case Finish:
		status := a.Get("status")
		if status != "SUCCESS" && status != "FAILED" {
			return "finish.status must be SUCCESS or FAILED"
		}
	}
	return ""
}

// argumentViolation checks per-tool required arguments.
func argumentViolation(a Action) string {
	require := func(fields ...string) string {
		for _, f := range fields {
			if a.Get(f) == "" {
				return fmt.Sprintf("%s missing required argument %q", a.Type, f)
			}
		}
		return ""
	}

	switch a.Type {
	case WebSearch:
		return require("query")
	case ReadURL:
		return require("url")
	case TerminalRun:
		return require("command")
	case WriteCode, WriteFile:
		return require("path", "content")
	case ReadFile:
		return require("path")
	case ReplaceCodeBlock:
		return require("path", "code_block")
	case PatchCode:
		return require("path", "diff")
	case MCPTool:
		return require("name")
	case Browser:
		return require("question")
	case RevisePlan:
		return require("mode", "reason", "tasks")
	case Finish:
		return require("status")
	}
	return ""
}
