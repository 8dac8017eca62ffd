package agent

import (
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"lemonai.dev/codeact/actionkit"
)

// testRunnerPrograms are argv[0] values recognized as test runners,
// directly or as the first positional argument to a generic build-tool
// wrapper (go, cargo, npm, dotnet, mvn, gradle "test").
var testRunnerPrograms = map[string]bool{
	"pytest": true, "py.test": true,
	"jest": true, "mocha": true, "vitest": true,
	"ctest": true,
}

var wrapperTestSubcommands = map[string]map[string]bool{
	"go":     {"test": true},
	"cargo":  {"test": true},
	"npm":    {"test": true},
	"yarn":   {"test": true},
	"pnpm":   {"test": true},
	"bun":    {"test": true},
	"dotnet": {"test": true},
	"mvn":    {"test": true},
	"gradle": {"test": true},
}

// isTestRunnerCommand applies mvdan.cc/sh/v3/syntax's shell-word parsing
// (the same approach claudetool/bashkit uses for git-policy checks) to
// classify a terminal_run's argv without resorting to a naive substring
// match, which would misfire on e.g. a path containing "go test".
func isTestRunnerCommand(command, args string) bool {
	line := command
	if args != "" {
		line += " " + args
	}
	parser := syntax.NewParser()
	file, err := parser.Parse(strings.NewReader(line), "")
	if err != nil {
		return false
	}

	found := false
	syntax.Walk(file, func(node syntax.Node) bool {
		if found {
			return false
		}
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		prog := call.Args[0].Lit()
		if testRunnerPrograms[prog] || strings.Contains(strings.ToLower(prog), "unittest") {
			found = true
			return false
		}
		if subs, ok := wrapperTestSubcommands[prog]; ok {
			for _, a := range call.Args[1:] {
				lit := a.Lit()
				if strings.HasPrefix(lit, "-") {
					continue
				}
				if subs[lit] {
					found = true
					return false
				}
				break
			}
		}
		return true
	})
	return found
}

var testFailureSignatures = []string{
	"AssertionError",
	"FAILED ",
	"FAIL:",
	"--- FAIL:",
	"Tests:        ", // jest summary line with failures
	"assert_eq!",     // cargo panic context, weak signal but paired with exitCode check
	"Error: Process completed with exit code",
	"test result: FAILED",
}

func hasTestFailureSignature(res *actionkit.Result) bool {
	combined := res.Stdout + "\n" + res.Stderr + "\n" + res.Content
	for _, sig := range testFailureSignatures {
		if strings.Contains(combined, sig) {
			return true
		}
	}
	return false
}

func exitCodeOf(res *actionkit.Result) (int, bool) {
	if res == nil || res.Meta == nil {
		return 0, false
	}
	switch v := res.Meta["exitCode"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// classifyRetry reports whether a technical failure should count against
// retryCount: an ordinary failing test run is feedback for the model to act
// on, not a retry-exhausting infrastructure failure.
func classifyRetry(a actionkit.Action, res *actionkit.Result) (penalize bool, err error) {
	if res == nil || res.Status == actionkit.StatusSuccess {
		return false, nil
	}
	if a.Type != actionkit.TerminalRun {
		return true, nil
	}

	exitCode, haveExit := exitCodeOf(res)
	if isTestRunnerCommand(a.Get("command"), a.Get("args")) && (!haveExit || exitCode != 0 || hasTestFailureSignature(res)) {
		return false, nil
	}
	if haveExit && exitCode == 1 {
		return false, nil
	}
	return true, nil
}
