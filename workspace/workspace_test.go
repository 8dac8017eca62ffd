package workspace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootResolveRejectsTraversal(t *testing.T) {
	r := Root{Base: "/workspace/user_1/Conversation_abc"}
	_, err := r.Resolve("../../etc/passwd")
	require.Error(t, err)
}

func TestRootResolveJoinsRelativePath(t *testing.T) {
	r := Root{Base: "/workspace/user_1/Conversation_abc"}
	got, err := r.Resolve("main.go")
	require.NoError(t, err)
	require.Equal(t, "/workspace/user_1/Conversation_abc/main.go", got)
}

func TestRootResolveAcceptsPathAlreadyUnderBase(t *testing.T) {
	r := Root{Base: "/workspace/user_1/Conversation_abc"}
	got, err := r.Resolve("/workspace/user_1/Conversation_abc/internal/x.go")
	require.NoError(t, err)
	require.Equal(t, "/workspace/user_1/Conversation_abc/internal/x.go", got)
}

func TestCheckPythonGuardrailRejectsInput(t *testing.T) {
	src := "name = input('name: ')\n"
	reason := CheckPythonGuardrail("a.py", src)
	require.Equal(t, "input(", reason)
}

func TestCheckPythonGuardrailIgnoresInputInsideComment(t *testing.T) {
	src := "# call input() later\nx = 1\n"
	reason := CheckPythonGuardrail("a.py", src)
	require.Empty(t, reason)
}

func TestCheckPythonGuardrailIgnoresInputInsideString(t *testing.T) {
	src := `doc = "describe input() usage"` + "\n"
	reason := CheckPythonGuardrail("a.py", src)
	require.Empty(t, reason)
}

func TestCheckPythonGuardrailIgnoresNonPyFiles(t *testing.T) {
	src := "input()"
	require.Empty(t, CheckPythonGuardrail("a.go", src))
}

func TestCheckPythonGuardrailCatchesSysStdinAcrossTripleQuotedString(t *testing.T) {
	src := "doc = '''\nmulti\nline\n'''\nimport sys\nsys.stdin.read()\n"
	require.Equal(t, "sys.stdin", CheckPythonGuardrail("a.py", src))
}

func TestReplaceCodeBlockUniqueAnchor(t *testing.T) {
	file := "package main\n\nfunc a() {\n\treturn 1\n} // a\n\nfunc b() {\n\treturn 2\n}\n"
	block := "func a() {\n\treturn 42\n} // a"
	got, err := ReplaceCodeBlock(file, block)
	require.NoError(t, err)
	require.Contains(t, got, "return 42")
	require.Contains(t, got, "func b() {")
}

func TestReplaceCodeBlockDisambiguatesRepeatedFirstLineThenDetectsNoOp(t *testing.T) {
	// "func a() {" occurs twice; the progressive-disambiguation walk must
	// consult the second line to resolve the second occurrence uniquely.
	// Since the requested block matches that occurrence verbatim, the
	// correctly-resolved outcome is a no-op failure, not a silent rewrite
	// and not a generic ambiguity error.
	file := "func a() {\n\treturn 1\n}\n\nfunc a() {\n\treturn 2\n}\n"
	block := "func a() {\n\treturn 2\n}"

	_, err := ReplaceCodeBlock(file, block)
	require.Error(t, err)
	var noop *NoOpError
	require.ErrorAs(t, err, &noop)
}

func TestReplaceCodeBlockNoOp(t *testing.T) {
	file := "func a() {\n\treturn 1\n}\n"
	block := "func a() {\n\treturn 1\n}"
	_, err := ReplaceCodeBlock(file, block)
	require.Error(t, err)
	var noop *NoOpError
	require.ErrorAs(t, err, &noop)
}

func TestReplaceCodeBlockAmbiguousAnchorFails(t *testing.T) {
	file := "x := 1\ny := 2\nx := 1\nz := 3\n"
	block := "x := 1"
	_, err := ReplaceCodeBlock(file, block)
	require.Error(t, err)
	var noMatch *NoMatchError
	require.ErrorAs(t, err, &noMatch)
	require.Equal(t, file, noMatch.CurrentFile)
}
