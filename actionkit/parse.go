package actionkit

import (
	"encoding/json"
	"regexp"
	"strings"
)

// payloadFieldNames are never deep-trimmed and are CDATA-unwrapped verbatim:
// whitespace inside a diff hunk or a code body is significant.
var payloadFieldNames = []string{"content", "code_block", "diff", "message", "comments"}

// Parse converts a scanned Block into an Action. When the block's fields
// cannot be parsed, Parse returns a synthetic evaluation(failure) action
// rather than dropping the block, so the caller always learns something
// went wrong. Block.Err is not consulted.
func Parse(b Block) Action {
	fields, attrs, err := parseFields(b.XML, b.ToolName)
	if err != nil {
		return synthesizeEvaluationFailure("malformed " + b.ToolName + " block: " + err.Error())
	}
	for k, v := range attrs {
		if _, exists := fields[k]; !exists {
			fields[k] = v
		}
	}

	trimAllExcept(fields, payloadFieldNames...)

	act := Action{Type: ToolName(b.ToolName), Params: fields}
	if act.Type == TerminalRun {
		normalizeTerminalRunArgs(act.Params)
	}
	return act
}

// ParseAll parses every block, in order.
func ParseAll(blocks []Block) []Action {
	actions := make([]Action, 0, len(blocks))
	for _, b := range blocks {
		actions = append(actions, Parse(b))
	}
	return actions
}

var openTagAttrsRE = regexp.MustCompile(`(?s)^<([\w.-]+)((?:\s+[\w.-]+="(?:[^"\\]|\\.)*")*)\s*/?>`)

// parseFields extracts first-level child elements of an XML block as a flat
// field map (tag name -> text, CDATA-unwrapped when present), plus any
// attributes on the outer tag itself (e.g. a hinted wrapper's attributes).
// This is a light child-element scanner rather than encoding/xml, since
// model output is routinely not well-formed XML (unescaped '&', raw '<' in
// diff bodies outside CDATA) and encoding/xml would hard-fail on it.
func parseFields(block, toolName string) (fields map[string]string, attrs map[string]string, err error) {
	fields = map[string]string{}
	attrs = map[string]string{}

	m := openTagAttrsRE.FindStringSubmatch(block)
	if m == nil {
		return nil, nil, errMalformed("no opening tag found")
	}
	for _, am := range attrRE.FindAllStringSubmatch(m[2], -1) {
		attrs[am[1]] = unescapeAttr(am[2])
	}

	openTagEnd := strings.IndexByte(block, '>') + 1
	closeTag := "</" + toolName + ">"
	bodyEnd := strings.LastIndex(block, closeTag)
	if bodyEnd < 0 {
		bodyEnd = len(block) // self-closing or truncated: no body
	}
	body := block[min(openTagEnd, len(block)):max(bodyEnd, openTagEnd)]

	i := 0
	for i < len(body) {
		lt := strings.IndexByte(body[i:], '<')
		if lt < 0 {
			break
		}
		start := i + lt
		if start+1 < len(body) && (body[start+1] == '/' || body[start+1] == '!') {
			i = start + 1
			continue
		}
		name, nameEnd, ok := scanTagName(body, start+1)
		if !ok {
			i = start + 1
			continue
		}
		openEnd := scanToTagClose(body, nameEnd)
		if openEnd < 0 {
			break
		}
		childClose := "</" + name + ">"
		end := findMatchingClose(body, openEnd, name, childClose)
		var text string
		if end < 0 {
			text = ""
			i = openEnd
		} else {
			text = body[openEnd:end]
			i = end + len(childClose)
		}
		fields[name] = unwrapCDATA(text)
	}
	return fields, attrs, nil
}

var cdataRE = regexp.MustCompile(`(?s)^\s*<!\[CDATA\[(.*)\]\]>\s*$`)

func unwrapCDATA(s string) string {
	if m := cdataRE.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

type malformedErr string

func (e malformedErr) Error() string { return string(e) }
func errMalformed(msg string) error  { return malformedErr(msg) }

// normalizeTerminalRunArgs handles a terminal_run whose command has embedded
// whitespace and no explicit args
// field is split so the first word becomes the command and the remainder
// becomes its args, matching how the runtime invokes argv.
//
// args itself may arrive as a JSON array, a JSON-encoded string containing
// an array, or a plain string; all three are coerced to one shell string.
func normalizeTerminalRunArgs(fields map[string]string) {
	if args, ok := fields["args"]; ok && args != "" {
		fields["args"] = coerceArgsToString(args)
		return
	}
	cmd := fields["command"]
	if cmd == "" {
		return
	}
	parts := strings.Fields(cmd)
	if len(parts) < 2 {
		return
	}
	fields["command"] = parts[0]
	fields["args"] = strings.Join(parts[1:], " ")
}

func coerceArgsToString(raw string) string {
	var arr []string
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return strings.Join(arr, " ")
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		var innerArr []string
		if err := json.Unmarshal([]byte(s), &innerArr); err == nil {
			return strings.Join(innerArr, " ")
		}
		return s
	}
	return raw
}
