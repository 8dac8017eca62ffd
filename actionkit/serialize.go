package actionkit

import (
	"fmt"
	"sort"
	"strings"
)

// fieldOrder pins a stable, readable field order for tools whose multiple
// arguments would otherwise serialize in map-iteration order.
var fieldOrder = map[ToolName][]string{
	WriteCode:        {"path", "content"},
	WriteFile:        {"path", "content"},
	PatchCode:        {"path", "diff"},
	ReplaceCodeBlock: {"path", "code_block"},
	TerminalRun:      {"command", "args", "cwd"},
	WebSearch:        {"query", "num_results", "topic"},
	MCPTool:          {"name", "arguments"},
	RevisePlan:       {"mode", "reason", "tasks"},
	Finish:           {"status", "message"},
	Evaluation:       {"status", "comments"},
}

// Serialize renders a canonical single-action XML block for a, the form
// re-inserted as an assistant message so call/result adjacency (and the
// inherited prune_hash) survives a multi-action turn being split apart.
func Serialize(a Action) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>\n", a.Type)
	for _, field := range orderedFields(a) {
		val := a.Params[field]
		if val == "" {
			continue
		}
		if needsCDATA(field, val) {
			fmt.Fprintf(&b, "<%s><![CDATA[%s]]></%s>\n", field, val, field)
		} else {
			fmt.Fprintf(&b, "<%s>%s</%s>\n", field, escapeXMLText(val), field)
		}
	}
	fmt.Fprintf(&b, "</%s>", a.Type)
	return b.String()
}

func orderedFields(a Action) []string {
	if order, ok := fieldOrder[a.Type]; ok {
		extra := make([]string, 0)
		seen := make(map[string]bool, len(order))
		for _, f := range order {
			seen[f] = true
		}
		for f := range a.Params {
			if !seen[f] {
				extra = append(extra, f)
			}
		}
		sort.Strings(extra)
		return append(order, extra...)
	}
	fields := make([]string, 0, len(a.Params))
	for f := range a.Params {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func needsCDATA(field, val string) bool {
	isPayload := false
	for _, f := range payloadFieldTags {
		if f == field {
			isPayload = true
			break
		}
	}
	if !isPayload {
		return false
	}
	return strings.ContainsAny(val, "<&")
}
