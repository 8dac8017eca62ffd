package prompt

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// staticTools is the canonical XML surface rendered verbatim into every
// prompt so the model always sees the full recognized tool set regardless
// of which MCP servers happen to be connected.
var staticTools = []struct {
	name, fields, note string
}{
	{"finish", "status (SUCCESS|FAILED), message", "ends the task"},
	{"write_code", "path, content (CDATA)", "create or overwrite a file"},
	{"patch_code", "path, diff (unified diff, CDATA)", "apply a unified diff"},
	{"replace_code_block", "path, code_block (CDATA)", "anchor-replace a code block"},
	{"read_file", "path", ""},
	{"terminal_run", "command, args, cwd", "runs with a wall-clock timeout"},
	{"web_search", "query, num_results?, topic?", ""},
	{"read_url", "url", ""},
	{"browser", "question", "ask a question of a headless browser session"},
	{"mcp_tool", "name, arguments (JSON in CDATA)", "dispatches to a connected MCP server"},
	{"revise_plan", "mode, reason, tasks", "local control action, ends this turn"},
	{"information", "message (CDATA)", "log-only, no side effect"},
	{"patch_complete", "message?", "local control action, acknowledges a patch"},
}

// MCPToolLister is the subset of mcp.Manager the catalog needs to render
// dynamic tool descriptions for whichever MCP servers are currently
// connected.
type MCPToolLister interface {
	Servers() []string
	ListTools(ctx context.Context, server string) ([]MCPTool, error)
}

// MCPTool is the catalog's own view of an mcp.Tool, avoiding an import of
// the mark3labs/mcp-go wire type into this package's public surface.
type MCPTool struct {
	Name        string
	Description string
}

// Catalog renders the tool catalog block of the prompt.
type Catalog struct {
	MCP MCPToolLister
}

// Render produces the full tool catalog block of the prompt.
func (c Catalog) Render(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("=== Available Tools ===\n")
	for _, t := range staticTools {
		fmt.Fprintf(&b, "<%s>: %s", t.name, t.fields)
		if t.note != "" {
			fmt.Fprintf(&b, " — %s", t.note)
		}
		b.WriteString("\n")
	}

	if c.MCP == nil {
		return strings.TrimRight(b.String(), "\n")
	}
	servers := c.MCP.Servers()
	sort.Strings(servers)
	for _, server := range servers {
		tools, err := c.MCP.ListTools(ctx, server)
		if err != nil {
			continue
		}
		for _, t := range tools {
			fmt.Fprintf(&b, "<mcp_tool name=%q>: %s\n", server+"_"+t.Name, t.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
