package runtime

import (
	"context"

	"lemonai.dev/codeact/actionkit"
	"lemonai.dev/codeact/mcp"
)

// MCPDispatcher adapts mcp.Manager to the runtime's dispatch shape.
type MCPDispatcher struct {
	Manager *mcp.Manager
}

func (d *Dispatcher) dispatchMCPTool(ctx context.Context, a actionkit.Action) *actionkit.Result {
	if d.MCP == nil || d.MCP.Manager == nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "no MCP servers configured"}
	}
	content, err := d.MCP.Manager.CallToolByName(ctx, a.Get("name"), a.Get("arguments"))
	if err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error()}
	}
	return &actionkit.Result{Status: actionkit.StatusSuccess, Content: content}
}
