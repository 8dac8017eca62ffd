package prompt

import (
	"context"

	"lemonai.dev/codeact/mcp"
)

// MCPCatalog adapts an *mcp.Manager to MCPToolLister. Declared here rather
// than in package mcp to avoid a cycle: mcp -> prompt -> agent -> runtime ->
// mcp would close a loop if the adapter lived next to the Manager itself.
type MCPCatalog struct{ Manager *mcp.Manager }

func (c MCPCatalog) Servers() []string {
	if c.Manager == nil {
		return nil
	}
	return c.Manager.Servers()
}

func (c MCPCatalog) ListTools(ctx context.Context, server string) ([]MCPTool, error) {
	tools, err := c.Manager.ListTools(ctx, server)
	if err != nil {
		return nil, err
	}
	out := make([]MCPTool, len(tools))
	for i, t := range tools {
		out[i] = MCPTool{Name: t.Name, Description: t.Description}
	}
	return out, nil
}
