// Package mcp manages connections to Model Context Protocol servers and
// dispatches mcp_tool actions to them.
//
// Adapted from the teacher's mcp/client.go: the tool-conversion machinery
// (MCP tool -> llm.Tool, with a Run closure returning llm.Content) is
// dropped, since mcp_tool here is routed through a single actionkit.Action
// rather than through the provider's native tool-calling API; the
// connection lifecycle (stdio/http/sse transport selection, initialize
// handshake, per-call timeout) is unchanged.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ServerConfig is one entry of the agent's configured MCP server list.
type ServerConfig struct {
	Name    string            `json:"name,omitempty"`
	Type    string            `json:"type,omitempty"` // "stdio", "http", "sse"
	URL     string            `json:"url,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Manager owns a pool of connected MCP clients, keyed by server name.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*client.Client
	// index maps a connected tool's "<server>_<tool>" name (the shape
	// mcp_tool's single "name" argument arrives in) back to its server and
	// bare tool name.
	index map[string][2]string
}

func NewManager() *Manager {
	return &Manager{clients: make(map[string]*client.Client), index: make(map[string][2]string)}
}

// ParseServerConfigs parses the agent's configured MCP server JSON blobs,
// collecting per-entry errors instead of failing the whole batch.
func ParseServerConfigs(configs []string) ([]ServerConfig, []error) {
	var parsed []ServerConfig
	var errs []error
	for i, raw := range configs {
		var cfg ServerConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			errs = append(errs, fmt.Errorf("mcp server config %d: %w", i, err))
			continue
		}
		if cfg.Name == "" {
			errs = append(errs, fmt.Errorf("mcp server config %d: name is required", i))
			continue
		}
		parsed = append(parsed, cfg)
	}
	return parsed, errs
}

// Connect establishes and initializes a connection to cfg, registering it
// under cfg.Name for subsequent CallTool calls.
func (m *Manager) Connect(ctx context.Context, cfg ServerConfig) error {
	var envVars []string
	for k, v := range cfg.Env {
		envVars = append(envVars, k+"="+v)
	}

	var mcpClient *client.Client
	var err error
	switch cfg.Type {
	case "stdio", "":
		if cfg.Command == "" {
			return fmt.Errorf("command is required for stdio transport")
		}
		mcpClient, err = client.NewStdioMCPClient(cfg.Command, envVars, cfg.Args...)
	case "http":
		if cfg.URL == "" {
			return fmt.Errorf("URL is required for http transport")
		}
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		mcpClient, err = client.NewStreamableHttpClient(cfg.URL, opts...)
	case "sse":
		if cfg.URL == "" {
			return fmt.Errorf("URL is required for sse transport")
		}
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(cfg.Headers))
		}
		mcpClient, err = client.NewSSEMCPClient(cfg.URL, opts...)
	default:
		return fmt.Errorf("unsupported mcp transport type: %s", cfg.Type)
	}
	if err != nil {
		return fmt.Errorf("create mcp client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start mcp client: %w", err)
	}
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo:      mcp.Implementation{Name: "codeact", Version: "1.0.0"},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initialize mcp client: %w", err)
	}

	m.mu.Lock()
	m.clients[cfg.Name] = mcpClient
	m.mu.Unlock()

	tools, err := m.ListTools(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("list tools on %s: %w", cfg.Name, err)
	}
	m.mu.Lock()
	for _, t := range tools {
		m.index[cfg.Name+"_"+t.Name] = [2]string{cfg.Name, t.Name}
	}
	m.mu.Unlock()
	return nil
}

// Servers lists the names of currently connected MCP servers, for catalog
// rendering of dynamic tool descriptions.
func (m *Manager) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	return names
}

// ListTools returns the tools a connected server exposes.
func (m *Manager) ListTools(ctx context.Context, server string) ([]mcp.Tool, error) {
	c, err := m.client(server)
	if err != nil {
		return nil, err
	}
	resp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools on %s: %w", server, err)
	}
	return resp.Tools, nil
}

// CallToolByName invokes the tool registered as name (a combined
// "<server>_<tool>" mcp_tool identifier) with argumentsJSON (a JSON object,
// or empty for no arguments) and returns its rendered text content.
func (m *Manager) CallToolByName(ctx context.Context, name, argumentsJSON string) (string, error) {
	m.mu.RLock()
	pair, ok := m.index[name]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("mcp tool %q is not registered with any connected server", name)
	}
	return m.CallTool(ctx, pair[0], pair[1], argumentsJSON)
}

// CallTool invokes tool on server with argumentsJSON (a JSON object, or
// empty for no arguments) and returns its rendered text content.
func (m *Manager) CallTool(ctx context.Context, server, tool, argumentsJSON string) (string, error) {
	c, err := m.client(server)
	if err != nil {
		return "", err
	}

	var args map[string]any
	if argumentsJSON != "" {
		if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
			return "", fmt.Errorf("parse mcp_tool arguments: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	resp, err := c.CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: tool, Arguments: args},
	})
	if err != nil {
		return "", fmt.Errorf("mcp tool call failed: %w", err)
	}
	return renderContent(resp.Content), nil
}

func renderContent(content []mcp.Content) string {
	var out []byte
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			out = append(out, []byte(tc.Text)...)
			out = append(out, '\n')
			continue
		}
		b, err := json.Marshal(c)
		if err != nil {
			continue
		}
		out = append(out, b...)
		out = append(out, '\n')
	}
	return string(out)
}

func (m *Manager) client(server string) (*client.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[server]
	if !ok {
		return nil, fmt.Errorf("mcp server %q is not connected", server)
	}
	return c, nil
}

// Close closes every connected client, logging failures rather than
// returning them: shutdown must make a best effort across all servers.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, c := range m.clients {
		if err := c.Close(); err != nil {
			slog.WarnContext(ctx, "mcp_close_failed", "server", name, "error", err)
		}
	}
}
