// Command codeact drives one agent task from the command line.
//
// Grounded on cmd/sketch/main.go's run()-returns-error top-level shape and
// metalagman-norma's cmd/norma cobra+viper wiring (persistent --config flag,
// subcommands dispatching into the library packages), generalized from
// sketch's docker-sandboxed, termui-driven interactive loop to a single
// headless task run against a local or sandboxed workspace.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lemonai.dev/codeact/agent"
	"lemonai.dev/codeact/config"
	"lemonai.dev/codeact/llm/stream"
	"lemonai.dev/codeact/mcp"
	"lemonai.dev/codeact/memory"
	"lemonai.dev/codeact/prompt"
	"lemonai.dev/codeact/runtime"
	"lemonai.dev/codeact/skribe"
	"lemonai.dev/codeact/workspace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "codeact: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "codeact",
		Short: "codeact drives a code-acting agent task to completion",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (yaml/json/toml)")

	root.AddCommand(newRunCmd(&configFile))
	return root
}

func newRunCmd(configFile *string) *cobra.Command {
	var (
		conversationID string
		memoryDir      string
		workspaceDir   string
	)

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "run a single task through the agent control loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			skribe.SetSecretEnvVars(cfg.APIKeyEnvVars())

			if workspaceDir == "" {
				workspaceDir = cfg.WorkspaceRoot
			}
			if memoryDir == "" {
				memoryDir = workspaceDir + "/.codeact-memory"
			}
			if conversationID == "" {
				conversationID = "cli"
			}

			res, err := runTask(cmd.Context(), cfg, args[0], workspaceDir, memoryDir, conversationID)
			if err != nil {
				return err
			}
			printResult(res)
			if res.Status == "FAILED" {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id grouping related tasks (default \"cli\")")
	cmd.Flags().StringVar(&memoryDir, "memory-dir", "", "directory to persist the task's memory file under (default <workspace>/.codeact-memory)")
	cmd.Flags().StringVar(&workspaceDir, "workspace", "", "workspace root the agent may read and write (default from config)")
	return cmd
}

func runTask(ctx context.Context, cfg *config.Config, goal, workspaceDir, memoryDir, conversationID string) (*agent.Result, error) {
	chat := &stream.Client{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  os.Getenv(cfg.Provider.APIKeyEnvVar),
		Model:   cfg.Provider.Model,
	}

	root := workspace.Root{Base: workspaceDir}
	if err := os.MkdirAll(root.Base, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	mcpManager := mcp.NewManager()
	for _, sc := range cfg.MCP {
		serverCfg := mcp.ServerConfig{
			Name: sc.Name, Type: sc.Type, URL: sc.URL,
			Command: sc.Command, Args: sc.Args, Env: sc.Env, Headers: sc.Headers,
		}
		if err := mcpManager.Connect(ctx, serverCfg); err != nil {
			return nil, fmt.Errorf("connect mcp server %q: %w", sc.Name, err)
		}
	}
	defer mcpManager.Close(ctx)

	dispatcher := &runtime.Dispatcher{
		Root:              root,
		Terminal:          runtime.LocalTerminalRunner{},
		TerminalTimeoutMS: cfg.TerminalRunTimeoutMS,
		Browser:           &runtime.HeadlessBrowser{LLM: chat, MaxContentLength: cfg.MaxContentLength},
	}
	if len(cfg.MCP) > 0 {
		dispatcher.MCP = &runtime.MCPDispatcher{Manager: mcpManager}
	}

	mem, err := memory.Open(memoryDir, conversationID, memory.TaskKey())
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}
	mem.WorkspaceRoots = []string{root.Base}
	mem.RepeatDetectWindow = cfg.RepeatDetectWindow
	mem.PruneKeepOccurences = cfg.PruneKeepOccurrences
	mem.PruneMaxChars = cfg.PruneMaxChars

	builder := &prompt.Builder{
		WorkspaceDir:   root.Base,
		ConversationID: conversationID,
		Catalog:        prompt.Catalog{MCP: prompt.MCPCatalog{Manager: mcpManager}},
	}

	deps := agent.Deps{
		Memory:          mem,
		Dispatcher:      dispatcher,
		Chat:            chat,
		Prompt:          builder,
		MaxRetryTimes:   cfg.MaxRetryTimes,
		MaxTotalRetries: cfg.MaxTotalRetries,
	}

	task := agent.NewTask(goal)
	return agent.Run(ctx, task, deps)
}

func printResult(res *agent.Result) {
	useColor := term.IsTerminal(int(os.Stdout.Fd()))
	label := res.Status
	if useColor {
		switch res.Status {
		case "SUCCESS":
			label = color.New(color.FgGreen, color.Bold).Sprint(res.Status)
		case "FAILED":
			label = color.New(color.FgRed, color.Bold).Sprint(res.Status)
		case "PAUSED":
			label = color.New(color.FgYellow, color.Bold).Sprint(res.Status)
		}
	}
	fmt.Printf("%s: %s\n", label, res.Message)
}
