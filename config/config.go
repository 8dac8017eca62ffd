// Package config binds the agent's configuration knobs via spf13/viper,
// generalized from a single static struct (the andymwolf-agentium pattern:
// a Config struct with mapstructure tags, defaults applied in code rather
// than only via viper.SetDefault, and a Validate method) to this repo's
// pruning/retry/terminal-timeout knobs and provider table.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Retry/pruning/runtime knob defaults.
const (
	DefaultMaxRetryTimes        = 10
	DefaultRepeatDetectWindow   = 2
	DefaultPruneKeepOccurrences = 3
	DefaultPruneMaxChars        = 60000
	DefaultTerminalRunTimeoutMS = 30000
	DefaultMaxContentLength     = 50000
)

// ProviderConfig names one OpenAI-compatible chat/completions endpoint and
// the environment variable holding its API key — never the key value
// itself, so skribe.SetSecretEnvVars can redact it by name wherever it
// might otherwise leak into a log or a memory-store message.
type ProviderConfig struct {
	Name         string `mapstructure:"name"`
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	APIKeyEnvVar string `mapstructure:"api_key_env_var"`
}

// MCPServerConfig mirrors mcp.ServerConfig's JSON shape so it can be
// configured alongside everything else instead of via a separate flag per
// server.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    string            `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Headers map[string]string `mapstructure:"headers"`
}

// Config is the full set of tuning knobs plus the ambient wiring (provider
// table, workspace root, sandbox endpoint, MCP servers) needed to actually
// run the agent.
type Config struct {
	Provider ProviderConfig    `mapstructure:"provider"`
	MCP      []MCPServerConfig `mapstructure:"mcp"`

	WorkspaceRoot  string `mapstructure:"workspace_root"`
	SandboxBaseURL string `mapstructure:"sandbox_base_url"` // empty forces local execution

	MaxRetryTimes        int `mapstructure:"max_retry_times"`
	MaxTotalRetries      int `mapstructure:"max_total_retries"` // optional cap across the whole task; 0 disables
	RepeatDetectWindow   int `mapstructure:"repeat_detect_window"`
	PruneKeepOccurrences int `mapstructure:"prune_keep_occurrences"`
	PruneMaxChars        int `mapstructure:"prune_max_chars"`
	TerminalRunTimeoutMS int `mapstructure:"terminal_run_timeout_ms"`
	MaxContentLength     int `mapstructure:"max_content_length"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_retry_times", DefaultMaxRetryTimes)
	v.SetDefault("max_total_retries", 0)
	v.SetDefault("repeat_detect_window", DefaultRepeatDetectWindow)
	v.SetDefault("prune_keep_occurrences", DefaultPruneKeepOccurrences)
	v.SetDefault("prune_max_chars", DefaultPruneMaxChars)
	v.SetDefault("terminal_run_timeout_ms", DefaultTerminalRunTimeoutMS)
	v.SetDefault("max_content_length", DefaultMaxContentLength)
	v.SetDefault("provider.name", "openai")
	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.api_key_env_var", "OPENAI_API_KEY")
	v.SetDefault("workspace_root", "/workspace")
}

// Load reads configuration from configFile (if non-empty), environment
// variables prefixed CODEACT_ (nested keys use "_", e.g.
// CODEACT_MAX_RETRY_TIMES, CODEACT_PROVIDER_BASE_URL), and the defaults
// above; environment variables override the file, which overrides the
// defaults. It then applies defaults and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CODEACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills any zero-valued knob viper's own SetDefault missed
// (e.g. when a config file explicitly sets a sibling key to zero,
// mapstructure still leaves untouched fields at their Go zero value).
func applyDefaults(cfg *Config) {
	if cfg.MaxRetryTimes == 0 {
		cfg.MaxRetryTimes = DefaultMaxRetryTimes
	}
	if cfg.RepeatDetectWindow == 0 {
		cfg.RepeatDetectWindow = DefaultRepeatDetectWindow
	}
	if cfg.PruneKeepOccurrences == 0 {
		cfg.PruneKeepOccurrences = DefaultPruneKeepOccurrences
	}
	if cfg.PruneMaxChars == 0 {
		cfg.PruneMaxChars = DefaultPruneMaxChars
	}
	if cfg.TerminalRunTimeoutMS == 0 {
		cfg.TerminalRunTimeoutMS = DefaultTerminalRunTimeoutMS
	}
	if cfg.MaxContentLength == 0 {
		cfg.MaxContentLength = DefaultMaxContentLength
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = "/workspace"
	}
}

// Validate checks the configuration is internally consistent enough to run.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Provider.APIKeyEnvVar == "" {
		return fmt.Errorf("provider.api_key_env_var is required")
	}
	for i, m := range c.MCP {
		if m.Name == "" {
			return fmt.Errorf("mcp[%d]: name is required", i)
		}
	}
	if c.MaxRetryTimes <= 0 {
		return fmt.Errorf("max_retry_times must be positive")
	}
	if c.PruneKeepOccurrences <= 0 {
		return fmt.Errorf("prune_keep_occurrences must be positive")
	}
	return nil
}

// APIKeyEnvVars collects the env var names SetSecretEnvVars should redact:
// the configured provider's key, regardless of how many other providers
// exist in the table, since only one is active per process.
func (c *Config) APIKeyEnvVars() []string {
	if c.Provider.APIKeyEnvVar == "" {
		return nil
	}
	return []string{c.Provider.APIKeyEnvVar}
}
