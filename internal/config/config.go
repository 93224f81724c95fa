package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Provider      ProviderConfig      `toml:"provider"`
	Policy        PolicyConfig        `toml:"policy"`
	Web           WebConfig           `toml:"web"`
	Notifications NotificationsConfig `toml:"notifications"`
	Retention     RetentionConfig     `toml:"retention"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	WorkspaceRoot string `toml:"workspace_root"`
	DatabasePath  string `toml:"database_path"`
	Debug         bool   `toml:"debug"`
}

// ProviderConfig selects and parameterizes the LLM backend. API keys
// are read from the environment (ANTHROPIC_API_KEY, GEMINI_API_KEY),
// never from the config file.
type ProviderConfig struct {
	Name           string `toml:"name"`
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PolicyConfig holds the validator settings
type PolicyConfig struct {
	PolicyPath      string `toml:"policy_path"`
	MaxPromptLength int    `toml:"max_prompt_length"`
	MaxRetries      int    `toml:"max_retries"`
}

// WebConfig holds HTTP server settings
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// RetentionConfig holds history retention settings
type RetentionConfig struct {
	Cron    string `toml:"cron"`
	MaxDays int    `toml:"max_days"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			WorkspaceRoot: filepath.Join(home, ".taskforge", "workspace"),
			DatabasePath:  filepath.Join(home, ".taskforge", "taskforge.db"),
		},
		Provider: ProviderConfig{
			Name:           "anthropic",
			Model:          "claude-3-haiku-20240307",
			MaxTokens:      4096,
			TimeoutSeconds: 60,
		},
		Policy: PolicyConfig{
			MaxPromptLength: 4000,
			MaxRetries:      3,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Retention: RetentionConfig{
			Cron:    "0 3 * * *",
			MaxDays: 30,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.WorkspaceRoot = ExpandPath(cfg.General.WorkspaceRoot)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Policy.PolicyPath = ExpandPath(cfg.Policy.PolicyPath)

	return cfg, nil
}

// APIKey returns the environment API key for the configured provider
func (c *Config) APIKey() string {
	switch c.Provider.Name {
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	default:
		return os.Getenv("ANTHROPIC_API_KEY")
	}
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "taskforge", "config.toml")
}
