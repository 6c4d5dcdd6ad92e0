// Package config holds all runxchat configuration. Values come from an
// optional YAML file with environment variables taking precedence, so a bare
// container deployment needs nothing but env vars.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runxchat configuration.
type Config struct {
	// DatabaseURL selects the relational store. Required: the process must
	// not start without one.
	DatabaseURL string `yaml:"database_url"`

	// Auth configures the external authentication endpoint.
	Auth AuthConfig `yaml:"auth"`

	// LLM configures the chat-completion provider.
	LLM LLMConfig `yaml:"llm"`

	// Server configures the HTTP/WebSocket gateway.
	Server ServerConfig `yaml:"server"`

	// Debug lowers the log level and switches to console encoding.
	Debug bool `yaml:"debug"`
}

// AuthConfig configures the external auth bridge. The timeout is fixed at
// process level, not per deployment.
type AuthConfig struct {
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"-"`
}

// LLMConfig configures the chat-completion provider.
type LLMConfig struct {
	Provider string        `yaml:"provider"` // openai, gemini
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"-"`
}

// ServerConfig configures the gateway listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() *Config {
	return &Config{
		Auth: AuthConfig{
			Timeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
			Timeout:  25 * time.Second,
		},
		Server: ServerConfig{
			ListenAddr: ":8000",
		},
	}
}

// Load reads the config file at path (a missing file is not an error, the
// defaults stand) and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file: env-only configuration.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides maps deployment env vars onto the config. Env always wins
// over the file so containers can be reconfigured without a rebuild.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("AUTH_API_URL"); v != "" {
		c.Auth.APIURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		c.LLM.Provider = "gemini"
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}

// Validate enforces the hard startup requirements. Only DATABASE_URL is
// fatal; a missing auth URL or LLM key degrades at runtime instead of
// blocking boot.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	return nil
}
