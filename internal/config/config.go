// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alienxp03/parley/internal/core"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Server     ServerConfig     `yaml:"server,omitempty"`
	Queue      QueueConfig      `yaml:"queue,omitempty"`
	Storage    StorageConfig    `yaml:"storage,omitempty"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// OpenRouterConfig holds OpenRouter API settings.
type OpenRouterConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url,omitempty"`
	HTTPReferer   string        `yaml:"http_referer,omitempty"`
	AppTitle      string        `yaml:"app_title,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	ModelCacheTTL time.Duration `yaml:"model_cache_ttl,omitempty"`
}

// ServerConfig holds server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// QueueConfig holds worker pool settings.
type QueueConfig struct {
	Workers int `yaml:"workers"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	Path string `yaml:"path,omitempty"`
}

// DefaultsConfig holds default debate settings applied when a request
// leaves them unset.
type DefaultsConfig struct {
	Language     string `yaml:"language"`
	NumRounds    int    `yaml:"num_rounds"`
	Intensity    int    `yaml:"intensity"`
	LengthPreset string `yaml:"length_preset"`
	JudgeModel   string `yaml:"judge_model"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		OpenRouter: OpenRouterConfig{
			BaseURL:       "https://openrouter.ai/api/v1",
			AppTitle:      "Parley",
			Timeout:       60 * time.Second,
			ModelCacheTTL: time.Hour,
		},
		Server: ServerConfig{
			Port: 8184,
		},
		Queue: QueueConfig{
			Workers: 4,
		},
		Defaults: DefaultsConfig{
			Language:     "English",
			NumRounds:    2,
			Intensity:    5,
			LengthPreset: string(core.LengthMedium),
			JudgeModel:   "openai/gpt-4o-mini",
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file, proceed with defaults
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Apply .env overrides if file exists
	if env, err := LoadEnv(".env"); err == nil {
		ApplyEnvOverrides(cfg, env)
	}

	return cfg, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo saves the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "parley.yaml"
	}
	return filepath.Join(home, ".parley", "config.yaml")
}

// GenerateExample generates an example configuration file.
func GenerateExample() string {
	example := `# parley configuration file
# Place this file at ~/.parley/config.yaml

openrouter:
  api_key: ""               # OpenRouter API key (or OPENROUTER_API_KEY in .env)
  base_url: "https://openrouter.ai/api/v1"
  http_referer: ""          # Sent as HTTP-Referer for app attribution
  app_title: "Parley"       # Sent as X-Title for app attribution
  timeout: 60s              # Per-request generation timeout
  model_cache_ttl: 1h       # Model catalog cache lifetime

server:
  port: 8184

queue:
  workers: 4                # Concurrent debate steps

storage:
  path: ""                  # SQLite path (empty = ~/.parley/parley.db)

defaults:
  language: English
  num_rounds: 2
  intensity: 5              # 1-10, higher is more confrontational
  length_preset: medium     # very_short | short | medium | long
  judge_model: openai/gpt-4o-mini
`
	return example
}
