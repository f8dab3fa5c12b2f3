// Package config loads the atelier server configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Chat    ChatConfig    `yaml:"chat"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChatConfig configures the per-canvas chat log.
type ChatConfig struct {
	// HistoryLimit caps the default number of messages returned by the
	// message listing endpoint.
	HistoryLimit int `yaml:"history_limit"`
}

// OpenAIConfig configures the image generation and style analysis
// collaborators. The API key may reference an environment variable via
// ${OPENAI_API_KEY} expansion in the YAML file.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	ImageModel   string `yaml:"image_model"`
	ImageSize    string `yaml:"image_size"`
	ImageQuality string `yaml:"image_quality"`
	ImageStyle   string `yaml:"image_style"`
	VisionModel  string `yaml:"vision_model"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 8000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Chat: ChatConfig{
			HistoryLimit: 50,
		},
	}
}

// Load reads a YAML config file, expanding ${VAR} environment references in
// the raw bytes before parsing. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, cfg.Validate()
}

// Validate checks for values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.Server.HTTPPort)
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("invalid chat history_limit %d", c.Chat.HistoryLimit)
	}
	return nil
}
