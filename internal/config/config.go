package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/qiniu/notegen/internal/section"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	GitHub GitHubConfig `yaml:"github"`
	LLM    LLMConfig    `yaml:"llm"`
	Notes  NotesConfig  `yaml:"notes"`
}

type ServerConfig struct {
	Port          int    `yaml:"port"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type GitHubConfig struct {
	Token string          `yaml:"token"`
	App   GitHubAppConfig `yaml:"app"`
}

// GitHubAppConfig configures GitHub App authentication. The private key can
// come from a file, an environment variable name, or inline config; exactly
// one source is needed.
type GitHubAppConfig struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKeyEnv  string `yaml:"private_key_env"`
	PrivateKey     string `yaml:"private_key"`
}

// LLMConfig points at an OpenAI-compatible chat-completions endpoint.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// NotesConfig controls the section vocabulary and streaming limits. An empty
// Sections list means the default vocabulary.
type NotesConfig struct {
	Sections      []string      `yaml:"sections"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
}

const (
	DefaultPort          = 8080
	DefaultModel         = "gpt-4o-mini"
	DefaultStreamTimeout = 30 * time.Second
)

func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var config Config
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		config.loadFromEnv()
		config.applyDefaults()
		return &config, nil
	}

	// No file: configure from environment alone.
	config := &Config{}
	config.loadFromEnv()
	config.applyDefaults()
	return config, nil
}

// loadFromEnv overrides sensitive settings from the environment.
func (c *Config) loadFromEnv() {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.GitHub.Token = token
	}
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		c.Server.WebhookSecret = secret
	}
	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			c.Server.Port = port
		}
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		c.LLM.BaseURL = baseURL
	}
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		c.LLM.APIKey = apiKey
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.Notes.StreamTimeout == 0 {
		c.Notes.StreamTimeout = DefaultStreamTimeout
	}
}

// SectionTags returns the configured vocabulary in order, falling back to
// the default vocabulary when none is configured.
func (c *Config) SectionTags() []section.Tag {
	if len(c.Notes.Sections) == 0 {
		return section.DefaultTags
	}
	tags := make([]section.Tag, len(c.Notes.Sections))
	for i, s := range c.Notes.Sections {
		tags[i] = section.Tag(s)
	}
	return tags
}

// IsGitHubTokenConfigured reports whether PAT authentication is available.
func (c *Config) IsGitHubTokenConfigured() bool {
	return c.GitHub.Token != ""
}

// IsGitHubAppConfigured reports whether GitHub App authentication is
// available.
func (c *Config) IsGitHubAppConfigured() bool {
	app := c.GitHub.App
	return app.AppID > 0 &&
		(app.PrivateKeyPath != "" || app.PrivateKeyEnv != "" || app.PrivateKey != "")
}

// ValidateGitHubConfig checks that at least one authentication method is
// usable. Enrichment and diff fetching need GitHub access.
func (c *Config) ValidateGitHubConfig() error {
	if !c.IsGitHubTokenConfigured() && !c.IsGitHubAppConfigured() {
		return fmt.Errorf("github authentication requires a token or an app configuration")
	}
	if c.IsGitHubAppConfigured() && c.GitHub.App.InstallationID <= 0 {
		return fmt.Errorf("github app configuration requires installation_id")
	}
	return nil
}

// Validate checks the whole configuration for serving.
func (c *Config) Validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if _, err := section.NewGrammar(c.SectionTags()); err != nil {
		return fmt.Errorf("invalid section vocabulary: %w", err)
	}
	return c.ValidateGitHubConfig()
}
