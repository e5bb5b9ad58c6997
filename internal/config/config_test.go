package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qiniu/notegen/internal/section"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  webhook_secret: shh
github:
  token: ghp_test
llm:
  base_url: https://api.example.com/v1
  api_key: sk-test
  model: test-model
notes:
  stream_timeout: 10s
  sections:
    - SUMMARY
    - DETAIL
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "shh", cfg.Server.WebhookSecret)
	assert.Equal(t, "ghp_test", cfg.GitHub.Token)
	assert.Equal(t, "https://api.example.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, 10*time.Second, cfg.Notes.StreamTimeout)
	assert.Equal(t, []section.Tag{"SUMMARY", "DETAIL"}, cfg.SectionTags())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
github:
  token: ghp_test
llm:
  base_url: https://api.example.com/v1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultModel, cfg.LLM.Model)
	assert.Equal(t, DefaultStreamTimeout, cfg.Notes.StreamTimeout)
	assert.Equal(t, section.DefaultTags, cfg.SectionTags())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
github:
  token: from-file
llm:
  base_url: https://file.example.com
`)

	t.Setenv("GITHUB_TOKEN", "from-env")
	t.Setenv("LLM_BASE_URL", "https://env.example.com")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.GitHub.Token)
	assert.Equal(t, "https://env.example.com", cfg.LLM.BaseURL)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-only")
	t.Setenv("LLM_BASE_URL", "https://env.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-only", cfg.GitHub.Token)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid token config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing llm base url",
			mutate:  func(c *Config) { c.LLM.BaseURL = "" },
			wantErr: "llm.base_url",
		},
		{
			name:    "no github auth",
			mutate:  func(c *Config) { c.GitHub.Token = "" },
			wantErr: "github authentication",
		},
		{
			name: "app without installation id",
			mutate: func(c *Config) {
				c.GitHub.Token = ""
				c.GitHub.App = GitHubAppConfig{AppID: 7, PrivateKey: "key"}
			},
			wantErr: "installation_id",
		},
		{
			name: "app fully configured",
			mutate: func(c *Config) {
				c.GitHub.Token = ""
				c.GitHub.App = GitHubAppConfig{AppID: 7, InstallationID: 11, PrivateKey: "key"}
			},
		},
		{
			name:    "duplicate sections",
			mutate:  func(c *Config) { c.Notes.Sections = []string{"A", "A"} },
			wantErr: "section",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				GitHub: GitHubConfig{Token: "ghp_test"},
				LLM:    LLMConfig{BaseURL: "https://api.example.com"},
			}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
