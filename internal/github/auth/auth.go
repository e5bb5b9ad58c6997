package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/qiniu/notegen/internal/config"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v58/github"
	"golang.org/x/oauth2"
)

// Type identifies the configured authentication method.
type Type string

const (
	TypePAT Type = "pat" // personal access token
	TypeApp Type = "app" // GitHub App installation
)

// Authenticator produces authenticated GitHub clients. The HTTPClient form
// exists so the GraphQL client (githubv4) can share the same credentials as
// the REST client.
type Authenticator interface {
	Client(ctx context.Context) (*github.Client, error)
	HTTPClient(ctx context.Context) (*http.Client, error)
	Type() Type
}

// New builds an authenticator from configuration, preferring a GitHub App
// installation over a personal access token when both are present.
func New(cfg *config.Config) (Authenticator, error) {
	if err := cfg.ValidateGitHubConfig(); err != nil {
		return nil, err
	}
	if cfg.IsGitHubAppConfigured() {
		return newAppAuthenticator(cfg.GitHub.App)
	}
	return &patAuthenticator{token: cfg.GitHub.Token}, nil
}

type patAuthenticator struct {
	token string
}

func (p *patAuthenticator) Client(ctx context.Context) (*github.Client, error) {
	httpClient, err := p.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	return github.NewClient(httpClient), nil
}

func (p *patAuthenticator) HTTPClient(ctx context.Context) (*http.Client, error) {
	if p.token == "" {
		return nil, fmt.Errorf("GitHub token is not configured")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.token})
	return oauth2.NewClient(ctx, ts), nil
}

func (p *patAuthenticator) Type() Type {
	return TypePAT
}

type appAuthenticator struct {
	transport *ghinstallation.Transport
}

func newAppAuthenticator(app config.GitHubAppConfig) (*appAuthenticator, error) {
	var transport *ghinstallation.Transport
	var err error

	switch {
	case app.PrivateKeyPath != "":
		transport, err = ghinstallation.NewKeyFromFile(http.DefaultTransport, app.AppID, app.InstallationID, app.PrivateKeyPath)
	case app.PrivateKeyEnv != "":
		key := os.Getenv(app.PrivateKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("private key environment variable %s is empty", app.PrivateKeyEnv)
		}
		transport, err = ghinstallation.New(http.DefaultTransport, app.AppID, app.InstallationID, []byte(key))
	case app.PrivateKey != "":
		transport, err = ghinstallation.New(http.DefaultTransport, app.AppID, app.InstallationID, []byte(app.PrivateKey))
	default:
		return nil, fmt.Errorf("no private key source configured for GitHub App %d", app.AppID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}

	return &appAuthenticator{transport: transport}, nil
}

func (a *appAuthenticator) Client(ctx context.Context) (*github.Client, error) {
	httpClient, err := a.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	return github.NewClient(httpClient), nil
}

func (a *appAuthenticator) HTTPClient(ctx context.Context) (*http.Client, error) {
	return &http.Client{Transport: a.transport}, nil
}

func (a *appAuthenticator) Type() Type {
	return TypeApp
}
