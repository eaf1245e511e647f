package githubapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// AppAuth configures GitHub App installation authentication.
type AppAuth struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
}

// ClientConfig configures assembly of the GitHub REST client.
type ClientConfig struct {
	// APIBaseURL overrides the API endpoint, mainly for tests and GHES.
	APIBaseURL string
	// Token is a personal access token. Empty means unauthenticated.
	Token string
	// App, when fully set, takes precedence over Token.
	App            AppAuth
	RequestTimeout time.Duration
	Retry          RetryConfig
	Policy         RateLimitPolicy
	BaseTransport  http.RoundTripper
}

// Client bundles the go-github REST client with its credential tier.
type Client struct {
	REST          *github.Client
	Authenticated bool
}

// NewClient assembles an authenticated (or anonymous) go-github client behind
// the retrying rate-limit-aware transport.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseTransport := cfg.BaseTransport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	authenticated := false
	switch {
	case cfg.App.AppID > 0 || cfg.App.InstallationID > 0 || cfg.App.PrivateKeyPath != "":
		if cfg.App.AppID <= 0 {
			return nil, fmt.Errorf("app id must be > 0")
		}
		if cfg.App.InstallationID <= 0 {
			return nil, fmt.Errorf("installation id must be > 0")
		}
		if strings.TrimSpace(cfg.App.PrivateKeyPath) == "" {
			return nil, fmt.Errorf("private key path is required")
		}
		installation, err := ghinstallation.NewKeyFromFile(
			baseTransport,
			cfg.App.AppID,
			cfg.App.InstallationID,
			cfg.App.PrivateKeyPath,
		)
		if err != nil {
			return nil, fmt.Errorf("create github app transport: %w", err)
		}
		baseTransport = installation
		authenticated = true
	case strings.TrimSpace(cfg.Token) != "":
		baseTransport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(cfg.Token)}),
			Base:   baseTransport,
		}
		authenticated = true
	}

	httpClient := &http.Client{
		Transport: NewRetryTransport(baseTransport, cfg.Retry, cfg.Policy),
		Timeout:   cfg.RequestTimeout,
	}

	restClient := github.NewClient(httpClient)
	trimmedBaseURL := strings.TrimSpace(cfg.APIBaseURL)
	if trimmedBaseURL != "" {
		parsedURL, err := url.Parse(trimmedBaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github api base url: %w", err)
		}
		if parsedURL.Scheme == "" || parsedURL.Host == "" {
			return nil, fmt.Errorf("parse github api base url: missing scheme or host")
		}
		if !strings.HasSuffix(parsedURL.Path, "/") {
			parsedURL.Path += "/"
		}
		restClient.BaseURL = parsedURL
	}

	return &Client{
		REST:          restClient,
		Authenticated: authenticated,
	}, nil
}
