package config

import (
	"log/slog"

	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/infra/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// GitHub selects how the issue source authenticates: a token, or a GitHub App installation.
type GitHub struct {
	token      types.GitHubToken `masq:"secret"`
	appID      types.GitHubAppID
	installID  types.GitHubAppInstallID
	privateKey types.GitHubAppPrivateKey `masq:"secret"`
	baseURL    string
}

func (x *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub token",
			Category:    "GitHub",
			Destination: (*string)(&x.token),
			Sources:     cli.EnvVars("CARDSYNC_GITHUB_TOKEN", "GITHUB_TOKEN"),
		},
		&cli.Int64Flag{
			Name:        "github-app-id",
			Usage:       "GitHub App ID",
			Category:    "GitHub",
			Destination: (*int64)(&x.appID),
			Sources:     cli.EnvVars("CARDSYNC_GITHUB_APP_ID"),
		},
		&cli.Int64Flag{
			Name:        "github-app-installation-id",
			Usage:       "GitHub App installation ID",
			Category:    "GitHub",
			Destination: (*int64)(&x.installID),
			Sources:     cli.EnvVars("CARDSYNC_GITHUB_APP_INSTALLATION_ID"),
		},
		&cli.StringFlag{
			Name:        "github-app-private-key",
			Usage:       "GitHub App private key (PEM)",
			Category:    "GitHub",
			Destination: (*string)(&x.privateKey),
			Sources:     cli.EnvVars("CARDSYNC_GITHUB_APP_PRIVATE_KEY"),
		},
		&cli.StringFlag{
			Name:        "github-base-url",
			Usage:       "GitHub API base URL for GitHub Enterprise",
			Category:    "GitHub",
			Destination: &x.baseURL,
			Sources:     cli.EnvVars("CARDSYNC_GITHUB_BASE_URL"),
		},
	}
}

func (x *GitHub) New() (*github.Client, error) {
	var options []github.Option
	switch {
	case x.token != "":
		options = append(options, github.WithToken(x.token))
	case x.appID != 0:
		options = append(options, github.WithApp(x.appID, x.installID, x.privateKey))
	default:
		return nil, goerr.Wrap(types.ErrInvalidOption, "either github-token or github-app-id is required")
	}

	if x.baseURL != "" {
		options = append(options, github.WithBaseURL(x.baseURL))
	}
	return github.New(options...)
}

func (x *GitHub) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("Token.len", len(x.token)),
		slog.Int64("AppID", int64(x.appID)),
		slog.Int64("InstallationID", int64(x.installID)),
		slog.Int("PrivateKey.len", len(x.privateKey)),
		slog.String("BaseURL", x.baseURL),
	)
}
