package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/infra/configfile"
	"github.com/m-mizutani/cardsync/pkg/usecase"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gots/slice"
	"github.com/urfave/cli/v3"
)

func syncCommand() *cli.Command {
	var (
		configPath string
		owner      string
		repo       string
		all        bool

		infraCfg infraConfig
	)
	syncFlags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to the sync configuration file",
			Aliases:     []string{"c"},
			Value:       "cardsync.yaml",
			Sources:     cli.EnvVars("CARDSYNC_CONFIG"),
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "owner",
			Usage:       "Repository owner to sync (auto-detected from git if not set)",
			Destination: &owner,
		},
		&cli.StringFlag{
			Name:        "repo",
			Usage:       "Repository name to sync (auto-detected from git if not set)",
			Destination: &repo,
		},
		&cli.BoolFlag{
			Name:        "all",
			Usage:       "Sync every configured repository",
			Destination: &all,
		},
	}

	return &cli.Command{
		Name:  "sync",
		Usage: "Run a single sync cycle and print its report",
		Flags: slice.Flatten(
			syncFlags,
			infraCfg.Flags(),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			filter, err := syncFilter(owner, repo, all)
			if err != nil {
				return err
			}

			logging.Default().Info("starting sync",
				slog.Any("Config", configPath),
				slog.Any("Filter", filter),
				slog.Any("Board", &infraCfg.board),
				slog.Any("GitHub", &infraCfg.github),
				slog.Any("Redis", &infraCfg.redis),
				slog.Any("Firestore", &infraCfg.firestore),
				slog.Any("BigQuery", &infraCfg.bigQuery),
			)

			provider := configfile.New(configPath)
			if err := provider.Load(); err != nil {
				return err
			}

			clients, err := infraCfg.New(ctx)
			if err != nil {
				return err
			}

			uc := usecase.New(clients, usecase.WithConfigProvider(provider))
			report, err := uc.RunOneCycle(ctx, filter)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return goerr.Wrap(err, "failed to write report")
			}

			return nil
		},
	}
}

func syncFilter(owner, repo string, all bool) (*model.RepoFilter, error) {
	switch {
	case all:
		if owner != "" || repo != "" {
			return nil, goerr.New("--all cannot be combined with --owner or --repo")
		}
		return nil, nil

	case owner != "" && repo != "":
		return &model.RepoFilter{Owner: owner, Name: repo}, nil

	case owner != "" || repo != "":
		return nil, goerr.New("both --owner and --repo are required", goerr.V("owner", owner), goerr.V("repo", repo))
	}

	filter, err := DetectRepository(".")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to detect repository, use --owner and --repo or --all")
	}
	return filter, nil
}
