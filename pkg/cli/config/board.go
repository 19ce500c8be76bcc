package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/infra/board"
	"github.com/m-mizutani/cardsync/pkg/infra/remote"
	"github.com/urfave/cli/v3"
)

type Board struct {
	url      string
	apiKey   types.BoardAPIKey `masq:"secret"`
	minDelay time.Duration
}

func (x *Board) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "board-url",
			Usage:       "Base URL of the board service",
			Category:    "Board",
			Destination: &x.url,
			Sources:     cli.EnvVars("CARDSYNC_BOARD_URL"),
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "board-api-key",
			Usage:       "API key of the board service",
			Category:    "Board",
			Destination: (*string)(&x.apiKey),
			Sources:     cli.EnvVars("CARDSYNC_BOARD_API_KEY"),
			Required:    true,
		},
		&cli.DurationFlag{
			Name:        "board-min-delay",
			Usage:       "Minimum delay between board API requests",
			Category:    "Board",
			Destination: &x.minDelay,
			Sources:     cli.EnvVars("CARDSYNC_BOARD_MIN_DELAY"),
			Value:       remote.DefaultMinDelay,
		},
	}
}

func (x *Board) New() (*board.Client, error) {
	client, err := remote.New(x.url, x.apiKey, remote.WithMinDelay(x.minDelay))
	if err != nil {
		return nil, err
	}
	return board.New(client), nil
}

func (x *Board) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("URL", x.url),
		slog.Int("APIKey.len", len(x.apiKey)),
		slog.Duration("MinDelay", x.minDelay),
	)
}
