package cli

import (
	"context"

	"github.com/m-mizutani/cardsync/pkg/cli/config"
	"github.com/m-mizutani/cardsync/pkg/infra"
	"github.com/urfave/cli/v3"
)

// infraConfig gathers the settings of every external service shared by serve and sync.
type infraConfig struct {
	board     config.Board
	github    config.GitHub
	redis     config.Redis
	firestore config.Firestore
	bigQuery  config.BigQuery
}

func (x *infraConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, x.board.Flags()...)
	flags = append(flags, x.github.Flags()...)
	flags = append(flags, x.redis.Flags()...)
	flags = append(flags, x.firestore.Flags()...)
	flags = append(flags, x.bigQuery.Flags()...)
	return flags
}

func (x *infraConfig) New(ctx context.Context) (*infra.Clients, error) {
	boardClient, err := x.board.New()
	if err != nil {
		return nil, err
	}

	ghClient, err := x.github.New()
	if err != nil {
		return nil, err
	}

	cycleLock, err := x.redis.NewLock(ctx)
	if err != nil {
		return nil, err
	}

	reportRepo, err := x.firestore.NewRepository(ctx)
	if err != nil {
		return nil, err
	}

	options := []infra.Option{
		infra.WithBoard(boardClient),
		infra.WithIssueSource(ghClient),
		infra.WithCycleLock(cycleLock),
		infra.WithReportRepository(reportRepo),
	}

	if bqClient, err := x.bigQuery.NewClient(ctx); err != nil {
		return nil, err
	} else if bqClient != nil {
		options = append(options, infra.WithBigQuery(bqClient))
	}

	return infra.New(options...), nil
}
