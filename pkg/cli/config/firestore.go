package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/repository/firestore"
	"github.com/m-mizutani/cardsync/pkg/repository/memory"
	"github.com/urfave/cli/v3"
)

type Firestore struct {
	projectID  string
	databaseID string
	collection string
}

func (x *Firestore) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore project ID to keep cycle reports (optional)",
			Category:    "Firestore",
			Sources:     cli.EnvVars("CARDSYNC_FIRESTORE_PROJECT_ID"),
			Destination: &x.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore database ID",
			Category:    "Firestore",
			Sources:     cli.EnvVars("CARDSYNC_FIRESTORE_DATABASE_ID"),
			Value:       "(default)",
			Destination: &x.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection",
			Usage:       "Firestore collection of cycle reports",
			Category:    "Firestore",
			Sources:     cli.EnvVars("CARDSYNC_FIRESTORE_COLLECTION"),
			Value:       firestore.DefaultCollection,
			Destination: &x.collection,
		},
	}
}

func (x *Firestore) Enabled() bool {
	return x.projectID != ""
}

func (x *Firestore) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("projectID", x.projectID),
		slog.Any("databaseID", x.databaseID),
		slog.Any("collection", x.collection),
	)
}

// NewRepository falls back to an in-memory repository when no project is configured.
func (x *Firestore) NewRepository(ctx context.Context) (interfaces.ReportRepository, error) {
	if !x.Enabled() {
		return memory.New(), nil
	}
	return firestore.New(ctx, x.projectID, x.databaseID, firestore.WithCollection(x.collection))
}
