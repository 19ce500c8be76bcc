package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/goerr/v2"
)

const DefaultCollection = "cycle_report"

type Option func(*reportRepository)

// WithCollection stores reports in another collection, mainly to isolate test runs.
func WithCollection(name string) Option {
	return func(x *reportRepository) {
		x.collection = name
	}
}

// New creates a new Firestore-based report repository
func New(ctx context.Context, projectID, databaseID string, options ...Option) (interfaces.ReportRepository, error) {
	var client *firestore.Client
	var err error

	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}

	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID),
		)
	}

	repo := &reportRepository{
		client:     client,
		collection: DefaultCollection,
	}
	for _, opt := range options {
		opt(repo)
	}

	return repo, nil
}
