package firestore

import (
	"context"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const fieldStartedAt = "started_at"

type reportRepository struct {
	client     *firestore.Client
	collection string
}

// ToDocID validates a cycle ID for use as a document ID.
func ToDocID(id types.CycleID) (string, error) {
	s := id.String()
	if s == "" {
		return "", goerr.Wrap(repository.ErrInvalidInput, "cycle ID is empty")
	}
	if strings.Contains(s, "/") || s == "." || s == ".." {
		return "", goerr.Wrap(repository.ErrInvalidInput, "cycle ID is not a valid document ID",
			goerr.V("id", id),
		)
	}
	return s, nil
}

func (r *reportRepository) PutCycleReport(ctx context.Context, report *model.CycleReport) error {
	if report == nil {
		return goerr.Wrap(repository.ErrInvalidInput, "cycle report is nil")
	}
	docID, err := ToDocID(report.ID)
	if err != nil {
		return err
	}

	if _, err := r.client.Collection(r.collection).Doc(docID).Set(ctx, report); err != nil {
		return goerr.Wrap(err, "failed to put cycle report",
			goerr.V("id", report.ID),
		)
	}

	return nil
}

func (r *reportRepository) GetCycleReport(ctx context.Context, id types.CycleID) (*model.CycleReport, error) {
	docID, err := ToDocID(id)
	if err != nil {
		return nil, err
	}

	snap, err := r.client.Collection(r.collection).Doc(docID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "cycle report not found",
				goerr.V("id", id),
			)
		}
		return nil, goerr.Wrap(err, "failed to get cycle report",
			goerr.V("id", id),
		)
	}

	var report model.CycleReport
	if err := snap.DataTo(&report); err != nil {
		return nil, goerr.Wrap(err, "failed to decode cycle report",
			goerr.V("id", id),
		)
	}

	return &report, nil
}

func (r *reportRepository) GetLatestCycleReport(ctx context.Context) (*model.CycleReport, error) {
	reports, err := r.ListCycleReports(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return reports[0], nil
}

func (r *reportRepository) ListCycleReports(ctx context.Context, limit int) ([]*model.CycleReport, error) {
	query := r.client.Collection(r.collection).OrderBy(fieldStartedAt, firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var reports []*model.CycleReport
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate cycle reports")
		}

		var report model.CycleReport
		if err := doc.DataTo(&report); err != nil {
			return nil, goerr.Wrap(err, "failed to decode cycle report",
				goerr.V("docID", doc.Ref.ID),
			)
		}
		reports = append(reports, &report)
	}

	return reports, nil
}
