package usecase

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/bqs"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

// exportReport appends one row per repository of the cycle to the report table.
func (x *UseCase) exportReport(ctx context.Context, report *model.CycleReport) error {
	bq := x.clients.BigQuery()
	if bq == nil {
		return nil
	}

	records := report.Records()
	if len(records) == 0 {
		return nil
	}

	schema, err := createOrUpdateBigQueryTable(ctx, bq)
	if err != nil {
		return err
	}

	rows := make([]any, len(records))
	for i := range records {
		rows[i] = records[i]
	}

	if err := bq.Insert(ctx, schema, rows); err != nil {
		return goerr.Wrap(err, "failed to insert cycle report to BigQuery",
			goerr.V("cycle_id", report.ID),
			goerr.V("rows", len(rows)),
		)
	}
	return nil
}

func createOrUpdateBigQueryTable(ctx context.Context, bq interfaces.BigQuery) (bigquery.Schema, error) {
	schema, err := bqs.Infer(model.ReportRecord{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to infer report schema")
	}

	metaData, err := bq.GetMetadata(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get BigQuery table metadata")
	}
	if metaData == nil {
		if err := bq.CreateTable(ctx, &bigquery.TableMetadata{
			Schema: schema,
		}); err != nil {
			return nil, goerr.Wrap(err, "failed to create BigQuery table")
		}
		return schema, nil
	}

	if bqs.Equal(metaData.Schema, schema) {
		return schema, nil
	}

	merged, err := bqs.Merge(metaData.Schema, schema)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to merge BigQuery schema")
	}
	if err := bq.UpdateTable(ctx, bigquery.TableMetadataToUpdate{
		Schema: merged,
	}, metaData.ETag); err != nil {
		return nil, goerr.Wrap(err, "failed to update BigQuery table")
	}

	return merged, nil
}
