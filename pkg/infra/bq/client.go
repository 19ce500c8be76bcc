package bq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/bigquery/storage/managedwriter"
	"cloud.google.com/go/bigquery/storage/managedwriter/adapt"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/cardsync/pkg/utils/safe"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	schemaRetryLimit    = 3
	schemaRetryInterval = 5 * time.Second
)

// Client writes cycle report rows into one BigQuery table through the Storage Write API.
type Client struct {
	bqClient *bigquery.Client
	mwClient *managedwriter.Client
	project  string
	dataset  string
	tableID  types.BQTableID
}

var _ interfaces.BigQuery = (*Client)(nil)

func New(ctx context.Context, projectID types.GoogleProjectID, datasetID types.BQDatasetID, tableID types.BQTableID, options ...option.ClientOption) (*Client, error) {
	if projectID == "" || datasetID == "" || tableID == "" {
		return nil, goerr.Wrap(types.ErrInvalidOption, "BigQuery project, dataset and table are required",
			goerr.V("project", projectID),
			goerr.V("dataset", datasetID),
			goerr.V("table", tableID),
		)
	}

	mwClient, err := managedwriter.NewClient(ctx, projectID.String(), options...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery write client", goerr.V("project", projectID))
	}

	bqClient, err := bigquery.NewClient(ctx, projectID.String(), options...)
	if err != nil {
		safe.Close(mwClient)
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.V("project", projectID))
	}

	return &Client{
		bqClient: bqClient,
		mwClient: mwClient,
		project:  projectID.String(),
		dataset:  datasetID.String(),
		tableID:  tableID,
	}, nil
}

func (x *Client) table() *bigquery.Table {
	return x.bqClient.Dataset(x.dataset).Table(x.tableID.String())
}

func (x *Client) CreateTable(ctx context.Context, md *bigquery.TableMetadata) error {
	if err := x.table().Create(ctx, md); err != nil {
		return goerr.Wrap(err, "failed to create table", goerr.V("dataset", x.dataset), goerr.V("table", x.tableID))
	}
	return nil
}

// GetMetadata returns nil without error when the table does not exist yet.
func (x *Client) GetMetadata(ctx context.Context) (*bigquery.TableMetadata, error) {
	md, err := x.table().Metadata(ctx)
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get table metadata", goerr.V("dataset", x.dataset), goerr.V("table", x.tableID))
	}
	return md, nil
}

func (x *Client) UpdateTable(ctx context.Context, md bigquery.TableMetadataToUpdate, eTag string) error {
	if _, err := x.table().Update(ctx, md, eTag); err != nil {
		return goerr.Wrap(err, "failed to update table", goerr.V("dataset", x.dataset), goerr.V("table", x.tableID))
	}
	return nil
}

// Insert appends rows in one request. A freshly widened schema takes a while to reach the write API, so
// schema mismatch errors are retried a few times.
func (x *Client) Insert(ctx context.Context, schema bigquery.Schema, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	descriptor, encoded, err := EncodeRows(schema, rows)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err := x.appendRows(ctx, descriptor, encoded)
		if err == nil {
			return nil
		}
		if !IsSchemaMismatchError(err) || attempt >= schemaRetryLimit {
			return err
		}

		logging.From(ctx).Warn("BigQuery schema not yet propagated, retrying insert",
			slog.Int("attempt", attempt),
			slog.String("table", x.tableID.String()),
		)
		select {
		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "interrupted while waiting for schema propagation")
		case <-time.After(schemaRetryInterval * time.Duration(attempt)):
		}
	}
}

func (x *Client) appendRows(ctx context.Context, descriptor *descriptorpb.DescriptorProto, rows [][]byte) error {
	ms, err := x.mwClient.NewManagedStream(ctx,
		managedwriter.WithDestinationTable(
			managedwriter.TableParentFromParts(x.project, x.dataset, x.tableID.String()),
		),
		managedwriter.WithSchemaDescriptor(descriptor),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to create managed stream")
	}
	defer safe.Close(ms)

	result, err := ms.AppendRows(ctx, rows)
	if err != nil {
		return goerr.Wrap(err, "failed to append rows", goerr.V("rows", len(rows)))
	}
	if _, err := result.FullResponse(ctx); err != nil {
		return goerr.Wrap(err, "failed to get append result", goerr.V("rows", len(rows)))
	}
	return nil
}

// EncodeRows converts rows into proto messages shaped by schema. Rows go through their JSON encoding,
// so json tags decide the column names.
func EncodeRows(schema bigquery.Schema, rows []any) (*descriptorpb.DescriptorProto, [][]byte, error) {
	storageSchema, err := adapt.BQSchemaToStorageTableSchema(schema)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to convert schema")
	}

	descriptor, err := adapt.StorageSchemaToProto2Descriptor(storageSchema, "root")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to convert schema to descriptor")
	}
	msgDescriptor, ok := descriptor.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, nil, goerr.New("adapted descriptor is not a message descriptor")
	}
	normalized, err := adapt.NormalizeDescriptor(msgDescriptor)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to normalize descriptor")
	}

	encoded := make([][]byte, 0, len(rows))
	for i, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to marshal row", goerr.V("index", i))
		}

		msg := dynamicpb.NewMessage(msgDescriptor)
		if err := protojson.Unmarshal(raw, msg); err != nil {
			return nil, nil, goerr.Wrap(err, "failed to convert row to proto message",
				goerr.V("index", i),
				goerr.V("raw", string(raw)),
			)
		}

		b, err := proto.Marshal(msg)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to marshal proto message", goerr.V("index", i))
		}
		encoded = append(encoded, b)
	}

	return normalized, encoded, nil
}

// IsSchemaMismatchError reports whether the write API rejected rows because it does not know the new
// columns yet.
func IsSchemaMismatchError(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		st, ok := status.FromError(err)
		if !ok || st.Code() != codes.InvalidArgument {
			continue
		}
		if strings.Contains(st.Message(), "Input schema has more fields than BigQuery schema") {
			return true
		}
	}
	return false
}
