package interfaces

import (
	"context"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// BoardAPI is the typed surface of the kanban board service.
type BoardAPI interface {
	ListBoards(ctx context.Context, workspace types.WorkspaceID) ([]*model.Board, error)
	CreateBoard(ctx context.Context, input *model.CreateBoardInput) (*model.Board, error)

	ListLists(ctx context.Context, boardID types.BoardID) ([]*model.List, error)
	CreateList(ctx context.Context, boardID types.BoardID, name string, position int) (*model.List, error)

	ListLabels(ctx context.Context, boardID types.BoardID) ([]*model.Label, error)
	CreateLabel(ctx context.Context, boardID types.BoardID, name, color string) (*model.Label, error)
	UpdateLabel(ctx context.Context, labelID types.LabelID, name, color string) (*model.Label, error)
	DeleteLabel(ctx context.Context, labelID types.LabelID) error

	ListCards(ctx context.Context, boardID types.BoardID) ([]*model.Card, error)
	CreateCard(ctx context.Context, input *model.CardInput) (*model.Card, error)
	UpdateCard(ctx context.Context, cardID types.CardID, input *model.CardInput) (*model.Card, error)
	DeleteCard(ctx context.Context, cardID types.CardID) error
}

// IssueSource reads issues and pull requests from GitHub.
type IssueSource interface {
	FetchIssues(ctx context.Context, owner, repo string, state types.IssueState) ([]*model.Issue, error)
	FetchComments(ctx context.Context, owner, repo string, number int) ([]*model.Comment, error)
	FetchPullRequests(ctx context.Context, owner, repo string, state types.IssueState) ([]*model.PullRequest, error)
	FetchPullRequest(ctx context.Context, owner, repo string, number int) (*model.PullRequest, error)
}

// CycleLock guards against overlapping sync cycles. TryAcquire returns false without error when another
// cycle holds the lock.
type CycleLock interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// BigQuery is the table that cycle reports are exported to.
type BigQuery interface {
	CreateTable(ctx context.Context, md *bigquery.TableMetadata) error
	GetMetadata(ctx context.Context) (*bigquery.TableMetadata, error)
	UpdateTable(ctx context.Context, md bigquery.TableMetadataToUpdate, eTag string) error
	Insert(ctx context.Context, schema bigquery.Schema, rows []any) error
}
