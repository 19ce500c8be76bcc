package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const boardListAttempts = 5

func defaultProvisionBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// EnsureBoard returns the board of the repository, creating it with every workflow list when absent.
func (x *UseCase) EnsureBoard(ctx context.Context, cfg *model.SyncConfig, repo model.RepositoryConfig) (types.BoardID, error) {
	if id, ok := x.cache.board(repo.ID()); ok {
		return id, nil
	}

	name := repo.DisplayName()
	board, err := x.findBoard(ctx, cfg.Workspace, name)
	if err != nil {
		return "", err
	}

	if board == nil {
		input := &model.CreateBoardInput{
			Workspace:  cfg.Workspace,
			Name:       name,
			Slug:       repo.Slug(),
			Visibility: repo.BoardVisibility(),
			Lists:      cfg.ListNames.Ordered(),
			Labels:     []string{},
		}

		created, createErr := x.clients.Board().CreateBoard(ctx, input)
		switch {
		case createErr == nil:
			board = created
			logging.From(ctx).Info("board created",
				slog.String("repo", repo.ID()),
				slog.String("board", name),
				slog.Any("board_id", board.ID),
			)

		case errors.Is(createErr, types.ErrClientError):
			// Most likely created by someone else since we listed; adopt theirs.
			found, err := x.findBoard(ctx, cfg.Workspace, name)
			if err != nil {
				return "", err
			}
			if found == nil {
				return "", goerr.Wrap(createErr, "failed to create board", goerr.V("repo", repo.ID()))
			}
			logging.From(ctx).Info("adopted board created concurrently",
				slog.String("repo", repo.ID()),
				slog.Any("board_id", found.ID),
			)
			board = found

		default:
			return "", goerr.Wrap(createErr, "failed to create board", goerr.V("repo", repo.ID()))
		}
	}

	x.cache.setBoard(repo.ID(), board.ID)
	return board.ID, nil
}

// findBoard looks a board up by its exact name. Listing is retried on server errors and rate limits.
func (x *UseCase) findBoard(ctx context.Context, workspace types.WorkspaceID, name string) (*model.Board, error) {
	var boards []*model.Board
	attempt := 0

	op := func() error {
		attempt++
		resp, err := x.clients.Board().ListBoards(ctx, workspace)
		if err != nil {
			if errors.Is(err, types.ErrServerError) || errors.Is(err, types.ErrRateLimited) {
				return err
			}
			return backoff.Permanent(err)
		}
		boards = resp
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logging.From(ctx).Warn("failed to list boards, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(x.provisionBackOff(), boardListAttempts-1), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, goerr.Wrap(err, "failed to list boards",
			goerr.V("workspace", workspace),
			goerr.V("attempts", attempt),
		)
	}

	for _, board := range boards {
		if board.Name == name {
			return board, nil
		}
	}
	return nil, nil
}

// EnsureLists returns list IDs by name, creating the missing workflow lists at their declared positions.
func (x *UseCase) EnsureLists(ctx context.Context, cfg *model.SyncConfig, boardID types.BoardID) (map[string]types.ListID, error) {
	if lists, ok := x.cache.listMap(boardID); ok {
		return lists, nil
	}

	existing, err := x.clients.Board().ListLists(ctx, boardID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch lists", goerr.V("board_id", boardID))
	}

	lists := make(map[string]types.ListID, len(existing))
	for _, l := range existing {
		lists[l.Name] = l.ID
	}

	for i, name := range cfg.ListNames.Ordered() {
		if _, ok := lists[name]; ok {
			continue
		}

		created, err := x.clients.Board().CreateList(ctx, boardID, name, i+1)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create list",
				goerr.V("board_id", boardID),
				goerr.V("name", name),
			)
		}
		logging.From(ctx).Info("list created",
			slog.Any("board_id", boardID),
			slog.String("list", name),
			slog.Int("position", i+1),
		)
		lists[name] = created.ID
	}

	x.cache.setListMap(boardID, lists)
	return lists, nil
}
