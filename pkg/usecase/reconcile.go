package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// boardState is the reconciler's view of one board during a cycle. cards holds the single surviving
// card per issue number and is kept current as cards are written.
type boardState struct {
	repo    model.RepositoryConfig
	boardID types.BoardID
	lists   map[string]types.ListID
	cards   map[int]*model.Card
}

// reconcileIssue brings the card of one issue in line with the issue. Nothing is written when title,
// description and list already match.
func (x *UseCase) reconcileIssue(ctx context.Context, cfg *model.SyncConfig, state *boardState, issue *model.Issue, link pullRequestLink) (types.CardOutcome, error) {
	listName := DetermineList(issue, link.pr, link.unresolved, cfg.ListNames)
	listID, ok := state.lists[listName]
	if !ok {
		return "", goerr.Wrap(types.ErrInvalidConfig, "target list does not exist on board",
			goerr.V("list", listName),
			goerr.V("board_id", state.boardID),
		)
	}

	comments, err := x.latestComments(ctx, state.repo, issue, cfg.CommentExcerpts)
	if err != nil {
		return "", err
	}

	labelIDs, err := x.resolveLabels(ctx, state.boardID, issue, cfg.FallbackLabel)
	if err != nil {
		return "", err
	}

	input := &model.CardInput{
		BoardID:     state.boardID,
		ListID:      listID,
		Title:       CardTitle(issue),
		Description: CardDescription(issue, comments),
		LabelIDs:    labelIDs,
		MemberIDs:   []string{},
	}

	existing := state.cards[issue.Number]
	if existing == nil {
		return x.createCard(ctx, state, issue.Number, input)
	}
	if !cardChanged(existing, input) {
		return types.CardUnchanged, nil
	}

	err = x.updateCard(ctx, state, issue.Number, existing.ID, input)
	if err == nil {
		return types.CardUpdated, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return "", err
	}

	// Our reference is stale. Look at the board once more before creating a replacement.
	logging.From(ctx).Warn("card vanished, rescanning board",
		slog.Int("issue", issue.Number),
		slog.Any("card_id", existing.ID),
	)

	cards, err := x.clients.Board().ListCards(ctx, state.boardID)
	if err != nil {
		return "", goerr.Wrap(err, "failed to rescan board", goerr.V("issue", issue.Number))
	}

	var candidates []*model.Card
	for _, c := range cards {
		if c.ID != existing.ID && ExtractIssueNumber(c) == issue.Number {
			candidates = append(candidates, c)
		}
	}

	survivor, _ := PickSurvivor(candidates)
	if survivor == nil {
		delete(state.cards, issue.Number)
		return x.createCard(ctx, state, issue.Number, input)
	}

	state.cards[issue.Number] = survivor
	if !cardChanged(survivor, input) {
		return types.CardUnchanged, nil
	}
	if err := x.updateCard(ctx, state, issue.Number, survivor.ID, input); err != nil {
		return "", err
	}
	return types.CardUpdated, nil
}

func (x *UseCase) createCard(ctx context.Context, state *boardState, number int, input *model.CardInput) (types.CardOutcome, error) {
	card, err := x.clients.Board().CreateCard(ctx, input)
	if err != nil {
		x.forgetLabelsOnReject(ctx, state.boardID, err)
		return "", goerr.Wrap(err, "failed to create card", goerr.V("issue", number))
	}

	state.cards[number] = cardFromInput(card.ID, input)
	logging.From(ctx).Debug("card created",
		slog.Int("issue", number),
		slog.Any("card_id", card.ID),
	)
	return types.CardCreated, nil
}

func (x *UseCase) updateCard(ctx context.Context, state *boardState, number int, cardID types.CardID, input *model.CardInput) error {
	if _, err := x.clients.Board().UpdateCard(ctx, cardID, input); err != nil {
		x.forgetLabelsOnReject(ctx, state.boardID, err)
		return goerr.Wrap(err, "failed to update card",
			goerr.V("issue", number),
			goerr.V("card_id", cardID),
		)
	}

	state.cards[number] = cardFromInput(cardID, input)
	logging.From(ctx).Debug("card updated",
		slog.Int("issue", number),
		slog.Any("card_id", cardID),
	)
	return nil
}

// forgetLabelsOnReject drops the cached labels of the board when it refused a card write. A label
// deleted on the board leaves a stale ID in the cache until it is fetched again.
func (x *UseCase) forgetLabelsOnReject(ctx context.Context, boardID types.BoardID, err error) {
	if !errors.Is(err, types.ErrClientError) {
		return
	}
	x.cache.dropLabels(boardID)
	logging.From(ctx).Warn("card write rejected, refetching labels next time",
		slog.Any("board_id", boardID),
		slog.Any("error", err),
	)
}

func cardChanged(card *model.Card, input *model.CardInput) bool {
	return card.Title != input.Title ||
		card.Description != input.Description ||
		card.ListID != input.ListID
}

func cardFromInput(id types.CardID, input *model.CardInput) *model.Card {
	return &model.Card{
		ID:          id,
		BoardID:     input.BoardID,
		ListID:      input.ListID,
		Title:       input.Title,
		Description: input.Description,
		LabelIDs:    input.LabelIDs,
		MemberIDs:   []string{},
	}
}

// latestComments returns up to n of the newest comments. A failed fetch fails the issue so that an
// existing excerpt is not dropped from the card.
func (x *UseCase) latestComments(ctx context.Context, repo model.RepositoryConfig, issue *model.Issue, n int) ([]*model.Comment, error) {
	if n <= 0 || issue.Comments == 0 {
		return nil, nil
	}

	comments, err := x.clients.IssueSource().FetchComments(ctx, repo.Owner, repo.Name, issue.Number)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch comments",
			goerr.V("repo", repo.ID()),
			goerr.V("issue", issue.Number),
		)
	}

	if len(comments) > n {
		comments = comments[len(comments)-n:]
	}
	return comments, nil
}
