package board

import (
	"context"
	"net/http"
	"net/url"

	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// Requester executes one JSON request against the board service. *remote.Client satisfies it.
type Requester interface {
	Do(ctx context.Context, method, endpoint string, body, out any) error
}

type Client struct {
	remote Requester
}

var _ interfaces.BoardAPI = (*Client)(nil)

func New(remote Requester) *Client {
	return &Client{remote: remote}
}

func path(segments ...string) string {
	var p string
	for _, s := range segments {
		p += "/" + url.PathEscape(s)
	}
	return p
}

func (x *Client) ListBoards(ctx context.Context, workspace types.WorkspaceID) ([]*model.Board, error) {
	var boards []*model.Board
	if err := x.remote.Do(ctx, http.MethodGet, path("workspaces", string(workspace), "boards"), nil, &boards); err != nil {
		return nil, goerr.Wrap(err, "failed to list boards", goerr.V("workspace", workspace))
	}
	return boards, nil
}

// CreateBoard creates a board with its lists and labels in one call. The service rejects a board
// created without both arrays, so nil slices are sent as empty arrays.
func (x *Client) CreateBoard(ctx context.Context, input *model.CreateBoardInput) (*model.Board, error) {
	req := *input
	if req.Lists == nil {
		req.Lists = []string{}
	}
	if req.Labels == nil {
		req.Labels = []string{}
	}

	var board model.Board
	if err := x.remote.Do(ctx, http.MethodPost, "/boards", &req, &board); err != nil {
		return nil, goerr.Wrap(err, "failed to create board",
			goerr.V("workspace", input.Workspace),
			goerr.V("name", input.Name),
		)
	}
	return &board, nil
}

func (x *Client) ListLists(ctx context.Context, boardID types.BoardID) ([]*model.List, error) {
	var lists []*model.List
	if err := x.remote.Do(ctx, http.MethodGet, path("boards", string(boardID), "lists"), nil, &lists); err != nil {
		return nil, goerr.Wrap(err, "failed to list lists", goerr.V("board_id", boardID))
	}
	for _, l := range lists {
		if l.BoardID == "" {
			l.BoardID = boardID
		}
	}
	return lists, nil
}

func (x *Client) CreateList(ctx context.Context, boardID types.BoardID, name string, position int) (*model.List, error) {
	req := struct {
		Name     string `json:"name"`
		Position int    `json:"position"`
	}{Name: name, Position: position}

	var list model.List
	if err := x.remote.Do(ctx, http.MethodPost, path("boards", string(boardID), "lists"), &req, &list); err != nil {
		return nil, goerr.Wrap(err, "failed to create list",
			goerr.V("board_id", boardID),
			goerr.V("name", name),
		)
	}
	if list.BoardID == "" {
		list.BoardID = boardID
	}
	return &list, nil
}

type labelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (x *Client) ListLabels(ctx context.Context, boardID types.BoardID) ([]*model.Label, error) {
	var labels []*model.Label
	if err := x.remote.Do(ctx, http.MethodGet, path("boards", string(boardID), "labels"), nil, &labels); err != nil {
		return nil, goerr.Wrap(err, "failed to list labels", goerr.V("board_id", boardID))
	}
	for _, l := range labels {
		if l.BoardID == "" {
			l.BoardID = boardID
		}
	}
	return labels, nil
}

func (x *Client) CreateLabel(ctx context.Context, boardID types.BoardID, name, color string) (*model.Label, error) {
	var label model.Label
	req := &labelRequest{Name: name, Color: color}
	if err := x.remote.Do(ctx, http.MethodPost, path("boards", string(boardID), "labels"), req, &label); err != nil {
		return nil, goerr.Wrap(err, "failed to create label",
			goerr.V("board_id", boardID),
			goerr.V("name", name),
		)
	}
	if label.BoardID == "" {
		label.BoardID = boardID
	}
	return &label, nil
}

func (x *Client) UpdateLabel(ctx context.Context, labelID types.LabelID, name, color string) (*model.Label, error) {
	var label model.Label
	req := &labelRequest{Name: name, Color: color}
	if err := x.remote.Do(ctx, http.MethodPatch, path("labels", string(labelID)), req, &label); err != nil {
		return nil, goerr.Wrap(err, "failed to update label", goerr.V("label_id", labelID))
	}
	return &label, nil
}

func (x *Client) DeleteLabel(ctx context.Context, labelID types.LabelID) error {
	if err := x.remote.Do(ctx, http.MethodDelete, path("labels", string(labelID)), nil, nil); err != nil {
		return goerr.Wrap(err, "failed to delete label", goerr.V("label_id", labelID))
	}
	return nil
}

func (x *Client) ListCards(ctx context.Context, boardID types.BoardID) ([]*model.Card, error) {
	var cards []*model.Card
	if err := x.remote.Do(ctx, http.MethodGet, path("boards", string(boardID), "cards"), nil, &cards); err != nil {
		return nil, goerr.Wrap(err, "failed to list cards", goerr.V("board_id", boardID))
	}
	for _, c := range cards {
		if c.BoardID == "" {
			c.BoardID = boardID
		}
	}
	return cards, nil
}

// cardRequest never assigns members: memberIds is always sent as an empty array.
func cardRequest(input *model.CardInput) *model.CardInput {
	req := *input
	req.MemberIDs = []string{}
	if req.LabelIDs == nil {
		req.LabelIDs = []types.LabelID{}
	}
	return &req
}

func (x *Client) CreateCard(ctx context.Context, input *model.CardInput) (*model.Card, error) {
	if len(input.LabelIDs) == 0 {
		return nil, goerr.Wrap(types.ErrInvalidOption, "card must have at least one label",
			goerr.V("title", input.Title))
	}
	if input.ListID == "" {
		return nil, goerr.Wrap(types.ErrInvalidOption, "card must belong to a list",
			goerr.V("title", input.Title))
	}

	var card model.Card
	if err := x.remote.Do(ctx, http.MethodPost, "/cards", cardRequest(input), &card); err != nil {
		return nil, goerr.Wrap(err, "failed to create card",
			goerr.V("board_id", input.BoardID),
			goerr.V("title", input.Title),
		)
	}
	return &card, nil
}

func (x *Client) UpdateCard(ctx context.Context, cardID types.CardID, input *model.CardInput) (*model.Card, error) {
	var card model.Card
	if err := x.remote.Do(ctx, http.MethodPut, path("cards", string(cardID)), cardRequest(input), &card); err != nil {
		return nil, goerr.Wrap(err, "failed to update card",
			goerr.V("card_id", cardID),
			goerr.V("title", input.Title),
		)
	}
	return &card, nil
}

func (x *Client) DeleteCard(ctx context.Context, cardID types.CardID) error {
	if err := x.remote.Do(ctx, http.MethodDelete, path("cards", string(cardID)), nil, nil); err != nil {
		return goerr.Wrap(err, "failed to delete card", goerr.V("card_id", cardID))
	}
	return nil
}
