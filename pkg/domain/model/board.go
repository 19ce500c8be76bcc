package model

import "github.com/m-mizutani/cardsync/pkg/domain/types"

type Board struct {
	ID   types.BoardID `json:"id"`
	Name string        `json:"name"`
	Slug string        `json:"slug,omitempty"`
}

type List struct {
	ID       types.ListID  `json:"id"`
	BoardID  types.BoardID `json:"boardId"`
	Name     string        `json:"name"`
	Position int           `json:"position"`
}

type Label struct {
	ID      types.LabelID `json:"id"`
	BoardID types.BoardID `json:"boardId"`
	Name    string        `json:"name"`
	Color   string        `json:"color"`
}

type Card struct {
	ID          types.CardID    `json:"id"`
	BoardID     types.BoardID   `json:"boardId"`
	ListID      types.ListID    `json:"listId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	LabelIDs    []types.LabelID `json:"labelIds"`
	MemberIDs   []string        `json:"memberIds"`
}

type CreateBoardInput struct {
	Workspace  types.WorkspaceID `json:"workspaceId"`
	Name       string            `json:"name"`
	Slug       string            `json:"slug,omitempty"`
	Visibility string            `json:"visibility,omitempty"`
	Lists      []string          `json:"lists"`
	Labels     []string          `json:"labels"`
}

// CardInput is the writable part of a card.
type CardInput struct {
	BoardID     types.BoardID   `json:"boardId"`
	ListID      types.ListID    `json:"listId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	LabelIDs    []types.LabelID `json:"labelIds"`
	MemberIDs   []string        `json:"memberIds"`
}
