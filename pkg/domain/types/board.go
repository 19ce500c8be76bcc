package types

import "log/slog"

type (
	BoardAPIKey string
	WorkspaceID string
	BoardID     string
	ListID      string
	LabelID     string
	CardID      string
)

func (x BoardAPIKey) LogValue() slog.Value {
	return slog.StringValue("***********")
}

func (x BoardAPIKey) String() string {
	return "***********"
}

// CardOutcome classifies what a reconciliation did to a card.
type CardOutcome string

const (
	CardCreated   CardOutcome = "created"
	CardUpdated   CardOutcome = "updated"
	CardUnchanged CardOutcome = "unchanged"
)
