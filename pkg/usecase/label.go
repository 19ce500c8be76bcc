package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const DefaultLabelColor = "#808080"

var ptnHexColor = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)

// SanitizeColor normalizes a GitHub label color ("d73a4a" or "#D73A4A") to "#d73a4a". Anything else
// becomes DefaultLabelColor.
func SanitizeColor(color string) string {
	c := strings.TrimPrefix(strings.TrimSpace(color), "#")
	if !ptnHexColor.MatchString(c) {
		return DefaultLabelColor
	}
	return "#" + strings.ToLower(c)
}

func (x *UseCase) boardLabels(ctx context.Context, boardID types.BoardID, refresh bool) (map[string]*model.Label, error) {
	if !refresh {
		if labels, ok := x.cache.labelMap(boardID); ok {
			return labels, nil
		}
	}

	labels, err := x.clients.Board().ListLabels(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return x.cache.setLabels(boardID, labels), nil
}

// ensureLabel returns the board label matching name case-insensitively, creating it when missing. A
// label whose color drifted from GitHub is recolored; an empty color leaves the color alone. When
// creation fails, the labels are fetched again in case another cycle created it meanwhile.
func (x *UseCase) ensureLabel(ctx context.Context, boardID types.BoardID, name, color string) (*model.Label, error) {
	labels, err := x.boardLabels(ctx, boardID, false)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch labels", goerr.V("board_id", boardID))
	}

	if label, ok := labels[labelKey(name)]; ok {
		return x.syncLabelColor(ctx, label, color), nil
	}

	createColor := color
	if createColor == "" {
		createColor = DefaultLabelColor
	}

	created, createErr := x.clients.Board().CreateLabel(ctx, boardID, name, createColor)
	if createErr == nil {
		if created.Name == "" {
			created.Name = name
		}
		x.cache.putLabel(boardID, created)
		logging.From(ctx).Info("label created",
			slog.Any("board_id", boardID),
			slog.String("label", name),
			slog.String("color", createColor),
		)
		return created, nil
	}

	labels, err = x.boardLabels(ctx, boardID, true)
	if err != nil {
		return nil, goerr.Wrap(createErr, "failed to create label",
			goerr.V("board_id", boardID),
			goerr.V("label", name),
			goerr.V("refetch_error", err.Error()),
		)
	}
	if label, ok := labels[labelKey(name)]; ok {
		logging.From(ctx).Debug("label appeared after creation failure",
			slog.Any("board_id", boardID),
			slog.String("label", name),
		)
		return label, nil
	}

	return nil, goerr.Wrap(createErr, "failed to create label",
		goerr.V("board_id", boardID),
		goerr.V("label", name),
	)
}

func (x *UseCase) syncLabelColor(ctx context.Context, label *model.Label, color string) *model.Label {
	if color == "" || strings.EqualFold(label.Color, color) {
		return label
	}

	updated, err := x.clients.Board().UpdateLabel(ctx, label.ID, label.Name, color)
	if err != nil {
		logging.From(ctx).Warn("failed to update label color",
			slog.Any("label_id", label.ID),
			slog.String("label", label.Name),
			slog.String("color", color),
			slog.Any("error", err),
		)
		return label
	}

	if updated.ID == "" {
		updated.ID = label.ID
	}
	if updated.Name == "" {
		updated.Name = label.Name
	}
	if updated.Color == "" {
		updated.Color = color
	}
	updated.BoardID = label.BoardID
	x.cache.putLabel(label.BoardID, updated)
	return updated
}

// resolveLabels maps the issue labels onto board label IDs. A label that cannot be resolved is skipped
// with a warning. An issue left without any label gets the fallback label.
func (x *UseCase) resolveLabels(ctx context.Context, boardID types.BoardID, issue *model.Issue, fallback string) ([]types.LabelID, error) {
	seen := make(map[string]struct{})
	var ids []types.LabelID

	for _, l := range issue.Labels {
		key := labelKey(l.Name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		label, err := x.ensureLabel(ctx, boardID, strings.TrimSpace(l.Name), SanitizeColor(l.Color))
		if err != nil {
			logging.From(ctx).Warn("skipping label",
				slog.Int("issue", issue.Number),
				slog.String("label", l.Name),
				slog.Any("error", err),
			)
			continue
		}
		ids = append(ids, label.ID)
	}

	if len(ids) > 0 {
		return ids, nil
	}

	if fallback == "" {
		fallback = model.DefaultFallbackLabel
	}
	label, err := x.ensureLabel(ctx, boardID, fallback, "")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve fallback label", goerr.V("issue", issue.Number))
	}
	return []types.LabelID{label.ID}, nil
}
