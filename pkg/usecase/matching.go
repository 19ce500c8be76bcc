package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
)

var (
	ptnCanonicalTitle = regexp.MustCompile(`^#(\d+):`)
	ptnIssueURL       = regexp.MustCompile(`github\.com/[\w.-]+/[\w.-]+/issues/(\d+)`)
	ptnLooseTitle     = regexp.MustCompile(`(?:^|[^\w/])#(\d+)\b`)
)

// ExtractIssueNumber recovers the issue number a card was made for, trying the canonical title prefix,
// then an issue URL in the description, then any #N in the title. It returns 0 when none matches.
func ExtractIssueNumber(card *model.Card) int {
	if n := firstNumber(ptnCanonicalTitle, card.Title); n > 0 {
		return n
	}
	if n := firstNumber(ptnIssueURL, card.Description); n > 0 {
		return n
	}
	return firstNumber(ptnLooseTitle, card.Title)
}

func HasCanonicalTitle(card *model.Card) bool {
	return ptnCanonicalTitle.MatchString(card.Title)
}

func firstNumber(ptn *regexp.Regexp, s string) int {
	m := ptn.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// PickSurvivor chooses which of several cards for one issue to keep: the first with a canonical title,
// else the first card. The rest are returned as duplicates in their original order.
func PickSurvivor(cards []*model.Card) (*model.Card, []*model.Card) {
	if len(cards) == 0 {
		return nil, nil
	}

	idx := 0
	for i, c := range cards {
		if HasCanonicalTitle(c) {
			idx = i
			break
		}
	}

	duplicates := make([]*model.Card, 0, len(cards)-1)
	for i, c := range cards {
		if i != idx {
			duplicates = append(duplicates, c)
		}
	}
	return cards[idx], duplicates
}

// groupCards indexes cards by issue number, keeping board order within a group. Cards without an
// issue number are left out.
func groupCards(cards []*model.Card) (map[int][]*model.Card, []int) {
	groups := make(map[int][]*model.Card)
	var order []int
	for _, c := range cards {
		n := ExtractIssueNumber(c)
		if n <= 0 {
			continue
		}
		if _, ok := groups[n]; !ok {
			order = append(order, n)
		}
		groups[n] = append(groups[n], c)
	}
	return groups, order
}

// dedupeCards keeps one card per issue number and deletes the others from the board. A failed
// deletion is logged and the card is still dropped from the returned index.
func (x *UseCase) dedupeCards(ctx context.Context, cards []*model.Card) (map[int]*model.Card, int) {
	groups, order := groupCards(cards)
	index := make(map[int]*model.Card, len(groups))
	removed := 0

	for _, n := range order {
		survivor, duplicates := PickSurvivor(groups[n])
		index[n] = survivor

		for _, dup := range duplicates {
			if err := x.clients.Board().DeleteCard(ctx, dup.ID); err != nil {
				logging.From(ctx).Warn("failed to delete duplicate card",
					slog.Int("issue", n),
					slog.Any("card_id", dup.ID),
					slog.Any("error", err),
				)
				continue
			}
			removed++
			logging.From(ctx).Info("deleted duplicate card",
				slog.Int("issue", n),
				slog.Any("card_id", dup.ID),
				slog.String("title", dup.Title),
				slog.Any("survivor_id", survivor.ID),
			)
		}
	}

	return index, removed
}
