package usecase_test

import (
	"testing"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/usecase"
	"github.com/m-mizutani/gt"
)

func TestExtractIssueNumber(t *testing.T) {
	testCases := map[string]struct {
		card     model.Card
		expected int
	}{
		"canonical title":         {card: model.Card{Title: "#12: Fix login"}, expected: 12},
		"canonical wins over url": {card: model.Card{Title: "#12: x", Description: "github.com/o/r/issues/99"}, expected: 12},
		"issue url in description": {
			card:     model.Card{Title: "Fix login", Description: "From https://github.com/octo/hello/issues/34 originally"},
			expected: 34,
		},
		"pull url is not an issue": {card: model.Card{Title: "x", Description: "https://github.com/o/r/pull/5"}, expected: 0},
		"loose number in title":    {card: model.Card{Title: "Follow up on #56"}, expected: 56},
		"path fragment ignored":    {card: model.Card{Title: "see a/#56"}, expected: 0},
		"nothing":                  {card: model.Card{Title: "Team offsite"}, expected: 0},
	}

	for title, tc := range testCases {
		t.Run(title, func(t *testing.T) {
			gt.V(t, usecase.ExtractIssueNumber(&tc.card)).Equal(tc.expected)
		})
	}
}

func TestPickSurvivor(t *testing.T) {
	t.Run("first canonical card survives", func(t *testing.T) {
		legacy := &model.Card{ID: "c1", Title: "Fix login", Description: "github.com/o/r/issues/1"}
		first := &model.Card{ID: "c2", Title: "#1: Fix login"}
		second := &model.Card{ID: "c3", Title: "#1: Fix login"}

		survivor, dups := usecase.PickSurvivor([]*model.Card{legacy, first, second})
		gt.V(t, survivor.ID).Equal(first.ID)
		gt.V(t, len(dups)).Equal(2)
		gt.V(t, dups[0].ID).Equal(legacy.ID)
		gt.V(t, dups[1].ID).Equal(second.ID)
	})

	t.Run("first card survives without canonical title", func(t *testing.T) {
		a := &model.Card{ID: "c1", Title: "about #1"}
		b := &model.Card{ID: "c2", Title: "again #1"}

		survivor, dups := usecase.PickSurvivor([]*model.Card{a, b})
		gt.V(t, survivor.ID).Equal(a.ID)
		gt.V(t, len(dups)).Equal(1)
	})

	t.Run("single and empty", func(t *testing.T) {
		a := &model.Card{ID: "c1", Title: "#1: x"}
		survivor, dups := usecase.PickSurvivor([]*model.Card{a})
		gt.V(t, survivor.ID).Equal(a.ID)
		gt.V(t, len(dups)).Equal(0)

		survivor, _ = usecase.PickSurvivor(nil)
		gt.V(t, survivor).Equal(nil)
	})
}

func TestSanitizeColor(t *testing.T) {
	testCases := map[string]string{
		"d73a4a":  "#d73a4a",
		"#D73A4A": "#d73a4a",
		" 0E8A16": "#0e8a16",
		"":        usecase.DefaultLabelColor,
		"red":     usecase.DefaultLabelColor,
		"#12345":  usecase.DefaultLabelColor,
	}

	for input, expected := range testCases {
		t.Run(input, func(t *testing.T) {
			gt.V(t, usecase.SanitizeColor(input)).Equal(expected)
		})
	}
}
