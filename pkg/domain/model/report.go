package model

import (
	"time"

	"github.com/m-mizutani/cardsync/pkg/domain/types"
)

type RepoReport struct {
	Repository        string `json:"repository" firestore:"repository"`
	Created           int    `json:"created" firestore:"created"`
	Updated           int    `json:"updated" firestore:"updated"`
	Unchanged         int    `json:"unchanged" firestore:"unchanged"`
	Errors            int    `json:"errors" firestore:"errors"`
	DuplicatesRemoved int    `json:"duplicates_removed" firestore:"duplicates_removed"`
	Cards             int    `json:"cards" firestore:"cards"`
	Skipped           bool   `json:"skipped,omitempty" firestore:"skipped"`
	Error             string `json:"error,omitempty" firestore:"error"`
}

func (x *RepoReport) Count(outcome types.CardOutcome) {
	switch outcome {
	case types.CardCreated:
		x.Created++
		x.Cards++
	case types.CardUpdated:
		x.Updated++
	case types.CardUnchanged:
		x.Unchanged++
	}
}

type CycleReport struct {
	ID               types.CycleID `json:"id" firestore:"id"`
	StartedAt        time.Time     `json:"started_at" firestore:"started_at"`
	FinishedAt       time.Time     `json:"finished_at" firestore:"finished_at"`
	Repositories     []*RepoReport `json:"repositories" firestore:"repositories"`
	RateLimited      bool          `json:"rate_limited,omitempty" firestore:"rate_limited"`
	RateLimitResetAt time.Time     `json:"rate_limit_reset_at,omitempty" firestore:"rate_limit_reset_at"`
}

// CardCount is the number of live cards seen across all reconciled repositories.
func (x *CycleReport) CardCount() int {
	var n int
	for _, r := range x.Repositories {
		n += r.Cards
	}
	return n
}

func (x *CycleReport) Errors() int {
	var n int
	for _, r := range x.Repositories {
		n += r.Errors
	}
	return n
}

// ReportRecord is one exported row: the outcome of one repository within one cycle.
type ReportRecord struct {
	CycleID           string    `json:"cycle_id"`
	Timestamp         time.Time `json:"timestamp"`
	DurationMS        int64     `json:"duration_ms"`
	Repository        string    `json:"repository"`
	Created           int64     `json:"created"`
	Updated           int64     `json:"updated"`
	Unchanged         int64     `json:"unchanged"`
	Errors            int64     `json:"errors"`
	DuplicatesRemoved int64     `json:"duplicates_removed"`
	Cards             int64     `json:"cards"`
	Skipped           bool      `json:"skipped"`
	RateLimited       bool      `json:"rate_limited"`
	Error             string    `json:"error"`
}

// ReportRawRecord is ReportRecord as the write API expects it, with the timestamp in microseconds.
type ReportRawRecord struct {
	ReportRecord
	Timestamp int64 `json:"timestamp"`
}

func (x *CycleReport) Records() []*ReportRawRecord {
	var records []*ReportRawRecord
	for _, r := range x.Repositories {
		records = append(records, &ReportRawRecord{
			ReportRecord: ReportRecord{
				CycleID:           x.ID.String(),
				Timestamp:         x.StartedAt,
				DurationMS:        x.FinishedAt.Sub(x.StartedAt).Milliseconds(),
				Repository:        r.Repository,
				Created:           int64(r.Created),
				Updated:           int64(r.Updated),
				Unchanged:         int64(r.Unchanged),
				Errors:            int64(r.Errors),
				DuplicatesRemoved: int64(r.DuplicatesRemoved),
				Cards:             int64(r.Cards),
				Skipped:           r.Skipped,
				RateLimited:       x.RateLimited,
				Error:             r.Error,
			},
			Timestamp: x.StartedAt.UnixMicro(),
		})
	}
	return records
}
