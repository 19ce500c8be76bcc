package testhelper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/repository"
	"github.com/m-mizutani/gt"
)

// TestAll runs the conformance suite for a ReportRepository implementation. newRepo must return an
// empty repository on every call.
func TestAll(t *testing.T, newRepo func(t *testing.T) interfaces.ReportRepository) {
	t.Run("PutAndGet", func(t *testing.T) {
		TestPutAndGet(t, newRepo(t))
	})
	t.Run("Overwrite", func(t *testing.T) {
		TestOverwrite(t, newRepo(t))
	})
	t.Run("NotFound", func(t *testing.T) {
		TestNotFound(t, newRepo(t))
	})
	t.Run("LatestAndList", func(t *testing.T) {
		TestLatestAndList(t, newRepo(t))
	})
	t.Run("InvalidInput", func(t *testing.T) {
		TestInvalidInput(t, newRepo(t))
	})
}

func newReport(startedAt time.Time, repos ...*model.RepoReport) *model.CycleReport {
	return &model.CycleReport{
		ID:           types.NewCycleID(),
		StartedAt:    startedAt,
		FinishedAt:   startedAt.Add(3 * time.Second),
		Repositories: repos,
	}
}

func baseTime() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func TestPutAndGet(t *testing.T, repo interfaces.ReportRepository) {
	ctx := context.Background()

	report := newReport(baseTime(),
		&model.RepoReport{Repository: "octo/hello", Created: 2, Updated: 1, Cards: 5},
		&model.RepoReport{Repository: "octo/world", Skipped: true, Error: "rate limited"},
	)
	report.RateLimited = true
	gt.NoError(t, repo.PutCycleReport(ctx, report))

	got, err := repo.GetCycleReport(ctx, report.ID)
	gt.NoError(t, err)
	gt.V(t, got.ID).Equal(report.ID)
	gt.True(t, got.StartedAt.Equal(report.StartedAt))
	gt.True(t, got.FinishedAt.Equal(report.FinishedAt))
	gt.True(t, got.RateLimited)
	gt.V(t, len(got.Repositories)).Equal(2)
	gt.V(t, *got.Repositories[0]).Equal(*report.Repositories[0])
	gt.V(t, *got.Repositories[1]).Equal(*report.Repositories[1])
	gt.V(t, got.CardCount()).Equal(5)

	// stored data is isolated from the caller's copy
	report.Repositories[0].Created = 100
	got, err = repo.GetCycleReport(ctx, report.ID)
	gt.NoError(t, err)
	gt.V(t, got.Repositories[0].Created).Equal(2)
}

func TestOverwrite(t *testing.T, repo interfaces.ReportRepository) {
	ctx := context.Background()

	report := newReport(baseTime(), &model.RepoReport{Repository: "octo/hello", Created: 1})
	gt.NoError(t, repo.PutCycleReport(ctx, report))

	report.Repositories[0].Updated = 4
	gt.NoError(t, repo.PutCycleReport(ctx, report))

	reports, err := repo.ListCycleReports(ctx, 10)
	gt.NoError(t, err)
	gt.V(t, len(reports)).Equal(1)
	gt.V(t, reports[0].Repositories[0].Updated).Equal(4)
}

func TestNotFound(t *testing.T, repo interfaces.ReportRepository) {
	ctx := context.Background()

	_, err := repo.GetCycleReport(ctx, types.NewCycleID())
	gt.True(t, errors.Is(err, repository.ErrNotFound))

	latest, err := repo.GetLatestCycleReport(ctx)
	gt.NoError(t, err)
	gt.V(t, latest).Equal(nil)
}

func TestLatestAndList(t *testing.T, repo interfaces.ReportRepository) {
	ctx := context.Background()
	now := baseTime()

	oldest := newReport(now.Add(-2 * time.Hour))
	newest := newReport(now)
	middle := newReport(now.Add(-1 * time.Hour))

	for _, r := range []*model.CycleReport{oldest, newest, middle} {
		gt.NoError(t, repo.PutCycleReport(ctx, r))
	}

	latest, err := repo.GetLatestCycleReport(ctx)
	gt.NoError(t, err)
	gt.V(t, latest.ID).Equal(newest.ID)

	reports, err := repo.ListCycleReports(ctx, 2)
	gt.NoError(t, err)
	gt.V(t, len(reports)).Equal(2)
	gt.V(t, reports[0].ID).Equal(newest.ID)
	gt.V(t, reports[1].ID).Equal(middle.ID)

	all, err := repo.ListCycleReports(ctx, 0)
	gt.NoError(t, err)
	gt.V(t, len(all)).Equal(3)
	gt.V(t, all[2].ID).Equal(oldest.ID)
}

func TestInvalidInput(t *testing.T, repo interfaces.ReportRepository) {
	ctx := context.Background()

	err := repo.PutCycleReport(ctx, &model.CycleReport{StartedAt: baseTime()})
	gt.True(t, errors.Is(err, repository.ErrInvalidInput))
}
