package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
)

// maxReports bounds the history kept in memory; the oldest reports are dropped first.
const maxReports = 100

type reportRepository struct {
	mu      sync.RWMutex
	reports map[string]*model.CycleReport
	order   []string
}

func (r *reportRepository) PutCycleReport(ctx context.Context, report *model.CycleReport) error {
	if report == nil || report.ID == "" {
		return goerr.Wrap(repository.ErrInvalidInput, "cycle report has no ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := report.ID.String()
	if _, exists := r.reports[id]; !exists {
		r.order = append(r.order, id)
	}
	r.reports[id] = copyReport(report)

	sort.SliceStable(r.order, func(i, j int) bool {
		return r.reports[r.order[i]].StartedAt.Before(r.reports[r.order[j]].StartedAt)
	})
	for len(r.order) > maxReports {
		delete(r.reports, r.order[0])
		r.order = r.order[1:]
	}

	return nil
}

func (r *reportRepository) GetCycleReport(ctx context.Context, id types.CycleID) (*model.CycleReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, ok := r.reports[id.String()]
	if !ok {
		return nil, goerr.Wrap(repository.ErrNotFound, "cycle report not found", goerr.V("id", id))
	}
	return copyReport(report), nil
}

func (r *reportRepository) GetLatestCycleReport(ctx context.Context) (*model.CycleReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return nil, nil
	}
	return copyReport(r.reports[r.order[len(r.order)-1]]), nil
}

func (r *reportRepository) ListCycleReports(ctx context.Context, limit int) ([]*model.CycleReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var reports []*model.CycleReport
	for i := len(r.order) - 1; i >= 0; i-- {
		if limit > 0 && len(reports) >= limit {
			break
		}
		reports = append(reports, copyReport(r.reports[r.order[i]]))
	}
	return reports, nil
}

func copyReport(src *model.CycleReport) *model.CycleReport {
	dst := *src
	dst.Repositories = make([]*model.RepoReport, len(src.Repositories))
	for i, repo := range src.Repositories {
		c := *repo
		dst.Repositories[i] = &c
	}
	return &dst
}
