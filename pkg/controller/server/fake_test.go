package server_test

import (
	"context"
	"sync"

	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
)

type fakeUseCase struct {
	mu       sync.Mutex
	latest   *model.CycleReport
	latestFn func() (*model.CycleReport, error)
	cards    int
	prepare  func(filter *model.RepoFilter) error
	filters  []*model.RepoFilter
	ran      chan context.Context
}

var _ interfaces.UseCase = (*fakeUseCase)(nil)

func newFakeUseCase() *fakeUseCase {
	return &fakeUseCase{ran: make(chan context.Context, 10)}
}

func (x *fakeUseCase) RunOneCycle(ctx context.Context, filter *model.RepoFilter) (*model.CycleReport, error) {
	run, err := x.PrepareCycle(ctx, filter)
	if err != nil {
		return nil, err
	}
	return run(ctx)
}

func (x *fakeUseCase) PrepareCycle(ctx context.Context, filter *model.RepoFilter) (interfaces.CycleFunc, error) {
	x.mu.Lock()
	x.filters = append(x.filters, filter)
	x.mu.Unlock()

	if x.prepare != nil {
		if err := x.prepare(filter); err != nil {
			return nil, err
		}
	}

	return func(ctx context.Context) (*model.CycleReport, error) {
		x.ran <- ctx
		return &model.CycleReport{ID: "cycle-1"}, nil
	}, nil
}

func (x *fakeUseCase) LatestReport(ctx context.Context) (*model.CycleReport, error) {
	if x.latestFn != nil {
		return x.latestFn()
	}
	return x.latest, nil
}

func (x *fakeUseCase) CardCount(ctx context.Context) (int, error) {
	return x.cards, nil
}

type staticProvider struct {
	status interfaces.ConfigStatus
}

func (x *staticProvider) Current() *model.SyncConfig {
	return nil
}

func (x *staticProvider) Status() interfaces.ConfigStatus {
	return x.status
}
