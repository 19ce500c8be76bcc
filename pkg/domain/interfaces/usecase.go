package interfaces

import (
	"context"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
)

type UseCase interface {
	RunOneCycle(ctx context.Context, filter *model.RepoFilter) (*model.CycleReport, error)
	PrepareCycle(ctx context.Context, filter *model.RepoFilter) (CycleFunc, error)
	LatestReport(ctx context.Context) (*model.CycleReport, error)
	CardCount(ctx context.Context) (int, error)
}

// CycleFunc runs a prepared sync cycle.
type CycleFunc func(ctx context.Context) (*model.CycleReport, error)

// ConfigProvider serves the current sync configuration. Current returns nil when no valid
// configuration has been loaded.
type ConfigProvider interface {
	Current() *model.SyncConfig
	Status() ConfigStatus
}

type ConfigStatus struct {
	Valid bool
	Error string
}
