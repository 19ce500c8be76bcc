package interfaces

import (
	"context"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
)

// ReportRepository keeps the history of sync cycles
type ReportRepository interface {
	PutCycleReport(ctx context.Context, report *model.CycleReport) error
	GetCycleReport(ctx context.Context, id types.CycleID) (*model.CycleReport, error)
	GetLatestCycleReport(ctx context.Context) (*model.CycleReport, error)
	ListCycleReports(ctx context.Context, limit int) ([]*model.CycleReport, error)
}
