package memory

import (
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
)

// New creates a new in-memory report repository
func New() interfaces.ReportRepository {
	return &reportRepository{
		reports: make(map[string]*model.CycleReport),
	}
}
