package infra

import (
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/infra/lock"
	"github.com/m-mizutani/cardsync/pkg/repository/memory"
)

// Clients bundles the external collaborators of the sync engine.
type Clients struct {
	board       interfaces.BoardAPI
	issueSource interfaces.IssueSource
	cycleLock   interfaces.CycleLock
	reportRepo  interfaces.ReportRepository
	bqClient    interfaces.BigQuery
}

type Option func(*Clients)

// New builds Clients. The cycle lock and the report repository default to in-process implementations.
func New(options ...Option) *Clients {
	client := &Clients{
		cycleLock:  lock.NewMemory(),
		reportRepo: memory.New(),
	}

	for _, opt := range options {
		opt(client)
	}

	return client
}

func (x *Clients) Board() interfaces.BoardAPI {
	return x.board
}
func (x *Clients) IssueSource() interfaces.IssueSource {
	return x.issueSource
}
func (x *Clients) CycleLock() interfaces.CycleLock {
	return x.cycleLock
}
func (x *Clients) ReportRepository() interfaces.ReportRepository {
	return x.reportRepo
}
func (x *Clients) BigQuery() interfaces.BigQuery {
	return x.bqClient
}

func WithBoard(client interfaces.BoardAPI) Option {
	return func(x *Clients) {
		x.board = client
	}
}

func WithIssueSource(client interfaces.IssueSource) Option {
	return func(x *Clients) {
		x.issueSource = client
	}
}

func WithCycleLock(l interfaces.CycleLock) Option {
	return func(x *Clients) {
		x.cycleLock = l
	}
}

func WithReportRepository(repo interfaces.ReportRepository) Option {
	return func(x *Clients) {
		x.reportRepo = repo
	}
}

func WithBigQuery(client interfaces.BigQuery) Option {
	return func(x *Clients) {
		x.bqClient = client
	}
}
