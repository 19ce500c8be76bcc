package usecase

import (
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/infra"
)

type UseCase struct {
	clients *infra.Clients
	config  interfaces.ConfigProvider
	cache   *boardCache

	// issueDelay overrides the configured pause between issues when set.
	issueDelay       *time.Duration
	provisionBackOff func() backoff.BackOff
}

var _ interfaces.UseCase = (*UseCase)(nil)

type Option func(*UseCase)

func WithConfigProvider(provider interfaces.ConfigProvider) Option {
	return func(x *UseCase) {
		x.config = provider
	}
}

func WithIssueDelay(d time.Duration) Option {
	return func(x *UseCase) {
		x.issueDelay = &d
	}
}

// WithProvisionBackOff replaces the wait policy between board listing attempts.
func WithProvisionBackOff(f func() backoff.BackOff) Option {
	return func(x *UseCase) {
		x.provisionBackOff = f
	}
}

func New(clients *infra.Clients, options ...Option) *UseCase {
	uc := &UseCase{
		clients:          clients,
		cache:            newBoardCache(),
		provisionBackOff: defaultProvisionBackOff,
	}

	for _, opt := range options {
		opt(uc)
	}

	return uc
}

// ResetCache drops every memoized board, list and label.
func (x *UseCase) ResetCache() {
	x.cache.reset("")
}

// HandleConfigChange is meant to be registered as a configuration change handler.
func (x *UseCase) HandleConfigChange(old, updated *model.SyncConfig) {
	x.ResetCache()
}

func (x *UseCase) delayBetweenIssues(cfg *model.SyncConfig) time.Duration {
	if x.issueDelay != nil {
		return *x.issueDelay
	}
	return cfg.IssueDelay()
}

// boardCache memoizes remote identifiers across cycles. It belongs to one UseCase and is only
// mutated by the active cycle; the mutex covers ResetCache called from a config watcher.
type boardCache struct {
	mu        sync.Mutex
	workspace types.WorkspaceID
	boards    map[string]types.BoardID
	lists     map[types.BoardID]map[string]types.ListID
	labels    map[types.BoardID]map[string]*model.Label
}

func newBoardCache() *boardCache {
	c := &boardCache{}
	c.reset("")
	return c
}

func (c *boardCache) reset(workspace types.WorkspaceID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.workspace = workspace
	c.boards = make(map[string]types.BoardID)
	c.lists = make(map[types.BoardID]map[string]types.ListID)
	c.labels = make(map[types.BoardID]map[string]*model.Label)
}

// useWorkspace invalidates everything when the target workspace changes.
func (c *boardCache) useWorkspace(workspace types.WorkspaceID) {
	c.mu.Lock()
	same := c.workspace == workspace
	c.mu.Unlock()

	if !same {
		c.reset(workspace)
	}
}

func (c *boardCache) board(repoID string) (types.BoardID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.boards[repoID]
	return id, ok
}

func (c *boardCache) setBoard(repoID string, id types.BoardID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boards[repoID] = id
}

func (c *boardCache) listMap(boardID types.BoardID) (map[string]types.ListID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lists, ok := c.lists[boardID]
	return lists, ok
}

func (c *boardCache) setListMap(boardID types.BoardID, lists map[string]types.ListID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[boardID] = lists
}

func (c *boardCache) labelMap(boardID types.BoardID) (map[string]*model.Label, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	labels, ok := c.labels[boardID]
	return labels, ok
}

func (c *boardCache) setLabels(boardID types.BoardID, labels []*model.Label) map[string]*model.Label {
	m := make(map[string]*model.Label, len(labels))
	for _, l := range labels {
		m[labelKey(l.Name)] = l
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.labels[boardID] = m
	return m
}

func (c *boardCache) putLabel(boardID types.BoardID, label *model.Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.labels[boardID]; !ok {
		c.labels[boardID] = make(map[string]*model.Label)
	}
	c.labels[boardID][labelKey(label.Name)] = label
}

// dropLabels forgets the labels of one board so that the next lookup fetches them again.
func (c *boardCache) dropLabels(boardID types.BoardID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.labels, boardID)
}

func labelKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
