package usecase_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/infra"
	"github.com/m-mizutani/cardsync/pkg/usecase"
	"github.com/m-mizutani/goerr/v2"
)

// fakeBoard is an in-memory board service. Hooks run with the lock released and may call back into
// the fake to simulate concurrent writers.
type fakeBoard struct {
	mu        sync.Mutex
	seq       int
	boards    []*model.Board
	workspace map[types.BoardID]types.WorkspaceID
	lists     map[types.BoardID][]*model.List
	labels    map[types.BoardID][]*model.Label
	cards     map[types.BoardID][]*model.Card
	writes    []string

	listBoardsCalls int
	listCardsCalls  int

	listBoardsErr  func(call int) error
	createBoardErr func(name string) error
	createLabelErr func(boardID types.BoardID, name string) error
	updateCardErr  func(id types.CardID) error
	deleteCardErr  func(id types.CardID) error
}

var _ interfaces.BoardAPI = (*fakeBoard)(nil)

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		workspace: make(map[types.BoardID]types.WorkspaceID),
		lists:     make(map[types.BoardID][]*model.List),
		labels:    make(map[types.BoardID][]*model.Label),
		cards:     make(map[types.BoardID][]*model.Card),
	}
}

func (x *fakeBoard) nextID(prefix string) string {
	x.seq++
	return fmt.Sprintf("%s%d", prefix, x.seq)
}

func (x *fakeBoard) record(op string) {
	x.writes = append(x.writes, op)
}

func (x *fakeBoard) Writes() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string{}, x.writes...)
}

func (x *fakeBoard) CountWrites(op string) int {
	var n int
	for _, w := range x.Writes() {
		if w == op {
			n++
		}
	}
	return n
}

// AddBoard seeds a board without recording a write.
func (x *fakeBoard) AddBoard(workspace types.WorkspaceID, name string) types.BoardID {
	x.mu.Lock()
	defer x.mu.Unlock()
	id := types.BoardID(x.nextID("b"))
	x.boards = append(x.boards, &model.Board{ID: id, Name: name})
	x.workspace[id] = workspace
	return id
}

func (x *fakeBoard) AddList(boardID types.BoardID, name string) types.ListID {
	x.mu.Lock()
	defer x.mu.Unlock()
	id := types.ListID(x.nextID("l"))
	x.lists[boardID] = append(x.lists[boardID], &model.List{ID: id, BoardID: boardID, Name: name})
	return id
}

func (x *fakeBoard) AddLabel(boardID types.BoardID, name, color string) types.LabelID {
	x.mu.Lock()
	defer x.mu.Unlock()
	id := types.LabelID(x.nextID("lb"))
	x.labels[boardID] = append(x.labels[boardID], &model.Label{ID: id, BoardID: boardID, Name: name, Color: color})
	return id
}

func (x *fakeBoard) AddCard(card model.Card) types.CardID {
	x.mu.Lock()
	defer x.mu.Unlock()
	if card.ID == "" {
		card.ID = types.CardID(x.nextID("c"))
	}
	x.cards[card.BoardID] = append(x.cards[card.BoardID], &card)
	return card.ID
}

func (x *fakeBoard) RemoveCard(id types.CardID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeCard(id)
}

func (x *fakeBoard) removeCard(id types.CardID) bool {
	for boardID, cards := range x.cards {
		for i, c := range cards {
			if c.ID == id {
				x.cards[boardID] = append(cards[:i:i], cards[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (x *fakeBoard) BoardByName(name string) *model.Board {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, b := range x.boards {
		if b.Name == name {
			return b
		}
	}
	return nil
}

func (x *fakeBoard) BoardsIn(workspace types.WorkspaceID) []*model.Board {
	x.mu.Lock()
	defer x.mu.Unlock()
	var boards []*model.Board
	for _, b := range x.boards {
		if x.workspace[b.ID] == workspace {
			boards = append(boards, b)
		}
	}
	return boards
}

func (x *fakeBoard) Cards(boardID types.BoardID) []*model.Card {
	x.mu.Lock()
	defer x.mu.Unlock()
	var cards []*model.Card
	for _, c := range x.cards[boardID] {
		copied := *c
		cards = append(cards, &copied)
	}
	return cards
}

// CardOf returns the single card titled for the issue and fails the test when there is not exactly one.
func (x *fakeBoard) CardOf(t *testing.T, boardID types.BoardID, number int) *model.Card {
	t.Helper()
	var found []*model.Card
	for _, c := range x.Cards(boardID) {
		if strings.HasPrefix(c.Title, fmt.Sprintf("#%d:", number)) {
			found = append(found, c)
		}
	}
	if len(found) != 1 {
		t.Fatalf("expected exactly one card for #%d, got %d", number, len(found))
	}
	return found[0]
}

func (x *fakeBoard) ListName(boardID types.BoardID, id types.ListID) string {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, l := range x.lists[boardID] {
		if l.ID == id {
			return l.Name
		}
	}
	return ""
}

func (x *fakeBoard) ListNames(boardID types.BoardID) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	var names []string
	for _, l := range x.lists[boardID] {
		names = append(names, l.Name)
	}
	return names
}

func (x *fakeBoard) LabelNames(boardID types.BoardID, ids []types.LabelID) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	var names []string
	for _, id := range ids {
		for _, l := range x.labels[boardID] {
			if l.ID == id {
				names = append(names, l.Name)
			}
		}
	}
	return names
}

func (x *fakeBoard) Label(boardID types.BoardID, name string) *model.Label {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, l := range x.labels[boardID] {
		if strings.EqualFold(l.Name, name) {
			copied := *l
			return &copied
		}
	}
	return nil
}

func (x *fakeBoard) ListBoards(ctx context.Context, workspace types.WorkspaceID) ([]*model.Board, error) {
	x.mu.Lock()
	x.listBoardsCalls++
	call := x.listBoardsCalls
	hook := x.listBoardsErr
	x.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return nil, err
		}
	}
	return x.BoardsIn(workspace), nil
}

func (x *fakeBoard) CreateBoard(ctx context.Context, input *model.CreateBoardInput) (*model.Board, error) {
	if x.createBoardErr != nil {
		if err := x.createBoardErr(input.Name); err != nil {
			return nil, err
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("CreateBoard")

	id := types.BoardID(x.nextID("b"))
	board := &model.Board{ID: id, Name: input.Name, Slug: input.Slug}
	x.boards = append(x.boards, board)
	x.workspace[id] = input.Workspace
	for i, name := range input.Lists {
		x.lists[id] = append(x.lists[id], &model.List{
			ID:       types.ListID(x.nextID("l")),
			BoardID:  id,
			Name:     name,
			Position: i + 1,
		})
	}
	return board, nil
}

func (x *fakeBoard) ListLists(ctx context.Context, boardID types.BoardID) ([]*model.List, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]*model.List{}, x.lists[boardID]...), nil
}

func (x *fakeBoard) CreateList(ctx context.Context, boardID types.BoardID, name string, position int) (*model.List, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("CreateList")

	list := &model.List{ID: types.ListID(x.nextID("l")), BoardID: boardID, Name: name, Position: position}
	x.lists[boardID] = append(x.lists[boardID], list)
	return list, nil
}

func (x *fakeBoard) ListLabels(ctx context.Context, boardID types.BoardID) ([]*model.Label, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var labels []*model.Label
	for _, l := range x.labels[boardID] {
		copied := *l
		labels = append(labels, &copied)
	}
	return labels, nil
}

func (x *fakeBoard) CreateLabel(ctx context.Context, boardID types.BoardID, name, color string) (*model.Label, error) {
	if x.createLabelErr != nil {
		if err := x.createLabelErr(boardID, name); err != nil {
			return nil, err
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("CreateLabel")

	label := &model.Label{ID: types.LabelID(x.nextID("lb")), BoardID: boardID, Name: name, Color: color}
	x.labels[boardID] = append(x.labels[boardID], label)
	copied := *label
	return &copied, nil
}

func (x *fakeBoard) UpdateLabel(ctx context.Context, labelID types.LabelID, name, color string) (*model.Label, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("UpdateLabel")

	for _, labels := range x.labels {
		for _, l := range labels {
			if l.ID == labelID {
				l.Name = name
				l.Color = color
				copied := *l
				return &copied, nil
			}
		}
	}
	return nil, goerr.Wrap(types.ErrNotFound, "label not found")
}

func (x *fakeBoard) DeleteLabel(ctx context.Context, labelID types.LabelID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("DeleteLabel")

	for boardID, labels := range x.labels {
		for i, l := range labels {
			if l.ID == labelID {
				x.labels[boardID] = append(labels[:i:i], labels[i+1:]...)
				return nil
			}
		}
	}
	return goerr.Wrap(types.ErrNotFound, "label not found")
}

func (x *fakeBoard) ListCards(ctx context.Context, boardID types.BoardID) ([]*model.Card, error) {
	x.mu.Lock()
	x.listCardsCalls++
	x.mu.Unlock()
	return x.Cards(boardID), nil
}

func (x *fakeBoard) CreateCard(ctx context.Context, input *model.CardInput) (*model.Card, error) {
	if len(input.LabelIDs) == 0 || input.MemberIDs == nil || len(input.MemberIDs) != 0 {
		return nil, goerr.Wrap(types.ErrClientError, "card creation requires labels and an empty member list")
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.checkLabels(input); err != nil {
		return nil, err
	}
	x.record("CreateCard")

	card := &model.Card{
		ID:          types.CardID(x.nextID("c")),
		BoardID:     input.BoardID,
		ListID:      input.ListID,
		Title:       input.Title,
		Description: input.Description,
		LabelIDs:    input.LabelIDs,
		MemberIDs:   input.MemberIDs,
	}
	x.cards[input.BoardID] = append(x.cards[input.BoardID], card)
	copied := *card
	return &copied, nil
}

func (x *fakeBoard) UpdateCard(ctx context.Context, cardID types.CardID, input *model.CardInput) (*model.Card, error) {
	if x.updateCardErr != nil {
		if err := x.updateCardErr(cardID); err != nil {
			return nil, err
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.checkLabels(input); err != nil {
		return nil, err
	}
	x.record("UpdateCard")

	for _, c := range x.cards[input.BoardID] {
		if c.ID == cardID {
			c.ListID = input.ListID
			c.Title = input.Title
			c.Description = input.Description
			c.LabelIDs = input.LabelIDs
			copied := *c
			return &copied, nil
		}
	}
	return nil, goerr.Wrap(types.ErrNotFound, "card not found", goerr.V("card_id", cardID))
}

// checkLabels rejects label IDs unknown to the board. The caller holds x.mu.
func (x *fakeBoard) checkLabels(input *model.CardInput) error {
	for _, id := range input.LabelIDs {
		var found bool
		for _, l := range x.labels[input.BoardID] {
			if l.ID == id {
				found = true
				break
			}
		}
		if !found {
			return goerr.Wrap(types.ErrClientError, "unknown label", goerr.V("label_id", id))
		}
	}
	return nil
}

func (x *fakeBoard) DeleteCard(ctx context.Context, cardID types.CardID) error {
	if x.deleteCardErr != nil {
		if err := x.deleteCardErr(cardID); err != nil {
			return err
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.record("DeleteCard")

	if !x.removeCard(cardID) {
		return goerr.Wrap(types.ErrNotFound, "card not found", goerr.V("card_id", cardID))
	}
	return nil
}

type fakeIssueSource struct {
	mu       sync.Mutex
	issues   map[string][]*model.Issue
	prs      map[string][]*model.PullRequest
	comments map[int][]*model.Comment

	issuesErr   func(repo string) error
	prsErr      error
	prErr       func(number int) error
	commentsErr error

	fetchIssuesCalls map[string]int
	fetchPRCalls     int
}

var _ interfaces.IssueSource = (*fakeIssueSource)(nil)

func newFakeIssueSource() *fakeIssueSource {
	return &fakeIssueSource{
		issues:           make(map[string][]*model.Issue),
		prs:              make(map[string][]*model.PullRequest),
		comments:         make(map[int][]*model.Comment),
		fetchIssuesCalls: make(map[string]int),
	}
}

func (x *fakeIssueSource) FetchIssues(ctx context.Context, owner, repo string, state types.IssueState) ([]*model.Issue, error) {
	key := owner + "/" + repo
	x.mu.Lock()
	x.fetchIssuesCalls[key]++
	x.mu.Unlock()

	if x.issuesErr != nil {
		if err := x.issuesErr(key); err != nil {
			return nil, err
		}
	}

	var issues []*model.Issue
	for _, issue := range x.issues[key] {
		if state == types.IssueStateAll || issue.State == state {
			copied := *issue
			issues = append(issues, &copied)
		}
	}
	return issues, nil
}

func (x *fakeIssueSource) FetchComments(ctx context.Context, owner, repo string, number int) ([]*model.Comment, error) {
	if x.commentsErr != nil {
		return nil, x.commentsErr
	}
	return x.comments[number], nil
}

func (x *fakeIssueSource) FetchPullRequests(ctx context.Context, owner, repo string, state types.IssueState) ([]*model.PullRequest, error) {
	if x.prsErr != nil {
		return nil, x.prsErr
	}

	var prs []*model.PullRequest
	for _, pr := range x.prs[owner+"/"+repo] {
		if state == types.IssueStateAll || pr.State == string(state) {
			prs = append(prs, pr)
		}
	}
	return prs, nil
}

func (x *fakeIssueSource) FetchPullRequest(ctx context.Context, owner, repo string, number int) (*model.PullRequest, error) {
	x.mu.Lock()
	x.fetchPRCalls++
	x.mu.Unlock()

	if x.prErr != nil {
		if err := x.prErr(number); err != nil {
			return nil, err
		}
	}

	for _, pr := range x.prs[owner+"/"+repo] {
		if pr.Number == number {
			return pr, nil
		}
	}
	return nil, goerr.Wrap(types.ErrNotFound, "pull request not found", goerr.V("number", number))
}

type fakeBigQuery struct {
	metadata  *bigquery.TableMetadata
	created   *bigquery.TableMetadata
	updated   *bigquery.TableMetadataToUpdate
	inserted  []any
	insertErr error
}

var _ interfaces.BigQuery = (*fakeBigQuery)(nil)

func (x *fakeBigQuery) CreateTable(ctx context.Context, md *bigquery.TableMetadata) error {
	x.created = md
	x.metadata = md
	return nil
}

func (x *fakeBigQuery) GetMetadata(ctx context.Context) (*bigquery.TableMetadata, error) {
	return x.metadata, nil
}

func (x *fakeBigQuery) UpdateTable(ctx context.Context, md bigquery.TableMetadataToUpdate, eTag string) error {
	x.updated = &md
	return nil
}

func (x *fakeBigQuery) Insert(ctx context.Context, schema bigquery.Schema, rows []any) error {
	if x.insertErr != nil {
		return x.insertErr
	}
	x.inserted = append(x.inserted, rows...)
	return nil
}

type staticConfig struct {
	cfg *model.SyncConfig
}

func (x *staticConfig) Current() *model.SyncConfig {
	return x.cfg
}

func (x *staticConfig) Status() interfaces.ConfigStatus {
	if x.cfg == nil {
		return interfaces.ConfigStatus{Valid: false, Error: "not loaded"}
	}
	return interfaces.ConfigStatus{Valid: true}
}

func testConfig(repos ...string) *model.SyncConfig {
	cfg := model.DefaultSyncConfig()
	cfg.Workspace = "ws-1"
	for _, r := range repos {
		owner, name, _ := strings.Cut(r, "/")
		cfg.Repositories = append(cfg.Repositories, model.RepositoryConfig{Owner: owner, Name: name})
	}
	return cfg
}

func newTestUseCase(board *fakeBoard, src *fakeIssueSource, cfg *model.SyncConfig, clientOpts ...infra.Option) *usecase.UseCase {
	opts := append([]infra.Option{
		infra.WithBoard(board),
		infra.WithIssueSource(src),
	}, clientOpts...)

	return usecase.New(infra.New(opts...),
		usecase.WithConfigProvider(&staticConfig{cfg: cfg}),
		usecase.WithIssueDelay(0),
		usecase.WithProvisionBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
}
