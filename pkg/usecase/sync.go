package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/errutil"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// RunOneCycle provisions the board of every selected repository and then reconciles their issues
// onto cards. Failures of single issues or repositories are recorded in the report and do not fail
// the cycle. ErrCycleInProgress is returned when another cycle holds the lock.
func (x *UseCase) RunOneCycle(ctx context.Context, filter *model.RepoFilter) (*model.CycleReport, error) {
	run, err := x.PrepareCycle(ctx, filter)
	if err != nil {
		return nil, err
	}
	return run(ctx)
}

// PrepareCycle checks the configuration and takes the cycle lock. The returned function runs the
// cycle and releases the lock; it must be called exactly once.
func (x *UseCase) PrepareCycle(ctx context.Context, filter *model.RepoFilter) (interfaces.CycleFunc, error) {
	if x.config == nil {
		return nil, goerr.Wrap(types.ErrInvalidConfig, "no configuration provider")
	}
	cfg := x.config.Current()
	if cfg == nil {
		return nil, goerr.Wrap(types.ErrInvalidConfig, "no valid configuration loaded",
			goerr.V("status", x.config.Status().Error))
	}

	var repos []model.RepositoryConfig
	for _, repo := range cfg.Repositories {
		if filter.Match(repo) {
			repos = append(repos, repo)
		}
	}
	if len(repos) == 0 {
		return nil, goerr.Wrap(types.ErrInvalidOption, "no configured repository matches",
			goerr.V("filter", filter))
	}

	release, acquired, err := x.clients.CycleLock().TryAcquire(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to acquire cycle lock")
	}
	if !acquired {
		return nil, goerr.Wrap(types.ErrCycleInProgress, "another sync cycle is running")
	}

	return func(ctx context.Context) (*model.CycleReport, error) {
		defer release()
		return x.runCycle(ctx, cfg, repos), nil
	}, nil
}

func (x *UseCase) runCycle(ctx context.Context, cfg *model.SyncConfig, repos []model.RepositoryConfig) *model.CycleReport {
	x.cache.useWorkspace(cfg.Workspace)

	started := time.Now()
	report := &model.CycleReport{
		ID:        types.NewCycleID(),
		StartedAt: logging.CtxTime(ctx),
	}
	ctx = logging.With(ctx, logging.From(ctx).With(slog.Any("cycle_id", report.ID)))
	logging.From(ctx).Info("sync cycle started", slog.Int("repositories", len(repos)))

	boards := x.provisionBoards(logging.WithComponent(ctx, "provisioner"), cfg, repos, report)
	x.reconcileBoards(logging.WithComponent(ctx, "reconciler"), cfg, boards, report)

	report.FinishedAt = report.StartedAt.Add(time.Since(started))
	logging.From(ctx).Info("sync cycle finished",
		slog.Int("cards", report.CardCount()),
		slog.Int("errors", report.Errors()),
		slog.Bool("rate_limited", report.RateLimited),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	if err := x.clients.ReportRepository().PutCycleReport(ctx, report); err != nil {
		errutil.HandleError(ctx, "failed to save cycle report", err)
	}
	if err := x.exportReport(ctx, report); err != nil {
		errutil.HandleError(ctx, "failed to export cycle report", err)
	}

	return report
}

// LatestReport returns the report of the most recent cycle, or nil when none has run.
func (x *UseCase) LatestReport(ctx context.Context) (*model.CycleReport, error) {
	report, err := x.clients.ReportRepository().GetLatestCycleReport(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get latest cycle report")
	}
	return report, nil
}

// cardCountHistory bounds how many past cycles CardCount looks through.
const cardCountHistory = 50

// CardCount sums the live cards of every configured repository, each taken from the most recent
// cycle that reconciled it. A cycle filtered to one repository only refreshes that repository.
func (x *UseCase) CardCount(ctx context.Context) (int, error) {
	reports, err := x.clients.ReportRepository().ListCycleReports(ctx, cardCountHistory)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list cycle reports")
	}

	var configured map[string]bool
	if x.config != nil {
		if cfg := x.config.Current(); cfg != nil {
			configured = make(map[string]bool, len(cfg.Repositories))
			for _, repo := range cfg.Repositories {
				configured[repo.ID()] = true
			}
		}
	}

	seen := make(map[string]bool)
	var total int
	for _, report := range reports {
		for _, rr := range report.Repositories {
			if rr.Skipped || seen[rr.Repository] {
				continue
			}
			if configured != nil && !configured[rr.Repository] {
				continue
			}
			seen[rr.Repository] = true
			total += rr.Cards
		}
	}
	return total, nil
}

// provisionBoards makes sure every repository has its board and lists. A repository that cannot be
// provisioned is marked skipped and left out of reconciliation.
func (x *UseCase) provisionBoards(ctx context.Context, cfg *model.SyncConfig, repos []model.RepositoryConfig, report *model.CycleReport) []*boardState {
	var boards []*boardState

	for _, repo := range repos {
		rr := &model.RepoReport{Repository: repo.ID()}
		report.Repositories = append(report.Repositories, rr)

		boardID, err := x.EnsureBoard(ctx, cfg, repo)
		if err == nil {
			var lists map[string]types.ListID
			if lists, err = x.EnsureLists(ctx, cfg, boardID); err == nil {
				boards = append(boards, &boardState{
					repo:    repo,
					boardID: boardID,
					lists:   lists,
				})
				continue
			}
		}

		rr.Skipped = true
		rr.Error = err.Error()
		logging.From(ctx).Error("failed to provision board, skipping repository",
			slog.String("repo", repo.ID()),
			slog.Any("error", err),
		)
	}

	return boards
}

// reconcileBoards runs phase two. A rate limit from the issue source ends it for every remaining board.
func (x *UseCase) reconcileBoards(ctx context.Context, cfg *model.SyncConfig, boards []*boardState, report *model.CycleReport) {
	reports := make(map[string]*model.RepoReport, len(report.Repositories))
	for _, rr := range report.Repositories {
		reports[rr.Repository] = rr
	}

	for i, state := range boards {
		rr := reports[state.repo.ID()]
		repo := state.repo

		err := x.syncRepository(ctx, cfg, state, rr)
		if err == nil {
			continue
		}

		rr.Skipped = true
		rr.Error = err.Error()

		rlErr, ok := issueSourceRateLimit(err)
		if !ok {
			logging.From(ctx).Error("failed to reconcile repository, skipping",
				slog.String("repo", repo.ID()),
				slog.Any("error", err),
			)
			continue
		}

		report.RateLimited = true
		report.RateLimitResetAt = rlErr.ResetAt
		for _, rest := range boards[i+1:] {
			skipped := reports[rest.repo.ID()]
			skipped.Skipped = true
			skipped.Error = "skipped: issue source rate limited"
		}

		logging.From(ctx).Warn("issue source rate limited, ending cycle early",
			slog.String("repo", repo.ID()),
			slog.Time("reset_at", rlErr.ResetAt),
			slog.Int("skipped", len(boards)-i-1),
		)
		return
	}
}

// syncRepository reads everything the issue source knows about one repository before the board is
// touched, then reconciles it.
func (x *UseCase) syncRepository(ctx context.Context, cfg *model.SyncConfig, state *boardState, rr *model.RepoReport) error {
	repo := state.repo

	issues, err := x.clients.IssueSource().FetchIssues(ctx, repo.Owner, repo.Name, types.IssueStateAll)
	if err != nil {
		return goerr.Wrap(err, "failed to fetch issues", goerr.V("repo", repo.ID()))
	}

	prs, err := x.fetchOpenPullRequests(ctx, repo)
	if err != nil {
		return err
	}

	return x.reconcileRepository(ctx, cfg, state, issues, prs, rr)
}

// reconcileRepository sweeps the issues of one repository. A failure to read the board's cards or a
// rate limit from the issue source is returned; other per-issue failures are counted in rr.
func (x *UseCase) reconcileRepository(ctx context.Context, cfg *model.SyncConfig, state *boardState, issues []*model.Issue, prs *pullRequestIndex, rr *model.RepoReport) error {
	repo := state.repo

	cards, err := x.clients.Board().ListCards(ctx, state.boardID)
	if err != nil {
		return goerr.Wrap(err, "failed to fetch cards",
			goerr.V("repo", repo.ID()),
			goerr.V("board_id", state.boardID),
		)
	}

	state.cards, rr.DuplicatesRemoved = x.dedupeCards(ctx, cards)
	rr.Cards = len(cards) - rr.DuplicatesRemoved

	delay := x.delayBetweenIssues(cfg)

	logging.From(ctx).Info("reconciling repository",
		slog.String("repo", repo.ID()),
		slog.Int("issues", len(issues)),
		slog.Int("cards", rr.Cards),
	)

	for i, issue := range issues {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return goerr.Wrap(ctx.Err(), "sync cycle interrupted", goerr.V("repo", repo.ID()))
			case <-time.After(delay):
			}
		}

		link, err := x.linkPullRequest(ctx, repo, prs, issue)
		if err != nil {
			return err
		}

		outcome, err := x.reconcileIssue(ctx, cfg, state, issue, link)
		if err != nil {
			if _, ok := issueSourceRateLimit(err); ok {
				return goerr.Wrap(err, "issue source rate limited", goerr.V("issue", issue.Number))
			}

			rr.Errors++
			logging.From(ctx).Error("failed to reconcile issue",
				slog.String("repo", repo.ID()),
				slog.Int("issue", issue.Number),
				slog.Any("error", err),
			)
			continue
		}
		rr.Count(outcome)
	}

	logging.From(ctx).Info("repository reconciled",
		slog.String("repo", repo.ID()),
		slog.Int("created", rr.Created),
		slog.Int("updated", rr.Updated),
		slog.Int("unchanged", rr.Unchanged),
		slog.Int("errors", rr.Errors),
	)
	return nil
}

// issueSourceRateLimit picks out a rate limit of the issue source. A board rate limit only fails the
// write that hit it.
func issueSourceRateLimit(err error) (*types.RateLimitError, bool) {
	var rlErr *types.RateLimitError
	if errors.As(err, &rlErr) && rlErr.Service != types.ServiceBoard {
		return rlErr, true
	}
	return nil, false
}
