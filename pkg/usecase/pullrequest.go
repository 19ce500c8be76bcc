package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/infra/github"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

type pullRequestLink struct {
	pr *model.PullRequest
	// unresolved is set when the issue links a pull request that could not be fetched.
	unresolved bool
}

type pullRequestIndex struct {
	open     []*model.PullRequest
	byNumber map[int]*model.PullRequest
}

// fetchOpenPullRequests lists open pull requests of the repository. A failure is returned so that the
// repository is skipped instead of demoting cards whose list depends on pull request state.
func (x *UseCase) fetchOpenPullRequests(ctx context.Context, repo model.RepositoryConfig) (*pullRequestIndex, error) {
	prs, err := x.clients.IssueSource().FetchPullRequests(ctx, repo.Owner, repo.Name, types.IssueStateOpen)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch pull requests", goerr.V("repo", repo.ID()))
	}

	idx := &pullRequestIndex{byNumber: make(map[int]*model.PullRequest)}
	for _, pr := range prs {
		if !isOpen(pr) {
			continue
		}
		idx.open = append(idx.open, pr)
		idx.byNumber[pr.Number] = pr
	}
	return idx, nil
}

// linkPullRequest finds the open pull request working on the issue, from references in pull requests
// or from a pull request URL in the issue body. When several match, the most recently updated wins.
// Only a rate limit is returned as an error; a direct link that cannot be fetched leaves it unresolved.
func (x *UseCase) linkPullRequest(ctx context.Context, repo model.RepositoryConfig, idx *pullRequestIndex, issue *model.Issue) (pullRequestLink, error) {
	if issue.Closed() {
		return pullRequestLink{}, nil
	}

	candidates := github.FindPRsForIssue(idx.open, issue.Number)

	if n := issue.LinkedPullNumber; n > 0 {
		if pr, ok := idx.byNumber[n]; ok {
			candidates = append(candidates, pr)
		} else {
			pr, err := x.clients.IssueSource().FetchPullRequest(ctx, repo.Owner, repo.Name, n)
			var rlErr *types.RateLimitError
			switch {
			case errors.As(err, &rlErr):
				return pullRequestLink{}, goerr.Wrap(err, "failed to fetch linked pull request",
					goerr.V("issue", issue.Number),
					goerr.V("pull", n),
				)
			case err != nil:
				logging.From(ctx).Warn("failed to fetch linked pull request",
					slog.String("repo", repo.ID()),
					slog.Int("issue", issue.Number),
					slog.Int("pull", n),
					slog.Any("error", err),
				)
				if len(candidates) == 0 {
					return pullRequestLink{unresolved: true}, nil
				}
			case isOpen(pr):
				candidates = append(candidates, pr)
			}
		}
	}

	var latest *model.PullRequest
	for _, pr := range candidates {
		if latest == nil || pr.UpdatedAt.After(latest.UpdatedAt) {
			latest = pr
		}
	}
	return pullRequestLink{pr: latest}, nil
}

func isOpen(pr *model.PullRequest) bool {
	return pr.State == "open" && !pr.Merged
}
