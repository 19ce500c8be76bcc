package github

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v53/github"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"
)

const (
	PerPage     = 100
	serviceName = types.ServiceGitHub
)

type Client struct {
	client *gh.Client
	now    func() time.Time
}

var _ interfaces.IssueSource = (*Client)(nil)

type config struct {
	token     types.GitHubToken
	appID     types.GitHubAppID
	installID types.GitHubAppInstallID
	pem       types.GitHubAppPrivateKey
	baseURL   string
	transport http.RoundTripper
	now       func() time.Time
}

type Option func(*config)

// WithToken authenticates requests with a personal access token.
func WithToken(token types.GitHubToken) Option {
	return func(x *config) {
		x.token = token
	}
}

// WithApp authenticates requests as a GitHub App installation.
func WithApp(appID types.GitHubAppID, installID types.GitHubAppInstallID, pem types.GitHubAppPrivateKey) Option {
	return func(x *config) {
		x.appID = appID
		x.installID = installID
		x.pem = pem
	}
}

func WithBaseURL(baseURL string) Option {
	return func(x *config) {
		x.baseURL = baseURL
	}
}

func WithTransport(tr http.RoundTripper) Option {
	return func(x *config) {
		x.transport = tr
	}
}

func WithClock(now func() time.Time) Option {
	return func(x *config) {
		x.now = now
	}
}

// New builds an issue source. Without WithToken or WithApp it runs unauthenticated with the lower quota.
func New(options ...Option) (*Client, error) {
	cfg := &config{
		transport: http.DefaultTransport,
		now:       time.Now,
	}
	for _, opt := range options {
		opt(cfg)
	}

	httpClient, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	client := gh.NewClient(httpClient)
	if cfg.baseURL != "" {
		u, err := url.Parse(strings.TrimRight(cfg.baseURL, "/") + "/")
		if err != nil {
			return nil, goerr.Wrap(types.ErrInvalidOption, "invalid GitHub API URL", goerr.V("url", cfg.baseURL))
		}
		client.BaseURL = u
	}

	return &Client{
		client: client,
		now:    cfg.now,
	}, nil
}

func buildHTTPClient(cfg *config) (*http.Client, error) {
	useApp := cfg.appID != 0 || cfg.installID != 0 || cfg.pem != ""

	switch {
	case useApp && cfg.token != "":
		return nil, goerr.Wrap(types.ErrInvalidOption, "GitHub token and GitHub App are exclusive")

	case useApp:
		if cfg.appID == 0 {
			return nil, goerr.Wrap(types.ErrInvalidOption, "GitHub App ID is empty")
		}
		if cfg.installID == 0 {
			return nil, goerr.Wrap(types.ErrInvalidOption, "GitHub App installation ID is empty")
		}
		if cfg.pem == "" {
			return nil, goerr.Wrap(types.ErrInvalidOption, "GitHub App private key is empty")
		}

		itr, err := ghinstallation.New(cfg.transport, int64(cfg.appID), int64(cfg.installID), []byte(cfg.pem))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create GitHub App transport", goerr.V("app_id", cfg.appID))
		}
		if cfg.baseURL != "" {
			itr.BaseURL = strings.TrimRight(cfg.baseURL, "/")
		}
		return &http.Client{Transport: itr}, nil

	case cfg.token != "":
		tr := &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: string(cfg.token)}),
			Base:   cfg.transport,
		}
		return &http.Client{Transport: tr}, nil

	default:
		return &http.Client{Transport: cfg.transport}, nil
	}
}

// FetchIssues returns every issue of the repository in the given state. Pull requests that the issue
// listing mixes in are dropped.
func (x *Client) FetchIssues(ctx context.Context, owner, repo string, state types.IssueState) ([]*model.Issue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       string(state),
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: PerPage},
	}

	var issues []*model.Issue
	for page := 1; ; page++ {
		items, resp, err := x.client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, x.wrapError(err, resp, "failed to list issues",
				goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("page", opts.Page))
		}

		for _, item := range items {
			if isPullRequest(item) {
				continue
			}
			issues = append(issues, toIssue(owner, repo, item))
		}

		if len(items) < PerPage || resp.NextPage == 0 {
			break
		}
		if err := x.checkQuota(resp, "issues", owner, repo); err != nil {
			return nil, err
		}
		opts.Page = resp.NextPage
	}

	logging.From(ctx).Debug("fetched issues",
		slog.String("owner", owner),
		slog.String("repo", repo),
		slog.Int("count", len(issues)),
	)
	return issues, nil
}

func (x *Client) FetchComments(ctx context.Context, owner, repo string, number int) ([]*model.Comment, error) {
	opts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: PerPage},
	}

	var comments []*model.Comment
	for {
		items, resp, err := x.client.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, x.wrapError(err, resp, "failed to list comments",
				goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("number", number))
		}

		for _, item := range items {
			comments = append(comments, &model.Comment{
				ID:        item.GetID(),
				Author:    item.GetUser().GetLogin(),
				Body:      item.GetBody(),
				CreatedAt: item.GetCreatedAt().Time,
			})
		}

		if len(items) < PerPage || resp.NextPage == 0 {
			break
		}
		if err := x.checkQuota(resp, "comments", owner, repo); err != nil {
			return nil, err
		}
		opts.Page = resp.NextPage
	}

	return comments, nil
}

func (x *Client) FetchPullRequests(ctx context.Context, owner, repo string, state types.IssueState) ([]*model.PullRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       string(state),
		ListOptions: gh.ListOptions{PerPage: PerPage},
	}

	var prs []*model.PullRequest
	for {
		items, resp, err := x.client.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, x.wrapError(err, resp, "failed to list pull requests",
				goerr.V("owner", owner), goerr.V("repo", repo))
		}

		for _, item := range items {
			prs = append(prs, toPullRequest(item))
		}

		if len(items) < PerPage || resp.NextPage == 0 {
			break
		}
		if err := x.checkQuota(resp, "pull requests", owner, repo); err != nil {
			return nil, err
		}
		opts.Page = resp.NextPage
	}

	return prs, nil
}

func (x *Client) FetchPullRequest(ctx context.Context, owner, repo string, number int) (*model.PullRequest, error) {
	pr, resp, err := x.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, x.wrapError(err, resp, "failed to get pull request",
			goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("number", number))
	}
	return toPullRequest(pr), nil
}

// checkQuota refuses to request the next page when the last response says nothing is left.
func (x *Client) checkQuota(resp *gh.Response, what, owner, repo string) error {
	if resp.Response == nil || resp.Header.Get("X-RateLimit-Remaining") != "0" {
		return nil
	}

	resetAt := RateLimitResetAt(resp.Header, x.now())
	return goerr.Wrap(&types.RateLimitError{Service: serviceName, ResetAt: resetAt},
		"GitHub quota exhausted while paging "+what,
		goerr.V("owner", owner),
		goerr.V("repo", repo),
		goerr.V("reset_at", resetAt),
	)
}

func (x *Client) wrapError(err error, resp *gh.Response, msg string, values ...goerr.Option) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		cause := &types.RateLimitError{Service: serviceName, ResetAt: rateErr.Rate.Reset.Time}
		return goerr.Wrap(cause, msg, append(values, goerr.V("error", err.Error()))...)
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		cause := &types.RateLimitError{Service: serviceName}
		if d := abuseErr.GetRetryAfter(); d > 0 {
			cause.ResetAt = x.now().Add(d)
		}
		return goerr.Wrap(cause, msg, append(values, goerr.V("error", err.Error()))...)
	}

	if resp == nil || resp.Response == nil {
		return goerr.Wrap(err, msg, values...)
	}

	values = append(values, goerr.V("status", resp.StatusCode), goerr.V("error", err.Error()))
	switch status := resp.StatusCode; {
	case status == http.StatusNotFound:
		return goerr.Wrap(types.ErrNotFound, msg, values...)
	case status == http.StatusTooManyRequests,
		status == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		cause := &types.RateLimitError{Service: serviceName, ResetAt: RateLimitResetAt(resp.Header, x.now())}
		return goerr.Wrap(cause, msg, values...)
	case status >= 500:
		return goerr.Wrap(types.ErrServerError, msg, values...)
	case status >= 400:
		return goerr.Wrap(types.ErrClientError, msg, values...)
	}
	return goerr.Wrap(err, msg, values...)
}

// RateLimitResetAt computes when the quota comes back from Retry-After (seconds) or X-RateLimit-Reset
// (epoch seconds). It returns zero time when neither header is usable.
func RateLimitResetAt(h http.Header, now time.Time) time.Time {
	if v := h.Get("Retry-After"); v != "" {
		if sec, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && sec >= 0 {
			return now.Add(time.Duration(sec) * time.Second)
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && epoch > 0 {
			return time.Unix(epoch, 0)
		}
	}
	return time.Time{}
}

func isPullRequest(issue *gh.Issue) bool {
	return issue.IsPullRequest() || strings.Contains(issue.GetHTMLURL(), "/pull/")
}

func toIssue(owner, repo string, src *gh.Issue) *model.Issue {
	issue := &model.Issue{
		Number:           src.GetNumber(),
		Title:            src.GetTitle(),
		Body:             src.GetBody(),
		State:            types.IssueState(src.GetState()),
		Author:           src.GetUser().GetLogin(),
		HTMLURL:          src.GetHTMLURL(),
		Comments:         src.GetComments(),
		CreatedAt:        src.GetCreatedAt().Time,
		UpdatedAt:        src.GetUpdatedAt().Time,
		LinkedPullNumber: LinkedPullNumber(owner, repo, src.GetBody()),
	}
	for _, l := range src.Labels {
		issue.Labels = append(issue.Labels, model.IssueLabel{Name: l.GetName(), Color: l.GetColor()})
	}
	for _, u := range src.Assignees {
		issue.Assignees = append(issue.Assignees, u.GetLogin())
	}
	return issue
}

func toPullRequest(src *gh.PullRequest) *model.PullRequest {
	pr := &model.PullRequest{
		Number:    src.GetNumber(),
		Title:     src.GetTitle(),
		Body:      src.GetBody(),
		State:     src.GetState(),
		Draft:     src.GetDraft(),
		Merged:    src.GetMerged() || src.MergedAt != nil,
		HTMLURL:   src.GetHTMLURL(),
		UpdatedAt: src.GetUpdatedAt().Time,
	}
	for _, u := range src.Assignees {
		pr.Assignees = append(pr.Assignees, u.GetLogin())
	}
	for _, u := range src.RequestedReviewers {
		pr.RequestedReviewers = append(pr.RequestedReviewers, u.GetLogin())
	}
	return pr
}
