package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/infra/github"
	"github.com/m-mizutani/gt"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	gt.NoError(t, json.NewEncoder(w).Encode(v))
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func issueJSON(number int) map[string]any {
	return map[string]any{
		"number":     number,
		"title":      fmt.Sprintf("issue %d", number),
		"state":      "open",
		"html_url":   fmt.Sprintf("https://github.com/octo/hello/issues/%d", number),
		"user":       map[string]any{"login": "alice"},
		"created_at": "2024-01-02T03:04:05Z",
		"updated_at": "2024-01-03T03:04:05Z",
	}
}

func TestNew(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		gt.R1(github.New()).NoError(t)
	})

	t.Run("token and app are exclusive", func(t *testing.T) {
		_, err := github.New(
			github.WithToken("tok"),
			github.WithApp(1, 2, "pem"),
		)
		gt.True(t, errors.Is(err, types.ErrInvalidOption))
	})

	t.Run("app requires installation ID", func(t *testing.T) {
		_, err := github.New(github.WithApp(1, 0, "pem"))
		gt.True(t, errors.Is(err, types.ErrInvalidOption))
	})

	t.Run("app with broken private key", func(t *testing.T) {
		_, err := github.New(github.WithApp(1, 2, "invalid-key"))
		gt.Error(t, err)
	})
}

func TestFetchIssues(t *testing.T) {
	ctx := context.Background()

	t.Run("follows pages and drops pull requests", func(t *testing.T) {
		var calls int32
		var srv *httptest.Server
		srv = newServer(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			gt.V(t, r.URL.Path).Equal("/repos/octo/hello/issues")
			gt.V(t, r.URL.Query().Get("state")).Equal("all")
			gt.V(t, r.URL.Query().Get("per_page")).Equal("100")

			if r.URL.Query().Get("page") == "2" {
				pr := issueJSON(201)
				pr["pull_request"] = map[string]any{"url": "https://api.github.com/repos/octo/hello/pulls/201"}
				writeJSON(t, w, []any{issueJSON(101), pr, issueJSON(102)})
				return
			}

			var items []any
			for i := 1; i <= github.PerPage; i++ {
				items = append(items, issueJSON(i))
			}
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/octo/hello/issues?page=2>; rel="next"`, srv.URL))
			writeJSON(t, w, items)
		})

		client := gt.R1(github.New(github.WithBaseURL(srv.URL))).NoError(t)
		issues, err := client.FetchIssues(ctx, "octo", "hello", types.IssueStateAll)
		gt.NoError(t, err)
		gt.V(t, len(issues)).Equal(102)
		gt.V(t, atomic.LoadInt32(&calls)).Equal(int32(2))
		gt.V(t, issues[0].Author).Equal("alice")
		gt.True(t, issues[0].CreatedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
		gt.V(t, issues[101].Number).Equal(102)
	})

	t.Run("short page ends paging", func(t *testing.T) {
		var calls int32
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set("Link", `<http://example.com/repos/octo/hello/issues?page=2>; rel="next"`)
			writeJSON(t, w, []any{issueJSON(1)})
		})

		client := gt.R1(github.New(github.WithBaseURL(srv.URL))).NoError(t)
		issues, err := client.FetchIssues(ctx, "octo", "hello", types.IssueStateOpen)
		gt.NoError(t, err)
		gt.V(t, len(issues)).Equal(1)
		gt.V(t, atomic.LoadInt32(&calls)).Equal(int32(1))
	})

	t.Run("labels assignees and linked pull request", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			issue := issueJSON(7)
			issue["state"] = "closed"
			issue["body"] = "see https://github.com/octo/hello/pull/12 for the fix"
			issue["labels"] = []any{map[string]any{"name": "bug", "color": "d73a4a"}}
			issue["assignees"] = []any{map[string]any{"login": "bob"}}
			issue["comments"] = 4
			writeJSON(t, w, []any{issue})
		})

		client := gt.R1(github.New(github.WithBaseURL(srv.URL))).NoError(t)
		issues := gt.R1(client.FetchIssues(ctx, "octo", "hello", types.IssueStateAll)).NoError(t)
		gt.V(t, len(issues)).Equal(1)

		issue := issues[0]
		gt.True(t, issue.Closed())
		gt.V(t, issue.Labels[0].Name).Equal("bug")
		gt.V(t, issue.Labels[0].Color).Equal("d73a4a")
		gt.V(t, issue.Assignees).Equal([]string{"bob"})
		gt.V(t, issue.Comments).Equal(4)
		gt.V(t, issue.LinkedPullNumber).Equal(12)
	})

	t.Run("exhausted quota with more pages pending", func(t *testing.T) {
		reset := time.Now().Add(10 * time.Minute).Truncate(time.Second)
		var srv *httptest.Server
		srv = newServer(t, func(w http.ResponseWriter, r *http.Request) {
			var items []any
			for i := 1; i <= github.PerPage; i++ {
				items = append(items, issueJSON(i))
			}
			w.Header().Set("X-RateLimit-Limit", "60")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/octo/hello/issues?page=2>; rel="next"`, srv.URL))
			writeJSON(t, w, items)
		})

		client := gt.R1(github.New(github.WithBaseURL(srv.URL))).NoError(t)
		_, err := client.FetchIssues(ctx, "octo", "hello", types.IssueStateAll)
		gt.True(t, errors.Is(err, types.ErrRateLimited))

		var rateErr *types.RateLimitError
		gt.True(t, errors.As(err, &rateErr))
		gt.True(t, rateErr.ResetAt.Equal(reset))
	})

	t.Run("primary rate limit response", func(t *testing.T) {
		reset := time.Now().Add(time.Hour).Truncate(time.Second)
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Limit", "60")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			w.WriteHeader(http.StatusForbidden)
			writeJSON(t, w, map[string]string{"message": "API rate limit exceeded for 127.0.0.1."})
		})

		client := gt.R1(github.New(github.WithBaseURL(srv.URL))).NoError(t)
		_, err := client.FetchIssues(ctx, "octo", "hello", types.IssueStateAll)

		var rateErr *types.RateLimitError
		gt.True(t, errors.As(err, &rateErr))
		gt.True(t, rateErr.ResetAt.Equal(reset))
	})

	t.Run("429 with Retry-After", func(t *testing.T) {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			writeJSON(t, w, map[string]string{"message": "slow down"})
		})

		client := gt.R1(github.New(
			github.WithBaseURL(srv.URL),
			github.WithClock(func() time.Time { return now }),
		)).NoError(t)
		_, err := client.FetchIssues(ctx, "octo", "hello", types.IssueStateAll)

		var rateErr *types.RateLimitError
		gt.True(t, errors.As(err, &rateErr))
		gt.True(t, rateErr.ResetAt.Equal(now.Add(30*time.Second)))
	})

	t.Run("token is sent as bearer", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			gt.V(t, r.Header.Get("Authorization")).Equal("Bearer my-token")
			writeJSON(t, w, []any{})
		})

		client := gt.R1(github.New(github.WithBaseURL(srv.URL), github.WithToken("my-token"))).NoError(t)
		gt.R1(client.FetchIssues(ctx, "octo", "hello", types.IssueStateAll)).NoError(t)
	})
}

func TestFetchComments(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gt.V(t, r.URL.Path).Equal("/repos/octo/hello/issues/3/comments")
		writeJSON(t, w, []any{
			map[string]any{"id": 11, "body": "first", "user": map[string]any{"login": "alice"}, "created_at": "2024-01-02T00:00:00Z"},
			map[string]any{"id": 12, "body": "second", "user": map[string]any{"login": "bob"}, "created_at": "2024-01-03T00:00:00Z"},
		})
	})

	client := gt.R1(github.New(github.WithBaseURL(srv.URL))).NoError(t)
	comments := gt.R1(client.FetchComments(context.Background(), "octo", "hello", 3)).NoError(t)
	gt.V(t, len(comments)).Equal(2)
	gt.V(t, comments[1].ID).Equal(int64(12))
	gt.V(t, comments[1].Author).Equal("bob")
	gt.V(t, comments[1].Body).Equal("second")
}

func TestFetchPullRequests(t *testing.T) {
	ctx := context.Background()

	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		pr := map[string]any{
			"number":              12,
			"title":               "Fix crash",
			"body":                "fixes #7",
			"state":               "open",
			"draft":               true,
			"assignees":           []any{map[string]any{"login": "carol"}},
			"requested_reviewers": []any{map[string]any{"login": "dave"}},
		}
		switch r.URL.Path {
		case "/repos/octo/hello/pulls":
			writeJSON(t, w, []any{pr})
		case "/repos/octo/hello/pulls/12":
			writeJSON(t, w, pr)
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(t, w, map[string]string{"message": "Not Found"})
		}
	})

	client := gt.R1(github.New(github.WithBaseURL(srv.URL))).NoError(t)

	t.Run("list", func(t *testing.T) {
		prs := gt.R1(client.FetchPullRequests(ctx, "octo", "hello", types.IssueStateAll)).NoError(t)
		gt.V(t, len(prs)).Equal(1)
		gt.True(t, prs[0].Draft)
		gt.V(t, prs[0].Assignees).Equal([]string{"carol"})
		gt.V(t, prs[0].RequestedReviewers).Equal([]string{"dave"})
	})

	t.Run("get one", func(t *testing.T) {
		pr := gt.R1(client.FetchPullRequest(ctx, "octo", "hello", 12)).NoError(t)
		gt.V(t, pr.Number).Equal(12)
	})

	t.Run("missing pull request", func(t *testing.T) {
		_, err := client.FetchPullRequest(ctx, "octo", "hello", 99)
		gt.True(t, errors.Is(err, types.ErrNotFound))
	})
}

func TestRateLimitResetAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Retry-After wins", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "120")
		h.Set("X-RateLimit-Reset", "1700000000")
		gt.V(t, github.RateLimitResetAt(h, now)).Equal(now.Add(2 * time.Minute))
	})

	t.Run("reset epoch", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Reset", "1700000000")
		gt.True(t, github.RateLimitResetAt(h, now).Equal(time.Unix(1700000000, 0)))
	})

	t.Run("nothing usable", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "soon")
		gt.True(t, github.RateLimitResetAt(h, now).IsZero())
	})
}
