package model

import (
	"time"

	"github.com/m-mizutani/cardsync/pkg/domain/types"
)

type IssueLabel struct {
	Name  string
	Color string
}

// Issue is a GitHub issue as seen by the sync. It never carries pull requests.
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     types.IssueState
	Labels    []IssueLabel
	Assignees []string
	Author    string
	HTMLURL   string
	Comments  int
	CreatedAt time.Time
	UpdatedAt time.Time

	// LinkedPullNumber is set when the body links a pull request of the same repository by URL.
	LinkedPullNumber int
}

func (x *Issue) Closed() bool {
	return x.State == types.IssueStateClosed
}

type PullRequest struct {
	Number             int
	Title              string
	Body               string
	State              string
	Draft              bool
	Merged             bool
	Assignees          []string
	RequestedReviewers []string
	HTMLURL            string
	UpdatedAt          time.Time
}

type Comment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
}
