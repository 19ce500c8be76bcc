package usecase

import "github.com/m-mizutani/cardsync/pkg/domain/model"

// DetermineList maps an issue and its linked pull request to the name of the list its card belongs in.
// The first matching rule wins:
//
//  1. closed issue: Completed
//  2. pull request with an assignee or a requested reviewer: Quality Assurance
//  3. draft pull request: In Progress
//  4. any other pull request: Ready for QA
//  5. pull request referenced but not fetched: Ready for QA
//  6. assigned issue: Selected
//  7. otherwise: Backlog
//
// Without the QA lists, rules 2 to 5 collapse into In Progress.
func DetermineList(issue *model.Issue, pr *model.PullRequest, prUnresolved bool, names model.ListNames) string {
	if issue.Closed() {
		return names.Completed
	}

	hasPR := pr != nil || prUnresolved
	if !names.Extended() {
		if hasPR {
			return names.InProgress
		}
	} else {
		switch {
		case pr != nil && (len(pr.Assignees) > 0 || len(pr.RequestedReviewers) > 0):
			return names.QualityAssurance
		case pr != nil && pr.Draft:
			return names.InProgress
		case hasPR:
			return names.ReadyForQA
		}
	}

	if len(issue.Assignees) > 0 {
		return names.Selected
	}
	return names.Backlog
}
