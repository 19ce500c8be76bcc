package github

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
)

var pullURLPattern = regexp.MustCompile(`(?i)github\.com/([\w.-]+)/([\w.-]+)/pull/(\d+)`)

// LinkedPullNumber returns the number of the first pull request of owner/repo linked by URL in body,
// or 0.
func LinkedPullNumber(owner, repo, body string) int {
	for _, m := range pullURLPattern.FindAllStringSubmatch(body, -1) {
		if !strings.EqualFold(m[1], owner) || !strings.EqualFold(m[2], repo) {
			continue
		}
		if n, err := strconv.Atoi(m[3]); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

const closingKeywords = `fix|fixes|fixed|close|closes|closed|resolve|resolves|resolved|address|addresses|addressed`

func referencePattern(number int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(
		`(?i)(?:^|[^\w/])#%d\b|\b(?:%s):?\s+https?://github\.com/[\w.-]+/[\w.-]+/issues/%d\b`,
		number, closingKeywords, number,
	))
}

// FindPRsForIssue returns the pull requests whose title or body refer to the issue, either as a bare
// #N or with a closing keyword ("fixes #N", "closes <issue URL>"). #12 never matches #123.
func FindPRsForIssue(prs []*model.PullRequest, number int) []*model.PullRequest {
	if number <= 0 {
		return nil
	}

	pattern := referencePattern(number)
	var matched []*model.PullRequest
	for _, pr := range prs {
		if pattern.MatchString(pr.Title) || pattern.MatchString(pr.Body) {
			matched = append(matched, pr)
		}
	}
	return matched
}
