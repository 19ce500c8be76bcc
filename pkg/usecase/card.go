package usecase

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/cardsync/pkg/domain/model"
)

const (
	// MaxDescriptionBytes is the largest description the board service accepts.
	MaxDescriptionBytes = 16000
	TruncationMarker    = "\n\n... (truncated)"

	commentExcerptBytes = 500
	dateLayout          = "2006-01-02"
)

func CardTitle(issue *model.Issue) string {
	return fmt.Sprintf("#%d: %s", issue.Number, strings.TrimSpace(issue.Title))
}

// CardDescription renders the card body: a metadata header that always survives truncation, then the
// issue body and the latest comments.
func CardDescription(issue *model.Issue, comments []*model.Comment) string {
	var header strings.Builder
	fmt.Fprintf(&header, "**GitHub Issue:** [#%d](%s)\n", issue.Number, issue.HTMLURL)
	fmt.Fprintf(&header, "**Author:** %s\n", mention(issue.Author))
	fmt.Fprintf(&header, "**Created:** %s\n", formatDate(issue.CreatedAt))
	fmt.Fprintf(&header, "**Updated:** %s\n", formatDate(issue.UpdatedAt))
	fmt.Fprintf(&header, "**Assignees:** %s\n", mentions(issue.Assignees))
	fmt.Fprintf(&header, "**Comments:** %d\n", issue.Comments)
	header.WriteString("\n---\n\n")

	var content strings.Builder
	body := strings.TrimSpace(issue.Body)
	if body == "" {
		body = "_No description provided._"
	}
	content.WriteString(body)

	if len(comments) > 0 {
		content.WriteString("\n\n### Latest comments")
		for _, c := range comments {
			text := truncateUTF8(strings.TrimSpace(c.Body), commentExcerptBytes)
			if len(text) < len(strings.TrimSpace(c.Body)) {
				text += "..."
			}
			fmt.Fprintf(&content, "\n\n**%s** (%s):\n%s", mention(c.Author), formatDate(c.CreatedAt), text)
		}
	}

	return truncateDescription(header.String(), content.String(), MaxDescriptionBytes)
}

// truncateDescription joins header and content within limit bytes. Content is cut first; the header
// is only cut when it alone does not fit.
func truncateDescription(header, content string, limit int) string {
	if len(header)+len(content) <= limit {
		return header + content
	}

	room := limit - len(TruncationMarker) - len(header)
	if room < 0 {
		return truncateUTF8(header, limit-len(TruncationMarker)) + TruncationMarker
	}
	return header + truncateUTF8(content, room) + TruncationMarker
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func mention(login string) string {
	if login == "" {
		return "unknown"
	}
	return "@" + login
}

func mentions(logins []string) string {
	if len(logins) == 0 {
		return "none"
	}
	m := make([]string, len(logins))
	for i, l := range logins {
		m[i] = mention(l)
	}
	return strings.Join(m, ", ")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(dateLayout)
}
