package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// GitHubIssues opens one issue per change in Repo ("owner/name").
type GitHubIssues struct {
	APIBase string // default DefaultGitHubAPI
	Repo    string
	Token   string
	Client  *http.Client
	Timeout time.Duration // per call; default 20s
}

func (g *GitHubIssues) Name() string { return "github_issues" }

// IssueBody formats the issue text: summary, diff path and source URL.
func IssueBody(n Notification) string {
	return fmt.Sprintf("%s\n\nDiff: ./%s\nSource: %s", n.Summary, n.DiffPath, n.URL)
}

func (g *GitHubIssues) Notify(ctx context.Context, n Notification) error {
	if g.Token == "" || g.Repo == "" {
		return ErrNotConfigured
	}
	base := g.APIBase
	if base == "" {
		base = DefaultGitHubAPI
	}
	url := strings.TrimRight(base, "/") + "/repos/" + g.Repo + "/issues"

	body, err := json.Marshal(map[string]string{
		"title": n.Title,
		"body":  IssueBody(n),
	})
	if err != nil {
		return &SendError{Notifier: g.Name(), Cause: fmt.Errorf("marshal issue: %w", err)}
	}
	header := http.Header{}
	header.Set("Authorization", "token "+g.Token)
	header.Set("Accept", "application/vnd.github+json")
	return post(ctx, g.Name(), g.Client, timeoutOr(g.Timeout, 20*time.Second), url, body, header)
}
