package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"digest_bot/internal/model"
)

const (
	// DefaultGitHubRate paces requests to roughly 4300/hour, under the authenticated quota.
	DefaultGitHubRate = rate.Limit(1.2)

	listPageSize = 100
)

// GitHub reads issues, pull requests, commits and milestones of one repository.
type GitHub struct {
	gh      *gh.Client
	owner   string
	repo    string
	limiter *rate.Limiter
}

// GitHubOption configures a GitHub reader.
type GitHubOption func(*GitHub) error

// WithBaseURL points the reader at a different API root (GitHub Enterprise, tests).
func WithBaseURL(raw string) GitHubOption {
	return func(g *GitHub) error {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		g.gh.BaseURL = u
		return nil
	}
}

// WithRateLimit replaces the default request pacing.
func WithRateLimit(limit rate.Limit, burst int) GitHubOption {
	return func(g *GitHub) error {
		g.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// NewGitHubHTTPClient returns an HTTP client authenticating with a static token.
// An empty token yields an anonymous client.
func NewGitHubHTTPClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	if token == "" {
		return &http.Client{Timeout: timeout}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = timeout
	return tc
}

// NewGitHub creates a reader for owner/repo on top of httpClient.
func NewGitHub(httpClient *http.Client, owner, repo string, opts ...GitHubOption) (*GitHub, error) {
	g := &GitHub{
		gh:      gh.NewClient(httpClient),
		owner:   owner,
		repo:    repo,
		limiter: rate.NewLimiter(DefaultGitHubRate, 1),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Issues returns issues (pull requests excluded) updated since since, in any state.
func (g *GitHub) Issues(ctx context.Context, since time.Time) ([]model.RemoteItem, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		Since:       since,
		ListOptions: gh.ListOptions{PerPage: listPageSize},
	}

	var items []model.RemoteItem
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		issues, resp, err := g.gh.Issues.ListByRepo(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			items = append(items, issueItem(model.KindIssue, issue))
		}
		if resp.NextPage == 0 {
			return items, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// PullRequests returns pull requests in any state created strictly after since, newest first.
func (g *GitHub) PullRequests(ctx context.Context, since time.Time) ([]model.RemoteItem, error) {
	opts := &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: listPageSize},
	}

	var items []model.RemoteItem
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		prs, resp, err := g.gh.PullRequests.List(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull requests: %w", err)
		}
		for _, pr := range prs {
			// Sorted by creation date, so the first old one ends the window.
			if !pr.GetCreatedAt().Time.After(since) {
				return items, nil
			}
			items = append(items, pullItem(pr))
		}
		if resp.NextPage == 0 {
			return items, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// Commits returns commits on the default branch since since, with their changed file names.
func (g *GitHub) Commits(ctx context.Context, since time.Time) ([]model.RemoteItem, error) {
	opts := &gh.CommitsListOptions{
		Since:       since,
		ListOptions: gh.ListOptions{PerPage: listPageSize},
	}

	var items []model.RemoteItem
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		commits, resp, err := g.gh.Repositories.ListCommits(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list commits: %w", err)
		}
		for _, c := range commits {
			files, err := g.commitFiles(ctx, c.GetSHA())
			if err != nil {
				return nil, err
			}
			items = append(items, commitItem(c, files))
		}
		if resp.NextPage == 0 {
			return items, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

func (g *GitHub) commitFiles(ctx context.Context, sha string) ([]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	commit, _, err := g.gh.Repositories.GetCommit(ctx, g.owner, g.repo, sha, &gh.ListOptions{PerPage: listPageSize})
	if err != nil {
		return nil, fmt.Errorf("get commit %s: %w", sha, err)
	}
	files := make([]string, 0, len(commit.Files))
	for _, f := range commit.Files {
		files = append(files, f.GetFilename())
	}
	return files, nil
}

// Milestones returns the open milestones of the repository as groups.
func (g *GitHub) Milestones(ctx context.Context) ([]model.Group, error) {
	opts := &gh.MilestoneListOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: listPageSize},
	}

	var groups []model.Group
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		milestones, resp, err := g.gh.Issues.ListMilestones(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list milestones: %w", err)
		}
		for _, m := range milestones {
			groups = append(groups, model.Group{Key: m.GetTitle(), Number: m.GetNumber()})
		}
		if resp.NextPage == 0 {
			return groups, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// MilestoneIssuesPage returns one page of the issues and pull requests in a milestone.
// The page index is 0-based.
func (g *GitHub) MilestoneIssuesPage(ctx context.Context, group model.Group, page, pageSize int) ([]model.RemoteItem, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	opts := &gh.IssueListByRepoOptions{
		Milestone:   strconv.Itoa(group.Number),
		State:       "all",
		ListOptions: gh.ListOptions{Page: page + 1, PerPage: pageSize},
	}
	issues, _, err := g.gh.Issues.ListByRepo(ctx, g.owner, g.repo, opts)
	if err != nil {
		return nil, fmt.Errorf("list milestone %q issues: %w", group.Key, err)
	}

	items := make([]model.RemoteItem, 0, len(issues))
	for _, issue := range issues {
		items = append(items, issueItem(model.KindMilestoneIssue, issue))
	}
	return items, nil
}

// MilestonePages adapts MilestoneIssuesPage to a PageFunc for one group.
func (g *GitHub) MilestonePages(group model.Group, pageSize int) PageFunc {
	return func(ctx context.Context, page int) ([]model.RemoteItem, error) {
		return g.MilestoneIssuesPage(ctx, group, page, pageSize)
	}
}

func issueItem(kind model.Kind, issue *gh.Issue) model.RemoteItem {
	return model.RemoteItem{
		Kind:      kind,
		ID:        strconv.Itoa(issue.GetNumber()),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		Author:    issue.GetUser().GetLogin(),
		CreatedAt: issue.GetCreatedAt().Time.UTC(),
		State:     issue.GetState(),
		Permalink: issue.GetHTMLURL(),
		Extras:    model.Extras{Tags: labelNames(issue.Labels)},
	}
}

func pullItem(pr *gh.PullRequest) model.RemoteItem {
	return model.RemoteItem{
		Kind:      model.KindPullRequest,
		ID:        strconv.Itoa(pr.GetNumber()),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		Author:    pr.GetUser().GetLogin(),
		CreatedAt: pr.GetCreatedAt().Time.UTC(),
		State:     pr.GetState(),
		Permalink: pr.GetHTMLURL(),
		Extras:    model.Extras{Tags: labelNames(pr.Labels)},
	}
}

func commitItem(c *gh.RepositoryCommit, files []string) model.RemoteItem {
	message := c.GetCommit().GetMessage()
	title, body, _ := strings.Cut(message, "\n")

	author := c.GetAuthor().GetLogin()
	if author == "" {
		author = c.GetCommit().GetAuthor().GetName()
	}

	return model.RemoteItem{
		Kind:      model.KindCommit,
		ID:        c.GetSHA(),
		Title:     strings.TrimSpace(title),
		Body:      strings.TrimSpace(body),
		Author:    author,
		CreatedAt: c.GetCommit().GetAuthor().GetDate().Time.UTC(),
		Permalink: c.GetHTMLURL(),
		Extras:    model.Extras{Files: files},
	}
}

func labelNames(labels []*gh.Label) []string {
	if len(labels) == 0 {
		return nil
	}
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.GetName()
	}
	return names
}
