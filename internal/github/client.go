// Package github provides the GitHub API client and the activity collector.
package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const perPage = 100

// Client wraps the GitHub API client.
type Client struct {
	gh *github.Client
}

// NewClient creates a new GitHub API client.
// If token is empty, an unauthenticated client is created (with lower rate limits).
func NewClient(token string) *Client {
	var client *github.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(context.Background(), ts)
		client = github.NewClient(tc)
	} else {
		client = github.NewClient(nil)
	}

	return &Client{gh: client}
}

// ListOrgRepos returns the names of all repositories in the organization,
// following pagination to the end.
func (c *Client) ListOrgRepos(ctx context.Context, org string) ([]string, error) {
	var names []string
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories for %s: %w", org, err)
		}
		for _, r := range repos {
			names = append(names, r.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

// listPullRequests fetches one page of pull requests and returns the next
// page number (0 when exhausted).
func (c *Client) listPullRequests(ctx context.Context, owner, repo string, page int) ([]*github.PullRequest, int, error) {
	prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage, Page: page},
	})
	if err != nil {
		return nil, 0, err
	}
	return prs, resp.NextPage, nil
}

// listIssues fetches one page of issues. Pull requests surfaced through the
// issues endpoint are filtered out by the caller.
func (c *Client) listIssues(ctx context.Context, owner, repo string, page int) ([]*github.Issue, int, error) {
	issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, &github.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage, Page: page},
	})
	if err != nil {
		return nil, 0, err
	}
	return issues, resp.NextPage, nil
}

// listCommits fetches one page of commits, optionally bounded by since.
func (c *Client) listCommits(ctx context.Context, owner, repo string, since time.Time, page int) ([]*github.RepositoryCommit, int, error) {
	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: perPage, Page: page},
	}
	if !since.IsZero() {
		opts.Since = since
	}
	commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
	if err != nil {
		return nil, 0, err
	}
	return commits, resp.NextPage, nil
}

// countContributors returns the number of listed contributors for a repository.
func (c *Client) countContributors(ctx context.Context, owner, repo string) (int, error) {
	total := 0
	opts := &github.ListContributorsOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		contributors, resp, err := c.gh.Repositories.ListContributors(ctx, owner, repo, opts)
		if err != nil {
			return 0, err
		}
		total += len(contributors)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return total, nil
}

// repoMetrics fetches star and fork counts for a repository.
func (c *Client) repoMetrics(ctx context.Context, owner, repo string) (stars, forks int, err error) {
	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return 0, 0, err
	}
	return r.GetStargazersCount(), r.GetForksCount(), nil
}

// GetRateLimit returns the current rate limit status.
func (c *Client) GetRateLimit(ctx context.Context) (*github.RateLimits, error) {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return nil, err
	}
	return limits, nil
}

// eventID builds a stable deduplication key for an activity event.
func eventID(owner, repo, kind, suffix string) string {
	return fmt.Sprintf("%s/%s:%s-%s", owner, repo, kind, suffix)
}
