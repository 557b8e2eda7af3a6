package github

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/sync/errgroup"

	"github.com/ruxailab/disgitbot/internal/contrib"
	"github.com/ruxailab/disgitbot/pkg/logger"
)

// errRateBudget aborts a repository fetch once the per-repo rate-limit wait
// budget is spent; the repository is reported partial, not failed.
var errRateBudget = errors.New("rate limit wait budget exhausted")

// CollectorConfig holds the collector tunables for one run.
type CollectorConfig struct {
	Org            string
	Workers        int           // concurrent repository fetches
	FetchTimeout   time.Duration // per API call
	RateWaitBudget time.Duration // max time spent waiting on rate limits per repo
	Retry          RetryConfig
	CommitsSince   time.Time // zero means full history
}

// RepoMetrics carries per-repository analytics collected alongside events.
type RepoMetrics struct {
	Repo         string `json:"repo"`
	Stars        int    `json:"stars"`
	Forks        int    `json:"forks"`
	Contributors int    `json:"contributors"`
}

// Result is the output of one collection pass.
type Result struct {
	Events   []contrib.Event
	Statuses []contrib.RepoStatus
	Metrics  []RepoMetrics
}

// repoAPI is the slice of the GitHub client the collector drives.
// *Client implements it; tests substitute a fake.
type repoAPI interface {
	ListOrgRepos(ctx context.Context, org string) ([]string, error)
	listPullRequests(ctx context.Context, owner, repo string, page int) ([]*github.PullRequest, int, error)
	listIssues(ctx context.Context, owner, repo string, page int) ([]*github.Issue, int, error)
	listCommits(ctx context.Context, owner, repo string, since time.Time, page int) ([]*github.RepositoryCommit, int, error)
	countContributors(ctx context.Context, owner, repo string) (int, error)
	repoMetrics(ctx context.Context, owner, repo string) (stars, forks int, err error)
}

// Collector fetches activity events per repository, handling pagination,
// rate-limit backoff and failure isolation. It performs read-only API calls
// only.
type Collector struct {
	client repoAPI
	cfg    CollectorConfig
}

// NewCollector creates a collector over the given client.
func NewCollector(client *Client, cfg CollectorConfig) *Collector {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Collector{client: client, cfg: cfg}
}

// Collect gathers events from the given repositories; an empty repo list
// means "discover every repository in the organization". Repositories are
// fetched concurrently up to the worker limit. A failing repository never
// fails the pass: its status records the degradation and the rest proceed.
func (c *Collector) Collect(ctx context.Context, repos []string) (*Result, error) {
	if len(repos) == 0 {
		discovered, err := c.client.ListOrgRepos(ctx, c.cfg.Org)
		if err != nil {
			return nil, fmt.Errorf("repository discovery: %w", err)
		}
		repos = discovered
	}

	logger.Info().Int("repos", len(repos)).Str("org", c.cfg.Org).Msg("Collecting activity")

	var (
		mu  sync.Mutex
		res Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			events, status, metrics := c.collectRepo(gctx, repo)

			mu.Lock()
			res.Events = append(res.Events, events...)
			res.Statuses = append(res.Statuses, status)
			res.Metrics = append(res.Metrics, metrics)
			mu.Unlock()

			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &res, nil
}

// collectRepo fetches pull requests, issues, commits and repo metrics for a
// single repository, downgrading the status on the first unrecoverable error
// while keeping whatever it already gathered.
func (c *Collector) collectRepo(ctx context.Context, repo string) ([]contrib.Event, contrib.RepoStatus, RepoMetrics) {
	f := &repoFetch{collector: c, repo: repo, budget: c.cfg.RateWaitBudget}
	metrics := RepoMetrics{Repo: repo}
	status := contrib.RepoStatus{Repo: repo, State: contrib.FetchComplete}

	var events []contrib.Event

	steps := []struct {
		name string
		run  func(context.Context) ([]contrib.Event, error)
	}{
		{"pull_requests", f.pullRequests},
		{"issues", f.issues},
		{"commits", f.commits},
	}
	for _, step := range steps {
		got, err := step.run(ctx)
		events = append(events, got...)
		if err != nil {
			c.degrade(&status, step.name, err, len(events) > 0)
			if status.State == contrib.FetchFailed {
				status.Events = len(events)
				return events, status, metrics
			}
		}
	}

	if err := f.metrics(ctx, &metrics); err != nil {
		// Metrics are analytics-only; their loss never degrades event status.
		logger.Debug().Err(err).Str("repo", repo).Msg("Repo metrics unavailable")
	}

	status.Events = len(events)
	logger.Debug().
		Str("repo", repo).
		Str("state", string(status.State)).
		Int("events", len(events)).
		Msg("Repository collected")
	return events, status, metrics
}

// degrade downgrades a repo status after a fetch step error. Rate-budget
// exhaustion and errors after partial progress leave the repo partial;
// a permanent error with nothing gathered marks it failed.
func (c *Collector) degrade(status *contrib.RepoStatus, step string, err error, hasEvents bool) {
	kind, _ := classify(err)
	switch {
	case errors.Is(err, errRateBudget), kind == kindRateLimit, hasEvents && kind != kindPermanent:
		status.State = contrib.FetchPartial
	case kind == kindPermanent && !hasEvents:
		status.State = contrib.FetchFailed
	default:
		status.State = contrib.FetchPartial
	}
	status.Reason = fmt.Sprintf("%s: %v", step, err)
	logger.Warn().
		Err(err).
		Str("repo", status.Repo).
		Str("step", step).
		Str("state", string(status.State)).
		Msg("Repository fetch degraded")
}

// repoFetch tracks the remaining rate-limit wait budget for one repository.
type repoFetch struct {
	collector *Collector
	repo      string
	budget    time.Duration
}

// do runs one API call under the retry policy: transient errors retry with
// exponential backoff up to the attempt limit, rate limits wait for the
// signalled reset while charging the repo's wait budget, permanent errors
// return immediately.
func (f *repoFetch) do(ctx context.Context, call func(context.Context) error) error {
	cfg := f.collector.cfg
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
		err := call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind, reset := classify(err)
		switch kind {
		case kindPermanent:
			return err
		case kindRateLimit:
			wait := CalculateBackoff(cfg.Retry, 0, reset)
			if wait > f.budget {
				return fmt.Errorf("%w (needed %s)", errRateBudget, wait)
			}
			f.budget -= wait
			logger.Warn().
				Str("repo", f.repo).
				Dur("wait", wait).
				Dur("budget_left", f.budget).
				Msg("Rate limited, suspending repository fetch")
			if !sleepCtx(ctx, wait) {
				return ctx.Err()
			}
			attempt-- // rate-limit waits do not consume retry attempts
		default:
			if attempt >= cfg.Retry.MaxRetries {
				return err
			}
			if !sleepCtx(ctx, CalculateBackoff(cfg.Retry, attempt, 0)) {
				return ctx.Err()
			}
		}
	}
}

func (f *repoFetch) pullRequests(ctx context.Context) ([]contrib.Event, error) {
	var events []contrib.Event
	org := f.collector.cfg.Org
	for page := 1; page != 0; {
		err := f.do(ctx, func(ctx context.Context) error {
			prs, next, err := f.collector.client.listPullRequests(ctx, org, f.repo, page)
			if err != nil {
				return err
			}
			for _, pr := range prs {
				author := pr.GetUser().GetLogin()
				if author == "" {
					continue
				}
				events = append(events, contrib.Event{
					ID:        eventID(org, f.repo, "pr", strconv.Itoa(pr.GetNumber())),
					Author:    author,
					Repo:      f.repo,
					Category:  contrib.CategoryPullRequest,
					Timestamp: pr.GetCreatedAt().Time,
				})
			}
			page = next
			return nil
		})
		if err != nil {
			return events, err
		}
	}
	return events, nil
}

func (f *repoFetch) issues(ctx context.Context) ([]contrib.Event, error) {
	var events []contrib.Event
	org := f.collector.cfg.Org
	for page := 1; page != 0; {
		err := f.do(ctx, func(ctx context.Context) error {
			issues, next, err := f.collector.client.listIssues(ctx, org, f.repo, page)
			if err != nil {
				return err
			}
			for _, issue := range issues {
				// The issues endpoint also returns pull requests.
				if issue.IsPullRequest() {
					continue
				}
				author := issue.GetUser().GetLogin()
				if author == "" {
					continue
				}
				events = append(events, contrib.Event{
					ID:        eventID(org, f.repo, "issue", strconv.Itoa(issue.GetNumber())),
					Author:    author,
					Repo:      f.repo,
					Category:  contrib.CategoryIssue,
					Timestamp: issue.GetCreatedAt().Time,
				})
			}
			page = next
			return nil
		})
		if err != nil {
			return events, err
		}
	}
	return events, nil
}

func (f *repoFetch) commits(ctx context.Context) ([]contrib.Event, error) {
	var events []contrib.Event
	org := f.collector.cfg.Org
	since := f.collector.cfg.CommitsSince
	for page := 1; page != 0; {
		err := f.do(ctx, func(ctx context.Context) error {
			commits, next, err := f.collector.client.listCommits(ctx, org, f.repo, since, page)
			if err != nil {
				return err
			}
			for _, commit := range commits {
				// Commits without a resolvable GitHub account are skipped;
				// git author emails alone cannot be linked to a member.
				author := commit.GetAuthor().GetLogin()
				if author == "" {
					continue
				}
				sha := commit.GetSHA()
				if sha == "" {
					continue
				}
				events = append(events, contrib.Event{
					ID:        eventID(org, f.repo, "commit", sha),
					Author:    author,
					Repo:      f.repo,
					Category:  contrib.CategoryCommit,
					Timestamp: commit.GetCommit().GetAuthor().GetDate().Time,
				})
			}
			page = next
			return nil
		})
		if err != nil {
			return events, err
		}
	}
	return events, nil
}

func (f *repoFetch) metrics(ctx context.Context, m *RepoMetrics) error {
	org := f.collector.cfg.Org
	if err := f.do(ctx, func(ctx context.Context) error {
		stars, forks, err := f.collector.client.repoMetrics(ctx, org, f.repo)
		if err != nil {
			return err
		}
		m.Stars, m.Forks = stars, forks
		return nil
	}); err != nil {
		return err
	}
	return f.do(ctx, func(ctx context.Context) error {
		n, err := f.collector.client.countContributors(ctx, org, f.repo)
		if err != nil {
			return err
		}
		m.Contributors = n
		return nil
	})
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
