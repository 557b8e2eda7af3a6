// Package contrib holds the contribution domain model: activity events,
// time-windowed per-user counters, rankings, and the role policy. Everything
// here is pure computation with no network or storage dependency.
package contrib

import "time"

// Category classifies an activity event.
type Category string

const (
	CategoryPullRequest Category = "pull_request"
	CategoryIssue       Category = "issue"
	CategoryCommit      Category = "commit"
)

// Categories returns all event categories in a fixed order.
func Categories() []Category {
	return []Category{CategoryPullRequest, CategoryIssue, CategoryCommit}
}

// Period identifies a counting window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all_time"
)

// Periods returns all counting windows in a fixed order.
func Periods() []Period {
	return []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime}
}

// Event is a single timestamped activity record produced by the collector.
// ID is unique per underlying API object and is the deduplication key.
type Event struct {
	ID        string
	Author    string
	Repo      string
	Category  Category
	Timestamp time.Time
}

// FetchState describes how completely a repository was collected.
type FetchState string

const (
	FetchComplete FetchState = "complete"
	FetchPartial  FetchState = "partial"
	FetchFailed   FetchState = "failed"
)

// RepoStatus is the per-repository completion record for one run.
type RepoStatus struct {
	Repo   string
	State  FetchState
	Reason string
	Events int
}

// WindowCounts holds one category's counts across all periods.
type WindowCounts struct {
	Daily   int
	Weekly  int
	Monthly int
	AllTime int
}

// Counters is the per-user aggregation result for one run.
// AllTime values are monotonically non-decreasing across runs; the window
// counts are recomputed fresh from the run's event stream.
type Counters struct {
	Username      string
	PRs           WindowCounts
	Issues        WindowCounts
	Commits       WindowCounts
	CurrentStreak int
	LongestStreak int
	LastActive    string // UTC date, YYYY-MM-DD; empty if never active
}

// Count returns the counter for a category and period.
func (c Counters) Count(cat Category, p Period) int {
	var w WindowCounts
	switch cat {
	case CategoryPullRequest:
		w = c.PRs
	case CategoryIssue:
		w = c.Issues
	case CategoryCommit:
		w = c.Commits
	}
	switch p {
	case PeriodDaily:
		return w.Daily
	case PeriodWeekly:
		return w.Weekly
	case PeriodMonthly:
		return w.Monthly
	case PeriodAllTime:
		return w.AllTime
	}
	return 0
}

func (c *Counters) window(cat Category) *WindowCounts {
	switch cat {
	case CategoryPullRequest:
		return &c.PRs
	case CategoryIssue:
		return &c.Issues
	case CategoryCommit:
		return &c.Commits
	}
	return nil
}
