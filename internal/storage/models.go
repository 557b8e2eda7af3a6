// Package storage provides durable persistence for counters, rankings,
// identity links, role state and the run lock.
package storage

import (
	"time"

	"github.com/ruxailab/disgitbot/internal/contrib"
)

// contributorRow is the flattened database shape of contrib.Counters.
type contributorRow struct {
	Username      string    `db:"username"`
	PRDaily       int       `db:"pr_daily"`
	PRWeekly      int       `db:"pr_weekly"`
	PRMonthly     int       `db:"pr_monthly"`
	PRAllTime     int       `db:"pr_all_time"`
	IssueDaily    int       `db:"issue_daily"`
	IssueWeekly   int       `db:"issue_weekly"`
	IssueMonthly  int       `db:"issue_monthly"`
	IssueAllTime  int       `db:"issue_all_time"`
	CommitDaily   int       `db:"commit_daily"`
	CommitWeekly  int       `db:"commit_weekly"`
	CommitMonthly int       `db:"commit_monthly"`
	CommitAllTime int       `db:"commit_all_time"`
	CurrentStreak int       `db:"current_streak"`
	LongestStreak int       `db:"longest_streak"`
	LastActive    string    `db:"last_active"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r contributorRow) counters() contrib.Counters {
	return contrib.Counters{
		Username:      r.Username,
		PRs:           contrib.WindowCounts{Daily: r.PRDaily, Weekly: r.PRWeekly, Monthly: r.PRMonthly, AllTime: r.PRAllTime},
		Issues:        contrib.WindowCounts{Daily: r.IssueDaily, Weekly: r.IssueWeekly, Monthly: r.IssueMonthly, AllTime: r.IssueAllTime},
		Commits:       contrib.WindowCounts{Daily: r.CommitDaily, Weekly: r.CommitWeekly, Monthly: r.CommitMonthly, AllTime: r.CommitAllTime},
		CurrentStreak: r.CurrentStreak,
		LongestStreak: r.LongestStreak,
		LastActive:    r.LastActive,
	}
}

// rankingRow is one leaderboard entry as stored.
type rankingRow struct {
	Category string `db:"category"`
	Period   string `db:"period"`
	Position int    `db:"position"`
	Username string `db:"username"`
	Count    int    `db:"count"`
	RunID    string `db:"run_id"`
}

// identityRow is one Discord-to-GitHub account link. Links are written by
// the external OAuth linking flow; this pipeline only reads them.
type identityRow struct {
	DiscordID      string    `db:"discord_id"`
	GitHubUsername string    `db:"github_username"`
	CreatedAt      time.Time `db:"created_at"`
}

// roleStateRow holds the last role set computed for one Discord user,
// encoded as a JSON array.
type roleStateRow struct {
	DiscordID string    `db:"discord_id"`
	Roles     string    `db:"roles"`
	UpdatedAt time.Time `db:"updated_at"`
}

// RunRecord is one pipeline run's persisted outcome.
type RunRecord struct {
	RunID      string     `db:"run_id"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Status     string     `db:"status"`
	Summary    string     `db:"summary"`
}
