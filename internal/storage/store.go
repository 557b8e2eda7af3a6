package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ruxailab/disgitbot/internal/contrib"
)

// ErrRunConflict is returned when a run lock is already held for the scope.
// It is a distinct terminal status, not a retryable condition.
var ErrRunConflict = errors.New("another run already holds the lock")

// Store exposes the pipeline's persistence operations on top of Database.
// All writes are idempotent upserts so at-least-once delivery is safe.
type Store struct {
	db *Database
}

// NewStore creates a store over an open database.
func NewStore(db *Database) *Store {
	return &Store{db: db}
}

// ---- contributor counters ----

// LoadCounters returns the previous run's counters for all known users.
func (s *Store) LoadCounters(ctx context.Context) (map[string]contrib.Counters, error) {
	var rows []contributorRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM contributors`); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}
	out := make(map[string]contrib.Counters, len(rows))
	for _, r := range rows {
		out[r.Username] = r.counters()
	}
	return out, nil
}

// UpsertCounters persists one user's counters, superseding the prior row.
func (s *Store) UpsertCounters(ctx context.Context, c contrib.Counters) error {
	query := `
		INSERT INTO contributors (
			username,
			pr_daily, pr_weekly, pr_monthly, pr_all_time,
			issue_daily, issue_weekly, issue_monthly, issue_all_time,
			commit_daily, commit_weekly, commit_monthly, commit_all_time,
			current_streak, longest_streak, last_active, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(username) DO UPDATE SET
			pr_daily = excluded.pr_daily,
			pr_weekly = excluded.pr_weekly,
			pr_monthly = excluded.pr_monthly,
			pr_all_time = excluded.pr_all_time,
			issue_daily = excluded.issue_daily,
			issue_weekly = excluded.issue_weekly,
			issue_monthly = excluded.issue_monthly,
			issue_all_time = excluded.issue_all_time,
			commit_daily = excluded.commit_daily,
			commit_weekly = excluded.commit_weekly,
			commit_monthly = excluded.commit_monthly,
			commit_all_time = excluded.commit_all_time,
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_active = excluded.last_active,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.ExecContext(ctx, query,
		c.Username,
		c.PRs.Daily, c.PRs.Weekly, c.PRs.Monthly, c.PRs.AllTime,
		c.Issues.Daily, c.Issues.Weekly, c.Issues.Monthly, c.Issues.AllTime,
		c.Commits.Daily, c.Commits.Weekly, c.Commits.Monthly, c.Commits.AllTime,
		c.CurrentStreak, c.LongestStreak, c.LastActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert counters for %s: %w", c.Username, err)
	}
	return nil
}

// ---- event deduplication ----

// SeenEvents loads the persisted per-user seen-set as username -> event IDs.
func (s *Store) SeenEvents(ctx context.Context) (map[string]map[string]bool, error) {
	var rows []struct {
		Username string `db:"username"`
		EventID  string `db:"event_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT username, event_id FROM seen_events`); err != nil {
		return nil, fmt.Errorf("failed to load seen events: %w", err)
	}
	out := make(map[string]map[string]bool)
	for _, r := range rows {
		ids, ok := out[r.Username]
		if !ok {
			ids = make(map[string]bool)
			out[r.Username] = ids
		}
		ids[r.EventID] = true
	}
	return out, nil
}

// RecordSeenEvents marks event IDs as counted for a user. Replays are ignored.
func (s *Store) RecordSeenEvents(ctx context.Context, username string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT OR IGNORE INTO seen_events (username, event_id) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range eventIDs {
		if _, err := stmt.ExecContext(ctx, username, id); err != nil {
			return fmt.Errorf("failed to record seen event %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ---- rankings and documents ----

// SaveRankings replaces the stored leaderboards with this run's output.
func (s *Store) SaveRankings(ctx context.Context, runID string, rankings contrib.Rankings) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rankings`); err != nil {
		return fmt.Errorf("failed to clear rankings: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO rankings (category, period, position, username, count, run_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for cat, byPeriod := range rankings {
		for period, entries := range byPeriod {
			for _, e := range entries {
				if _, err := stmt.ExecContext(ctx, string(cat), string(period), e.Rank, e.Username, e.Count, runID); err != nil {
					return fmt.Errorf("failed to save ranking row: %w", err)
				}
			}
		}
	}
	return tx.Commit()
}

// LoadRanking returns one stored leaderboard in rank order.
func (s *Store) LoadRanking(ctx context.Context, cat contrib.Category, period contrib.Period) ([]contrib.RankEntry, error) {
	var rows []rankingRow
	query := `SELECT * FROM rankings WHERE category = ? AND period = ? ORDER BY position ASC`
	if err := s.db.SelectContext(ctx, &rows, query, string(cat), string(period)); err != nil {
		return nil, err
	}
	entries := make([]contrib.RankEntry, len(rows))
	for i, r := range rows {
		entries[i] = contrib.RankEntry{Username: r.Username, Count: r.Count, Rank: r.Position}
	}
	return entries, nil
}

// SaveDocument upserts a named JSON document (hall of fame, reviewer pool,
// repository metrics).
func (s *Store) SaveDocument(ctx context.Context, name string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", name, err)
	}
	query := `
		INSERT INTO documents (name, body, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			body = excluded.body,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, name, string(body)); err != nil {
		return fmt.Errorf("failed to save document %s: %w", name, err)
	}
	return nil
}

// GetDocument unmarshals a named document into out. Missing documents
// return sql.ErrNoRows.
func (s *Store) GetDocument(ctx context.Context, name string, out any) error {
	var body string
	if err := s.db.GetContext(ctx, &body, `SELECT body FROM documents WHERE name = ?`, name); err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), out)
}

// ---- identity links ----

// IdentityLinks returns the discord_id -> github_username mapping, owned by
// the external account-linking flow and consumed read-only here.
func (s *Store) IdentityLinks(ctx context.Context) (map[string]string, error) {
	var rows []identityRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM identity_links`); err != nil {
		return nil, fmt.Errorf("failed to load identity links: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.DiscordID] = r.GitHubUsername
	}
	return out, nil
}

// LinkIdentity records an account link. Called by the linking flow's writer,
// kept here so both sides share one schema.
func (s *Store) LinkIdentity(ctx context.Context, discordID, githubUsername string) error {
	query := `
		INSERT INTO identity_links (discord_id, github_username)
		VALUES (?, ?)
		ON CONFLICT(discord_id) DO UPDATE SET
			github_username = excluded.github_username
	`
	_, err := s.db.ExecContext(ctx, query, discordID, githubUsername)
	return err
}

// ---- role state ----

// RoleState returns the last computed role set per Discord user.
func (s *Store) RoleState(ctx context.Context) (map[string][]string, error) {
	var rows []roleStateRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM role_state`); err != nil {
		return nil, fmt.Errorf("failed to load role state: %w", err)
	}
	out := make(map[string][]string, len(rows))
	for _, r := range rows {
		var roles []string
		if err := json.Unmarshal([]byte(r.Roles), &roles); err != nil {
			return nil, fmt.Errorf("corrupt role state for %s: %w", r.DiscordID, err)
		}
		out[r.DiscordID] = roles
	}
	return out, nil
}

// SaveRoleState persists the desired role set computed for a Discord user.
func (s *Store) SaveRoleState(ctx context.Context, discordID string, roles []string) error {
	body, err := json.Marshal(roles)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO role_state (discord_id, roles, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(discord_id) DO UPDATE SET
			roles = excluded.roles,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.ExecContext(ctx, query, discordID, string(body))
	return err
}

// ---- run lock and run history ----

// AcquireRunLock takes the advisory lease for scope, stealing it only when
// the previous holder's lease expired. Lease times are stored as Unix
// nanoseconds so the expiry comparison in SQL is numeric. Returns
// ErrRunConflict while held.
func (s *Store) AcquireRunLock(ctx context.Context, scope, runID string, ttl time.Duration) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO run_locks (scope, run_id, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			run_id = excluded.run_id,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE run_locks.expires_at < excluded.acquired_at
	`
	res, err := s.db.ExecContext(ctx, query,
		scope, runID,
		now.UnixNano(),
		now.Add(ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunConflict
	}
	return nil
}

// ReleaseRunLock releases the lease if this run still owns it.
func (s *Store) ReleaseRunLock(ctx context.Context, scope, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_locks WHERE scope = ? AND run_id = ?`, scope, runID)
	return err
}

// RecordRunStart inserts a run history row in the "running" state.
func (s *Store) RecordRunStart(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at) VALUES (?, ?)`,
		runID, startedAt.UTC(),
	)
	return err
}

// RecordRunFinish completes a run history row with its summary.
func (s *Store) RecordRunFinish(ctx context.Context, runID, status string, finishedAt time.Time, summary any) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, summary = ? WHERE run_id = ?`,
		finishedAt.UTC(), status, string(body), runID,
	)
	return err
}

// LatestRun returns the most recently started run, or nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM runs ORDER BY started_at DESC, run_id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
