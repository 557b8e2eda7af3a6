// Package pipeline orchestrates one collection/aggregation/reconciliation
// pass and owns the run lock, so concurrent runs against the same guild
// cannot interleave role mutations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ruxailab/disgitbot/internal/contrib"
	"github.com/ruxailab/disgitbot/internal/discord"
	"github.com/ruxailab/disgitbot/internal/github"
	"github.com/ruxailab/disgitbot/internal/storage"
	"github.com/ruxailab/disgitbot/pkg/logger"
)

// Source is the collector boundary: everything network-facing on the GitHub
// side lives behind it, keeping aggregation and policy purely computational.
type Source interface {
	Collect(ctx context.Context, repos []string) (*github.Result, error)
}

// RoleSyncer reconciles desired role state against the chat platform.
type RoleSyncer interface {
	Sync(ctx context.Context, desired map[string][]string) (discord.Report, error)
}

// Config holds the run-level settings.
type Config struct {
	GuildID string
	LockTTL time.Duration
	Now     func() time.Time // nil means time.Now
}

// Runner executes pipeline runs.
type Runner struct {
	source Source
	store  *storage.Store
	syncer RoleSyncer
	policy contrib.Policy
	cfg    Config
}

// NewRunner wires a runner from its collaborators.
func NewRunner(source Source, store *storage.Store, syncer RoleSyncer, cfg Config) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Runner{
		source: source,
		store:  store,
		syncer: syncer,
		policy: contrib.DefaultPolicy(),
		cfg:    cfg,
	}
}

// Summary is the run's sole operator-facing surface.
type Summary struct {
	RunID        string               `json:"run_id"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
	Status       string               `json:"status"`
	ReposTotal   int                  `json:"repos_total"`
	ReposPartial int                  `json:"repos_partial"`
	ReposFailed  int                  `json:"repos_failed"`
	RepoIssues   []contrib.RepoStatus `json:"repo_issues,omitempty"`
	Events       int                  `json:"events"`
	Contributors int                  `json:"contributors"`
	Linked       int                  `json:"linked"`
	Unresolved   int                  `json:"unresolved"`
	Sync         discord.Report       `json:"sync"`
}

// Run executes a single pipeline pass: acquire the run lock, collect,
// aggregate, rank, evaluate the role policy, persist, reconcile roles,
// release the lock. repoOverride narrows collection to the given
// repositories; empty means the full organization.
//
// Failures local to one repository or one member degrade that unit and show
// up in the summary; only infrastructure failures return an error. A lock
// already held returns storage.ErrRunConflict immediately.
func (r *Runner) Run(ctx context.Context, repoOverride []string) (*Summary, error) {
	runID := uuid.NewString()
	started := r.cfg.Now().UTC()
	scope := "guild:" + r.cfg.GuildID

	if err := r.store.AcquireRunLock(ctx, scope, runID, r.cfg.LockTTL); err != nil {
		if errors.Is(err, storage.ErrRunConflict) {
			logger.Warn().Str("run_id", runID).Msg("Run rejected, lock already held")
		}
		return nil, err
	}
	defer func() {
		// Release even when the run context was cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.store.ReleaseRunLock(releaseCtx, scope, runID); err != nil {
			logger.Error().Err(err).Str("run_id", runID).Msg("Failed to release run lock")
		}
	}()

	if err := r.store.RecordRunStart(ctx, runID, started); err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}

	logger.Info().Str("run_id", runID).Strs("repo_override", repoOverride).Msg("Run started")

	summary, err := r.execute(ctx, runID, started, repoOverride)
	status := "succeeded"
	if err != nil {
		status = "failed"
	}

	finished := r.cfg.Now().UTC()
	if summary == nil {
		summary = &Summary{RunID: runID, StartedAt: started}
	}
	summary.FinishedAt = finished
	summary.Status = status

	if recErr := r.store.RecordRunFinish(ctx, runID, status, finished, summary); recErr != nil {
		logger.Error().Err(recErr).Str("run_id", runID).Msg("Failed to record run finish")
	}

	if err != nil {
		return summary, err
	}
	logger.Info().
		Str("run_id", runID).
		Int("contributors", summary.Contributors).
		Int("roles_added", summary.Sync.RolesAdded).
		Int("roles_removed", summary.Sync.RolesRemoved).
		Msg("Run finished")
	return summary, nil
}

func (r *Runner) execute(ctx context.Context, runID string, started time.Time, repoOverride []string) (*Summary, error) {
	summary := &Summary{RunID: runID, StartedAt: started}

	// Collect.
	result, err := r.source.Collect(ctx, repoOverride)
	if err != nil {
		return summary, fmt.Errorf("collection: %w", err)
	}
	summary.ReposTotal = len(result.Statuses)
	summary.Events = len(result.Events)
	for _, st := range result.Statuses {
		switch st.State {
		case contrib.FetchPartial:
			summary.ReposPartial++
			summary.RepoIssues = append(summary.RepoIssues, st)
		case contrib.FetchFailed:
			summary.ReposFailed++
			summary.RepoIssues = append(summary.RepoIssues, st)
		}
	}

	// Aggregate against prior state.
	prior, err := r.store.LoadCounters(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading prior counters: %w", err)
	}
	seen, err := r.store.SeenEvents(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading seen events: %w", err)
	}
	agg := contrib.Aggregate(r.cfg.Now(), result.Events, prior, func(user, id string) bool {
		return seen[user][id]
	})
	summary.Contributors = len(agg.Counters)

	rankings := contrib.Rank(agg.Counters)

	// Persist counters and dedup state, serialized per user.
	usernames := make([]string, 0, len(agg.Counters))
	for name := range agg.Counters {
		usernames = append(usernames, name)
	}
	sort.Strings(usernames)
	for _, name := range usernames {
		if err := r.store.UpsertCounters(ctx, agg.Counters[name]); err != nil {
			return summary, fmt.Errorf("persisting counters: %w", err)
		}
		if err := r.store.RecordSeenEvents(ctx, name, agg.NewEventIDs[name]); err != nil {
			return summary, fmt.Errorf("persisting seen events: %w", err)
		}
	}

	if err := r.store.SaveRankings(ctx, runID, rankings); err != nil {
		return summary, fmt.Errorf("persisting rankings: %w", err)
	}
	if err := r.store.SaveDocument(ctx, "hall_of_fame", rankings.HallOfFame()); err != nil {
		return summary, fmt.Errorf("persisting hall of fame: %w", err)
	}
	if err := r.store.SaveDocument(ctx, "reviewer_pool", contrib.ReviewerPool(rankings)); err != nil {
		return summary, fmt.Errorf("persisting reviewer pool: %w", err)
	}
	if err := r.store.SaveDocument(ctx, "repo_metrics", result.Metrics); err != nil {
		return summary, fmt.Errorf("persisting repo metrics: %w", err)
	}
	if err := r.store.SaveDocument(ctx, "repo_status", result.Statuses); err != nil {
		return summary, fmt.Errorf("persisting repo statuses: %w", err)
	}

	// Role policy: desired state for every linked user.
	links, err := r.store.IdentityLinks(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading identity links: %w", err)
	}
	linkedUsers := make(map[string]bool, len(links))
	desired := make(map[string][]string, len(links))
	for discordID, username := range links {
		linkedUsers[username] = true
		counters := agg.Counters[username] // zero counters when never active
		rank := rankings.RankOf(contrib.CategoryPullRequest, contrib.PeriodAllTime, username)
		roles := r.policy.DesiredRoles(counters, rank)
		desired[discordID] = roles
		if err := r.store.SaveRoleState(ctx, discordID, roles); err != nil {
			return summary, fmt.Errorf("persisting role state: %w", err)
		}
	}
	summary.Linked = len(links)
	for name := range agg.Counters {
		// Unlinked contributors stay in analytics but out of role sync.
		if !linkedUsers[name] {
			summary.Unresolved++
		}
	}

	// Reconcile.
	report, err := r.syncer.Sync(ctx, desired)
	summary.Sync = report
	if err != nil {
		return summary, fmt.Errorf("role synchronization: %w", err)
	}

	return summary, nil
}
