package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ruxailab/disgitbot/internal/contrib"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestCountersRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	c := contrib.Counters{
		Username:      "alice",
		PRs:           contrib.WindowCounts{Daily: 1, Weekly: 2, Monthly: 3, AllTime: 10},
		Issues:        contrib.WindowCounts{AllTime: 4},
		Commits:       contrib.WindowCounts{AllTime: 60},
		CurrentStreak: 2,
		LongestStreak: 5,
		LastActive:    "2026-03-18",
	}
	if err := store.UpsertCounters(ctx, c); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Upsert again with superseding values; the row must be replaced, not duplicated.
	c.PRs.AllTime = 11
	c.CurrentStreak = 3
	if err := store.UpsertCounters(ctx, c); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	loaded, err := store.LoadCounters(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 contributor, got %d", len(loaded))
	}
	got := loaded["alice"]
	if got.PRs.AllTime != 11 || got.CurrentStreak != 3 || got.LastActive != "2026-03-18" {
		t.Errorf("unexpected counters after upsert: %+v", got)
	}
	if got.Commits.AllTime != 60 {
		t.Errorf("commit all_time lost: %+v", got)
	}
}

func TestSeenEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ids := []string{"org/repo:pr-1", "org/repo:pr-2"}
	if err := store.RecordSeenEvents(ctx, "alice", ids); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	// Replaying the same IDs must be a no-op.
	if err := store.RecordSeenEvents(ctx, "alice", ids); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	seen, err := store.SeenEvents(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(seen["alice"]) != 2 {
		t.Errorf("expected 2 seen events, got %d", len(seen["alice"]))
	}
	if !seen["alice"]["org/repo:pr-1"] {
		t.Error("expected pr-1 to be seen")
	}
	if seen["bob"] != nil {
		t.Error("unexpected seen set for bob")
	}
}

func TestRankingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	counters := map[string]contrib.Counters{
		"alice": {Username: "alice", PRs: contrib.WindowCounts{AllTime: 5}},
		"bob":   {Username: "bob", PRs: contrib.WindowCounts{AllTime: 9}},
	}
	rankings := contrib.Rank(counters)
	if err := store.SaveRankings(ctx, "run-1", rankings); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	entries, err := store.LoadRanking(ctx, contrib.CategoryPullRequest, contrib.PeriodAllTime)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Username != "bob" || entries[0].Rank != 1 {
		t.Errorf("unexpected ranking: %+v", entries)
	}

	// A later run fully supersedes the stored leaderboards.
	delete(counters, "bob")
	if err := store.SaveRankings(ctx, "run-2", contrib.Rank(counters)); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	entries, err = store.LoadRanking(ctx, contrib.CategoryPullRequest, contrib.PeriodAllTime)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Username != "alice" {
		t.Errorf("stale ranking rows survived: %+v", entries)
	}
}

func TestIdentityAndRoleState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.LinkIdentity(ctx, "111", "alice"); err != nil {
		t.Fatalf("link failed: %v", err)
	}
	links, err := store.IdentityLinks(ctx)
	if err != nil {
		t.Fatalf("load links failed: %v", err)
	}
	if links["111"] != "alice" {
		t.Errorf("unexpected links: %v", links)
	}

	if err := store.SaveRoleState(ctx, "111", []string{"Beginner (1-5 PRs)"}); err != nil {
		t.Fatalf("save role state failed: %v", err)
	}
	state, err := store.RoleState(ctx)
	if err != nil {
		t.Fatalf("load role state failed: %v", err)
	}
	if len(state["111"]) != 1 || state["111"][0] != "Beginner (1-5 PRs)" {
		t.Errorf("unexpected role state: %v", state)
	}
}

func TestRunLock(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.AcquireRunLock(ctx, "guild-1", "run-a", time.Hour); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	err := store.AcquireRunLock(ctx, "guild-1", "run-b", time.Hour)
	if !errors.Is(err, ErrRunConflict) {
		t.Fatalf("expected ErrRunConflict, got %v", err)
	}

	// A different scope is independent.
	if err := store.AcquireRunLock(ctx, "guild-2", "run-b", time.Hour); err != nil {
		t.Fatalf("other scope acquire failed: %v", err)
	}

	if err := store.ReleaseRunLock(ctx, "guild-1", "run-a"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := store.AcquireRunLock(ctx, "guild-1", "run-b", time.Hour); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
}

func TestRunLock_ExpiredLeaseIsStolen(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// A crashed run left a lease that expired immediately.
	if err := store.AcquireRunLock(ctx, "guild-1", "run-dead", -time.Second); err != nil {
		t.Fatalf("seed acquire failed: %v", err)
	}
	if err := store.AcquireRunLock(ctx, "guild-1", "run-live", time.Hour); err != nil {
		t.Fatalf("expected expired lease to be stolen, got %v", err)
	}
}

func TestRunLock_ExpiryBoundaryIsNumeric(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// A lease that expired one nanosecond ago must be stealable even when
	// both timestamps land inside the same wall-clock second.
	expired := time.Now().UTC().UnixNano() - 1
	if _, err := store.db.ExecContext(ctx,
		`INSERT INTO run_locks (scope, run_id, acquired_at, expires_at) VALUES (?, ?, ?, ?)`,
		"guild-1", "run-dead", expired-int64(time.Second), expired,
	); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := store.AcquireRunLock(ctx, "guild-1", "run-live", time.Hour); err != nil {
		t.Fatalf("expected barely expired lease to be stolen, got %v", err)
	}
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	started := time.Date(2026, 3, 18, 6, 0, 0, 0, time.UTC)
	if err := store.RecordRunStart(ctx, "run-1", started); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	type summary struct {
		Contributors int `json:"contributors"`
	}
	if err := store.RecordRunFinish(ctx, "run-1", "succeeded", started.Add(time.Minute), summary{Contributors: 7}); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	rec, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if rec == nil || rec.RunID != "run-1" || rec.Status != "succeeded" {
		t.Errorf("unexpected run record: %+v", rec)
	}
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	pool := []string{"alice", "bob"}
	if err := store.SaveDocument(ctx, "reviewer_pool", pool); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var got []string
	if err := store.GetDocument(ctx, "reviewer_pool", &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got) != 2 || got[0] != "alice" {
		t.Errorf("unexpected document: %v", got)
	}
}
