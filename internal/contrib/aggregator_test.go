package contrib_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/ruxailab/disgitbot/internal/contrib"
	. "github.com/smartystreets/goconvey/convey"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", s, err)
	}
	return ts
}

func prEvent(id, author string, ts time.Time) contrib.Event {
	return contrib.Event{
		ID:        id,
		Author:    author,
		Repo:      "platform",
		Category:  contrib.CategoryPullRequest,
		Timestamp: ts,
	}
}

func TestAggregate_Windows(t *testing.T) {
	Convey("Given PR events spread across day, week and month boundaries", t, func() {
		now := day(t, "2026-03-18T15:00:00Z") // Wednesday, ISO week 12
		events := []contrib.Event{
			prEvent("pr-1", "alice", day(t, "2026-03-18T09:00:00Z")), // today
			prEvent("pr-2", "alice", day(t, "2026-03-16T09:00:00Z")), // same ISO week
			prEvent("pr-3", "alice", day(t, "2026-03-02T09:00:00Z")), // same month only
			prEvent("pr-4", "alice", day(t, "2025-11-20T09:00:00Z")), // all-time only
		}

		Convey("When aggregating with no prior state", func() {
			res := contrib.Aggregate(now, events, nil, nil)
			c := res.Counters["alice"]

			Convey("Then each window counts exactly the events inside it", func() {
				So(c.PRs.Daily, ShouldEqual, 1)
				So(c.PRs.Weekly, ShouldEqual, 2)
				So(c.PRs.Monthly, ShouldEqual, 3)
				So(c.PRs.AllTime, ShouldEqual, 4)
			})

			Convey("And every event ID is reported as newly counted", func() {
				So(res.NewEventIDs["alice"], ShouldHaveLength, 4)
			})
		})
	})
}

func TestAggregate_Monotonicity(t *testing.T) {
	Convey("Given a prior run that already counted two pull requests", t, func() {
		now := day(t, "2026-03-18T15:00:00Z")
		prior := map[string]contrib.Counters{
			"alice": {
				Username:   "alice",
				PRs:        contrib.WindowCounts{AllTime: 2},
				LastActive: "2026-03-17",
			},
		}
		seenSet := map[string]bool{"pr-old-1": true, "pr-old-2": true}
		seen := func(_, id string) bool { return seenSet[id] }

		Convey("When the collector replays an old page plus one new event", func() {
			events := []contrib.Event{
				prEvent("pr-old-2", "alice", day(t, "2026-03-10T09:00:00Z")),
				prEvent("pr-new", "alice", day(t, "2026-03-18T09:00:00Z")),
			}
			res := contrib.Aggregate(now, events, prior, seen)
			c := res.Counters["alice"]

			Convey("Then all_time grows only by the unseen event", func() {
				So(c.PRs.AllTime, ShouldEqual, 3)
				So(res.NewEventIDs["alice"], ShouldResemble, []string{"pr-new"})
			})
		})

		Convey("When a run returns no events at all", func() {
			res := contrib.Aggregate(now, nil, prior, seen)
			c := res.Counters["alice"]

			Convey("Then prior all_time is carried forward unchanged", func() {
				So(c.PRs.AllTime, ShouldEqual, 2)
				So(c.PRs.Daily, ShouldEqual, 0)
			})
		})

		Convey("When the same event appears twice within one run", func() {
			events := []contrib.Event{
				prEvent("pr-new", "alice", day(t, "2026-03-18T09:00:00Z")),
				prEvent("pr-new", "alice", day(t, "2026-03-18T09:00:00Z")),
			}
			res := contrib.Aggregate(now, events, prior, seen)

			Convey("Then it is counted once", func() {
				So(res.Counters["alice"].PRs.AllTime, ShouldEqual, 3)
				So(res.Counters["alice"].PRs.Daily, ShouldEqual, 1)
			})
		})
	})
}

func TestAggregate_Streaks(t *testing.T) {
	Convey("Given events on days 1, 2, 3 and 5", t, func() {
		now := day(t, "2026-03-05T20:00:00Z")
		events := []contrib.Event{
			prEvent("p1", "bob", day(t, "2026-03-01T10:00:00Z")),
			prEvent("p2", "bob", day(t, "2026-03-02T10:00:00Z")),
			prEvent("p3", "bob", day(t, "2026-03-03T10:00:00Z")),
			prEvent("p5", "bob", day(t, "2026-03-05T10:00:00Z")),
		}

		Convey("When aggregating after day 5", func() {
			res := contrib.Aggregate(now, events, nil, nil)
			c := res.Counters["bob"]

			Convey("Then the current streak restarted at the gap and the longest is preserved", func() {
				So(c.CurrentStreak, ShouldEqual, 1)
				So(c.LongestStreak, ShouldEqual, 3)
				So(c.LastActive, ShouldEqual, "2026-03-05")
			})
		})
	})

	Convey("Given a prior streak ending yesterday", t, func() {
		now := day(t, "2026-03-05T20:00:00Z")
		prior := map[string]contrib.Counters{
			"bob": {Username: "bob", CurrentStreak: 4, LongestStreak: 4, LastActive: "2026-03-04"},
		}

		Convey("When the user is active again today", func() {
			events := []contrib.Event{prEvent("px", "bob", day(t, "2026-03-05T10:00:00Z"))}
			res := contrib.Aggregate(now, events, prior, nil)

			Convey("Then the streak extends", func() {
				So(res.Counters["bob"].CurrentStreak, ShouldEqual, 5)
				So(res.Counters["bob"].LongestStreak, ShouldEqual, 5)
			})
		})

		Convey("When the user is active twice on the same day", func() {
			events := []contrib.Event{
				prEvent("px", "bob", day(t, "2026-03-05T10:00:00Z")),
				prEvent("py", "bob", day(t, "2026-03-05T11:00:00Z")),
			}
			res := contrib.Aggregate(now, events, prior, nil)

			Convey("Then the streak counts the day once", func() {
				So(res.Counters["bob"].CurrentStreak, ShouldEqual, 5)
			})
		})
	})

	Convey("Given a prior streak that went stale", t, func() {
		now := day(t, "2026-03-10T20:00:00Z")
		prior := map[string]contrib.Counters{
			"bob": {Username: "bob", CurrentStreak: 4, LongestStreak: 6, LastActive: "2026-03-04"},
		}

		Convey("When a run finds no events for the user", func() {
			res := contrib.Aggregate(now, nil, prior, nil)

			Convey("Then the current streak drops to zero, the longest survives", func() {
				So(res.Counters["bob"].CurrentStreak, ShouldEqual, 0)
				So(res.Counters["bob"].LongestStreak, ShouldEqual, 6)
			})
		})
	})
}

func TestAggregate_PartialFailureIsolation(t *testing.T) {
	Convey("Given events that only repository A managed to return", t, func() {
		now := day(t, "2026-03-18T15:00:00Z")
		var events []contrib.Event
		for i := 0; i < 3; i++ {
			ev := prEvent(fmt.Sprintf("a-%d", i), "carol", day(t, "2026-03-18T09:00:00Z"))
			ev.Repo = "repo-a"
			events = append(events, ev)
		}

		Convey("When repository B contributed nothing because it failed", func() {
			res := contrib.Aggregate(now, events, nil, nil)

			Convey("Then repository A's counters are intact", func() {
				So(res.Counters["carol"].PRs.AllTime, ShouldEqual, 3)
				So(res.Counters["carol"].PRs.Daily, ShouldEqual, 3)
			})
		})
	})
}
