package contrib

import (
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// SeenFunc reports whether an event ID was already counted into all_time
// totals by a previous run. The aggregator never counts a seen event twice,
// which keeps all_time monotonic even when the collector returns overlapping
// pages across runs.
type SeenFunc func(username, eventID string) bool

// AggregateResult is the output of one aggregation pass.
type AggregateResult struct {
	Counters map[string]Counters
	// NewEventIDs lists, per user, the event IDs counted into all_time this
	// run. The caller persists them into the seen-set.
	NewEventIDs map[string][]string
}

// Aggregate buckets the run's events into per-user counters.
//
// Window counts (daily, weekly, monthly) are recomputed from scratch: daily
// covers the current UTC day, weekly the current ISO week, monthly the current
// calendar month, all anchored at now. All_time extends the prior counters by
// events not yet in the seen-set. Streaks advance per the prior last-active
// date; duplicate events within the run are dropped by ID.
//
// Prior entries with no events this run are carried forward so that users do
// not vanish from rankings; their current streak decays to zero once they have
// been inactive for more than a day.
func Aggregate(now time.Time, events []Event, prior map[string]Counters, seen SeenFunc) AggregateResult {
	now = now.UTC()
	today := now.Format(dateLayout)
	isoYear, isoWeek := now.ISOWeek()

	out := make(map[string]Counters, len(prior))
	for name, c := range prior {
		c.Username = name
		c.PRs = WindowCounts{AllTime: c.PRs.AllTime}
		c.Issues = WindowCounts{AllTime: c.Issues.AllTime}
		c.Commits = WindowCounts{AllTime: c.Commits.AllTime}
		out[name] = c
	}

	newIDs := make(map[string][]string)
	inRun := make(map[string]struct{}, len(events))
	activeDates := make(map[string]map[string]struct{})

	for _, ev := range events {
		if ev.Author == "" || ev.ID == "" {
			continue
		}
		if _, dup := inRun[ev.ID]; dup {
			continue
		}
		inRun[ev.ID] = struct{}{}

		c, ok := out[ev.Author]
		if !ok {
			c = Counters{Username: ev.Author}
		}
		w := c.window(ev.Category)
		if w == nil {
			continue
		}

		ts := ev.Timestamp.UTC()
		day := ts.Format(dateLayout)
		if day == today {
			w.Daily++
		}
		if y, wk := ts.ISOWeek(); y == isoYear && wk == isoWeek {
			w.Weekly++
		}
		if ts.Year() == now.Year() && ts.Month() == now.Month() {
			w.Monthly++
		}

		if seen == nil || !seen(ev.Author, ev.ID) {
			w.AllTime++
			newIDs[ev.Author] = append(newIDs[ev.Author], ev.ID)
			dates, ok := activeDates[ev.Author]
			if !ok {
				dates = make(map[string]struct{})
				activeDates[ev.Author] = dates
			}
			dates[day] = struct{}{}
		}

		out[ev.Author] = c
	}

	for name, c := range out {
		advanceStreak(&c, sortedDates(activeDates[name]), today)
		out[name] = c
	}

	return AggregateResult{Counters: out, NewEventIDs: newIDs}
}

// advanceStreak walks the user's newly active dates in order and updates the
// streak state. An event on the day after last_active extends the streak, a
// same-day event leaves it unchanged, and a larger gap restarts it at 1. With
// no activity this run, a gap of more than one day behind today zeroes the
// current streak.
func advanceStreak(c *Counters, dates []string, today string) {
	for _, day := range dates {
		switch gap := dayGap(c.LastActive, day); {
		case c.LastActive == "":
			c.CurrentStreak = 1
		case gap == 0:
			// Same day, streak unchanged.
		case gap == 1:
			c.CurrentStreak++
		case gap > 1:
			c.CurrentStreak = 1
		default:
			// Out-of-order historical date, ignore.
			continue
		}
		c.LastActive = day
		if c.CurrentStreak > c.LongestStreak {
			c.LongestStreak = c.CurrentStreak
		}
	}

	if len(dates) == 0 && c.LastActive != "" && dayGap(c.LastActive, today) > 1 {
		c.CurrentStreak = 0
	}
}

// dayGap returns the whole days from date a to date b (both YYYY-MM-DD).
// Negative means b precedes a.
func dayGap(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	ta, err := time.Parse(dateLayout, a)
	if err != nil {
		return 0
	}
	tb, err := time.Parse(dateLayout, b)
	if err != nil {
		return 0
	}
	return int(tb.Sub(ta) / (24 * time.Hour))
}

func sortedDates(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	dates := make([]string, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
