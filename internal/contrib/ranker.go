package contrib

import "sort"

// HallOfFameSize is the number of entries in the top-N leaderboard view.
const HallOfFameSize = 10

// RankEntry is one row of a leaderboard.
type RankEntry struct {
	Username string `json:"username"`
	Count    int    `json:"count"`
	Rank     int    `json:"rank"`
}

// Rankings holds the full ordered leaderboard per category and period.
type Rankings map[Category]map[Period][]RankEntry

// Rank builds leaderboards for every category/period combination.
//
// Entries are ordered by count descending with ties broken by ascending
// username, so the ordering is a total order and reruns on identical input
// produce identical rank assignments. Ranks are 1..n with no gaps.
func Rank(counters map[string]Counters) Rankings {
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}

	rankings := make(Rankings, len(Categories()))
	for _, cat := range Categories() {
		byPeriod := make(map[Period][]RankEntry, len(Periods()))
		for _, period := range Periods() {
			entries := make([]RankEntry, 0, len(names))
			for _, name := range names {
				entries = append(entries, RankEntry{
					Username: name,
					Count:    counters[name].Count(cat, period),
				})
			}
			sort.Slice(entries, func(i, j int) bool {
				if entries[i].Count != entries[j].Count {
					return entries[i].Count > entries[j].Count
				}
				return entries[i].Username < entries[j].Username
			})
			for i := range entries {
				entries[i].Rank = i + 1
			}
			byPeriod[period] = entries
		}
		rankings[cat] = byPeriod
	}
	return rankings
}

// Top returns the first n entries of one leaderboard.
func (r Rankings) Top(cat Category, period Period, n int) []RankEntry {
	entries := r[cat][period]
	if n > len(entries) {
		n = len(entries)
	}
	return entries[:n]
}

// RankOf returns a user's rank on one leaderboard, or 0 if the user is absent.
func (r Rankings) RankOf(cat Category, period Period, username string) int {
	for _, e := range r[cat][period] {
		if e.Username == username {
			return e.Rank
		}
	}
	return 0
}

// HallOfFame returns the top-10 view for every category and period.
func (r Rankings) HallOfFame() map[Category]map[Period][]RankEntry {
	hof := make(map[Category]map[Period][]RankEntry, len(r))
	for cat, byPeriod := range r {
		hof[cat] = make(map[Period][]RankEntry, len(byPeriod))
		for period := range byPeriod {
			top := r.Top(cat, period, HallOfFameSize)
			entries := make([]RankEntry, len(top))
			copy(entries, top)
			hof[cat][period] = entries
		}
	}
	return hof
}
