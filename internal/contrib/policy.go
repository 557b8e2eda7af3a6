package contrib

import "sort"

// Tier maps a minimum all-time count to a role name.
type Tier struct {
	Threshold int
	Role      string
}

// Default tier tables. A user holds at most one role per category: the
// highest tier whose threshold their all-time count meets.
var (
	PRTiers = []Tier{
		{1, "Beginner (1-5 PRs)"},
		{6, "Contributor (6-15 PRs)"},
		{16, "Analyst (16-30 PRs)"},
		{31, "Expert (31-50 PRs)"},
		{51, "Master (51+ PRs)"},
	}
	IssueTiers = []Tier{
		{1, "Beginner (1-5 Issues)"},
		{6, "Contributor (6-15 Issues)"},
		{16, "Analyst (16-30 Issues)"},
		{31, "Expert (31-50 Issues)"},
		{51, "Master (51+ Issues)"},
	}
	CommitTiers = []Tier{
		{1, "Beginner (1-50 Commits)"},
		{51, "Contributor (51-100 Commits)"},
		{101, "Analyst (101-250 Commits)"},
		{251, "Expert (251-500 Commits)"},
		{501, "Master (501+ Commits)"},
	}

	// MedalRoles are held by the top three of the all-time PR leaderboard,
	// in rank order. Mutually exclusive.
	MedalRoles = []string{"PR Champion", "PR Runner-up", "PR Bronze"}
)

// ReviewerPoolSize is how many of the top all-time PR contributors are
// published for the external reviewer-assignment incentive pool.
const ReviewerPoolSize = 8

// Policy maps counters and rankings to desired role sets.
type Policy struct {
	PRTiers     []Tier
	IssueTiers  []Tier
	CommitTiers []Tier
	Medals      []string
}

// DefaultPolicy returns the policy with the standard tier tables.
func DefaultPolicy() Policy {
	return Policy{
		PRTiers:     PRTiers,
		IssueTiers:  IssueTiers,
		CommitTiers: CommitTiers,
		Medals:      MedalRoles,
	}
}

// ManagedRoles returns every role name this policy can assign. The
// synchronizer only ever touches roles in this set.
func (p Policy) ManagedRoles() []string {
	var roles []string
	for _, tiers := range [][]Tier{p.PRTiers, p.IssueTiers, p.CommitTiers} {
		for _, t := range tiers {
			roles = append(roles, t.Role)
		}
	}
	roles = append(roles, p.Medals...)
	return roles
}

// DesiredRoles computes the role set a user should hold: the highest
// satisfied tier per category plus a medal role when prAllTimeRank is 1-3.
// The result is sorted, so identical inputs yield an identical slice.
func (p Policy) DesiredRoles(c Counters, prAllTimeRank int) []string {
	var roles []string
	if r := tierRole(p.PRTiers, c.PRs.AllTime); r != "" {
		roles = append(roles, r)
	}
	if r := tierRole(p.IssueTiers, c.Issues.AllTime); r != "" {
		roles = append(roles, r)
	}
	if r := tierRole(p.CommitTiers, c.Commits.AllTime); r != "" {
		roles = append(roles, r)
	}
	if prAllTimeRank >= 1 && prAllTimeRank <= len(p.Medals) {
		roles = append(roles, p.Medals[prAllTimeRank-1])
	}
	sort.Strings(roles)
	return roles
}

// ReviewerPool returns the usernames eligible for the reviewer incentive
// pool: the top entries of the all-time PR leaderboard that have at least
// one pull request.
func ReviewerPool(rankings Rankings) []string {
	var pool []string
	for _, e := range rankings.Top(CategoryPullRequest, PeriodAllTime, ReviewerPoolSize) {
		if e.Count > 0 {
			pool = append(pool, e.Username)
		}
	}
	return pool
}

// tierRole returns the highest tier role whose threshold count meets, or ""
// when no tier is satisfied. Tiers must be in ascending threshold order.
func tierRole(tiers []Tier, count int) string {
	role := ""
	for _, t := range tiers {
		if count >= t.Threshold {
			role = t.Role
		}
	}
	return role
}
