package discord

import (
	"context"
	"fmt"
	"sort"

	"github.com/ruxailab/disgitbot/pkg/logger"
)

// RoleBackend is the narrow chat-platform surface the synchronizer needs.
// *Client implements it; tests substitute a fake.
type RoleBackend interface {
	Members(ctx context.Context) ([]Member, error)
	EnsureRoles(ctx context.Context, names []string) (map[string]string, error)
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
}

// Report summarizes one reconciliation pass.
type Report struct {
	MembersSynced  int `json:"members_synced"`  // linked members whose diff was applied (possibly empty)
	MembersSkipped int `json:"members_skipped"` // unresolved members, left untouched
	MembersFailed  int `json:"members_failed"`
	RolesAdded     int `json:"roles_added"`
	RolesRemoved   int `json:"roles_removed"`
	MutationCalls  int `json:"mutation_calls"`
}

// Syncer reconciles observed guild roles against a desired role state.
// It only ever touches the managed role set; anything else a member holds
// is out of its jurisdiction.
type Syncer struct {
	backend RoleBackend
	managed []string
}

// NewSyncer creates a synchronizer owning the given managed role names.
func NewSyncer(backend RoleBackend, managedRoles []string) *Syncer {
	return &Syncer{backend: backend, managed: managedRoles}
}

// Sync applies the minimal role diff for every linked guild member.
//
// desired maps Discord user IDs to role names; members absent from the map
// are unresolved and skipped. Per member, removals run before additions so
// mutually exclusive tiers never overlap, and a member with an empty diff
// costs zero API calls, so running Sync twice on unchanged input issues no
// mutations the second time. A failing member is logged and skipped; the
// remaining members still reconcile.
func (s *Syncer) Sync(ctx context.Context, desired map[string][]string) (Report, error) {
	var report Report

	roleIDs, err := s.backend.EnsureRoles(ctx, s.managed)
	if err != nil {
		return report, fmt.Errorf("failed to resolve managed roles: %w", err)
	}
	managedIDs := make(map[string]string, len(roleIDs)) // id -> name
	for name, id := range roleIDs {
		managedIDs[id] = name
	}

	members, err := s.backend.Members(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list members: %w", err)
	}

	for _, member := range members {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		wantNames, linked := desired[member.ID]
		if !linked {
			report.MembersSkipped++
			continue
		}

		toRemove, toAdd := diffRoles(member.Roles, wantNames, roleIDs, managedIDs)

		if err := s.applyDiff(ctx, member, toRemove, toAdd, managedIDs, &report); err != nil {
			report.MembersFailed++
			logger.Error().
				Err(err).
				Str("member_id", member.ID).
				Str("member", member.Username).
				Msg("Failed to reconcile member roles")
			continue
		}
		report.MembersSynced++
	}

	return report, nil
}

// diffRoles computes which managed roles the member holds but should not,
// and which desired roles are missing, both as role IDs in sorted order.
func diffRoles(observed, wantNames []string, roleIDs, managedIDs map[string]string) (toRemove, toAdd []string) {
	wantIDs := make(map[string]bool, len(wantNames))
	for _, name := range wantNames {
		if id, ok := roleIDs[name]; ok {
			wantIDs[id] = true
		}
	}

	held := make(map[string]bool, len(observed))
	for _, id := range observed {
		held[id] = true
		// Roles outside the managed set are never touched.
		if _, managed := managedIDs[id]; managed && !wantIDs[id] {
			toRemove = append(toRemove, id)
		}
	}
	for id := range wantIDs {
		if !held[id] {
			toAdd = append(toAdd, id)
		}
	}

	sort.Strings(toRemove)
	sort.Strings(toAdd)
	return toRemove, toAdd
}

// applyDiff issues removals before additions for one member.
func (s *Syncer) applyDiff(ctx context.Context, member Member, toRemove, toAdd []string, managedIDs map[string]string, report *Report) error {
	for _, id := range toRemove {
		report.MutationCalls++
		if err := s.backend.RemoveRole(ctx, member.ID, id); err != nil {
			return fmt.Errorf("remove %q: %w", managedIDs[id], err)
		}
		report.RolesRemoved++
		logger.Debug().
			Str("member", member.Username).
			Str("role", managedIDs[id]).
			Msg("Removed role")
	}
	for _, id := range toAdd {
		report.MutationCalls++
		if err := s.backend.AddRole(ctx, member.ID, id); err != nil {
			return fmt.Errorf("add %q: %w", managedIDs[id], err)
		}
		report.RolesAdded++
		logger.Debug().
			Str("member", member.Username).
			Str("role", managedIDs[id]).
			Msg("Added role")
	}
	return nil
}
