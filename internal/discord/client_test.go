package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestAppendMemberPage_AdvancesCursorPastMissingUsers(t *testing.T) {
	page := []*discordgo.Member{
		{User: &discordgo.User{ID: "1", Username: "alice"}, Roles: []string{"r1"}},
		{User: &discordgo.User{ID: "2", Username: "bob"}},
		{User: nil},
	}

	members, next := appendMemberPage(nil, page)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].ID != "1" || members[1].ID != "2" {
		t.Errorf("unexpected members: %+v", members)
	}
	if next != "2" {
		t.Errorf("cursor must advance to the last resolvable user, got %q", next)
	}
}

func TestAppendMemberPage_AllMissingUsersYieldsNoCursor(t *testing.T) {
	members, next := appendMemberPage(nil, []*discordgo.Member{{User: nil}, {User: nil}})
	if len(members) != 0 {
		t.Errorf("expected no members, got %d", len(members))
	}
	if next != "" {
		t.Errorf("expected empty cursor to end pagination, got %q", next)
	}
}
