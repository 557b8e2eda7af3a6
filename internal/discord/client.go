// Package discord provides the guild client and the role synchronizer.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/ruxailab/disgitbot/pkg/logger"
)

const membersPageSize = 1000

// Member is the slice of guild-member state the synchronizer needs.
type Member struct {
	ID       string
	Username string
	Roles    []string // role IDs currently held
}

// Client wraps a discordgo session for one guild. Role mutations are
// throttled by a shared limiter so bursts queue instead of tripping the
// platform's per-route budget.
type Client struct {
	session *discordgo.Session
	guildID string
	limiter *rate.Limiter
}

// NewClient creates a REST-only Discord client for the guild. No gateway
// connection is opened; everything here works over plain HTTP calls.
func NewClient(token, guildID string, callsPerSec, burst int) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if callsPerSec < 1 {
		callsPerSec = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Client{
		session: session,
		guildID: guildID,
		limiter: rate.NewLimiter(rate.Limit(callsPerSec), burst),
	}, nil
}

// Members lists every guild member, following pagination to the end.
func (c *Client) Members(ctx context.Context) ([]Member, error) {
	var members []Member
	after := ""
	for {
		page, err := c.session.GuildMembers(c.guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list guild members: %w", err)
		}
		if len(page) == 0 {
			break
		}
		var next string
		members, next = appendMemberPage(members, page)
		if next == "" || next == after || len(page) < membersPageSize {
			break
		}
		after = next
	}
	return members, nil
}

// appendMemberPage folds one page of guild members into the list and returns
// the pagination cursor. Entries without a user record are skipped, but the
// cursor is taken from the page's last resolvable entry so a page ending in
// such entries is never re-requested.
func appendMemberPage(members []Member, page []*discordgo.Member) ([]Member, string) {
	for _, m := range page {
		if m.User == nil {
			continue
		}
		members = append(members, Member{
			ID:       m.User.ID,
			Username: m.User.Username,
			Roles:    m.Roles,
		})
	}
	next := ""
	for i := len(page) - 1; i >= 0; i-- {
		if page[i].User != nil {
			next = page[i].User.ID
			break
		}
	}
	return members, next
}

// EnsureRoles resolves role names to role IDs, creating any that do not
// exist yet in the guild. Returns the name -> ID mapping.
func (c *Client) EnsureRoles(ctx context.Context, names []string) (map[string]string, error) {
	existing, err := c.session.GuildRoles(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list guild roles: %w", err)
	}

	byName := make(map[string]string, len(existing))
	for _, r := range existing {
		byName[r.Name] = r.ID
	}

	out := make(map[string]string, len(names))
	for _, name := range names {
		if id, ok := byName[name]; ok {
			out[name] = id
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		role, err := c.session.GuildRoleCreate(c.guildID, &discordgo.RoleParams{Name: name}, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to create role %q: %w", name, err)
		}
		logger.Info().Str("role", name).Str("role_id", role.ID).Msg("Created managed role")
		out[name] = role.ID
	}
	return out, nil
}

// AddRole grants a role to a guild member.
func (c *Client) AddRole(ctx context.Context, userID, roleID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.session.GuildMemberRoleAdd(c.guildID, userID, roleID, discordgo.WithContext(ctx))
}

// RemoveRole revokes a role from a guild member.
func (c *Client) RemoveRole(ctx context.Context, userID, roleID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.session.GuildMemberRoleRemove(c.guildID, userID, roleID, discordgo.WithContext(ctx))
}
