// Package access decides who may act on an organization's billing records.
package access

import (
	"context"
	"errors"
	"strings"

	"saascore/models"
)

var (
	// ErrDenied is returned for every refusal: no membership, insufficient role or
	// missing elevated authority. Callers never learn whether the organization exists.
	ErrDenied = errors.New("access denied")
	// ErrLookup wraps a failure to read memberships.
	ErrLookup = errors.New("access: membership lookup failed")
)

// Principal is the authenticated caller. Elevated is resolved once per request.
type Principal struct {
	UserID   uint
	Email    string
	Elevated bool
}

// MembershipSource finds a user's membership in an organization. It returns
// a nil membership, or an error satisfying errors.Is(err, notFound), when there is none.
type MembershipSource interface {
	MembershipFor(ctx context.Context, userID, orgID uint) (*models.Membership, error)
}

type Guard struct {
	src         MembershipSource
	notFound    error
	adminEmails map[string]struct{}
}

// NewGuard builds a guard over src. notFound is the error src reports for a
// missing membership; adminEmails are granted elevated authority in addition to
// users flagged as platform admins.
func NewGuard(src MembershipSource, notFound error, adminEmails []string) *Guard {
	g := &Guard{src: src, notFound: notFound, adminEmails: make(map[string]struct{}, len(adminEmails))}
	for _, e := range adminEmails {
		g.adminEmails[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return g
}

// IsElevated reports whether u holds platform operator authority.
func (g *Guard) IsElevated(u *models.User) bool {
	if u == nil {
		return false
	}
	if u.PlatformAdmin {
		return true
	}
	_, ok := g.adminEmails[strings.ToLower(u.Email)]
	return ok
}

// Principal builds the per-request caller for u.
func (g *Guard) Principal(u *models.User) Principal {
	return Principal{UserID: u.ID, Email: u.Email, Elevated: g.IsElevated(u)}
}

// Authorize returns the caller's membership in orgID, or ErrDenied.
func (g *Guard) Authorize(ctx context.Context, p Principal, orgID uint) (*models.Membership, error) {
	if p.UserID == 0 {
		return nil, ErrDenied
	}
	m, err := g.src.MembershipFor(ctx, p.UserID, orgID)
	if err != nil {
		if g.notFound != nil && errors.Is(err, g.notFound) {
			return nil, ErrDenied
		}
		return nil, errors.Join(ErrLookup, err)
	}
	if m == nil || !m.Role.Valid() {
		return nil, ErrDenied
	}
	return m, nil
}

// RequireRole is Authorize plus a check that the membership holds one of roles.
func (g *Guard) RequireRole(ctx context.Context, p Principal, orgID uint, roles ...models.Role) (*models.Membership, error) {
	m, err := g.Authorize(ctx, p, orgID)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if m.Role == r {
			return m, nil
		}
	}
	return nil, ErrDenied
}

func (g *Guard) RequireElevated(p Principal) error {
	if p.UserID == 0 || !p.Elevated {
		return ErrDenied
	}
	return nil
}
