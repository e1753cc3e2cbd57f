package auth

import (
	"slices"
	"time"
)

// TokenSource records which request channel carried the credential.
type TokenSource string

const (
	SourceBearer TokenSource = "bearer"
	SourceAPIKey TokenSource = "api_key"
	SourceQuery  TokenSource = "query"
	SourceCookie TokenSource = "cookie"
)

// Claims is the verified content of a credential.
type Claims struct {
	Subject     string
	Role        Role
	Permissions []string
	SessionID   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the claims carry an expiry at or before now.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Principal is the authenticated caller attached to one request. It is
// built once per request and not modified afterwards.
type Principal struct {
	UserID      string      `json:"user_id"`
	Role        Role        `json:"role"`
	Permissions []string    `json:"permissions"`
	SessionID   string      `json:"session_id,omitempty"`
	IssuedAt    time.Time   `json:"issued_at,omitzero"`
	ExpiresAt   time.Time   `json:"expires_at,omitzero"`
	TokenSource TokenSource `json:"token_source"`
}

// NewPrincipal builds a Principal from verified claims. When the claims
// carry no permissions the role's default set is used.
func NewPrincipal(c *Claims, src TokenSource) *Principal {
	perms := slices.Clone(c.Permissions)
	if len(perms) == 0 {
		perms = DefaultPermissions(c.Role)
	}
	return &Principal{
		UserID:      c.Subject,
		Role:        c.Role,
		Permissions: perms,
		SessionID:   c.SessionID,
		IssuedAt:    c.IssuedAt,
		ExpiresAt:   c.ExpiresAt,
		TokenSource: src,
	}
}

// HasPermission reports whether the principal holds perm or the wildcard.
func (p *Principal) HasPermission(perm string) bool {
	return HasPermission(p.Permissions, perm)
}

// HasRole checks the principal's rank against required. With requireAll
// every listed role must be covered; otherwise one is enough. An empty
// list always passes.
func (p *Principal) HasRole(required []Role, requireAll bool) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		ok := p.Role.Satisfies(r)
		if requireAll && !ok {
			return false
		}
		if !requireAll && ok {
			return true
		}
	}
	return requireAll
}
