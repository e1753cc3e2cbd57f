package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/talentsphere/securecore/internal/errs"
)

// Verifier turns a raw credential into claims. Implementations return
// errs.ErrTokenExpired for expired credentials and errs.ErrInvalidToken for
// anything else they reject.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (*Claims, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (*Claims, error) {
	return f(ctx, token)
}

// JWTVerifier verifies and issues HS256 tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// JWTOption configures a JWTVerifier.
type JWTOption func(*JWTVerifier)

// WithIssuer sets the iss claim written by Issue and required by Verify.
func WithIssuer(iss string) JWTOption {
	return func(v *JWTVerifier) { v.issuer = iss }
}

// WithClock replaces time.Now for issuing and expiry checks.
func WithClock(now func() time.Time) JWTOption {
	return func(v *JWTVerifier) { v.now = now }
}

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret string, opts ...JWTOption) *JWTVerifier {
	v := &JWTVerifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type tokenClaims struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	SessionID   string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Verify parses and checks token. The signature, exp and (when configured)
// iss claims are validated; sub and role must be present.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	tc := &tokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, tc, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.Wrap(errs.CodeTokenExpired, err, "token has expired")
		}
		return nil, errs.Wrap(errs.CodeInvalidToken, err, "invalid token")
	}
	if !parsed.Valid {
		return nil, errs.New(errs.CodeInvalidToken, "invalid token")
	}
	if tc.Subject == "" {
		return nil, errs.New(errs.CodeInvalidToken, "token has no subject")
	}
	role, err := ParseRole(tc.Role)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInvalidToken, err, "token has no valid role")
	}

	c := &Claims{
		Subject:     tc.Subject,
		Role:        role,
		Permissions: tc.Permissions,
		SessionID:   tc.SessionID,
	}
	if tc.IssuedAt != nil {
		c.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	return c, nil
}

// Issue signs a token for c valid for ttl. A missing session id is filled
// with a fresh UUID. Negative ttl yields an already expired token.
func (v *JWTVerifier) Issue(c Claims, ttl time.Duration) (string, error) {
	if c.Subject == "" {
		return "", errors.New("issue token: subject is required")
	}
	if !c.Role.Valid() {
		return "", fmt.Errorf("issue token: unknown role %q", c.Role)
	}
	if c.SessionID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("issue token: %w", err)
		}
		c.SessionID = id.String()
	}
	now := v.now()
	tc := tokenClaims{
		Role:        string(c.Role),
		Permissions: c.Permissions,
		SessionID:   c.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(v.secret)
}
