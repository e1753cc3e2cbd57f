package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/talentsphere/securecore/internal/auth"
	"github.com/talentsphere/securecore/internal/errs"
	"github.com/talentsphere/securecore/internal/model"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"

	principalHolderKey contextKeyAuth = "principal_holder"
)

// Credential locations, in the order ExtractToken consults them.
const (
	HeaderAPIKey = "X-API-Key"
	QueryToken   = "token"
	CookieToken  = "auth_token"
)

// TokenResolver turns a raw credential into verified claims.
// *auth.TokenCache is the production implementation.
type TokenResolver interface {
	Get(ctx context.Context, token string) (*auth.Claims, error)
}

// AuthOptions configures Authenticate and OptionalAuth.
type AuthOptions struct {
	// SkipPaths bypass authentication. An entry ending in "*" matches by
	// prefix; any other entry must match the path exactly.
	SkipPaths []string
}

func (o AuthOptions) skip(path string) bool {
	for _, p := range o.SkipPaths {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		} else if path == p {
			return true
		}
	}
	return false
}

// Authenticator builds the authentication and authorization middleware.
type Authenticator struct {
	resolver    TokenResolver
	owners      auth.OwnershipChecker
	logger      *slog.Logger
	now         func() time.Time
	development bool
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithOwnership sets the collaborator consulted by RequireOwnership.
func WithOwnership(c auth.OwnershipChecker) AuthenticatorOption {
	return func(a *Authenticator) { a.owners = c }
}

// WithAuthLogger sets the logger used for rejected requests.
func WithAuthLogger(l *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.logger = l }
}

// WithAuthClock replaces time.Now for the expiry check.
func WithAuthClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) { a.now = now }
}

// WithDevelopment includes backend error detail in responses.
func WithDevelopment(dev bool) AuthenticatorOption {
	return func(a *Authenticator) { a.development = dev }
}

// NewAuthenticator returns an Authenticator resolving tokens through r.
func NewAuthenticator(r TokenResolver, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		resolver: r,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ExtractToken returns the request credential and where it was found. It
// checks, in order, an Authorization Bearer header, the X-API-Key header,
// the token query parameter and the auth_token cookie. The first non-empty
// match wins.
func ExtractToken(r *http.Request) (string, auth.TokenSource, bool) {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		if tok := strings.TrimSpace(h[7:]); tok != "" {
			return tok, auth.SourceBearer, true
		}
	}
	if tok := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); tok != "" {
		return tok, auth.SourceAPIKey, true
	}
	if tok := r.URL.Query().Get(QueryToken); tok != "" {
		return tok, auth.SourceQuery, true
	}
	if c, err := r.Cookie(CookieToken); err == nil && c.Value != "" {
		return c.Value, auth.SourceCookie, true
	}
	return "", "", false
}

// resolve runs extraction, verification and the expiry check.
func (a *Authenticator) resolve(r *http.Request) (*auth.Principal, auth.TokenSource, error) {
	token, src, ok := ExtractToken(r)
	if !ok {
		return nil, "", errs.New(errs.CodeNoToken, "authentication required")
	}
	claims, err := a.resolver.Get(r.Context(), token)
	if err != nil {
		if errs.KindOf(err) != errs.KindAuthentication {
			err = errs.Wrap(errs.CodeInvalidToken, err, "token verification failed")
		}
		return nil, src, err
	}
	if claims.Expired(a.now()) {
		return nil, src, errs.New(errs.CodeTokenExpired, "token has expired")
	}
	return auth.NewPrincipal(claims, src), src, nil
}

// Authenticate returns a middleware that requires a valid credential. On
// success the Principal is attached to the request context; otherwise a 401
// JSON error is written and the handler is not called.
func (a *Authenticator) Authenticate(opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			p, src, err := a.resolve(r)
			if err != nil {
				a.reject(w, r, err, "authentication failed", "source", string(src))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuth attaches a Principal when the request carries a valid
// credential and otherwise lets the request through anonymously.
func (a *Authenticator) OptionalAuth(opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			p, _, err := a.resolve(r)
			if err != nil {
				if errs.CodeOf(err) != errs.CodeNoToken {
					a.logger.Debug("optional auth ignored credential", "code", errs.CodeOf(err), "path", r.URL.Path)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Authorize requires the caller's role to cover any (or, with requireAll,
// every) role in roles. Higher roles cover lower ones.
func (a *Authenticator) Authorize(roles []auth.Role, requireAll bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				a.reject(w, r, errs.New(errs.CodeNoToken, "authentication required"), "authorization without principal")
				return
			}
			if !p.HasRole(roles, requireAll) {
				a.reject(w, r, errs.New(errs.CodeInsufficientRole, "insufficient role"), "authorization failed",
					"user_id", p.UserID, "role", string(p.Role), "required", roles)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission requires perm or the wildcard in the caller's
// permission set.
func (a *Authenticator) RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				a.reject(w, r, errs.New(errs.CodeNoToken, "authentication required"), "authorization without principal")
				return
			}
			if !p.HasPermission(perm) {
				a.reject(w, r, errs.New(errs.CodeMissingPermission, "missing permission %s", perm), "authorization failed",
					"user_id", p.UserID, "permission", perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnership requires the caller to own the resource named by the
// route parameter param. Admin-tier roles pass without a lookup.
func (a *Authenticator) RequireOwnership(param, resourceType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				a.reject(w, r, errs.New(errs.CodeNoToken, "authentication required"), "authorization without principal")
				return
			}
			if p.Role.IsAdminTier() {
				next.ServeHTTP(w, r)
				return
			}

			id := chi.URLParam(r, param)
			if id == "" {
				id = r.URL.Query().Get(param)
			}
			if id == "" || a.owners == nil {
				a.reject(w, r, errs.New(errs.CodeNotOwner, "not the owner of this resource"), "ownership check failed",
					"user_id", p.UserID, "resource_type", resourceType, "configured", a.owners != nil)
				return
			}

			owned, err := a.owners.IsOwner(r.Context(), resourceType, id, p.UserID)
			if err != nil {
				a.logger.Error("ownership lookup failed",
					"resource_type", resourceType,
					"user_id", p.UserID,
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeError(w, err, a.development)
				return
			}
			if !owned {
				a.reject(w, r, errs.New(errs.CodeNotOwner, "not the owner of this resource"), "ownership check failed",
					"user_id", p.UserID, "resource_type", resourceType, "resource_id", id)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error, msg string, attrs ...any) {
	attrs = append(attrs,
		"code", errs.CodeOf(err),
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", GetRequestID(r.Context()),
		"remote_addr", r.RemoteAddr,
	)
	a.logger.Warn(msg, attrs...)
	writeError(w, err, a.development)
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	if h, ok := ctx.Value(principalHolderKey).(*principalHolder); ok {
		h.set(p)
	}
	return context.WithValue(ctx, AuthPrincipalKey, p)
}

// principalHolder lets outer middleware see the principal attached further
// down the chain.
type principalHolder struct {
	mu sync.Mutex
	p  *auth.Principal
}

func withPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, principalHolderKey, h)
}

func (h *principalHolder) set(p *auth.Principal) {
	h.mu.Lock()
	h.p = p
	h.mu.Unlock()
}

func (h *principalHolder) get() *auth.Principal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.p
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *auth.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*auth.Principal); ok {
		return p
	}
	return nil
}

func writeError(w http.ResponseWriter, err error, development bool) {
	resp := model.NewErrorResponse(err, development)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Error.Status)
	json.NewEncoder(w).Encode(resp)
}
