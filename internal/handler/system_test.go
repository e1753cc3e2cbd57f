package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/talentsphere/securecore/internal/auth"
	"github.com/talentsphere/securecore/internal/database"
	"github.com/talentsphere/securecore/internal/server/middleware"
)

func newSystemHandler(t *testing.T) (*SystemHandler, *testEnv, *auth.TokenCache) {
	t.Helper()
	env := newTestEnv(t)
	v := auth.NewJWTVerifier("system-handler-test-secret-0123456789")
	cache := auth.NewTokenCache(v)
	tok, err := v.Issue(auth.Claims{Subject: "alice", Role: auth.RoleUser}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := cache.Get(context.Background(), tok); err != nil {
		t.Fatalf("cache.Get: %v", err)
	}
	return NewSystemHandler(env.db, cache, false), env, cache
}

func withUser(r *http.Request, user string, role auth.Role) *http.Request {
	p := auth.NewPrincipal(&auth.Claims{Subject: user, Role: role}, auth.SourceAPIKey)
	return r.WithContext(middleware.WithPrincipal(r.Context(), p))
}

func TestMe(t *testing.T) {
	h, _, _ := newSystemHandler(t)

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest("GET", "/api/v1/me", nil))
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != "NO_TOKEN" {
		t.Errorf("anonymous: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.Me(w, withUser(httptest.NewRequest("GET", "/api/v1/me", nil), "alice", auth.RoleModerator))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[struct {
		Data auth.Principal `json:"data"`
	}](t, w).Data
	if got.UserID != "alice" || got.Role != auth.RoleModerator || got.TokenSource != auth.SourceAPIKey {
		t.Errorf("principal = %+v", got)
	}
	if !got.HasPermission(auth.PermContentModerate) {
		t.Errorf("default permissions missing: %v", got.Permissions)
	}
}

func TestWhoAmI(t *testing.T) {
	h, _, _ := newSystemHandler(t)

	w := httptest.NewRecorder()
	h.WhoAmI(w, httptest.NewRequest("GET", "/api/v1/whoami", nil))
	resp := decode[struct {
		Data WhoAmIResponse `json:"data"`
	}](t, w).Data
	if w.Code != http.StatusOK || resp.Authenticated || resp.Principal != nil {
		t.Errorf("anonymous whoami = %d %+v", w.Code, resp)
	}

	w = httptest.NewRecorder()
	h.WhoAmI(w, withUser(httptest.NewRequest("GET", "/api/v1/whoami", nil), "bob", auth.RoleGuest))
	resp = decode[struct {
		Data WhoAmIResponse `json:"data"`
	}](t, w).Data
	if !resp.Authenticated || resp.Principal == nil || resp.Principal.UserID != "bob" {
		t.Errorf("authenticated whoami = %+v", resp)
	}
}

func TestDBStatsAndReset(t *testing.T) {
	h, env, _ := newSystemHandler(t)
	if _, err := env.db.Table("documents").Count(context.Background()); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	h.DBStats(w, httptest.NewRequest("GET", "/api/v1/admin/db/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[struct {
		Data DBStatsResponse `json:"data"`
	}](t, w).Data
	if resp.Driver != "sqlite" {
		t.Errorf("driver = %q", resp.Driver)
	}
	if resp.Database.Queries.Total == 0 {
		t.Error("expected recorded queries")
	}
	if resp.TokenCache == nil || resp.TokenCache.Size != 1 || resp.TokenCache.Misses != 1 {
		t.Errorf("token cache stats = %+v", resp.TokenCache)
	}

	w = httptest.NewRecorder()
	h.ResetStats(w, httptest.NewRequest("POST", "/api/v1/admin/db/stats/reset", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("reset status = %d", w.Code)
	}
	if st := env.db.Stats(); st.Queries.Total != 0 {
		t.Errorf("queries after reset = %d", st.Queries.Total)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h, env, _ := newSystemHandler(t)

	w := httptest.NewRecorder()
	h.Healthz(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Readyz(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, body = %s", w.Code, w.Body.String())
	}
	if st := decode[database.HealthStatus](t, w); !st.Healthy() {
		t.Errorf("status = %+v", st)
	}

	env.db.Close()
	w = httptest.NewRecorder()
	h.Readyz(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz after close = %d, want 503", w.Code)
	}
}
