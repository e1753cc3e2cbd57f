package handler

import (
	"net/http"
	"time"

	"github.com/talentsphere/securecore/internal/auth"
	"github.com/talentsphere/securecore/internal/database"
	"github.com/talentsphere/securecore/internal/errs"
	"github.com/talentsphere/securecore/internal/server/middleware"
)

// SystemHandler serves identity, health and pool statistics endpoints.
type SystemHandler struct {
	db          *database.Manager
	cache       *auth.TokenCache
	development bool
}

// NewSystemHandler creates a SystemHandler. cache may be nil.
func NewSystemHandler(db *database.Manager, cache *auth.TokenCache, development bool) *SystemHandler {
	return &SystemHandler{db: db, cache: cache, development: development}
}

// Me handles GET /api/v1/me and returns the authenticated principal.
func (h *SystemHandler) Me(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, errs.New(errs.CodeNoToken, "authentication required"), h.development)
		return
	}
	writeData(w, r, http.StatusOK, start, p)
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	Authenticated bool            `json:"authenticated"`
	Principal     *auth.Principal `json:"principal,omitempty"`
}

// WhoAmI handles GET /api/v1/whoami. It runs behind OptionalAuth and never
// fails for anonymous callers.
func (h *SystemHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	p := middleware.GetPrincipal(r.Context())
	writeData(w, r, http.StatusOK, start, WhoAmIResponse{Authenticated: p != nil, Principal: p})
}

// DBStatsResponse combines pool and credential cache statistics.
type DBStatsResponse struct {
	Driver     string           `json:"driver"`
	Database   database.Stats   `json:"database"`
	TokenCache *auth.CacheStats `json:"token_cache,omitempty"`
}

// DBStats handles GET /api/v1/admin/db/stats.
func (h *SystemHandler) DBStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp := DBStatsResponse{
		Driver:   h.db.Dialect().DriverName(),
		Database: h.db.Stats(),
	}
	if h.cache != nil {
		cs := h.cache.Stats()
		resp.TokenCache = &cs
	}
	writeData(w, r, http.StatusOK, start, resp)
}

// ResetStats handles POST /api/v1/admin/db/stats/reset.
func (h *SystemHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	h.db.ResetStats()
	w.WriteHeader(http.StatusNoContent)
}

// Healthz handles GET /healthz. It reports process liveness only.
func (h *SystemHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz. It probes the pool and answers 503 when the
// probe fails.
func (h *SystemHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	st := h.db.HealthCheck(r.Context())
	status := http.StatusOK
	if !st.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, st)
}
