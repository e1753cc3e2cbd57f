package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/talentsphere/securecore/internal/database"
	"github.com/talentsphere/securecore/internal/errs"
	"github.com/talentsphere/securecore/internal/model"
	"github.com/talentsphere/securecore/internal/query"
	"github.com/talentsphere/securecore/internal/server/middleware"
)

// RecordsHandler serves paginated listing and CRUD for owned resources.
// Only the configured resource tables are reachable. Callers below the
// admin tier only ever see rows whose owner column holds their user id.
type RecordsHandler struct {
	db          *database.Manager
	tables      map[string]bool
	ownerColumn string
	development bool
	logger      *slog.Logger
}

// NewRecordsHandler creates a RecordsHandler over the given resource tables.
func NewRecordsHandler(db *database.Manager, resources []string, ownerColumn string, development bool, logger *slog.Logger) *RecordsHandler {
	tables := make(map[string]bool, len(resources))
	for _, r := range resources {
		tables[r] = true
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RecordsHandler{
		db:          db,
		tables:      tables,
		ownerColumn: ownerColumn,
		development: development,
		logger:      logger,
	}
}

// List handles GET /api/v1/records/{table}.
//
// Query parameters:
//   - page, limit: pagination (defaults 1 and 20)
//   - fields: comma-separated column list
//   - order: "column [ASC|DESC]", a single column
//   - filter: repeated column,operator[,value]
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	table := chi.URLParam(r, "table")
	if !h.tables[table] {
		writeNotFound(w, "table not found")
		return
	}

	req, err := h.pageRequest(r)
	if err != nil {
		writeError(w, err, h.development)
		return
	}
	if p := middleware.GetPrincipal(r.Context()); p != nil && !p.Role.IsAdminTier() {
		req.Filters = append(req.Filters, database.Filter{Column: h.ownerColumn, Operator: "=", Value: p.UserID})
	}

	page, err := h.db.Paginate(r.Context(), table, req)
	if err != nil {
		h.logFailure(r, "list", table, err)
		writeError(w, err, h.development)
		return
	}
	if page.Data == nil {
		page.Data = []query.Row{}
	}
	writeData(w, r, http.StatusOK, start, page)
}

func (h *RecordsHandler) pageRequest(r *http.Request) (database.PageRequest, error) {
	var req database.PageRequest
	var err error
	if req.Page, err = queryInt(r, "page"); err != nil {
		return req, err
	}
	if req.Limit, err = queryInt(r, "limit"); err != nil {
		return req, err
	}
	if req.Columns, err = query.ParseFieldSelection(r.URL.Query().Get("fields")); err != nil {
		return req, err
	}
	order, err := query.ParseOrderClause(r.URL.Query().Get("order"))
	if err != nil {
		return req, err
	}
	switch len(order) {
	case 0:
	case 1:
		req.OrderBy, req.Direction = order[0].Column, order[0].Direction
	default:
		return req, errs.New(errs.CodeInvalidValue, "order accepts a single column")
	}
	if req.Filters, err = parseFilters(r); err != nil {
		return req, err
	}
	return req, nil
}

// Get handles GET /api/v1/{resource}/{id}. Ownership is enforced by the
// middleware in front of it.
func (h *RecordsHandler) Get(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		row, err := h.db.FindByID(r.Context(), resource, chi.URLParam(r, "id"), database.CRUDOptions{})
		if err != nil {
			h.logFailure(r, "get", resource, err)
			writeError(w, err, h.development)
			return
		}
		if row == nil {
			writeNotFound(w, "record not found")
			return
		}
		writeData(w, r, http.StatusOK, start, row)
	}
}

// Create handles POST /api/v1/{resource}. The owner column is always set to
// the caller's user id.
func (h *RecordsHandler) Create(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		p := middleware.GetPrincipal(r.Context())
		if p == nil {
			writeError(w, errs.New(errs.CodeNoToken, "authentication required"), h.development)
			return
		}
		data, err := readJSONObject(r)
		if err != nil {
			writeError(w, err, h.development)
			return
		}
		data[h.ownerColumn] = p.UserID

		res, err := h.db.Insert(r.Context(), resource, data, database.CRUDOptions{})
		if err != nil {
			h.logFailure(r, "create", resource, err)
			writeError(w, err, h.development)
			return
		}
		var out any = map[string]int64{"rows_affected": res.RowsAffected}
		if len(res.Rows) == 1 {
			out = res.Rows[0]
		}
		writeData(w, r, http.StatusCreated, start, out)
	}
}

// Update handles PATCH /api/v1/{resource}/{id}. Ownership cannot be moved
// through the payload.
func (h *RecordsHandler) Update(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		data, err := readJSONObject(r)
		if err != nil {
			writeError(w, err, h.development)
			return
		}
		if _, ok := data[h.ownerColumn]; ok {
			writeError(w, errs.New(errs.CodeInvalidValue, "%s cannot be changed", h.ownerColumn), h.development)
			return
		}
		if _, ok := data["id"]; ok {
			writeError(w, errs.New(errs.CodeInvalidValue, "id cannot be changed"), h.development)
			return
		}

		res, err := h.db.Update(r.Context(), resource, chi.URLParam(r, "id"), data, database.CRUDOptions{})
		if err != nil {
			h.logFailure(r, "update", resource, err)
			writeError(w, err, h.development)
			return
		}
		if res.RowsAffected == 0 {
			writeNotFound(w, "record not found")
			return
		}
		var out any = map[string]int64{"rows_affected": res.RowsAffected}
		if len(res.Rows) == 1 {
			out = res.Rows[0]
		}
		writeData(w, r, http.StatusOK, start, out)
	}
}

// Delete handles DELETE /api/v1/{resource}/{id}.
func (h *RecordsHandler) Delete(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.db.Delete(r.Context(), resource, chi.URLParam(r, "id"), database.CRUDOptions{Returning: []string{"id"}})
		if err != nil {
			h.logFailure(r, "delete", resource, err)
			writeError(w, err, h.development)
			return
		}
		if res.RowsAffected == 0 {
			writeNotFound(w, "record not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *RecordsHandler) logFailure(r *http.Request, op, table string, err error) {
	level := slog.LevelError
	if k := errs.KindOf(err); k == errs.KindValidation || k == errs.KindSecurity {
		level = slog.LevelWarn
	}
	h.logger.Log(r.Context(), level, "records request failed",
		"op", op,
		"table", table,
		"code", errs.CodeOf(err),
		"request_id", middleware.GetRequestID(r.Context()),
	)
}

func writeNotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: model.ErrorDetail{
		Code:    "NOT_FOUND",
		Message: msg,
		Status:  http.StatusNotFound,
	}})
}
