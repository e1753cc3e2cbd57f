// Package handler implements the HTTP handlers of the demo API on top of the
// pool manager and the auth middleware.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talentsphere/securecore/internal/database"
	"github.com/talentsphere/securecore/internal/errs"
	"github.com/talentsphere/securecore/internal/model"
	"github.com/talentsphere/securecore/internal/server/middleware"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes err using the standard error envelope. Backend detail is
// only included in development mode.
func writeError(w http.ResponseWriter, err error, development bool) {
	resp := model.NewErrorResponse(err, development)
	writeJSON(w, resp.Error.Status, resp)
}

// writeData wraps v in the data envelope with request id and timing.
func writeData(w http.ResponseWriter, r *http.Request, status int, start time.Time, v any) {
	writeJSON(w, status, model.DataResponse{
		Data: v,
		Meta: &model.ResponseMeta{
			RequestID: middleware.GetRequestID(r.Context()),
			TookMs:    float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}

// readJSONObject decodes the request body as one JSON object. The body is
// closed after decoding regardless of success or failure.
func readJSONObject(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return nil, errs.Wrap(errs.CodeInvalidValue, err, "request body too large")
		case errors.Is(err, io.EOF):
			return nil, errs.New(errs.CodeEmptyPayload, "request body is empty")
		default:
			return nil, errs.Wrap(errs.CodeInvalidValue, err, "request body must be a JSON object")
		}
	}
	for k, v := range obj {
		if n, ok := v.(json.Number); ok {
			obj[k] = jsonNumber(n)
		}
	}
	return obj, nil
}

// jsonNumber keeps integers as int64 so drivers bind them as integers.
func jsonNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// queryInt extracts an integer query parameter. A missing parameter yields 0.
func queryInt(r *http.Request, key string) (int, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errs.New(errs.CodeInvalidValue, "%s must be an integer", key)
	}
	return n, nil
}

// parseFilters reads repeated filter=column,operator,value parameters. The
// value of IN and NOT IN is a |-separated list; IS NULL and IS NOT NULL take
// no value.
func parseFilters(r *http.Request) ([]database.Filter, error) {
	raw := r.URL.Query()["filter"]
	filters := make([]database.Filter, 0, len(raw))
	for _, f := range raw {
		parts := strings.SplitN(f, ",", 3)
		if len(parts) < 2 {
			return nil, errs.New(errs.CodeInvalidValue, "filter must be column,operator[,value]")
		}
		col := strings.TrimSpace(parts[0])
		op := strings.ToUpper(strings.TrimSpace(parts[1]))
		var val any
		if len(parts) == 3 {
			val = parts[2]
		}
		switch op {
		case "IN", "NOT IN":
			if len(parts) == 3 {
				val = strings.Split(parts[2], "|")
			}
		case "IS NULL", "IS NOT NULL":
			val = nil
		default:
			if len(parts) < 3 {
				return nil, errs.New(errs.CodeInvalidValue, "filter on %s needs a value", col)
			}
		}
		filters = append(filters, database.Filter{Column: col, Operator: op, Value: val})
	}
	return filters, nil
}
