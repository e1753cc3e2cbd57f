// Package model holds the JSON envelopes shared by the HTTP layer.
package model

import (
	"github.com/talentsphere/securecore/internal/errs"
)

// DataResponse is the envelope for successful responses.
type DataResponse struct {
	Data any           `json:"data"`
	Meta *ResponseMeta `json:"meta,omitempty"`
}

// ResponseMeta carries request correlation and timing.
type ResponseMeta struct {
	RequestID string  `json:"request_id,omitempty"`
	TookMs    float64 `json:"took_ms"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
// Detail holds backend text and is only filled in development mode.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	QueryID string `json:"query_id,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// NewErrorResponse converts err into an envelope and its HTTP status.
// Errors outside the taxonomy are reported as INTERNAL_ERROR with a generic
// message.
func NewErrorResponse(err error, development bool) ErrorResponse {
	status := errs.HTTPStatus(err)
	e, ok := errs.As(err)
	if !ok {
		d := ErrorDetail{Code: "INTERNAL_ERROR", Message: "internal server error", Status: status}
		if development {
			d.Detail = err.Error()
		}
		return ErrorResponse{Error: d}
	}

	d := ErrorDetail{
		Code:    string(e.Code),
		Message: e.Message,
		Status:  status,
		QueryID: e.QueryID,
	}
	if d.Message == "" {
		d.Message = string(e.Code)
	}
	if development && e.Err != nil {
		d.Detail = e.Err.Error()
	}
	return ErrorResponse{Error: d}
}
