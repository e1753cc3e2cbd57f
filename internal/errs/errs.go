// Package errs defines the failure taxonomy shared by the query builder, the
// connection pool manager and the auth middleware. Every failure surfaced by
// those components is an *Error carrying a Kind and a stable Code, so callers
// branch on errors.Is / CodeOf instead of matching message text.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind groups codes into the broad failure classes.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindSecurity
	KindResource
	KindAuthentication
	KindAuthorization
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_failure"
	case KindSecurity:
		return "security_violation"
	case KindResource:
		return "resource_exhaustion"
	case KindAuthentication:
		return "authentication_failure"
	case KindAuthorization:
		return "authorization_failure"
	case KindBackend:
		return "backend_failure"
	default:
		return "unknown"
	}
}

// Code is the small, stable identifier exposed to API clients.
type Code string

const (
	CodeInvalidIdentifier     Code = "INVALID_IDENTIFIER"
	CodeInvalidOperator       Code = "INVALID_OPERATOR"
	CodeInvalidValue          Code = "INVALID_VALUE"
	CodeMissingFromClause     Code = "MISSING_FROM_CLAUSE"
	CodeEmptyPayload          Code = "EMPTY_PAYLOAD"
	CodeOutOfBoundsPagination Code = "OUT_OF_BOUNDS_PAGINATION"
	CodeInjectionDetected     Code = "INJECTION_DETECTED"
	CodeForbiddenOperation    Code = "FORBIDDEN_OPERATION"
	CodeQueryTimeout          Code = "QUERY_TIMEOUT"
	CodeAcquireTimeout        Code = "ACQUIRE_TIMEOUT"
	CodeInitializationError   Code = "INITIALIZATION_ERROR"
	CodeNoToken               Code = "NO_TOKEN"
	CodeInvalidToken          Code = "INVALID_TOKEN"
	CodeTokenExpired          Code = "TOKEN_EXPIRED"
	CodeInsufficientRole      Code = "INSUFFICIENT_ROLE"
	CodeMissingPermission     Code = "MISSING_PERMISSION"
	CodeNotOwner              Code = "NOT_OWNER"
	CodeQueryExecutionError   Code = "QUERY_EXECUTION_ERROR"
)

var codeKinds = map[Code]Kind{
	CodeInvalidIdentifier:     KindValidation,
	CodeInvalidOperator:       KindValidation,
	CodeInvalidValue:          KindValidation,
	CodeMissingFromClause:     KindValidation,
	CodeEmptyPayload:          KindValidation,
	CodeOutOfBoundsPagination: KindValidation,
	CodeInjectionDetected:     KindSecurity,
	CodeForbiddenOperation:    KindSecurity,
	CodeQueryTimeout:          KindResource,
	CodeAcquireTimeout:        KindResource,
	CodeInitializationError:   KindResource,
	CodeNoToken:               KindAuthentication,
	CodeInvalidToken:          KindAuthentication,
	CodeTokenExpired:          KindAuthentication,
	CodeInsufficientRole:      KindAuthorization,
	CodeMissingPermission:     KindAuthorization,
	CodeNotOwner:              KindAuthorization,
	CodeQueryExecutionError:   KindBackend,
}

// Sentinels for errors.Is. Matching is by Code, so a wrapped *Error with a
// different message still matches its sentinel.
var (
	ErrInvalidIdentifier     = &Error{Kind: KindValidation, Code: CodeInvalidIdentifier}
	ErrInvalidOperator       = &Error{Kind: KindValidation, Code: CodeInvalidOperator}
	ErrInvalidValue          = &Error{Kind: KindValidation, Code: CodeInvalidValue}
	ErrMissingFromClause     = &Error{Kind: KindValidation, Code: CodeMissingFromClause}
	ErrEmptyPayload          = &Error{Kind: KindValidation, Code: CodeEmptyPayload}
	ErrOutOfBoundsPagination = &Error{Kind: KindValidation, Code: CodeOutOfBoundsPagination}
	ErrInjectionDetected     = &Error{Kind: KindSecurity, Code: CodeInjectionDetected}
	ErrForbiddenOperation    = &Error{Kind: KindSecurity, Code: CodeForbiddenOperation}
	ErrQueryTimeout          = &Error{Kind: KindResource, Code: CodeQueryTimeout}
	ErrAcquireTimeout        = &Error{Kind: KindResource, Code: CodeAcquireTimeout}
	ErrInitialization        = &Error{Kind: KindResource, Code: CodeInitializationError}
	ErrNoToken               = &Error{Kind: KindAuthentication, Code: CodeNoToken}
	ErrInvalidToken          = &Error{Kind: KindAuthentication, Code: CodeInvalidToken}
	ErrTokenExpired          = &Error{Kind: KindAuthentication, Code: CodeTokenExpired}
	ErrInsufficientRole      = &Error{Kind: KindAuthorization, Code: CodeInsufficientRole}
	ErrMissingPermission     = &Error{Kind: KindAuthorization, Code: CodeMissingPermission}
	ErrNotOwner              = &Error{Kind: KindAuthorization, Code: CodeNotOwner}
	ErrQueryExecution        = &Error{Kind: KindBackend, Code: CodeQueryExecutionError}
)

// Error is the tagged failure value. Message is safe to show to clients; the
// wrapped Err may hold driver text and is only exposed in development mode.
type Error struct {
	Kind     Kind
	Code     Code
	Message  string
	QueryID  string
	Duration time.Duration
	Err      error
}

// New returns an *Error for code. The kind is derived from the code.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Kind:    codeKinds[code],
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap is New with an underlying cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Err = err
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// As extracts the outermost *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the Code of err, or "" for foreign errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// Retryable reports whether the caller may retry err. Only resource
// exhaustion qualifies; this package never retries by itself.
func Retryable(err error) bool {
	return KindOf(err) == KindResource
}

// HTTPStatus maps err onto the status code used by the HTTP layer.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindSecurity:
		return http.StatusBadRequest
	case KindResource:
		if CodeOf(err) == CodeQueryTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
