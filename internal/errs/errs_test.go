package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeInvalidIdentifier, "column %q rejected", "a b")
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Error("expected match against sentinel")
	}
	if errors.Is(err, ErrInvalidOperator) {
		t.Error("unexpected match against different code")
	}

	wrapped := fmt.Errorf("building query: %w", err)
	if !errors.Is(wrapped, ErrInvalidIdentifier) {
		t.Error("expected match through fmt wrapping")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Wrap(CodeQueryExecutionError, cause, "query failed")
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Kind != KindBackend {
		t.Errorf("kind = %v", err.Kind)
	}
}

func TestKindAndHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		kind   Kind
		status int
	}{
		{CodeInvalidIdentifier, KindValidation, http.StatusBadRequest},
		{CodeOutOfBoundsPagination, KindValidation, http.StatusBadRequest},
		{CodeInjectionDetected, KindSecurity, http.StatusBadRequest},
		{CodeQueryTimeout, KindResource, http.StatusGatewayTimeout},
		{CodeAcquireTimeout, KindResource, http.StatusServiceUnavailable},
		{CodeNoToken, KindAuthentication, http.StatusUnauthorized},
		{CodeTokenExpired, KindAuthentication, http.StatusUnauthorized},
		{CodeNotOwner, KindAuthorization, http.StatusForbidden},
		{CodeQueryExecutionError, KindBackend, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("ctx: %w", New(tt.code, "x"))
			if got := KindOf(err); got != tt.kind {
				t.Errorf("KindOf = %v, want %v", got, tt.kind)
			}
			if got := CodeOf(err); got != tt.code {
				t.Errorf("CodeOf = %v", got)
			}
			if got := HTTPStatus(err); got != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestForeignErrors(t *testing.T) {
	err := errors.New("plain")
	if KindOf(err) != KindUnknown || CodeOf(err) != "" {
		t.Error("foreign error should be unknown")
	}
	if HTTPStatus(err) != http.StatusInternalServerError {
		t.Error("foreign error should map to 500")
	}
	if Retryable(err) {
		t.Error("foreign error should not be retryable")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(CodeAcquireTimeout, "pool exhausted")) {
		t.Error("acquire timeout should be retryable")
	}
	if Retryable(New(CodeInvalidValue, "bad")) {
		t.Error("validation failure should not be retryable")
	}
}
