package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMatching(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("wrapped: %w", Errorf(CodeResourceBusy, "scope %q held", "main"))

	if !errors.Is(err, ErrResourceBusy) {
		t.Fatal("errors.Is did not match on code")
	}
	if errors.Is(err, ErrStateConflict) {
		t.Fatal("errors.Is matched a different code")
	}
	if got := CodeOf(err); got != CodeResourceBusy {
		t.Fatalf("CodeOf = %s, want %s", got, CodeResourceBusy)
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %s, want %s", got, CodeUnknown)
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := map[Code]int{
		CodePermissionDenied: http.StatusForbidden,
		CodeStateConflict:    http.StatusConflict,
		CodeNotFound:         http.StatusNotFound,
		CodeTimeout:          http.StatusGatewayTimeout,
		CodeUnavailable:      http.StatusServiceUnavailable,
		CodeInvalidArgument:  http.StatusBadRequest,
		CodeUnknown:          http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}

func TestNormalizeDisplayName(t *testing.T) {
	t.Parallel()
	if got, err := NormalizeDisplayName("  Ada "); err != nil || got != "Ada" {
		t.Fatalf("NormalizeDisplayName = %q, %v", got, err)
	}
	if _, err := NormalizeDisplayName("   "); !errors.Is(err, ErrUsernameEmpty) {
		t.Fatalf("empty name error = %v", err)
	}
	long := make([]byte, MaxUsernameLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := NormalizeDisplayName(string(long)); !errors.Is(err, ErrUsernameTooLong) {
		t.Fatalf("long name error = %v", err)
	}
}
