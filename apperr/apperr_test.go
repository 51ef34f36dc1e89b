package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindHelpers(t *testing.T) {
	authErr := Auth("M_FORBIDDEN", "bad credentials")
	if !IsAuth(authErr) {
		t.Fatalf("expected auth error to match IsAuth")
	}
	if IsNetwork(authErr) || IsValidation(authErr) {
		t.Fatalf("expected auth error to match only IsAuth")
	}

	netErr := Network("homeserver unreachable", errors.New("dial tcp: refused"))
	if !IsNetwork(netErr) {
		t.Fatalf("expected network error to match IsNetwork")
	}

	if !IsValidation(Validation("amount must be positive")) {
		t.Fatalf("expected validation error to match IsValidation")
	}

	if IsAuth(errors.New("plain")) {
		t.Fatalf("expected plain error to match no kind")
	}
}

func TestWrappedMatching(t *testing.T) {
	inner := Auth("M_UNKNOWN_TOKEN", "token rejected")
	wrapped := fmt.Errorf("start sync: %w", inner)
	if !IsAuth(wrapped) {
		t.Fatalf("expected wrapped auth error to still match IsAuth")
	}

	var e *Error
	if !errors.As(wrapped, &e) || e.Code != "M_UNKNOWN_TOKEN" {
		t.Fatalf("expected errors.As to recover code, got %+v", e)
	}
}

func TestErrorString(t *testing.T) {
	got := Auth("M_FORBIDDEN", "login rejected").Error()
	want := "auth: login rejected (M_FORBIDDEN)"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
