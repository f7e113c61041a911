package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	base := New(CodeChallengeExpired, "challenge expired")
	other := New(CodeChallengeExpired, "different message")
	if !errors.Is(base, other) {
		t.Fatal("expected errors with the same code to match")
	}
	mismatch := New(CodeChallengeNotFound, "challenge not found")
	if errors.Is(base, mismatch) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("row scan failed")
	err := Wrap(CodeNotFound, "record not found", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to match via errors.Is")
	}
	if err.Error() != "record not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestCodeOfUnwrapsChains(t *testing.T) {
	inner := New(CodeCounterRegression, "counter regressed")
	wrapped := fmt.Errorf("update credential: %w", inner)
	if got := CodeOf(wrapped); got != CodeCounterRegression {
		t.Fatalf("expected counter regression code, got %s", got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("expected unknown code, got %s", got)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Fatalf("expected unknown code for nil, got %s", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeChallengeExpired, http.StatusBadRequest},
		{CodeOriginMismatch, http.StatusBadRequest},
		{CodeSignatureInvalid, http.StatusUnauthorized},
		{CodeNotOwner, http.StatusForbidden},
		{CodeChallengeNotFound, http.StatusNotFound},
		{CodeCredentialNotFound, http.StatusNotFound},
		{CodeChallengeAlreadyConsumed, http.StatusConflict},
		{CodeDuplicateCredential, http.StatusConflict},
		{CodeCounterRegression, http.StatusConflict},
		{CodeNoCredentialsEnrolled, http.StatusPreconditionFailed},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("code %s: expected status %d, got %d", tc.code, tc.want, got)
		}
	}
}
