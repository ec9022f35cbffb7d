package identity

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestOAuthError_Error(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		description string
		want        string
	}{
		{
			name:        "simple error",
			code:        "invalid_request",
			description: "Missing required parameter",
			want:        "invalid_request: Missing required parameter",
		},
		{
			name:        "error with empty description",
			code:        "server_error",
			description: "",
			want:        "server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &OAuthError{
				Code:        tt.code,
				Description: tt.description,
			}
			if got := e.Error(); got != tt.want {
				t.Errorf("OAuthError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOAuthError_IsInteractionRequired(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{ErrorCodeInteractionRequired, true},
		{ErrorCodeLoginRequired, true},
		{ErrorCodeConsentRequired, true},
		{ErrorCodeAccountSelectionRequired, true},
		{ErrorCodeInvalidGrant, true},
		{ErrorCodeInvalidRequest, false},
		{ErrorCodeServerError, false},
		{ErrorCodeInsufficientScope, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("refresh failed: %w", NewOAuthError(tt.code, "x", http.StatusBadRequest))
			if got := errors.Is(err, ErrInteractionRequired); got != tt.want {
				t.Errorf("errors.Is(%s, ErrInteractionRequired) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestOAuthError_IsOtherSentinels(t *testing.T) {
	if !errors.Is(ErrScopeNotGranted("no"), ErrInsufficientScope) {
		t.Error("insufficient_scope error should match ErrInsufficientScope")
	}
	if !errors.Is(ErrBadToken("expired"), ErrInvalidToken) {
		t.Error("invalid_token error should match ErrInvalidToken")
	}
	if errors.Is(ErrBadToken("expired"), ErrInsufficientScope) {
		t.Error("invalid_token error should not match ErrInsufficientScope")
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *OAuthError
		wantCode   string
		wantStatus int
	}{
		{"invalid request", ErrInvalidRequest("d"), ErrorCodeInvalidRequest, http.StatusBadRequest},
		{"bad token", ErrBadToken("d"), ErrorCodeInvalidToken, http.StatusUnauthorized},
		{"scope not granted", ErrScopeNotGranted("d"), ErrorCodeInsufficientScope, http.StatusForbidden},
		{"server error", ErrServerError("d"), ErrorCodeServerError, http.StatusInternalServerError},
		{"temporarily unavailable", ErrTemporarilyUnavailable("d"), ErrorCodeTemporarilyUnavailable, http.StatusServiceUnavailable},
		{"access denied", ErrAccessDenied("d"), ErrorCodeAccessDenied, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
			if tt.err.Description != "d" {
				t.Errorf("Description = %q, want %q", tt.err.Description, "d")
			}
		})
	}
}
