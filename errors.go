package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest           = "invalid_request"
	ErrorCodeInvalidGrant             = "invalid_grant"
	ErrorCodeInvalidToken             = "invalid_token"
	ErrorCodeInsufficientScope        = "insufficient_scope"
	ErrorCodeServerError              = "server_error"
	ErrorCodeAccessDenied             = "access_denied"
	ErrorCodeTemporarilyUnavailable   = "temporarily_unavailable"
	ErrorCodeInteractionRequired      = "interaction_required"
	ErrorCodeLoginRequired            = "login_required"
	ErrorCodeConsentRequired          = "consent_required"
	ErrorCodeAccountSelectionRequired = "account_selection_required"
)

// Sentinel errors shared by the client and server halves of the module.
var (
	// ErrInteractionInProgress is returned when an interactive flow is started
	// while another one (login, logout, redirect handling) has not finished.
	ErrInteractionInProgress = errors.New("interaction in progress")

	// ErrInteractionRequired means the token cannot be obtained silently and
	// the user has to go through an interactive flow.
	ErrInteractionRequired = errors.New("interaction required")

	// ErrNoActiveAccount is returned when an operation needs a signed-in account
	// and none is active.
	ErrNoActiveAccount = errors.New("no active account")

	// ErrNavigationStarted reports that the client handed control to the
	// browser for a redirect flow. The result arrives through HandleRedirect.
	ErrNavigationStarted = errors.New("navigation to identity provider started")

	// ErrInsufficientScope means the token was valid but carries none of the
	// scopes the endpoint accepts.
	ErrInsufficientScope = errors.New("insufficient scope")

	// ErrInvalidToken means the bearer token failed validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthenticated means no principal is attached to the request.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrStateMismatch is returned when a callback carries an unknown state.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrNonceMismatch is returned when the ID token nonce differs from the one sent.
	ErrNonceMismatch = errors.New("nonce mismatch")
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code          string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description   string // Human-readable error description
	Status        int    // HTTP status code
	CorrelationID string // Correlation id sent with the request, if any
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is lets errors.Is classify provider errors that can only be resolved by
// user interaction as ErrInteractionRequired.
func (e *OAuthError) Is(target error) bool {
	switch target {
	case ErrInteractionRequired:
		return IsInteractionRequiredCode(e.Code)
	case ErrInsufficientScope:
		return e.Code == ErrorCodeInsufficientScope
	case ErrInvalidToken:
		return e.Code == ErrorCodeInvalidToken
	}
	return false
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// IsInteractionRequiredCode reports whether an OAuth error code from the token
// endpoint means a silent refresh cannot succeed.
func IsInteractionRequiredCode(code string) bool {
	switch code {
	case ErrorCodeInteractionRequired,
		ErrorCodeLoginRequired,
		ErrorCodeConsentRequired,
		ErrorCodeAccountSelectionRequired,
		ErrorCodeInvalidGrant:
		return true
	}
	return false
}

// Common OAuth errors as reusable instances
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrBadToken indicates the access token is invalid or expired
	ErrBadToken = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
	}

	// ErrScopeNotGranted indicates the token lacks every accepted scope
	ErrScopeNotGranted = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeInsufficientScope, desc, http.StatusForbidden)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrTemporarilyUnavailable indicates the server cannot handle the request right now
	ErrTemporarilyUnavailable = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeTemporarilyUnavailable, desc, http.StatusServiceUnavailable)
	}

	// ErrAccessDenied indicates the user or authorization server denied the request
	ErrAccessDenied = func(desc string) *OAuthError {
		return NewOAuthError(ErrorCodeAccessDenied, desc, http.StatusForbidden)
	}
)
