package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
)

// Auditor handles security event logging with PII protection.
// A nil Auditor is valid and logs nothing.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	clock   Clock
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		clock:   SystemClock{},
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.clock.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLogin logs a completed interactive sign-in
func (a *Auditor) LogLogin(homeAccountID, clientID, interactionType string) {
	a.LogEvent(Event{
		Type:     EventLogin,
		UserID:   homeAccountID,
		ClientID: clientID,
		Details: map[string]any{
			"interaction_type": interactionType,
		},
	})
}

// LogLoginFailed logs a failed interactive sign-in
func (a *Auditor) LogLoginFailed(clientID, reason string) {
	a.LogEvent(Event{
		Type:     EventLoginFailed,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogLogout logs a sign-out of the active account
func (a *Auditor) LogLogout(homeAccountID, clientID string) {
	a.LogEvent(Event{
		Type:     EventLogout,
		UserID:   homeAccountID,
		ClientID: clientID,
	})
}

// LogTokenRefreshed logs when a token is refreshed
func (a *Auditor) LogTokenRefreshed(homeAccountID, clientID string, scopes []string, rotated bool) {
	a.LogEvent(Event{
		Type:     EventTokenRefreshed,
		UserID:   homeAccountID,
		ClientID: clientID,
		Details: map[string]any{
			"scope":   strings.Join(scopes, " "),
			"rotated": rotated,
		},
	})
}

// LogRefreshFailed logs a silent refresh that needs user interaction
func (a *Auditor) LogRefreshFailed(homeAccountID, clientID, reason string) {
	a.LogEvent(Event{
		Type:     EventRefreshFailed,
		UserID:   homeAccountID,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(userID, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogScopeDenied logs a request whose token held none of the accepted scopes
func (a *Auditor) LogScopeDenied(userID, ipAddress string, accepted, granted []string) {
	a.LogEvent(Event{
		Type:      EventScopeDenied,
		UserID:    userID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"accepted": strings.Join(accepted, " "),
			"granted":  strings.Join(granted, " "),
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, userID string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		UserID:    userID,
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
