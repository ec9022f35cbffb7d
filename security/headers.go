package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets the response headers every API response carries.
// HSTS is only sent when serverURL is https.
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Responses are per-caller and must not be cached by intermediaries.
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
}

// SecurityHeadersMiddleware applies SetSecurityHeaders before calling next.
func SecurityHeadersMiddleware(serverURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			SetSecurityHeaders(w, serverURL)
			next.ServeHTTP(w, r)
		})
	}
}
