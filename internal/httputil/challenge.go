// Package httputil writes OAuth 2.0 bearer token error responses.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// FormatWWWAuthenticate builds a Bearer challenge (RFC 6750 section 3) with
// the optional realm, resource_metadata (RFC 9728), scope, error and
// error_description parameters.
//
//	Bearer realm="weather-api", resource_metadata="https://api.example/.well-known/oauth-protected-resource",
//	       scope="access_as_user", error="insufficient_scope"
func FormatWWWAuthenticate(realm, resourceMetadataURL, scope, errCode, errorDesc string) string {
	var params []string
	if realm != "" {
		params = append(params, fmt.Sprintf(`realm="%s"`, quote(realm)))
	}
	if resourceMetadataURL != "" {
		params = append(params, fmt.Sprintf(`resource_metadata="%s"`, quote(resourceMetadataURL)))
	}
	if scope != "" {
		params = append(params, fmt.Sprintf(`scope="%s"`, quote(scope)))
	}
	if errCode != "" {
		params = append(params, fmt.Sprintf(`error="%s"`, quote(errCode)))
	}
	if errorDesc != "" {
		params = append(params, fmt.Sprintf(`error_description="%s"`, quote(errorDesc)))
	}

	if len(params) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(params, ", ")
}

// quote escapes a quoted-string value. Backslashes go first.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// WriteError writes an OAuth error JSON body. A non-empty challenge is sent
// as WWW-Authenticate.
func WriteError(w http.ResponseWriter, status int, code, description, challenge string) {
	if challenge != "" {
		w.Header().Set("WWW-Authenticate", challenge)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}
