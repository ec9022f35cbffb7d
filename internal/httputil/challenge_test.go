package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFormatWWWAuthenticate(t *testing.T) {
	tests := []struct {
		name                               string
		realm, metadata, scope, code, desc string
		want                               string
	}{
		{
			name: "bare",
			want: "Bearer",
		},
		{
			name:  "insufficient scope",
			scope: "access_as_user",
			code:  "insufficient_scope",
			want:  `Bearer scope="access_as_user", error="insufficient_scope"`,
		},
		{
			name:     "full",
			realm:    "weather-api",
			metadata: "https://api.example/.well-known/oauth-protected-resource",
			code:     "invalid_token",
			desc:     "Token has expired",
			want:     `Bearer realm="weather-api", resource_metadata="https://api.example/.well-known/oauth-protected-resource", error="invalid_token", error_description="Token has expired"`,
		},
		{
			name: "escaping",
			desc: `bad "quote" \ and` + "\r\nInjected: header",
			want: `Bearer error_description="bad \"quote\" \\ andInjected: header"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatWWWAuthenticate(tt.realm, tt.metadata, tt.scope, tt.code, tt.desc)
			if got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusForbidden, "insufficient_scope", "nope", `Bearer error="insufficient_scope"`)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("challenge header missing")
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "insufficient_scope" || body["error_description"] != "nope" {
		t.Errorf("body = %v", body)
	}
}
