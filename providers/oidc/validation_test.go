package oidc

import (
	"strings"
	"testing"
)

func TestParseAuthority(t *testing.T) {
	tests := []struct {
		raw        string
		wantURL    string
		wantHost   string
		wantTenant string
		wantErr    bool
	}{
		{"https://login.microsoftonline.com/contoso.onmicrosoft.com/", "https://login.microsoftonline.com/contoso.onmicrosoft.com", "login.microsoftonline.com", "contoso.onmicrosoft.com", false},
		{"https://Login.Example.com/tenant/v2.0", "https://login.example.com/tenant/v2.0", "login.example.com", "tenant", false},
		{"https://idp.example.com", "https://idp.example.com", "idp.example.com", "", false},
		{"login.microsoftonline.com/tenant", "", "", "", true},
		{"https://idp.example.com/t?x=1", "", "", "", true},
		{"ftp://idp.example.com/t", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			a, err := ParseAuthority(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAuthority() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if a.URL != tt.wantURL || a.Host != tt.wantHost || a.Tenant != tt.wantTenant {
				t.Errorf("ParseAuthority() = %+v", a)
			}
		})
	}
}

func TestAuthority_MetadataURLs(t *testing.T) {
	a, _ := ParseAuthority("https://login.microsoftonline.com/tenant")
	urls := a.MetadataURLs()
	if len(urls) != 2 || urls[0] != "https://login.microsoftonline.com/tenant/v2.0/.well-known/openid-configuration" {
		t.Errorf("MetadataURLs() = %v", urls)
	}

	v2, _ := ParseAuthority("https://login.microsoftonline.com/tenant/v2.0")
	if urls := v2.MetadataURLs(); len(urls) != 1 {
		t.Errorf("v2 authority MetadataURLs() = %v, want a single URL", urls)
	}
}

func TestValidateIssuerURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://login.microsoftonline.com/tenant", false},
		{"http://login.microsoftonline.com/tenant", true},
		{"https://127.0.0.1/tenant", true},
		{"https://10.0.0.5/tenant", true},
		{"https://169.254.169.254/", true},
		{"https:///nohost", true},
	}
	for _, tt := range tests {
		if err := ValidateIssuerURL(tt.url); (err != nil) != tt.wantErr {
			t.Errorf("ValidateIssuerURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateRedirectURI(t *testing.T) {
	tests := []struct {
		uri     string
		wantErr bool
	}{
		{"http://localhost:4200/", false},
		{"http://127.0.0.1:8400/callback", false},
		{"https://app.example.com/auth", false},
		{"http://app.example.com/auth", true},
		{"https://app.example.com/auth#frag", true},
		{"myapp://auth", true},
	}
	for _, tt := range tests {
		if err := ValidateRedirectURI(tt.uri); (err != nil) != tt.wantErr {
			t.Errorf("ValidateRedirectURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
		}
	}
}

func TestValidateScopes(t *testing.T) {
	if err := ValidateScopes([]string{"openid", "api://x/access_as_user"}); err != nil {
		t.Errorf("ValidateScopes() error = %v", err)
	}
	if err := ValidateScopes([]string{"a", ""}); err == nil {
		t.Error("empty scope should be rejected")
	}
	if err := ValidateScopes([]string{strings.Repeat("s", 300)}); err == nil {
		t.Error("oversized scope should be rejected")
	}
	if err := ValidateScopes(make([]string, 51)); err == nil {
		t.Error("too many scopes should be rejected")
	}
}
