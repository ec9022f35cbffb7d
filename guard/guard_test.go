package guard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/welkome/identity"
)

func TestVerify(t *testing.T) {
	tests := []struct {
		name     string
		accepted []string
		granted  []string
		wantErr  error
	}{
		{
			name:     "single accepted scope granted",
			accepted: []string{"access_as_user"},
			granted:  []string{"access_as_user"},
		},
		{
			name:     "one of several accepted",
			accepted: []string{"access_as_user", "read"},
			granted:  []string{"read", "write"},
		},
		{
			name:     "no overlap",
			accepted: []string{"access_as_user"},
			granted:  []string{"other_scope"},
			wantErr:  identity.ErrInsufficientScope,
		},
		{
			name:     "no scopes granted",
			accepted: []string{"access_as_user"},
			wantErr:  identity.ErrInsufficientScope,
		},
		{
			name:     "exact comparison",
			accepted: []string{"access_as_user"},
			granted:  []string{"Access_As_User"},
			wantErr:  identity.ErrInsufficientScope,
		},
		{
			name:    "no accepted scopes",
			granted: []string{"access_as_user"},
			wantErr: ErrNoAcceptedScopes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.accepted, tt.granted)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Verify() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_ErrorDetails(t *testing.T) {
	err := Verify([]string{"access_as_user"}, []string{"other_scope"})

	var scopeErr *InsufficientScopeError
	if !errors.As(err, &scopeErr) {
		t.Fatalf("error = %T", err)
	}
	if scopeErr.Accepted[0] != "access_as_user" || scopeErr.Granted[0] != "other_scope" {
		t.Errorf("error = %+v", scopeErr)
	}
	if !strings.Contains(err.Error(), "access_as_user") {
		t.Errorf("message %q does not name the accepted scope", err.Error())
	}
}

// Verify succeeds exactly when the two sets intersect.
func TestVerify_IntersectionProperty(t *testing.T) {
	universe := []string{"access_as_user", "read", "write", "admin", "Forecast.Read", "other_scope"}

	rapid.Check(t, func(t *rapid.T) {
		accepted := rapid.SliceOfN(rapid.SampledFrom(universe), 1, 4).Draw(t, "accepted")
		granted := rapid.SliceOfN(rapid.SampledFrom(universe), 0, 5).Draw(t, "granted")

		intersects := false
		for _, a := range accepted {
			for _, g := range granted {
				if a == g {
					intersects = true
				}
			}
		}

		err := Verify(accepted, granted)
		if intersects && err != nil {
			t.Fatalf("Verify(%v, %v) = %v, want nil", accepted, granted, err)
		}
		if !intersects && !errors.Is(err, identity.ErrInsufficientScope) {
			t.Fatalf("Verify(%v, %v) = %v, want insufficient scope", accepted, granted, err)
		}
	})
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoAcceptedScopes) {
		t.Errorf("New() without scopes error = %v", err)
	}
	if _, err := New(Config{}, " ", ""); !errors.Is(err, ErrNoAcceptedScopes) {
		t.Errorf("New() with blank scopes error = %v", err)
	}

	g, err := New(Config{}, " access_as_user ")
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Accepted(); len(got) != 1 || got[0] != "access_as_user" {
		t.Errorf("Accepted() = %v", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("RequireAnyScope() without scopes did not panic")
		}
	}()
	RequireAnyScope(Config{})
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAnyScope(Config{
		Realm:               "weather-api",
		ResourceMetadataURL: "https://api.example/.well-known/oauth-protected-resource",
	}, "access_as_user")(ok)

	tests := []struct {
		name       string
		principal  *identity.Principal
		wantStatus int
		wantError  string
	}{
		{
			name:       "no principal",
			wantStatus: http.StatusUnauthorized,
			wantError:  identity.ErrorCodeInvalidToken,
		},
		{
			name:       "delegated scope",
			principal:  &identity.Principal{Subject: "u1", Scopes: []string{"access_as_user"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "app role",
			principal:  &identity.Principal{Subject: "daemon", Roles: []string{"access_as_user"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "other scope",
			principal:  &identity.Principal{Subject: "u1", Scopes: []string{"other_scope"}},
			wantStatus: http.StatusForbidden,
			wantError:  identity.ErrorCodeInsufficientScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/WeatherForecast", nil)
			if tt.principal != nil {
				req = req.WithContext(identity.ContextWithPrincipal(req.Context(), tt.principal))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError == "" {
				return
			}

			challenge := rec.Header().Get("WWW-Authenticate")
			if !strings.HasPrefix(challenge, "Bearer ") || !strings.Contains(challenge, `error="`+tt.wantError+`"`) {
				t.Errorf("WWW-Authenticate = %q", challenge)
			}
			if !strings.Contains(challenge, `resource_metadata="https://api.example/`) {
				t.Errorf("challenge lacks resource_metadata: %q", challenge)
			}
			if tt.wantStatus == http.StatusForbidden && !strings.Contains(challenge, `scope="access_as_user"`) {
				t.Errorf("403 challenge lacks scope: %q", challenge)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["error"] != tt.wantError || body["error_description"] == "" {
				t.Errorf("body = %v", body)
			}
		})
	}
}
