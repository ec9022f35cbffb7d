package identity

import (
	"context"
	"encoding/json"
	"testing"
)

func TestTokenResponse_JSON(t *testing.T) {
	raw := `{"access_token":"at","token_type":"Bearer","expires_in":3600,"refresh_token":"rt","scope":"api://x/access_as_user openid","id_token":"idt"}`

	var resp TokenResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if resp.AccessToken != "at" || resp.RefreshToken != "rt" || resp.IDToken != "idt" {
		t.Errorf("unexpected tokens: %+v", resp)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", resp.ExpiresIn)
	}
	if got := ParseScope(resp.Scope); len(got) != 2 {
		t.Errorf("ParseScope(%q) = %v, want 2 scopes", resp.Scope, got)
	}
}

func TestInteractionType_Valid(t *testing.T) {
	if !InteractionRedirect.Valid() || !InteractionPopup.Valid() {
		t.Error("redirect and popup should be valid")
	}
	if InteractionType("silent").Valid() {
		t.Error("unknown interaction type should be invalid")
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatal("empty context should not carry a principal")
	}

	p := &Principal{Subject: "sub", Scopes: []string{"access_as_user"}, Roles: []string{"Forecast.Read"}}
	got, ok := PrincipalFromContext(ContextWithPrincipal(ctx, p))
	if !ok || got != p {
		t.Fatalf("PrincipalFromContext() = %v, %v", got, ok)
	}

	perms := got.Permissions()
	if len(perms) != 2 || perms[0] != "access_as_user" || perms[1] != "Forecast.Read" {
		t.Errorf("Permissions() = %v", perms)
	}

	if _, ok := PrincipalFromContext(ContextWithPrincipal(ctx, nil)); ok {
		t.Error("nil principal should not be reported as present")
	}
}
