package identity

import (
	"reflect"
	"testing"
)

func TestNormalizeScopes(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"sorted", []string{"b", "a"}, []string{"a", "b"}},
		{"dedupe case-insensitive", []string{"User.Read", "user.read", " a "}, []string{"a", "User.Read"}},
		{"drops blanks", []string{"", "  ", "x"}, []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeScopes(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeScopes(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResourceScopes(t *testing.T) {
	got := ResourceScopes([]string{"openid", "api://x/access_as_user", "offline_access", "Profile"})
	want := []string{"api://x/access_as_user"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResourceScopes() = %v, want %v", got, want)
	}
}

func TestWithOIDCScopes(t *testing.T) {
	got := WithOIDCScopes([]string{"api://x/access_as_user", "openid"})
	want := []string{"api://x/access_as_user", "offline_access", "openid", "profile"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WithOIDCScopes() = %v, want %v", got, want)
	}
}

func TestParseAndJoinScope(t *testing.T) {
	scopes := ParseScope("  a  b c ")
	if !reflect.DeepEqual(scopes, []string{"a", "b", "c"}) {
		t.Errorf("ParseScope() = %v", scopes)
	}
	if got := JoinScopes(scopes); got != "a b c" {
		t.Errorf("JoinScopes() = %q", got)
	}
}
