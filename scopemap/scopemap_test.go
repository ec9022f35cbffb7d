package scopemap

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

const weatherScope = "api://11111111-2222-3333-4444-555555555555/access_as_user"

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr string
	}{
		{
			name:    "empty resource",
			entries: []Entry{{Resource: "", Scopes: []string{"a"}}},
			wantErr: "required",
		},
		{
			name:    "relative resource",
			entries: []Entry{{Resource: "/api", Scopes: []string{"a"}}},
			wantErr: "absolute",
		},
		{
			name:    "no scopes",
			entries: []Entry{{Resource: "https://api.example.com", Scopes: []string{" "}}},
			wantErr: "no scopes",
		},
		{
			name: "duplicate after normalization",
			entries: []Entry{
				{Resource: "https://API.example.com:443/v1/", Scopes: []string{"a"}},
				{Resource: "https://api.example.com/v1", Scopes: []string{"b"}},
			},
			wantErr: "duplicates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries...)
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	m, err := New(
		Entry{Resource: "https://host/a", Scopes: []string{"scope-a"}},
		Entry{Resource: "https://host/a/b", Scopes: []string{"scope-ab"}},
		Entry{Resource: "https://localhost:7268/WeatherForecast", Scopes: []string{weatherScope}},
		Entry{Resource: "https://graph.example.com/*", Scopes: []string{"User.Read"}},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name   string
		url    string
		want   []string
		wantOK bool
	}{
		{"longest prefix wins", "https://host/a/b/c", []string{"scope-ab"}, true},
		{"exact shorter entry", "https://host/a", []string{"scope-a"}, true},
		{"segment boundary", "https://host/ab", nil, false},
		{"sibling of longer entry", "https://host/a/x", []string{"scope-a"}, true},
		{"weather endpoint", "https://localhost:7268/WeatherForecast", []string{weatherScope}, true},
		{"query ignored", "https://localhost:7268/WeatherForecast?days=5", []string{weatherScope}, true},
		{"host case-insensitive", "HTTPS://LOCALHOST:7268/WeatherForecast", []string{weatherScope}, true},
		{"different port", "https://localhost:7000/WeatherForecast", nil, false},
		{"wildcard entry", "https://graph.example.com/v1.0/me", []string{"User.Read"}, true},
		{"default port", "https://graph.example.com:443/me", []string{"User.Read"}, true},
		{"scheme mismatch", "http://host/a", nil, false},
		{"unrelated host", "https://other/a", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.LookupString(tt.url)
			if ok != tt.wantOK {
				t.Fatalf("LookupString(%q) ok = %v, want %v", tt.url, ok, tt.wantOK)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LookupString(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	m, err := FromMap(map[string][]string{"https://host": {"s"}})
	if err != nil {
		t.Fatalf("FromMap() error = %v", err)
	}

	got, _ := m.LookupString("https://host/x")
	got[0] = "mutated"

	again, _ := m.LookupString("https://host/x")
	if again[0] != "s" {
		t.Errorf("Lookup result aliased internal state: %v", again)
	}
}

func TestNilMap(t *testing.T) {
	var m *Map
	if _, ok := m.LookupString("https://host"); ok {
		t.Error("nil map should never match")
	}
	if m.Len() != 0 {
		t.Error("nil map should have zero length")
	}
}

func TestEntries_Order(t *testing.T) {
	m, err := New(
		Entry{Resource: "https://host/a", Scopes: []string{"1"}},
		Entry{Resource: "https://host/a/b/c", Scopes: []string{"3"}},
		Entry{Resource: "https://host/a/b", Scopes: []string{"2"}},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var got []string
	for _, e := range m.Entries() {
		got = append(got, e.Scopes[0])
	}
	if !reflect.DeepEqual(got, []string{"3", "2", "1"}) {
		t.Errorf("Entries() order = %v", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resources.yaml")
	data := `resources:
  - resource: https://localhost:7268/WeatherForecast
    scopes:
      - ` + weatherScope + `
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	if got, ok := m.LookupString("https://localhost:7268/WeatherForecast"); !ok || got[0] != weatherScope {
		t.Errorf("LookupString() = %v, %v", got, ok)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
	if _, err := Parse([]byte("resources: [")); err == nil {
		t.Error("Parse() of invalid YAML should fail")
	}
}

// The most specific entry is always the one whose path is the longest
// segment-aligned prefix of the request path.
func TestLookup_LongestPrefixProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		segments := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,4}`), 1, 6).Draw(t, "segments")
		cut := rapid.IntRange(0, len(segments)).Draw(t, "cut")

		var entries []Entry
		for i := 0; i <= cut; i++ {
			entries = append(entries, Entry{
				Resource: "https://host/" + strings.Join(segments[:i], "/"),
				Scopes:   []string{"scope-" + strings.Join(segments[:i], ".")},
			})
		}
		m, err := New(entries...)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		got, ok := m.LookupString("https://host/" + strings.Join(segments, "/"))
		if !ok {
			t.Fatal("root entry must always match")
		}
		want := "scope-" + strings.Join(segments[:cut], ".")
		if got[0] != want {
			t.Fatalf("Lookup() = %v, want %v", got, want)
		}
	})
}
