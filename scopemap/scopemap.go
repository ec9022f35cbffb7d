// Package scopemap resolves which OAuth scopes an outbound request needs,
// based on the longest configured resource URL prefix that matches it.
package scopemap

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry binds a resource URL prefix to the scopes a token for it must carry.
type Entry struct {
	Resource string   `yaml:"resource" json:"resource"`
	Scopes   []string `yaml:"scopes" json:"scopes"`
}

type compiledEntry struct {
	entry  Entry
	scheme string
	host   string
	path   string
}

// Map is an immutable prefix table. It is safe for concurrent use.
type Map struct {
	entries []compiledEntry
}

// New validates entries and builds a Map. Resources must be absolute http(s)
// URLs, each with at least one scope, and no resource may appear twice.
func New(entries ...Entry) (*Map, error) {
	m := &Map{entries: make([]compiledEntry, 0, len(entries))}
	seen := make(map[string]string, len(entries))

	for _, e := range entries {
		scheme, host, path, err := splitResource(e.Resource)
		if err != nil {
			return nil, err
		}

		scopes := make([]string, 0, len(e.Scopes))
		for _, s := range e.Scopes {
			if s = strings.TrimSpace(s); s != "" {
				scopes = append(scopes, s)
			}
		}
		if len(scopes) == 0 {
			return nil, fmt.Errorf("resource %q has no scopes", e.Resource)
		}

		key := scheme + "://" + host + path
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("resource %q duplicates %q", e.Resource, prev)
		}
		seen[key] = e.Resource

		m.entries = append(m.entries, compiledEntry{
			entry:  Entry{Resource: e.Resource, Scopes: scopes},
			scheme: scheme,
			host:   host,
			path:   path,
		})
	}

	// Longest path first so the first hit in Lookup is the most specific one.
	sort.SliceStable(m.entries, func(i, j int) bool {
		return len(m.entries[i].path) > len(m.entries[j].path)
	})

	return m, nil
}

// FromMap builds a Map from the resource -> scopes form used in configuration.
func FromMap(resources map[string][]string) (*Map, error) {
	entries := make([]Entry, 0, len(resources))
	for r, s := range resources {
		entries = append(entries, Entry{Resource: r, Scopes: s})
	}
	return New(entries...)
}

// Lookup returns the scopes of the longest entry matching u. Scheme and host
// compare case-insensitively, the path matches on segment boundaries and the
// query string is ignored.
func (m *Map) Lookup(u *url.URL) ([]string, bool) {
	if m == nil || u == nil {
		return nil, false
	}

	scheme := strings.ToLower(u.Scheme)
	host := canonicalHost(scheme, u.Host)
	path := u.Path

	for _, ce := range m.entries {
		if ce.scheme != scheme || ce.host != host {
			continue
		}
		if matchPath(ce.path, path) {
			out := make([]string, len(ce.entry.Scopes))
			copy(out, ce.entry.Scopes)
			return out, true
		}
	}
	return nil, false
}

// LookupString parses raw and calls Lookup.
func (m *Map) LookupString(raw string) ([]string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	return m.Lookup(u)
}

// Entries returns the configured entries in match order.
func (m *Map) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	for i, ce := range m.entries {
		scopes := make([]string, len(ce.entry.Scopes))
		copy(scopes, ce.entry.Scopes)
		out[i] = Entry{Resource: ce.entry.Resource, Scopes: scopes}
	}
	return out
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

type fileFormat struct {
	Resources []Entry `yaml:"resources"`
}

// Parse reads a YAML document of the form
//
//	resources:
//	  - resource: https://localhost:7268/WeatherForecast
//	    scopes: ["api://<app-id>/access_as_user"]
func Parse(data []byte) (*Map, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse resource map: %w", err)
	}
	return New(f.Resources...)
}

// Load reads and parses a YAML resource map file.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource map: %w", err)
	}
	return Parse(data)
}

func matchPath(prefix, path string) bool {
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/'
}

func splitResource(raw string) (scheme, host, path string, err error) {
	if strings.TrimSpace(raw) == "" {
		return "", "", "", fmt.Errorf("resource URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid resource URL %q: %w", raw, err)
	}
	scheme = strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", "", fmt.Errorf("resource URL %q must be absolute http(s)", raw)
	}
	if u.Host == "" {
		return "", "", "", fmt.Errorf("resource URL %q has no host", raw)
	}

	path = strings.TrimSuffix(u.Path, "*")
	path = strings.TrimRight(path, "/")
	return scheme, canonicalHost(scheme, u.Host), path, nil
}

// canonicalHost lower-cases the host and drops the scheme's default port.
func canonicalHost(scheme, hostport string) string {
	hostport = strings.ToLower(hostport)
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return hostport
}
