package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/welkome/identity/security"
)

// maxDiscoveryBody bounds the size of a discovery document.
const maxDiscoveryBody = 1 << 20

// errNotFound marks a metadata URL that answered 404 so the next candidate is tried.
var errNotFound = errors.New("discovery document not found")

// DiscoveryDocument represents an OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	EndSessionEndpoint            string   `json:"end_session_endpoint,omitempty"`
	UserInfoEndpoint              string   `json:"userinfo_endpoint,omitempty"`
	JWKSUri                       string   `json:"jwks_uri"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

type cachedDocument struct {
	document  *DiscoveryDocument
	fetchedAt time.Time
}

// DiscoveryClient fetches and caches OIDC discovery documents per authority.
// It is safe for concurrent use.
type DiscoveryClient struct {
	httpClient    *http.Client
	cache         sync.Map // authority URL -> *cachedDocument
	cacheTTL      time.Duration
	logger        *slog.Logger
	clock         security.Clock
	allowInsecure bool
}

// NewDiscoveryClient creates a new OIDC discovery client.
//
// Parameters:
//   - httpClient: HTTP client to use for requests (nil uses default with 10s timeout)
//   - cacheTTL: Time-to-live for cached discovery documents (0 uses default 1 hour)
//   - logger: Logger for debug/info messages (nil uses default logger)
func NewDiscoveryClient(httpClient *http.Client, cacheTTL time.Duration, logger *slog.Logger) *DiscoveryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cacheTTL == 0 {
		cacheTTL = 1 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DiscoveryClient{
		httpClient: httpClient,
		cacheTTL:   cacheTTL,
		logger:     logger,
		clock:      security.SystemClock{},
	}
}

// AllowInsecure disables HTTPS and private address checks on the authority
// and the discovered endpoints. Only local development and tests should use it.
func (c *DiscoveryClient) AllowInsecure() *DiscoveryClient {
	c.allowInsecure = true
	return c
}

// Discover returns the discovery document for authority, trying each of its
// metadata URLs in turn.
func (c *DiscoveryClient) Discover(ctx context.Context, authority Authority) (*DiscoveryDocument, error) {
	if !c.allowInsecure {
		if err := ValidateIssuerURL(authority.URL); err != nil {
			return nil, fmt.Errorf("invalid authority: %w", err)
		}
	}

	if cached, ok := c.cache.Load(authority.URL); ok {
		doc := cached.(*cachedDocument)
		if c.clock.Now().Sub(doc.fetchedAt) < c.cacheTTL {
			c.logger.Debug("OIDC discovery cache hit", "authority", authority.URL)
			return doc.document, nil
		}
	}

	var lastErr error
	for _, metadataURL := range authority.MetadataURLs() {
		doc, err := c.fetch(ctx, metadataURL)
		if errors.Is(err, errNotFound) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := c.validateDocument(doc); err != nil {
			return nil, fmt.Errorf("invalid discovery document: %w", err)
		}

		c.cache.Store(authority.URL, &cachedDocument{document: doc, fetchedAt: c.clock.Now()})
		c.logger.Info("OIDC discovery successful",
			"authority", authority.URL,
			"issuer", doc.Issuer,
			"token_endpoint", doc.TokenEndpoint)
		return doc, nil
	}

	return nil, fmt.Errorf("OIDC discovery failed for %s: %w", authority.URL, lastErr)
}

func (c *DiscoveryClient) fetch(ctx context.Context, metadataURL string) (*DiscoveryDocument, error) {
	c.logger.Debug("Fetching OIDC discovery document", "url", metadataURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OIDC discovery document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OIDC discovery failed with status %d", resp.StatusCode)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDiscoveryBody)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	return &doc, nil
}

// validateDocument requires the endpoints the client uses and, unless
// insecure mode is on, that they are HTTPS.
func (c *DiscoveryClient) validateDocument(doc *DiscoveryDocument) error {
	required := []struct {
		name string
		url  string
	}{
		{"issuer", doc.Issuer},
		{"authorization_endpoint", doc.AuthorizationEndpoint},
		{"token_endpoint", doc.TokenEndpoint},
		{"jwks_uri", doc.JWKSUri},
	}

	for _, endpoint := range required {
		if endpoint.url == "" {
			return fmt.Errorf("%s is required but missing", endpoint.name)
		}
		if !c.allowInsecure && !strings.HasPrefix(endpoint.url, "https://") {
			return fmt.Errorf("%s must use HTTPS: %s", endpoint.name, endpoint.url)
		}
	}

	if doc.EndSessionEndpoint != "" && !c.allowInsecure && !strings.HasPrefix(doc.EndSessionEndpoint, "https://") {
		return fmt.Errorf("end_session_endpoint must use HTTPS if present: %s", doc.EndSessionEndpoint)
	}

	return nil
}

// ClearCache drops every cached document.
func (c *DiscoveryClient) ClearCache() {
	c.cache.Range(func(key, _ any) bool {
		c.cache.Delete(key)
		return true
	})
}
