// Package config loads the YAML configuration of the weather client and the
// weather API, applies environment overrides and defaults, and turns the
// storage and encryption sections into ready-to-use components.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/welkome/identity"
	"github.com/welkome/identity/providers/oidc"
	"github.com/welkome/identity/scopemap"
	"github.com/welkome/identity/security"
	"github.com/welkome/identity/storage"
	"github.com/welkome/identity/storage/file"
	"github.com/welkome/identity/storage/memory"
	"github.com/welkome/identity/storage/redis"
	"github.com/welkome/identity/storage/valkey"
)

// Environment variables that override file settings.
const (
	EnvClientID             = "WELKOME_CLIENT_ID"
	EnvTenantID             = "WELKOME_TENANT_ID"
	EnvAuthority            = "WELKOME_AUTHORITY"
	EnvRedirectURI          = "WELKOME_REDIRECT_URI"
	EnvStorageBackend       = "WELKOME_STORAGE_BACKEND"
	EnvStoragePath          = "WELKOME_STORAGE_PATH"
	EnvStorageAddress       = "WELKOME_STORAGE_ADDRESS"
	EnvStoragePassword      = "WELKOME_STORAGE_PASSWORD" //nolint:gosec // variable name, not a credential
	EnvEncryptionKey        = "WELKOME_ENCRYPTION_KEY"
	EnvEncryptionPassphrase = "WELKOME_ENCRYPTION_PASSPHRASE"
	EnvListenAddr           = "WELKOME_LISTEN_ADDR"
	EnvResourceURL          = "WELKOME_RESOURCE_URL"
	EnvTrustProxy           = "WELKOME_TRUST_PROXY"
)

// Defaults.
const (
	DefaultInstance              = "https://login.microsoftonline.com"
	DefaultRedirectURI           = "http://localhost:4200/"
	DefaultPostLogoutRedirectURI = "http://localhost:4200"
	DefaultListenAddr            = ":7268"
	DefaultResourceURL           = "https://localhost:7268"
	DefaultRateLimit             = 20
	DefaultRateBurst             = 40
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendValkey = "valkey"
)

// Storage selects where the token cache lives.
type Storage struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Encryption configures encryption of cached secrets. Either Key (base64,
// 32 bytes) or Passphrase plus Salt may be set.
type Encryption struct {
	Key        string `yaml:"key"`
	Passphrase string `yaml:"passphrase"`
	Salt       string `yaml:"salt"`
}

// Client is the configuration of the public client application.
type Client struct {
	ClientID string `yaml:"client_id"`
	TenantID string `yaml:"tenant_id"`

	// Instance is the identity provider host. The authority is
	// <instance>/<tenant_id> unless Authority is set.
	Instance  string `yaml:"instance"`
	Authority string `yaml:"authority"`

	RedirectURI           string   `yaml:"redirect_uri"`
	PostLogoutRedirectURI string   `yaml:"post_logout_redirect_uri"`
	Scopes                []string `yaml:"scopes"`

	// InteractionType is used by the interceptor when a protected request
	// needs login.
	InteractionType identity.InteractionType `yaml:"interaction_type"`
	FallbackPolicy  string                   `yaml:"fallback_policy"`
	PopupTimeout    time.Duration            `yaml:"popup_timeout"`
	RefreshOffset   time.Duration            `yaml:"refresh_offset"`

	Resources []scopemap.Entry `yaml:"resources"`

	Storage    Storage    `yaml:"storage"`
	Encryption Encryption `yaml:"encryption"`
}

// RateLimit configures per-IP request limiting. Zero RequestsPerSecond
// disables it.
type RateLimit struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Server is the configuration of the weather API.
type Server struct {
	ListenAddr  string `yaml:"listen_addr"`
	ResourceURL string `yaml:"resource_url"`
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	// ClientID is the application id of the API registration.
	ClientID  string `yaml:"client_id"`
	TenantID  string `yaml:"tenant_id"`
	Instance  string `yaml:"instance"`
	Authority string `yaml:"authority"`

	// Issuer overrides the discovered issuer.
	Issuer    string        `yaml:"issuer"`
	Audiences []string      `yaml:"audiences"`
	ClockSkew time.Duration `yaml:"clock_skew"`

	AcceptedScopes []string `yaml:"accepted_scopes"`

	TrustProxy        bool `yaml:"trust_proxy"`
	TrustedProxyCount int  `yaml:"trusted_proxy_count"`

	RateLimit RateLimit `yaml:"rate_limit"`
	Metrics   Metrics   `yaml:"metrics"`
	Audit     bool      `yaml:"audit"`
}

// LoadClient reads the client configuration at path. An empty path uses
// defaults and the environment only.
func LoadClient(path string) (*Client, error) {
	cfg := &Client{}
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadServer reads the API configuration at path. An empty path uses
// defaults and the environment only.
func LoadServer(path string) (*Server, error) {
	cfg := &Server{}
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Client) applyEnv() {
	setFromEnv(&c.ClientID, EnvClientID)
	setFromEnv(&c.TenantID, EnvTenantID)
	setFromEnv(&c.Authority, EnvAuthority)
	setFromEnv(&c.RedirectURI, EnvRedirectURI)
	setFromEnv(&c.Storage.Backend, EnvStorageBackend)
	setFromEnv(&c.Storage.Path, EnvStoragePath)
	setFromEnv(&c.Storage.Address, EnvStorageAddress)
	setFromEnv(&c.Storage.Password, EnvStoragePassword)
	setFromEnv(&c.Encryption.Key, EnvEncryptionKey)
	setFromEnv(&c.Encryption.Passphrase, EnvEncryptionPassphrase)
}

func (c *Client) applyDefaults() {
	if c.Instance == "" {
		c.Instance = DefaultInstance
	}
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultRedirectURI
	}
	if c.PostLogoutRedirectURI == "" {
		c.PostLogoutRedirectURI = DefaultPostLogoutRedirectURI
	}
	if c.InteractionType == "" {
		c.InteractionType = identity.InteractionRedirect
	}
	if c.RefreshOffset <= 0 {
		c.RefreshOffset = security.DefaultRefreshOffset
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFile
	}
	if c.Storage.Backend == BackendFile && c.Storage.Path == "" {
		c.Storage.Path = defaultCachePath()
	}
}

// Validate checks required fields and value ranges.
func (c *Client) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required (or set %s)", EnvClientID)
	}
	if c.AuthorityURL() == "" {
		return fmt.Errorf("tenant_id or authority is required (or set %s)", EnvTenantID)
	}
	if _, err := oidc.ParseAuthority(c.AuthorityURL()); err != nil {
		return err
	}
	if !c.InteractionType.Valid() {
		return fmt.Errorf("unknown interaction_type %q", c.InteractionType)
	}
	if _, err := scopemap.New(c.Resources...); err != nil {
		return fmt.Errorf("invalid resources: %w", err)
	}
	return c.Storage.validate()
}

// AuthorityURL returns Authority or <Instance>/<TenantID>.
func (c *Client) AuthorityURL() string {
	return authorityURL(c.Authority, c.Instance, c.TenantID)
}

// ScopeMap builds the protected resource map.
func (c *Client) ScopeMap() (*scopemap.Map, error) {
	return scopemap.New(c.Resources...)
}

func (s *Server) applyEnv() {
	setFromEnv(&s.ClientID, EnvClientID)
	setFromEnv(&s.TenantID, EnvTenantID)
	setFromEnv(&s.Authority, EnvAuthority)
	setFromEnv(&s.ListenAddr, EnvListenAddr)
	setFromEnv(&s.ResourceURL, EnvResourceURL)
	if v, ok := os.LookupEnv(EnvTrustProxy); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.TrustProxy = b
		}
	}
}

func (s *Server) applyDefaults() {
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.ResourceURL == "" {
		s.ResourceURL = DefaultResourceURL
	}
	if s.Instance == "" {
		s.Instance = DefaultInstance
	}
	if s.ClockSkew <= 0 {
		s.ClockSkew = security.DefaultClockSkewGracePeriod
	}
	if len(s.Audiences) == 0 && s.ClientID != "" {
		s.Audiences = []string{"api://" + s.ClientID, s.ClientID}
	}
	if len(s.AcceptedScopes) == 0 {
		s.AcceptedScopes = []string{"access_as_user"}
	}
	if s.RateLimit.RequestsPerSecond == 0 && s.RateLimit.Burst == 0 {
		s.RateLimit = RateLimit{RequestsPerSecond: DefaultRateLimit, Burst: DefaultRateBurst}
	}
	if s.Metrics.Path == "" {
		s.Metrics.Path = "/metrics"
	}
}

// Validate checks required fields and value ranges.
func (s *Server) Validate() error {
	if s.ClientID == "" && len(s.Audiences) == 0 {
		return fmt.Errorf("client_id or audiences is required (or set %s)", EnvClientID)
	}
	if s.AuthorityURL() == "" {
		return fmt.Errorf("tenant_id or authority is required (or set %s)", EnvTenantID)
	}
	if _, err := oidc.ParseAuthority(s.AuthorityURL()); err != nil {
		return err
	}
	if (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
		return fmt.Errorf("tls_cert_file and tls_key_file must be set together")
	}
	if s.TrustedProxyCount < 0 {
		return fmt.Errorf("trusted_proxy_count must not be negative")
	}
	if s.RateLimit.RequestsPerSecond < 0 || s.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}

// AuthorityURL returns Authority or <Instance>/<TenantID>.
func (s *Server) AuthorityURL() string {
	return authorityURL(s.Authority, s.Instance, s.TenantID)
}

func authorityURL(authority, instance, tenant string) string {
	if authority != "" {
		return authority
	}
	if tenant == "" {
		return ""
	}
	return strings.TrimSuffix(instance, "/") + "/" + tenant
}

func (s Storage) validate() error {
	switch s.Backend {
	case BackendMemory:
	case BackendFile:
		if s.Path == "" {
			return fmt.Errorf("storage.path is required for the file backend")
		}
	case BackendRedis, BackendValkey:
		if s.Address == "" {
			return fmt.Errorf("storage.address is required for the %s backend", s.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", s.Backend)
	}
	return nil
}

// Open creates the configured store.
func (s Storage) Open(clock security.Clock, logger *slog.Logger) (storage.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	var (
		store storage.Store
		err   error
	)
	switch s.Backend {
	case BackendMemory:
		mem := memory.New()
		mem.SetLogger(logger)
		mem.SetClock(clock)
		store = mem
	case BackendFile:
		store, err = openFile(s.Path, clock, logger)
	case BackendRedis:
		store, err = openRedis(redis.Config{
			Address:   s.Address,
			Password:  s.Password,
			DB:        s.DB,
			KeyPrefix: s.KeyPrefix,
			Logger:    logger,
		})
	default:
		store, err = openValkey(valkey.Config{
			Address:   s.Address,
			Password:  s.Password,
			DB:        s.DB,
			KeyPrefix: s.KeyPrefix,
			Logger:    logger,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s token store: %w", s.Backend, err)
	}
	logger.Debug("Token store opened", "backend", s.Backend)
	return store, nil
}

func openFile(path string, clock security.Clock, logger *slog.Logger) (storage.Store, error) {
	s, err := file.Open(path, file.Options{Clock: clock, Logger: logger})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openRedis(cfg redis.Config) (storage.Store, error) {
	s, err := redis.New(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openValkey(cfg valkey.Config) (storage.Store, error) {
	s, err := valkey.New(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Encryptor returns the configured encryptor, or nil when encryption is off.
func (e Encryption) Encryptor() (*security.Encryptor, error) {
	var key []byte
	var err error
	switch {
	case e.Key != "":
		key, err = security.KeyFromBase64(e.Key)
	case e.Passphrase != "":
		key, err = security.KeyFromPassphrase(e.Passphrase, e.Salt)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid encryption settings: %w", err)
	}
	return security.NewEncryptor(key)
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func defaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "welkome", "token-cache.json")
}
