package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welkome/identity"
	"github.com/welkome/identity/security"
)

const clientYAML = `
client_id: 0f4e5d6c-1111-4222-8333-444455556666
tenant_id: contoso-tenant
scopes: ["api://weather-api/access_as_user"]
interaction_type: popup
popup_timeout: 2m
resources:
  - resource: https://localhost:7268/WeatherForecast
    scopes: ["api://weather-api/access_as_user"]
storage:
  backend: memory
`

const serverYAML = `
client_id: 6e5b2c1a-8f3d-4c7e-9a21-3b4d5e6f7a80
tenant_id: contoso-tenant
clock_skew: 30s
rate_limit:
  requests_per_second: 5
  burst: 10
metrics:
  enabled: true
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadClient(t *testing.T) {
	cfg, err := LoadClient(writeFile(t, clientYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://login.microsoftonline.com/contoso-tenant", cfg.AuthorityURL())
	assert.Equal(t, DefaultRedirectURI, cfg.RedirectURI)
	assert.Equal(t, DefaultPostLogoutRedirectURI, cfg.PostLogoutRedirectURI)
	assert.Equal(t, identity.InteractionPopup, cfg.InteractionType)
	assert.Equal(t, 2*time.Minute, cfg.PopupTimeout)
	assert.Equal(t, security.DefaultRefreshOffset, cfg.RefreshOffset)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)

	m, err := cfg.ScopeMap()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestLoadClient_EnvOverrides(t *testing.T) {
	t.Setenv(EnvClientID, "env-client")
	t.Setenv(EnvAuthority, "https://login.example.com/other-tenant")
	t.Setenv(EnvStorageBackend, BackendFile)
	t.Setenv(EnvStoragePath, filepath.Join(t.TempDir(), "cache.json"))

	cfg, err := LoadClient(writeFile(t, clientYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.ClientID)
	assert.Equal(t, "https://login.example.com/other-tenant", cfg.AuthorityURL())
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
}

func TestLoadClient_EnvOnly(t *testing.T) {
	t.Setenv(EnvClientID, "env-client")
	t.Setenv(EnvTenantID, "env-tenant")

	cfg, err := LoadClient("")
	require.NoError(t, err)

	assert.Equal(t, identity.InteractionRedirect, cfg.InteractionType)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.NotEmpty(t, cfg.Storage.Path)
}

func TestLoadClient_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no client id", "tenant_id: t\n"},
		{"no tenant", "client_id: c\n"},
		{"bad interaction type", "client_id: c\ntenant_id: t\ninteraction_type: iframe\n"},
		{"bad storage backend", "client_id: c\ntenant_id: t\nstorage:\n  backend: sqlite\n"},
		{"redis without address", "client_id: c\ntenant_id: t\nstorage:\n  backend: redis\n"},
		{"resource without scopes", "client_id: c\ntenant_id: t\nresources:\n  - resource: https://api.example.com\n"},
		{"malformed yaml", "client_id: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadClient(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadClient(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadServer(t *testing.T) {
	cfg, err := LoadServer(writeFile(t, serverYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultResourceURL, cfg.ResourceURL)
	assert.Equal(t, "https://login.microsoftonline.com/contoso-tenant", cfg.AuthorityURL())
	assert.Equal(t, []string{"api://6e5b2c1a-8f3d-4c7e-9a21-3b4d5e6f7a80", "6e5b2c1a-8f3d-4c7e-9a21-3b4d5e6f7a80"}, cfg.Audiences)
	assert.Equal(t, []string{"access_as_user"}, cfg.AcceptedScopes)
	assert.Equal(t, 30*time.Second, cfg.ClockSkew)
	assert.Equal(t, RateLimit{RequestsPerSecond: 5, Burst: 10}, cfg.RateLimit)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadServer_EnvOverrides(t *testing.T) {
	t.Setenv(EnvListenAddr, ":9443")
	t.Setenv(EnvResourceURL, "https://weather.example.com")
	t.Setenv(EnvTrustProxy, "true")

	cfg, err := LoadServer(writeFile(t, serverYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9443", cfg.ListenAddr)
	assert.Equal(t, "https://weather.example.com", cfg.ResourceURL)
	assert.True(t, cfg.TrustProxy)
}

func TestLoadServer_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no audience", "tenant_id: t\n"},
		{"no tenant", "client_id: c\n"},
		{"half tls", "client_id: c\ntenant_id: t\ntls_cert_file: cert.pem\n"},
		{"negative proxies", "client_id: c\ntenant_id: t\ntrusted_proxy_count: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadServer(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestStorage_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := Storage{Backend: BackendMemory}.Open(nil, nil)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.json")
		store, err := Storage{Backend: BackendFile, Path: path}.Open(nil, nil)
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
		require.NoError(t, store.Close())

		reopened, err := Storage{Backend: BackendFile, Path: path}.Open(nil, nil)
		require.NoError(t, err)
		defer func() { _ = reopened.Close() }()
		got, err := reopened.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, err := Storage{Backend: BackendRedis, Address: mr.Addr(), KeyPrefix: "cfg:"}.Open(nil, nil)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
		assert.True(t, mr.Exists("cfg:k"))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Storage{Backend: "sqlite"}.Open(nil, nil)
		assert.Error(t, err)
	})
}

func TestEncryption_Encryptor(t *testing.T) {
	enc, err := Encryption{}.Encryptor()
	require.NoError(t, err)
	assert.Nil(t, enc)

	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err = Encryption{Key: security.KeyToBase64(key)}.Encryptor()
	require.NoError(t, err)
	assert.True(t, enc.IsEnabled())

	enc, err = Encryption{Passphrase: "correct horse", Salt: "weather-client"}.Encryptor()
	require.NoError(t, err)
	assert.True(t, enc.IsEnabled())

	_, err = Encryption{Passphrase: "no salt"}.Encryptor()
	assert.Error(t, err)

	_, err = Encryption{Key: "not base64!"}.Encryptor()
	assert.Error(t, err)
}
