// Package cache is the client-side token cache.
//
// It persists signed-in accounts, access tokens (one per account, authority,
// client and normalized resource scope set), refresh and ID tokens, the
// active account and in-flight redirect interactions on top of any
// storage.Store. Token secrets and PKCE verifiers are encrypted with a
// security.Encryptor before they reach the store when one is configured.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/welkome/identity"
	"github.com/welkome/identity/internal/util"
	"github.com/welkome/identity/security"
	"github.com/welkome/identity/storage"
)

const (
	// DefaultPendingTTL bounds how long a redirect interaction may stay unfinished.
	DefaultPendingTTL = 10 * time.Minute

	prefixAccount      = "account:"
	prefixAccessToken  = "accesstoken:"
	prefixRefreshToken = "refreshtoken:"
	prefixIDToken      = "idtoken:"
	prefixPending      = "pending:"
	keyActive          = "active"

	// idLogLength is the number of characters of an id kept in log lines
	idLogLength = 8
)

var (
	// ErrCacheMiss is returned when no matching entry exists.
	ErrCacheMiss = errors.New("cache miss")

	// ErrTokenExpired is returned for an access token that is expired or
	// inside the refresh offset.
	ErrTokenExpired = errors.New("cached token expired")
)

// Options configures a Cache.
type Options struct {
	// Encryptor encrypts secrets at rest. Nil stores them in clear text.
	Encryptor *security.Encryptor

	// RefreshOffset treats an access token as expired this long before its
	// actual expiry (default security.DefaultRefreshOffset).
	RefreshOffset time.Duration

	// PendingTTL is the lifetime of pending redirect interactions (default 10m).
	PendingTTL time.Duration

	Clock  security.Clock
	Logger *slog.Logger
}

// Cache is safe for concurrent use when the underlying store is.
type Cache struct {
	store         storage.Store
	encryptor     *security.Encryptor
	refreshOffset time.Duration
	pendingTTL    time.Duration
	clock         security.Clock
	logger        *slog.Logger
}

// New wraps store.
func New(store storage.Store, opts Options) *Cache {
	if opts.RefreshOffset <= 0 {
		opts.RefreshOffset = security.DefaultRefreshOffset
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = DefaultPendingTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Cache{
		store:         store,
		encryptor:     opts.Encryptor,
		refreshOffset: opts.RefreshOffset,
		pendingTTL:    opts.PendingTTL,
		clock:         security.ClockOrDefault(opts.Clock),
		logger:        opts.Logger,
	}
}

// RefreshOffset returns the configured refresh offset.
func (c *Cache) RefreshOffset() time.Duration {
	return c.refreshOffset
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// credential is the stored form of any secret-bearing record.
type credential struct {
	Secret        string    `json:"secret"`
	Encrypted     bool      `json:"encrypted,omitempty"`
	TokenType     string    `json:"token_type,omitempty"`
	ExpiresOn     time.Time `json:"expires_on,omitempty"`
	CachedAt      time.Time `json:"cached_at"`
	Scopes        []string  `json:"scopes,omitempty"`
	HomeAccountID string    `json:"home_account_id"`
	Authority     string    `json:"authority"`
	ClientID      string    `json:"client_id"`
}

// hashKey shortens the variable parts of a key so every key stays well
// under storage.MaxKeyLength.
func hashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(parts, "\x00"))))
	return hex.EncodeToString(sum[:16])
}

func accountKey(homeAccountID string) string {
	return prefixAccount + homeAccountID
}

func accessTokenKey(homeAccountID, authority, clientID string, scopes []string) string {
	return prefixAccessToken + homeAccountID + ":" + hashKey(authority, clientID, identity.JoinScopes(scopes))
}

func refreshTokenKey(homeAccountID, authority, clientID string) string {
	return prefixRefreshToken + homeAccountID + ":" + hashKey(authority, clientID)
}

func idTokenKey(homeAccountID, authority, clientID string) string {
	return prefixIDToken + homeAccountID + ":" + hashKey(authority, clientID)
}

func (c *Cache) seal(secret string) (string, bool, error) {
	if !c.encryptor.IsEnabled() {
		return secret, false, nil
	}
	sealed, err := c.encryptor.Encrypt(secret)
	if err != nil {
		return "", false, fmt.Errorf("failed to encrypt secret: %w", err)
	}
	return sealed, true, nil
}

func (c *Cache) open(secret string, encrypted bool) (string, error) {
	if !encrypted {
		return secret, nil
	}
	if !c.encryptor.IsEnabled() {
		return "", fmt.Errorf("cache entry is encrypted but no encryption key is configured")
	}
	plain, err := c.encryptor.Decrypt(secret)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return plain, nil
}

func (c *Cache) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return c.store.Set(ctx, key, data, ttl)
}

func (c *Cache) getJSON(ctx context.Context, key string, v any) error {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrCacheMiss
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return nil
}

// SaveAccount stores or replaces an account.
func (c *Cache) SaveAccount(ctx context.Context, account identity.Account) error {
	if account.IsZero() {
		return fmt.Errorf("account has no home account id")
	}
	return c.putJSON(ctx, accountKey(account.HomeAccountID), account, 0)
}

// Account returns the account with the given home account id.
func (c *Cache) Account(ctx context.Context, homeAccountID string) (identity.Account, error) {
	var account identity.Account
	if err := c.getJSON(ctx, accountKey(homeAccountID), &account); err != nil {
		return identity.Account{}, err
	}
	return account, nil
}

// Accounts lists every cached account ordered by username.
func (c *Cache) Accounts(ctx context.Context) ([]identity.Account, error) {
	keys, err := c.store.Keys(ctx, prefixAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]identity.Account, 0, len(keys))
	for _, key := range keys {
		var account identity.Account
		if err := c.getJSON(ctx, key, &account); err != nil {
			if errors.Is(err, ErrCacheMiss) {
				continue
			}
			return nil, err
		}
		accounts = append(accounts, account)
	}

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Username != accounts[j].Username {
			return accounts[i].Username < accounts[j].Username
		}
		return accounts[i].HomeAccountID < accounts[j].HomeAccountID
	})
	return accounts, nil
}

// RemoveAccount deletes the account with every token cached for it and
// clears it as the active account.
func (c *Cache) RemoveAccount(ctx context.Context, homeAccountID string) error {
	keys := []string{accountKey(homeAccountID)}
	for _, prefix := range []string{prefixAccessToken, prefixRefreshToken, prefixIDToken} {
		found, err := c.store.Keys(ctx, prefix+homeAccountID+":")
		if err != nil {
			return fmt.Errorf("failed to list tokens: %w", err)
		}
		keys = append(keys, found...)
	}

	if active, err := c.activeAccountID(ctx); err == nil && active == homeAccountID {
		keys = append(keys, keyActive)
	}

	if err := c.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}

	c.logger.Debug("Removed account from cache",
		"account", util.SafeTruncate(homeAccountID, idLogLength),
		"entries", len(keys))
	return nil
}

type activeRecord struct {
	HomeAccountID string `json:"home_account_id"`
}

func (c *Cache) activeAccountID(ctx context.Context) (string, error) {
	var rec activeRecord
	if err := c.getJSON(ctx, keyActive, &rec); err != nil {
		return "", err
	}
	return rec.HomeAccountID, nil
}

// SetActiveAccount marks a cached account as active.
func (c *Cache) SetActiveAccount(ctx context.Context, homeAccountID string) error {
	if _, err := c.Account(ctx, homeAccountID); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return fmt.Errorf("account %s is not cached: %w", util.SafeTruncate(homeAccountID, idLogLength), ErrCacheMiss)
		}
		return err
	}
	return c.putJSON(ctx, keyActive, activeRecord{HomeAccountID: homeAccountID}, 0)
}

// ClearActiveAccount leaves no account active.
func (c *Cache) ClearActiveAccount(ctx context.Context) error {
	return c.store.Delete(ctx, keyActive)
}

// ActiveAccount returns the active account, or identity.ErrNoActiveAccount.
func (c *Cache) ActiveAccount(ctx context.Context) (identity.Account, error) {
	homeAccountID, err := c.activeAccountID(ctx)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return identity.Account{}, identity.ErrNoActiveAccount
		}
		return identity.Account{}, err
	}

	account, err := c.Account(ctx, homeAccountID)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return identity.Account{}, identity.ErrNoActiveAccount
		}
		return identity.Account{}, err
	}
	return account, nil
}

// SaveAccessToken stores token under its (account, authority, client,
// resource scopes) key, replacing any previous token for that key. OIDC
// scopes are not part of the key.
func (c *Cache) SaveAccessToken(ctx context.Context, token identity.AccessToken) error {
	if token.Secret == "" {
		return fmt.Errorf("access token secret is empty")
	}
	if token.HomeAccountID == "" {
		return fmt.Errorf("access token has no home account id")
	}

	now := c.clock.Now()
	ttl := token.ExpiresOn.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("access token already expired at %s", token.ExpiresOn.Format(time.RFC3339))
	}

	scopes := identity.ResourceScopes(token.Scopes)
	secret, encrypted, err := c.seal(token.Secret)
	if err != nil {
		return err
	}

	rec := credential{
		Secret:        secret,
		Encrypted:     encrypted,
		TokenType:     token.TokenType,
		ExpiresOn:     token.ExpiresOn.UTC(),
		CachedAt:      now.UTC(),
		Scopes:        scopes,
		HomeAccountID: token.HomeAccountID,
		Authority:     token.Authority,
		ClientID:      token.ClientID,
	}
	return c.putJSON(ctx, accessTokenKey(token.HomeAccountID, token.Authority, token.ClientID, scopes), rec, ttl)
}

// AccessToken looks up the token for exactly the given resource scopes.
// It returns ErrCacheMiss when nothing is cached and ErrTokenExpired when the
// cached token is inside the refresh offset.
func (c *Cache) AccessToken(ctx context.Context, homeAccountID, authority, clientID string, scopes []string) (identity.AccessToken, error) {
	resourceScopes := identity.ResourceScopes(scopes)

	var rec credential
	if err := c.getJSON(ctx, accessTokenKey(homeAccountID, authority, clientID, resourceScopes), &rec); err != nil {
		return identity.AccessToken{}, err
	}

	if security.IsTokenExpiringSoon(c.clock.Now(), rec.ExpiresOn, c.refreshOffset) {
		return identity.AccessToken{}, ErrTokenExpired
	}

	secret, err := c.open(rec.Secret, rec.Encrypted)
	if err != nil {
		return identity.AccessToken{}, err
	}

	return identity.AccessToken{
		Secret:        secret,
		TokenType:     rec.TokenType,
		ExpiresOn:     rec.ExpiresOn,
		Scopes:        rec.Scopes,
		HomeAccountID: rec.HomeAccountID,
		Authority:     rec.Authority,
		ClientID:      rec.ClientID,
	}, nil
}

// RemoveAccessToken deletes the token for the given resource scopes.
func (c *Cache) RemoveAccessToken(ctx context.Context, homeAccountID, authority, clientID string, scopes []string) error {
	return c.store.Delete(ctx, accessTokenKey(homeAccountID, authority, clientID, identity.ResourceScopes(scopes)))
}

func (c *Cache) saveCredential(ctx context.Context, key, secret, homeAccountID, authority, clientID string) error {
	if secret == "" {
		return fmt.Errorf("secret is empty")
	}
	if homeAccountID == "" {
		return fmt.Errorf("credential has no home account id")
	}
	sealed, encrypted, err := c.seal(secret)
	if err != nil {
		return err
	}
	return c.putJSON(ctx, key, credential{
		Secret:        sealed,
		Encrypted:     encrypted,
		CachedAt:      c.clock.Now().UTC(),
		HomeAccountID: homeAccountID,
		Authority:     authority,
		ClientID:      clientID,
	}, 0)
}

func (c *Cache) loadCredential(ctx context.Context, key string) (string, error) {
	var rec credential
	if err := c.getJSON(ctx, key, &rec); err != nil {
		return "", err
	}
	return c.open(rec.Secret, rec.Encrypted)
}

// SaveRefreshToken stores the refresh token for an account and client,
// replacing the previous one (rotation).
func (c *Cache) SaveRefreshToken(ctx context.Context, homeAccountID, authority, clientID, refreshToken string) error {
	return c.saveCredential(ctx, refreshTokenKey(homeAccountID, authority, clientID), refreshToken, homeAccountID, authority, clientID)
}

// RefreshToken returns the refresh token for an account and client.
func (c *Cache) RefreshToken(ctx context.Context, homeAccountID, authority, clientID string) (string, error) {
	return c.loadCredential(ctx, refreshTokenKey(homeAccountID, authority, clientID))
}

// RemoveRefreshToken deletes the refresh token for an account and client.
func (c *Cache) RemoveRefreshToken(ctx context.Context, homeAccountID, authority, clientID string) error {
	return c.store.Delete(ctx, refreshTokenKey(homeAccountID, authority, clientID))
}

// SaveIDToken stores the raw ID token for an account and client.
func (c *Cache) SaveIDToken(ctx context.Context, homeAccountID, authority, clientID, idToken string) error {
	return c.saveCredential(ctx, idTokenKey(homeAccountID, authority, clientID), idToken, homeAccountID, authority, clientID)
}

// IDToken returns the raw ID token for an account and client.
func (c *Cache) IDToken(ctx context.Context, homeAccountID, authority, clientID string) (string, error) {
	return c.loadCredential(ctx, idTokenKey(homeAccountID, authority, clientID))
}
