package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/welkome/identity"
)

// PendingInteraction is a redirect flow that left the process and has not
// come back through HandleRedirect yet.
type PendingInteraction struct {
	State string `json:"state"`
	// Kind is InteractionLogin, InteractionLogout or InteractionAcquireToken.
	Kind        identity.InteractionStatus `json:"kind"`
	Verifier    string                     `json:"verifier,omitempty"`
	Nonce       string                     `json:"nonce,omitempty"`
	Scopes      []string                   `json:"scopes,omitempty"`
	RedirectURI string                     `json:"redirect_uri"`
	CreatedAt   time.Time                  `json:"created_at"`

	// Encrypted marks Verifier as sealed. Set by the cache.
	Encrypted bool `json:"encrypted,omitempty"`
}

// SavePending stores p keyed by its state for the pending TTL.
func (c *Cache) SavePending(ctx context.Context, p PendingInteraction) error {
	if p.State == "" {
		return fmt.Errorf("pending interaction has no state")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = c.clock.Now().UTC()
	}

	if p.Verifier != "" {
		sealed, encrypted, err := c.seal(p.Verifier)
		if err != nil {
			return err
		}
		p.Verifier, p.Encrypted = sealed, encrypted
	}

	return c.putJSON(ctx, prefixPending+p.State, p, c.pendingTTL)
}

func (c *Cache) loadPending(ctx context.Context, key string) (PendingInteraction, error) {
	var p PendingInteraction
	if err := c.getJSON(ctx, key, &p); err != nil {
		return PendingInteraction{}, err
	}
	if p.Verifier != "" {
		verifier, err := c.open(p.Verifier, p.Encrypted)
		if err != nil {
			return PendingInteraction{}, err
		}
		p.Verifier = verifier
	}
	p.Encrypted = false
	return p, nil
}

// TakePending returns and deletes the interaction for state. An unknown or
// expired state yields ErrCacheMiss.
func (c *Cache) TakePending(ctx context.Context, state string) (PendingInteraction, error) {
	if state == "" {
		return PendingInteraction{}, ErrCacheMiss
	}
	key := prefixPending + state
	p, err := c.loadPending(ctx, key)
	if err != nil {
		return PendingInteraction{}, err
	}
	if err := c.store.Delete(ctx, key); err != nil {
		return PendingInteraction{}, fmt.Errorf("failed to delete pending interaction: %w", err)
	}
	return p, nil
}

// PendingInteractions lists unfinished redirect interactions, newest first.
func (c *Cache) PendingInteractions(ctx context.Context) ([]PendingInteraction, error) {
	keys, err := c.store.Keys(ctx, prefixPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending interactions: %w", err)
	}

	out := make([]PendingInteraction, 0, len(keys))
	for _, key := range keys {
		p, err := c.loadPending(ctx, key)
		if err != nil {
			if errors.Is(err, ErrCacheMiss) {
				continue
			}
			return nil, err
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ClearPending drops every pending interaction.
func (c *Cache) ClearPending(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, prefixPending)
	if err != nil {
		return fmt.Errorf("failed to list pending interactions: %w", err)
	}
	return c.store.Delete(ctx, keys...)
}
