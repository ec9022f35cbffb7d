package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/welkome/identity/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	s := NewWithInterval(time.Hour)
	clock := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	s.SetClock(clock)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestStore_SetGetDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "a", []byte("one"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil || string(got) != "one" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	// The returned slice is a copy.
	got[0] = 'X'
	again, _ := s.Get(ctx, "a")
	if string(again) != "one" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}

	if err := s.Delete(ctx, "a", "never-existed"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
}

func TestStore_TTL(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "short", []byte("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "forever", []byte("y"), 0); err != nil {
		t.Fatal(err)
	}

	clock.Advance(59 * time.Second)
	if _, err := s.Get(ctx, "short"); err != nil {
		t.Fatalf("entry expired early: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := s.Get(ctx, "short"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() on expired entry error = %v, want ErrNotFound", err)
	}
	keys, _ := s.Keys(ctx, "")
	if len(keys) != 1 || keys[0] != "forever" {
		t.Errorf("Keys() = %v, want [forever]", keys)
	}

	if n := s.cleanup(); n != 1 {
		t.Errorf("cleanup() removed %d entries, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_Keys(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"at:1", "at:2", "rt:1", "account:1"} {
		if err := s.Set(ctx, k, []byte(k), 0); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.Keys(ctx, "at:")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	if strings.Join(keys, ",") != "at:1,at:2" {
		t.Errorf("Keys(at:) = %v", keys)
	}
}

func TestStore_Validation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "", []byte("x"), 0); err == nil {
		t.Error("empty key should be rejected")
	}
	if err := s.Set(ctx, strings.Repeat("k", storage.MaxKeyLength+1), []byte("x"), 0); err == nil {
		t.Error("oversized key should be rejected")
	}
	if err := s.Set(ctx, "big", make([]byte, storage.MaxValueSize+1), 0); err == nil {
		t.Error("oversized value should be rejected")
	}
}

func TestStore_Close(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("x"), 0)

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
	if err := s.Set(ctx, "a", []byte("x"), 0); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Set() after Close error = %v, want ErrClosed", err)
	}
}

func TestStore_Concurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "k" + string(rune('a'+i))
			for j := 0; j < 50; j++ {
				_ = s.Set(ctx, key, []byte{byte(j)}, time.Minute)
				_, _ = s.Get(ctx, key)
				_, _ = s.Keys(ctx, "k")
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 20 {
		t.Errorf("Len() = %d, want 20", s.Len())
	}
}
