package security

import (
	"container/list"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxLimiters bounds the number of tracked identifiers.
	DefaultMaxLimiters = 10000

	limiterCleanupInterval = 5 * time.Minute
	limiterMaxIdle         = 30 * time.Minute
)

// rateLimiterEntry tracks a rate limiter and its last access time
type rateLimiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier token bucket rate limiting. The least
// recently used identifier is evicted once maxEntries are tracked.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*list.Element
	lru        *list.List
	limit      rate.Limit
	burst      int
	maxEntries int
	logger     *slog.Logger
	clock      Clock

	stopOnce sync.Once
	stop     chan struct{}

	evictions int64
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given burst
// per identifier and starts its idle cleanup loop. Call Stop when done.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(requestsPerSecond, burst, DefaultMaxLimiters, logger)
}

// NewRateLimiterWithConfig is NewRateLimiter with a custom identifier cap.
// maxEntries of 0 means unlimited.
func NewRateLimiterWithConfig(requestsPerSecond, burst, maxEntries int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries < 0 {
		logger.Warn("Invalid maxEntries, using default", "maxEntries", maxEntries)
		maxEntries = DefaultMaxLimiters
	}

	rl := &RateLimiter{
		limiters:   make(map[string]*list.Element),
		lru:        list.New(),
		limit:      rate.Limit(requestsPerSecond),
		burst:      burst,
		maxEntries: maxEntries,
		logger:     logger,
		clock:      SystemClock{},
		stop:       make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether identifier may make another request now.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.limiters[identifier]; ok {
		rl.lru.MoveToFront(elem)
		entry := elem.Value.(*rateLimiterEntry)
		entry.lastAccess = now
		return entry.limiter.AllowN(now, 1)
	}

	if rl.maxEntries > 0 && len(rl.limiters) >= rl.maxEntries {
		rl.evictOldest()
	}

	entry := &rateLimiterEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rl.limit, rl.burst),
		lastAccess: now,
	}
	rl.limiters[identifier] = rl.lru.PushFront(entry)

	return entry.limiter.AllowN(now, 1)
}

// evictOldest must be called with mu held.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*rateLimiterEntry)
	delete(rl.limiters, entry.identifier)
	rl.lru.Remove(elem)
	rl.evictions++

	rl.logger.Debug("Rate limiter LRU eviction",
		"total_evictions", rl.evictions,
		"current_entries", len(rl.limiters))
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(limiterMaxIdle)
		case <-rl.stop:
			return
		}
	}
}

// Cleanup drops limiters idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	// The list is ordered by recency, so idle entries sit at the back.
	for elem := rl.lru.Back(); elem != nil; {
		entry := elem.Value.(*rateLimiterEntry)
		if now.Sub(entry.lastAccess) <= maxIdle {
			break
		}
		prev := elem.Prev()
		delete(rl.limiters, entry.identifier)
		rl.lru.Remove(elem)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.limiters))
	}
}

// Len returns the number of tracked identifiers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Middleware rejects requests over the limit with 429. The identifier is the
// client IP as resolved by GetClientIP.
func (rl *RateLimiter) Middleware(trustProxy bool, trustedProxyCount int, auditor *Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIP(r, trustProxy, trustedProxyCount)
			if rl.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			auditor.LogRateLimitExceeded(ip, "")
			retryAfter := 1
			if rl.limit > 0 {
				retryAfter = int(1/float64(rl.limit)) + 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "Too many requests",
			})
		})
	}
}
