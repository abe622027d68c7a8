package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig defines a fixed window rate limit.
// Both fields must be > 0.
type RateLimitConfig struct {
	// RequestsPerWindow is the maximum number of requests allowed per window.
	RequestsPerWindow int
	// WindowDuration is the time window for the rate limit.
	WindowDuration time.Duration
}

// Validate checks that both fields are positive.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// DefaultRankingLimit returns the limit applied to the ranked listing,
// 60 requests per minute per viewer.
func DefaultRankingLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 60,
		WindowDuration:    time.Minute,
	}
}

// RateLimitStore keeps rate limit counters.
type RateLimitStore interface {
	// Allow reports whether a request for key fits in the current window.
	// retryAfter is the number of seconds until the window resets when not allowed.
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, retryAfter int)
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// InMemoryRateLimitStore is a fixed window counter for a single instance.
// Thread-safe for concurrent access.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewInMemoryRateLimitStore creates a new in-memory rate limit store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		buckets: make(map[string]*bucket),
	}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, config RateLimitConfig) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	b, exists := s.buckets[key]
	if !exists || now.After(b.windowEnd) {
		s.buckets[key] = &bucket{count: 1, windowEnd: now.Add(config.WindowDuration)}
		return true, 0
	}

	if b.count < config.RequestsPerWindow {
		b.count++
		return true, 0
	}

	return false, retryAfterSeconds(b.windowEnd.Sub(now))
}

// Cleanup removes expired buckets. Call it periodically, every few windows.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, b := range s.buckets {
		if now.After(b.windowEnd) {
			delete(s.buckets, key)
		}
	}
}

// rateLimitKeyPrefix namespaces counters in Redis.
const rateLimitKeyPrefix = "ratelimit:"

// RedisRateLimitStore shares fixed window counters across instances.
// Redis errors fail open: the request is allowed and the error is counted.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
	logger  *slog.Logger
}

// NewRedisRateLimitStore creates a Redis backed store. metrics may be nil.
func NewRedisRateLimitStore(client *redis.Client, metrics *Metrics, logger *slog.Logger) *RedisRateLimitStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimitStore{client: client, metrics: metrics, logger: logger}
}

// Allow implements RateLimitStore.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := rateLimitKeyPrefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		s.failOpen(ctx, err)
		return true, 0
	}
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, config.WindowDuration).Err(); err != nil {
			s.failOpen(ctx, err)
			return true, 0
		}
	}

	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = config.WindowDuration
	}
	return false, retryAfterSeconds(ttl)
}

func (s *RedisRateLimitStore) failOpen(ctx context.Context, err error) {
	s.logger.WarnContext(ctx, "rate limit check failed, allowing request", "error", err)
	if s.metrics != nil {
		s.metrics.IncRateLimitRedisErrors()
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs <= 0 {
		return 1
	}
	return secs
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc returns a KeyFunc that uses the client's IP address.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

// ViewerKeyFunc keys on the authenticated viewer, falling back to the client IP.
func ViewerKeyFunc() KeyFunc {
	ipFunc := IPKeyFunc()
	return func(r *http.Request) string {
		if id := GetViewerID(r.Context()); id != "" {
			return "viewer:" + id
		}
		return "ip:" + ipFunc(r)
	}
}

func keyType(key string) string {
	if strings.HasPrefix(key, "viewer:") {
		return "viewer"
	}
	return "ip"
}

// RateLimiter rejects requests over the limit with 429 Too Many Requests,
// a Retry-After header and the API error envelope. metrics may be nil.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			route := normalizePath(r.URL.Path)
			if metrics != nil {
				metrics.IncRateLimitRequests(route, keyType(key))
			}

			allowed, retryAfter := store.Allow(r.Context(), key, config)
			if !allowed {
				if metrics != nil {
					metrics.IncRateLimitBlocked(route, keyType(key))
				}
				SetErrorCode(r.Context(), "rate_limited")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeErrorEnvelope(w, http.StatusTooManyRequests, "rate_limited", "Too many requests, retry later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
