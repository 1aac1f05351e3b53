package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sakif/volunteer-hub/internal/metrics"
)

// Rate limit scopes. Each scope has its own budget per client.
const (
	ScopeAuth = "auth"
	ScopeAPI  = "api"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether the client identified by key may make another
// request. Implementations must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// =========================================================================
// IN-MEMORY LIMITER
// =========================================================================

// MemoryLimiter is a token bucket per key, refilled at perMinute per minute
// with a burst of perMinute. It only sees the requests of this process, so
// with several replicas each one enforces its own budget.
type MemoryLimiter struct {
	perMinute int
	interval  time.Duration

	mu      sync.Mutex
	entries map[string]*limiterEntry
	stop    chan struct{}
	once    sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterTTL is how long an idle client's bucket is kept.
const limiterTTL = 15 * time.Minute

// NewMemoryLimiter creates a MemoryLimiter and starts its cleanup loop.
// A perMinute of zero or less disables limiting. Call Close when done.
func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	l := &MemoryLimiter{
		perMinute: perMinute,
		entries:   make(map[string]*limiterEntry),
		stop:      make(chan struct{}),
	}
	if perMinute > 0 {
		l.interval = time.Minute / time.Duration(perMinute)
		go l.cleanupLoop()
	}
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if l.perMinute <= 0 {
		return Decision{Allowed: true}, nil
	}

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(l.interval), l.perMinute)}
		l.entries[key] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	if entry.limiter.Allow() {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: l.interval}, nil
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (l *MemoryLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stop:
			return
		}
	}
}

// cleanup drops buckets idle for longer than limiterTTL so an attacker
// rotating addresses cannot grow the map without bound.
func (l *MemoryLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(l.entries, key)
		}
	}
}

// =========================================================================
// REDIS LIMITER
// =========================================================================

// RedisLimiter is a fixed-window counter in Redis, shared by every replica.
//
// Each request runs SET NX (creating the key at 0 with a TTL of one window)
// and INCR in one MULTI/EXEC, so a key never exists without its expiry.
// INCR keeps the TTL. Once the count passes the limit the client waits for
// the key to expire.
type RedisLimiter struct {
	client    *redis.Client
	prefix    string
	perMinute int
	window    time.Duration
	timeout   time.Duration
}

// NewRedisLimiter creates a RedisLimiter on an existing client. Keys are
// written under prefix.
func NewRedisLimiter(client *redis.Client, prefix string, perMinute int) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		prefix:    prefix,
		perMinute: perMinute,
		window:    time.Minute,
		timeout:   250 * time.Millisecond,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.perMinute <= 0 {
		return Decision{Allowed: true}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	redisKey := l.prefix + key
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetArgs(ctx, redisKey, 0, redis.SetArgs{Mode: "NX", TTL: l.window})
		incr = pipe.Incr(ctx, redisKey)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis incr %s: %w", redisKey, err)
	}
	count := incr.Val()
	if count <= int64(l.perMinute) {
		return Decision{Allowed: true}, nil
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = l.window
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}

// =========================================================================
// MIDDLEWARE
// =========================================================================

// RateLimit rejects clients that exceed limiter's budget for scope with 429.
//
// Clients are keyed by IP. chi's RealIP middleware must run first so
// RemoteAddr holds the address from X-Forwarded-For / X-Real-IP when the
// server sits behind a proxy.
//
// If the limiter itself fails (Redis down) the request is let through: an
// outage of the limiter should not become an outage of the API.
func RateLimit(limiter Limiter, scope string, m *metrics.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context(), scope+":"+clientIP(r))
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					zap.String("scope", scope),
					zap.Error(err),
				)
			}
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			m.RecordRateLimited(scope)
			retry := int(d.RetryAfter.Round(time.Second) / time.Second)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeEnvelope(w, http.StatusTooManyRequests, "Too many requests, please try again later", "rate_limited")
		})
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// writeEnvelope writes the API's error envelope. The handler package owns
// the full envelope type; middleware only ever needs this subset.
func writeEnvelope(w http.ResponseWriter, status int, message, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}{false, message, kind})
}
