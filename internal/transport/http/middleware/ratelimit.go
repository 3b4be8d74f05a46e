package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"siteadmin/internal/transport/http/api"
	"siteadmin/internal/transport/http/shared"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	keyFn   RateLimitKeyFunc
	now     func() time.Time
	clients map[string]*limiterEntry
	pruned  time.Time
}

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

// RateLimit allows limit requests per window for each key, refilling evenly.
func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(limit, window, actorOrIPKey)
	for _, opt := range opts {
		opt(rl)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FunctionsRateLimit applies a quarter of the base budget to the batch
// endpoints under /functions, keyed by actor.
func FunctionsRateLimit(baseLimit int, window time.Duration) func(http.Handler) http.Handler {
	strict := newRateLimiter(max(baseLimit/4, 1), window, actorOrIPKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isFunctionCall(r) && !strict.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isFunctionCall(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	return strings.HasPrefix(normalizedAPIPath(r.URL.Path), "/functions/")
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.TenantID + ":" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	return shared.ClientIP(r)
}

func newRateLimiter(limit int, window time.Duration, keyFn RateLimitKeyFunc) *rateLimiter {
	if keyFn == nil {
		keyFn = actorOrIPKey
	}
	return &rateLimiter{
		limit:   limit,
		window:  window,
		keyFn:   keyFn,
		now:     time.Now,
		clients: map[string]*limiterEntry{},
	}
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.pruned) > limiterIdleTTL {
		for k, entry := range rl.clients {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(rl.clients, k)
			}
		}
		rl.pruned = now
	}

	entry, ok := rl.clients[key]
	if !ok {
		every := rate.Every(rl.window / time.Duration(rl.limit))
		entry = &limiterEntry{limiter: rate.NewLimiter(every, rl.limit)}
		rl.clients[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (rl *rateLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	if rl.limit <= 0 || rl.window <= 0 {
		return true
	}

	key := rl.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}
	limiter := rl.get(key)
	now := rl.now()
	reservation := limiter.ReserveN(now, 1)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))

	delay := reservation.DelayFrom(now)
	if delay == 0 {
		return true
	}
	reservation.CancelAt(now)

	retryAfter := max(int(delay.Round(time.Second).Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	log.Warn().
		Str("key", key).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Int("limit", rl.limit).
		Dur("window", rl.window).
		Msg("rate limit exceeded")
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func normalizedAPIPath(path string) string {
	cleaned := strings.TrimPrefix(strings.TrimSpace(path), "/api/v1")
	if cleaned == "" {
		return "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		return "/" + cleaned
	}
	return cleaned
}
