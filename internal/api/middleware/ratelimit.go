package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter decides whether one more request for key fits in its budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// SlidingWindow is an in-process limiter keeping request timestamps per key.
type SlidingWindow struct {
	requests int
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
}

func NewSlidingWindow(requests int, window time.Duration) *SlidingWindow {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		requests: requests,
		window:   window,
		now:      time.Now,
		clients:  make(map[string][]time.Time),
	}
}

func (l *SlidingWindow) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	stamps := l.clients[key]
	i := 0
	for i < len(stamps) && !stamps[i].After(windowStart) {
		i++
	}
	stamps = stamps[i:]

	if len(stamps) >= l.requests {
		l.clients[key] = stamps
		return Decision{Allowed: false, Limit: l.requests, Remaining: 0, Reset: stamps[0].Add(l.window)}, nil
	}

	stamps = append(stamps, now)
	l.clients[key] = stamps
	return Decision{
		Allowed:   true,
		Limit:     l.requests,
		Remaining: l.requests - len(stamps),
		Reset:     stamps[0].Add(l.window),
	}, nil
}

// Sweep drops keys with no request inside the window.
func (l *SlidingWindow) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, stamps := range l.clients {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.clients, key)
		}
	}
}

// Run sweeps periodically until ctx is done.
func (l *SlidingWindow) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// The bucket refills continuously at rate tokens per second up to burst.
// Redis TIME keeps every API instance on one clock.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
else
  local delta = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens), now}
`

// RedisBucket is a token bucket shared by every API instance through Redis.
type RedisBucket struct {
	client *redis.Client
	script *redis.Script
	prefix string
	burst  int
	rate   float64
	ttl    time.Duration
}

// NewRedisBucket allows burst requests per window, refilled evenly over it.
func NewRedisBucket(client *redis.Client, prefix string, burst int, window time.Duration) *RedisBucket {
	if burst <= 0 {
		burst = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		prefix: prefix,
		burst:  burst,
		rate:   float64(burst) / window.Seconds(),
		ttl:    2 * window,
	}
}

func (b *RedisBucket) Allow(ctx context.Context, key string) (Decision, error) {
	if b.client == nil {
		return Decision{}, errors.New("redis client not configured")
	}
	res, err := b.script.Run(ctx, b.client, []string{b.prefix + key},
		b.rate, b.burst, b.ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) < 3 {
		return Decision{}, errors.New("unexpected rate limit script reply")
	}

	remaining := int(res[1])
	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     b.burst,
		Remaining: remaining,
	}
	missing := float64(b.burst - remaining)
	if !d.Allowed {
		missing = 1
	}
	d.Reset = time.UnixMilli(res[2]).Add(time.Duration(math.Ceil(missing/b.rate*1000)) * time.Millisecond)
	return d, nil
}

// Fallback consults primary and switches to secondary for any request where
// primary errors, so a Redis outage degrades to per-instance limits.
type Fallback struct {
	primary   Limiter
	secondary Limiter
	logger    *slog.Logger
}

func NewFallback(primary, secondary Limiter, logger *slog.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Allow(ctx context.Context, key string) (Decision, error) {
	d, err := f.primary.Allow(ctx, key)
	if err == nil {
		return d, nil
	}
	f.logger.Warn("rate limiter unavailable, using in-memory fallback", "error", err)
	return f.secondary.Allow(ctx, key)
}

// RateLimit rejects clients over the limiter's budget with 429. Limiter
// errors let the request through.
func RateLimit(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.Error("rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

			if !d.Allowed {
				retry := int64(math.Ceil(time.Until(d.Reset).Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address without its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
