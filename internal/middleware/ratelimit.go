package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/config"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// One token per refill interval, up to capacity. Returns allowed, tokens
// left and milliseconds until the next token.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 then
	local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals)
		last_refill = last_refill + intervals * interval_ms
	end
end

local allowed = 0
local retry_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, tokens, retry_ms }
`)

// RateLimit throttles each client IP with a token bucket. The bucket lives
// in Redis when rdb is set so every instance shares it; otherwise each
// instance keeps its own. A Redis error lets the request through.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, logger *slog.Logger) gin.HandlerFunc {
	if !cfg.Enabled || cfg.Capacity <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	ttl := int64(math.Ceil((time.Duration(cfg.Capacity) * cfg.RefillInterval).Seconds()))
	if ttl < 1 {
		ttl = 1
	}
	local := newLocalBuckets(cfg)

	return func(c *gin.Context) {
		key := cfg.Prefix + ":ip:" + c.ClientIP()

		var (
			allowed   bool
			remaining int64
			retry     time.Duration
		)
		if rdb != nil {
			vals, err := tokenBucket.Run(c.Request.Context(), rdb, []string{key},
				time.Now().UnixMilli(), cfg.Capacity, cfg.RefillInterval.Milliseconds(), ttl).Int64Slice()
			if err != nil || len(vals) != 3 {
				logger.Warn("Rate limiter unavailable, allowing request", "key", key, "error", err)
				c.Next()
				return
			}
			allowed, remaining, retry = vals[0] == 1, vals[1], time.Duration(vals[2])*time.Millisecond
		} else {
			allowed, remaining, retry = local.take(key)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse("Too many requests, please try again later"))
			return
		}
		c.Next()
	}
}

type localBuckets struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newLocalBuckets(cfg config.RateLimitConfig) *localBuckets {
	return &localBuckets{
		limit:    rate.Every(cfg.RefillInterval),
		burst:    cfg.Capacity,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (b *localBuckets) take(key string) (bool, int64, time.Duration) {
	b.mu.Lock()
	l, ok := b.limiters[key]
	if !ok {
		l = rate.NewLimiter(b.limit, b.burst)
		b.limiters[key] = l
	}
	b.mu.Unlock()

	now := time.Now()
	r := l.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay
	}
	return true, int64(math.Max(0, l.TokensAt(now))), 0
}
