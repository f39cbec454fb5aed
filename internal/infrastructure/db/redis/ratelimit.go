package redis

import (
	"context"
	"time"

	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const rateLimitPrefix = "gate:rl:"

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RateLimitStore is a fixed-window counter shared by all replicas. It
// satisfies echo's middleware.RateLimiterStore and falls back to the
// in-process store when Redis errors.
type RateLimitStore struct {
	client   *redis.Client
	limit    int
	window   time.Duration
	timeout  time.Duration
	fallback middleware.RateLimiterStore
	log      zerolog.Logger
}

// NewRateLimitStore allows limit requests per identifier per window.
func NewRateLimitStore(client *redis.Client, limit int, window time.Duration, fallback middleware.RateLimiterStore, log zerolog.Logger) *RateLimitStore {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimitStore{
		client:   client,
		limit:    limit,
		window:   window,
		timeout:  2 * time.Second,
		fallback: fallback,
		log:      log,
	}
}

// Allow counts one request for identifier.
func (s *RateLimitStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := rateLimitScript.Run(ctx, s.client, []string{rateLimitPrefix + identifier}, s.window.Milliseconds()).Int64()
	if err != nil {
		s.log.Warn().Err(err).Msg("redis rate limiter unavailable, using in-memory fallback")
		if s.fallback != nil {
			return s.fallback.Allow(identifier)
		}
		return true, nil
	}
	return n <= int64(s.limit), nil
}
