package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailgate/gate-service/internal/core/domain"
	"github.com/mailgate/gate-service/internal/metrics"
	"github.com/mailgate/gate-service/pkg/fingerprint"
	"github.com/mailgate/gate-service/pkg/token"
)

// Every key shares the {tokens} hash tag so the multi-key scripts below stay
// within one cluster slot.
const (
	tokenPrefix    = "gate:{tokens}:token:"
	identityPrefix = "gate:{tokens}:identity:"
	// expiryGrace keeps an expired entry around long enough for redeem to
	// answer "expired" rather than "not found".
	expiryGrace = time.Minute
)

// Issue script replies besides the eviction count.
const (
	issueCollision = -1
	issueRaced     = -2
)

// issueLua stores a new token and evicts the identity's previous one.
// KEYS: index, new token, [previous token]. ARGV[6] is the index value the
// caller read; a mismatch means another issue raced this one.
const issueLua = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return -1
end
local cur = redis.call("GET", KEYS[1])
if not cur then
  cur = ""
end
if cur ~= ARGV[6] then
  return -2
end
local evicted = 0
if #KEYS == 3 then
  evicted = redis.call("DEL", KEYS[3])
end
redis.call("HSET", KEYS[2], "identity", ARGV[2], "issued_at", ARGV[3], "expires_at", ARGV[4], "index", KEYS[1])
redis.call("PEXPIRE", KEYS[2], ARGV[5])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[5])
return evicted
`

// redeemLua reads and deletes a token in one step, and drops the identity
// index when it still points at that token. KEYS: token, [index].
const redeemLua = `
local v = redis.call("HMGET", KEYS[1], "identity", "issued_at", "expires_at")
if not v[1] then
  return false
end
redis.call("DEL", KEYS[1])
if #KEYS == 2 and redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
return {v[1], v[2], v[3]}
`

var (
	issueScript  = redis.NewScript(issueLua)
	redeemScript = redis.NewScript(redeemLua)
)

// TokenRegistry implements ports.TokenRegistry on Redis, so several gate
// replicas share one token space. Expired keys are dropped by Redis itself.
type TokenRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	fp       fingerprint.Hasher
	now      func() time.Time
	generate func() (string, error)
}

// NewTokenRegistry returns a Redis-backed registry. Identity index keys are
// fingerprinted with fp so the keyspace never holds the encoded identity as
// a key name.
func NewTokenRegistry(client *redis.Client, ttl time.Duration, fp fingerprint.Hasher) *TokenRegistry {
	if ttl <= 0 {
		ttl = domain.DefaultTokenTTL
	}
	return &TokenRegistry{
		client:   client,
		ttl:      ttl,
		fp:       fp,
		now:      time.Now,
		generate: token.Generate,
	}
}

func (r *TokenRegistry) Issue(ctx context.Context, encodedIdentity string) (*domain.IssuedToken, error) {
	if encodedIdentity == "" {
		return nil, fmt.Errorf("issue token: empty identity: %w", domain.ErrInvalidInput)
	}

	now := r.now()
	expiresAt := now.Add(r.ttl)
	keyTTL := (r.ttl + expiryGrace).Milliseconds()
	indexKey := identityPrefix + r.fp.Sum(encodedIdentity)

	collided := false
	for attempt := 0; attempt < 3; attempt++ {
		value, err := r.generate()
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		previous, err := r.client.Get(ctx, indexKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("issue token: read index: %w", err)
		}
		keys := []string{indexKey, tokenPrefix + value}
		if previous != "" {
			keys = append(keys, tokenPrefix+previous)
		}

		n, err := issueScript.Run(ctx, r.client, keys,
			value, encodedIdentity, now.UnixMilli(), expiresAt.UnixMilli(), keyTTL, previous,
		).Int64()
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		switch {
		case n == issueCollision:
			collided = true
			continue
		case n == issueRaced:
			continue
		case n > 0:
			metrics.TokensEvictedTotal.Inc()
		}
		metrics.TokensIssuedTotal.Inc()
		return &domain.IssuedToken{Value: value, ExpiresAt: time.UnixMilli(expiresAt.UnixMilli())}, nil
	}
	if collided {
		return nil, errors.New("issue token: token value collision")
	}
	return nil, errors.New("issue token: concurrent issue for identity")
}

func (r *TokenRegistry) Redeem(ctx context.Context, value string) (*domain.Redemption, error) {
	key := tokenPrefix + value
	index, err := r.client.HGet(ctx, key, "index").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redeem token: %w", err)
	}
	keys := []string{key}
	if index != "" {
		keys = append(keys, index)
	}

	res, err := redeemScript.Run(ctx, r.client, keys, value).StringSlice()
	if errors.Is(err, redis.Nil) {
		metrics.TokenRedemptionsTotal.WithLabelValues("not_found").Inc()
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redeem token: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("redeem token: unexpected reply of %d fields", len(res))
	}

	issuedMs, err1 := strconv.ParseInt(res[1], 10, 64)
	expiresMs, err2 := strconv.ParseInt(res[2], 10, 64)
	if err := errors.Join(err1, err2); err != nil {
		return nil, fmt.Errorf("redeem token: corrupt entry: %w", err)
	}

	now := r.now()
	if now.After(time.UnixMilli(expiresMs)) {
		metrics.TokenRedemptionsTotal.WithLabelValues("expired").Inc()
		return nil, domain.ErrTokenExpired
	}
	metrics.TokenRedemptionsTotal.WithLabelValues("redeemed").Inc()
	return &domain.Redemption{
		BoundIdentity: res[0],
		IssuedAt:      time.UnixMilli(issuedMs),
		RedeemedAt:    now,
	}, nil
}

// Sweep is a no-op: keys carry their own TTL.
func (r *TokenRegistry) Sweep(context.Context) (int, error) {
	return 0, nil
}

// Len counts token keys with SCAN.
func (r *TokenRegistry) Len(ctx context.Context) (int, error) {
	var n int
	iter := r.client.Scan(ctx, 0, tokenPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}
