package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailgate/gate-service/internal/core/domain"
	"github.com/mailgate/gate-service/internal/metrics"
	"github.com/mailgate/gate-service/pkg/token"
)

// DefaultSweepInterval is how often Run removes expired tokens.
const DefaultSweepInterval = 30 * time.Second

const maxGenerateAttempts = 3

var errTokenCollision = errors.New("token value collision")

// MemoryTokenRegistry is the in-process TokenRegistry. All mutations happen
// under one mutex; byIdentity indexes the current token value per encoded
// identity so eviction does not scan.
type MemoryTokenRegistry struct {
	mu         sync.Mutex
	tokens     map[string]domain.Token
	byIdentity map[string]string

	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
	log      zerolog.Logger
}

// NewMemoryTokenRegistry returns an empty registry. A non-positive ttl falls
// back to domain.DefaultTokenTTL.
func NewMemoryTokenRegistry(ttl time.Duration, log zerolog.Logger) *MemoryTokenRegistry {
	if ttl <= 0 {
		ttl = domain.DefaultTokenTTL
	}
	return &MemoryTokenRegistry{
		tokens:     make(map[string]domain.Token),
		byIdentity: make(map[string]string),
		ttl:        ttl,
		now:        time.Now,
		generate:   token.Generate,
		log:        log,
	}
}

// Issue evicts any token already bound to encodedIdentity and binds a fresh one.
func (r *MemoryTokenRegistry) Issue(_ context.Context, encodedIdentity string) (*domain.IssuedToken, error) {
	if encodedIdentity == "" {
		return nil, fmt.Errorf("issue token: empty identity: %w", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	value, err := r.uniqueValueLocked()
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	if old, ok := r.byIdentity[encodedIdentity]; ok {
		delete(r.tokens, old)
		metrics.TokensEvictedTotal.Inc()
	}

	now := r.now()
	t := domain.Token{
		Value:         value,
		BoundIdentity: encodedIdentity,
		IssuedAt:      now,
		ExpiresAt:     now.Add(r.ttl),
	}
	r.tokens[value] = t
	r.byIdentity[encodedIdentity] = value
	metrics.TokensIssuedTotal.Inc()
	metrics.TokensLive.Set(float64(len(r.tokens)))

	return &domain.IssuedToken{Value: t.Value, ExpiresAt: t.ExpiresAt}, nil
}

func (r *MemoryTokenRegistry) uniqueValueLocked() (string, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		v, err := r.generate()
		if err != nil {
			return "", err
		}
		if _, taken := r.tokens[v]; !taken {
			return v, nil
		}
	}
	return "", errTokenCollision
}

// Redeem consumes value. Lookup, expiry check and removal are one critical
// section, so at most one caller ever succeeds for a given token.
func (r *MemoryTokenRegistry) Redeem(_ context.Context, value string) (*domain.Redemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[value]
	if !ok {
		metrics.TokenRedemptionsTotal.WithLabelValues("not_found").Inc()
		return nil, domain.ErrTokenNotFound
	}
	r.removeLocked(t)

	now := r.now()
	if t.ExpiredAt(now) {
		metrics.TokenRedemptionsTotal.WithLabelValues("expired").Inc()
		return nil, domain.ErrTokenExpired
	}

	metrics.TokenRedemptionsTotal.WithLabelValues("redeemed").Inc()
	return &domain.Redemption{
		BoundIdentity: t.BoundIdentity,
		IssuedAt:      t.IssuedAt,
		RedeemedAt:    now,
	}, nil
}

// removeLocked drops t and its index entry, if the index still points at it.
func (r *MemoryTokenRegistry) removeLocked(t domain.Token) {
	delete(r.tokens, t.Value)
	if r.byIdentity[t.BoundIdentity] == t.Value {
		delete(r.byIdentity, t.BoundIdentity)
	}
	metrics.TokensLive.Set(float64(len(r.tokens)))
}

// Sweep removes every expired entry.
func (r *MemoryTokenRegistry) Sweep(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for _, t := range r.tokens {
		if t.ExpiredAt(now) {
			r.removeLocked(t)
			removed++
		}
	}
	if removed > 0 {
		metrics.TokensSweptTotal.Add(float64(removed))
	}
	return removed, nil
}

// Len reports the number of held entries, expired or not.
func (r *MemoryTokenRegistry) Len(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens), nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *MemoryTokenRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, _ := r.Sweep(ctx)
			if n > 0 {
				r.log.Debug().Int("removed", n).Msg("expired tokens swept")
			}
		}
	}
}
