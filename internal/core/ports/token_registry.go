package ports

import (
	"context"

	"github.com/mailgate/gate-service/internal/core/domain"
)

// TokenRegistry issues and redeems single-use tokens.
//
// Implementations must guarantee:
//   - at most one live token per bound identity (Issue evicts the previous one);
//   - exactly-once redemption under concurrent Redeem calls and sweeps;
//   - an expired token is never redeemed, swept or not.
type TokenRegistry interface {
	// Issue binds a fresh token to the encoded identity.
	Issue(ctx context.Context, encodedIdentity string) (*domain.IssuedToken, error)
	// Redeem consumes the token. It returns domain.ErrTokenNotFound or
	// domain.ErrTokenExpired on failure.
	Redeem(ctx context.Context, value string) (*domain.Redemption, error)
	// Sweep removes expired entries and reports how many were dropped.
	Sweep(ctx context.Context) (int, error)
	// Len reports the number of entries currently held, expired or not.
	Len(ctx context.Context) (int, error)
}
