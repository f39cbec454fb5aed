package domain

import "time"

// TokenState is the lifecycle state of a redemption token.
// Every state other than TokenIssued is terminal.
type TokenState string

const (
	TokenIssued   TokenState = "issued"
	TokenRedeemed TokenState = "redeemed"
	TokenExpired  TokenState = "expired"
	TokenEvicted  TokenState = "evicted"
)

// DefaultTokenTTL is the redemption window used when none is configured.
const DefaultTokenTTL = 5 * time.Minute

// Token is a single-use capability bound to an encoded identity.
// Possession within the validity window is sufficient to redeem it.
type Token struct {
	Value         string
	BoundIdentity string // encoded, never the raw identifier
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// ExpiredAt reports whether the token is past its window at now.
// A token is still valid at exactly ExpiresAt.
func (t Token) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IssuedToken is what issuance hands back to callers. It deliberately
// omits the bound identity.
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Redemption is the result of a successful, consuming redeem.
type Redemption struct {
	BoundIdentity string
	IssuedAt      time.Time
	RedeemedAt    time.Time
}
