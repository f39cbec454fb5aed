package ports

import (
	"context"

	"github.com/mailgate/gate-service/internal/core/domain"
)

// ProofVerifier checks a client-supplied proof-of-humanity token with the
// external verification service.
//
// The returned error is nil only for domain.ProofVerified. Otherwise it wraps
// domain.ErrProofRejected or domain.ErrProofServiceUnavailable.
type ProofVerifier interface {
	Verify(ctx context.Context, proof, remoteIP string) (domain.ProofOutcome, error)
}
