package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailgate/gate-service/internal/core/domain"
	"github.com/mailgate/gate-service/internal/core/ports"
	"github.com/mailgate/gate-service/internal/metrics"
	"github.com/mailgate/gate-service/pkg/fingerprint"
)

// Unauthorized-identity policies.
const (
	// PolicyDisclose answers an unknown identity with its own error (404).
	PolicyDisclose = "disclose"
	// PolicyCloak answers it exactly like blocked traffic.
	PolicyCloak = "cloak"
)

// Redirect modes for the forward flow.
const (
	RedirectFragment = "fragment"
	RedirectQuery    = "query"
)

// VerifiedMessage is returned with every 200 verify response, decoys included.
const VerifiedMessage = "Verification successful"

// GatewayConfig holds the orchestration policy.
type GatewayConfig struct {
	// DestinationURL is where a redeemed token is finally redirected.
	DestinationURL string
	// PublicBaseURL prefixes the redemption URL handed to clients.
	PublicBaseURL string
	RedirectMode  string
	RedirectParam string
	// UnauthorizedPolicy is PolicyDisclose or PolicyCloak.
	UnauthorizedPolicy string
	// DecoyURL, when set, is returned as a fake redemption URL to traffic
	// classified as automated.
	DecoyURL string
	// TokenTTL matches the registry's redemption window so decoy expiries
	// look like real ones. Zero means domain.DefaultTokenTTL.
	TokenTTL time.Duration
}

type gatewayService struct {
	classifier ports.RequestClassifier
	identities ports.IdentityChecker
	proof      ports.ProofVerifier
	tokens     ports.TokenRegistry
	encoder    ports.IdentityEncoder
	audit      ports.AuditSink
	fp         fingerprint.Hasher
	cfg        GatewayConfig
	now        func() time.Time
	log        zerolog.Logger
}

// NewGatewayService returns a GatewayService implementation. A nil audit
// sink discards events.
func NewGatewayService(
	classifier ports.RequestClassifier,
	identities ports.IdentityChecker,
	proof ports.ProofVerifier,
	tokens ports.TokenRegistry,
	encoder ports.IdentityEncoder,
	audit ports.AuditSink,
	fp fingerprint.Hasher,
	cfg GatewayConfig,
	log zerolog.Logger,
) ports.GatewayService {
	if audit == nil {
		audit = discardAudit{}
	}
	if cfg.RedirectMode == "" {
		cfg.RedirectMode = RedirectFragment
	}
	if cfg.RedirectParam == "" {
		cfg.RedirectParam = "id"
	}
	if cfg.UnauthorizedPolicy == "" {
		cfg.UnauthorizedPolicy = PolicyDisclose
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = domain.DefaultTokenTTL
	}
	return &gatewayService{
		classifier: classifier,
		identities: identities,
		proof:      proof,
		tokens:     tokens,
		encoder:    encoder,
		audit:      audit,
		fp:         fp,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

// Verify runs classifier, allow-list, proof and issuance in that order and
// stops at the first failure. A token is only issued after every step passed.
func (s *gatewayService) Verify(ctx context.Context, in ports.VerifyInput) (*ports.VerifyResult, error) {
	canonical := domain.Canonicalize(in.Identifier)
	ev := domain.DecisionEvent{
		IdentityFingerprint: s.fp.Sum(canonical),
		RemoteIP:            in.RemoteIP,
		RequestID:           in.RequestID,
	}

	// 1. Heuristics.
	verdict := s.classifier.Classify(in)
	if !verdict.Passed() {
		metrics.ClassifierHitsTotal.WithLabelValues(verdict.Reason).Inc()
		s.decide(ev, domain.StageClassify, string(verdict.Outcome), verdict.Reason)
		s.log.Info().
			Str("request_id", in.RequestID).
			Str("outcome", string(verdict.Outcome)).
			Str("reason", verdict.Reason).
			Msg("verify request stopped by classifier")

		if verdict.Outcome == domain.OutcomeAutomated && s.cfg.DecoyURL != "" {
			return &ports.VerifyResult{
				Valid:         true,
				Message:       VerifiedMessage,
				RedemptionURL: s.cfg.DecoyURL,
				ExpiresAt:     s.now().Add(s.cfg.TokenTTL),
			}, nil
		}
		return nil, fmt.Errorf("classify request: %w", verdict.Err())
	}

	if strings.TrimSpace(in.Proof) == "" {
		s.decide(ev, domain.StageClassify, string(domain.OutcomeInvalidInput), "missing_proof")
		return nil, domain.ErrMissingProof
	}

	// 2. Allow-list.
	if !s.identities.Contains(canonical) {
		s.decide(ev, domain.StageAllowlist, "not_authorized", s.cfg.UnauthorizedPolicy)
		if s.cfg.UnauthorizedPolicy == PolicyCloak {
			return nil, fmt.Errorf("%w: %w", domain.ErrIdentityNotAuthorized, domain.ErrRequestBlocked)
		}
		return nil, domain.ErrIdentityNotAuthorized
	}

	// 3. Proof of humanity.
	outcome, err := s.proof.Verify(ctx, in.Proof, in.RemoteIP)
	if err != nil || outcome != domain.ProofVerified {
		s.decide(ev, domain.StageProof, string(outcome), "")
		if err == nil {
			err = domain.ErrProofServiceUnavailable
		}
		s.log.Warn().Err(err).
			Str("request_id", in.RequestID).
			Str("outcome", string(outcome)).
			Msg("proof verification failed")
		return nil, fmt.Errorf("verify proof: %w", err)
	}

	// A client that went away mid-verification gets no token.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("verify request: %w", err)
	}

	// 4. Issuance.
	encoded, err := s.encoder.Encode(canonical)
	if err != nil {
		return nil, fmt.Errorf("encode identity: %w", err)
	}
	issued, err := s.tokens.Issue(ctx, encoded)
	if err != nil {
		s.decide(ev, domain.StageIssue, "error", "")
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.decide(ev, domain.StageIssue, string(domain.OutcomePass), "")
	s.log.Info().
		Str("request_id", in.RequestID).
		Str("identity_fp", ev.IdentityFingerprint).
		Time("expires_at", issued.ExpiresAt).
		Msg("redemption token issued")

	return &ports.VerifyResult{
		Valid:         true,
		Message:       VerifiedMessage,
		RedemptionURL: s.redemptionURL(issued.Value),
		ExpiresAt:     issued.ExpiresAt,
	}, nil
}

// Forward redeems the token and builds the final destination URL.
func (s *gatewayService) Forward(ctx context.Context, in ports.ForwardInput) (*ports.ForwardResult, error) {
	ev := domain.DecisionEvent{RemoteIP: in.RemoteIP, RequestID: in.RequestID}

	if strings.TrimSpace(in.Token) == "" {
		s.decide(ev, domain.StageRedeem, "not_found", "empty_token")
		return nil, domain.ErrTokenNotFound
	}

	red, err := s.tokens.Redeem(ctx, in.Token)
	if err != nil {
		reason := "not_found"
		if errors.Is(err, domain.ErrTokenExpired) {
			reason = "expired"
		}
		s.decide(ev, domain.StageRedeem, reason, "")
		return nil, fmt.Errorf("redeem token: %w", err)
	}

	if identity, err := s.encoder.Decode(red.BoundIdentity); err == nil {
		ev.IdentityFingerprint = s.fp.Sum(identity)
	} else {
		s.log.Warn().Err(err).Str("request_id", in.RequestID).Msg("redeemed token carries undecodable identity")
	}
	s.decide(ev, domain.StageRedeem, "redeemed", "")

	loc, err := s.destination(red.BoundIdentity)
	if err != nil {
		return nil, err
	}
	return &ports.ForwardResult{Location: loc}, nil
}

func (s *gatewayService) redemptionURL(value string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/forward?token=" + url.QueryEscape(value)
}

// destination appends the encoded identity to the destination URL as a
// fragment or as a query parameter.
func (s *gatewayService) destination(encoded string) (string, error) {
	u, err := url.Parse(s.cfg.DestinationURL)
	if err != nil {
		return "", fmt.Errorf("parse destination url: %w", err)
	}
	if s.cfg.RedirectMode == RedirectQuery {
		q := u.Query()
		q.Set(s.cfg.RedirectParam, encoded)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	u.Fragment = encoded
	u.RawFragment = ""
	return u.String(), nil
}

func (s *gatewayService) decide(ev domain.DecisionEvent, stage domain.Stage, outcome, reason string) {
	ev.At = s.now()
	ev.Stage = stage
	ev.Outcome = outcome
	ev.Reason = reason
	if stage != domain.StageRedeem {
		metrics.VerifyDecisionsTotal.WithLabelValues(string(stage), outcome).Inc()
	}
	s.audit.Record(ev)
}

type discardAudit struct{}

func (discardAudit) Record(domain.DecisionEvent) {}
