// Package captcha is the client for the external proof-of-humanity service
// (Turnstile / reCAPTCHA / hCaptcha siteverify protocol).
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/mailgate/gate-service/internal/core/domain"
	"github.com/mailgate/gate-service/internal/metrics"
)

// DefaultVerifyURL is the Cloudflare Turnstile siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

const (
	defaultTimeout         = 5 * time.Second
	defaultRetryDelay      = 100 * time.Millisecond
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
	maxResponseBytes       = 64 << 10
)

var (
	errUpstreamStatus = errors.New("unexpected upstream status")
	errMalformedBody  = errors.New("malformed upstream response")
)

// Config controls the verifier.
type Config struct {
	VerifyURL string
	Secret    string
	// Timeout bounds the whole Verify call, retries included.
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// BreakerFailures consecutive failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
}

// Verifier implements ports.ProofVerifier against a siteverify endpoint.
type Verifier struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewVerifier returns a Verifier. A nil client gets one with cfg.Timeout.
func NewVerifier(cfg Config, client *http.Client, log zerolog.Logger) *Verifier {
	if cfg.VerifyURL == "" {
		cfg.VerifyURL = DefaultVerifyURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	v := &Verifier{cfg: cfg, client: client, log: log}
	v.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "captcha",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A caller hanging up is not a sign of upstream trouble.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return v
}

// Verify checks proof with the upstream service. Only a success:true answer
// yields domain.ProofVerified; every other path fails closed.
func (v *Verifier) Verify(ctx context.Context, proof, remoteIP string) (domain.ProofOutcome, error) {
	start := time.Now()
	outcome, err := v.verify(ctx, proof, remoteIP)
	metrics.ProofVerifyDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())
	return outcome, err
}

func (v *Verifier) verify(ctx context.Context, proof, remoteIP string) (domain.ProofOutcome, error) {
	if strings.TrimSpace(proof) == "" {
		return domain.ProofRejected, fmt.Errorf("%w: empty proof", domain.ErrProofRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", v.cfg.Secret)
	form.Set("response", proof)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	res, err := v.breaker.Execute(func() (interface{}, error) {
		return v.postWithRetry(ctx, form)
	})
	if err != nil {
		v.log.Warn().Err(err).Msg("proof service unavailable")
		return domain.ProofServiceUnavailable, fmt.Errorf("%w: %w", domain.ErrProofServiceUnavailable, err)
	}

	body := res.(*siteverifyResponse)
	if !body.Success {
		return domain.ProofRejected, fmt.Errorf("%w: %s", domain.ErrProofRejected, strings.Join(body.ErrorCodes, ","))
	}
	return domain.ProofVerified, nil
}

// postWithRetry retries transport errors and 5xx responses only.
func (v *Verifier) postWithRetry(ctx context.Context, form url.Values) (*siteverifyResponse, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = v.cfg.RetryDelay
	policy.MaxElapsedTime = v.cfg.Timeout
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(v.cfg.MaxRetries)), ctx)

	var out *siteverifyResponse
	err := backoff.Retry(func() error {
		res, err := v.post(ctx, form)
		if err != nil {
			return err
		}
		out = res
		return nil
	}, b)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Verifier) post(ctx context.Context, form url.Values) (*siteverifyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %d", errUpstreamStatus, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, backoff.Permanent(fmt.Errorf("%w: %d", errUpstreamStatus, resp.StatusCode))
	}

	var body siteverifyResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", errMalformedBody, err))
	}
	return &body, nil
}

// State reports the breaker state, for diagnostics.
func (v *Verifier) State() string {
	return v.breaker.State().String()
}
