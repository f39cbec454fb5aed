package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgate/gate-service/internal/core/domain"
)

func newTestVerifier(url string, mutate func(*Config)) *Verifier {
	cfg := Config{
		VerifyURL:  url,
		Secret:     "shh",
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewVerifier(cfg, nil, zerolog.Nop())
}

func TestVerifier_Verified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "shh", r.PostForm.Get("secret"))
		assert.Equal(t, "proof-token", r.PostForm.Get("response"))
		assert.Equal(t, "198.51.100.7", r.PostForm.Get("remoteip"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"hostname":"gate.example.net"}`))
	}))
	defer srv.Close()

	outcome, err := newTestVerifier(srv.URL, nil).Verify(context.Background(), "proof-token", "198.51.100.7")
	require.NoError(t, err)
	assert.Equal(t, domain.ProofVerified, outcome)
}

func TestVerifier_Rejected(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response","timeout-or-duplicate"]}`))
	}))
	defer srv.Close()

	outcome, err := newTestVerifier(srv.URL, nil).Verify(context.Background(), "bad", "")
	assert.Equal(t, domain.ProofRejected, outcome)
	assert.ErrorIs(t, err, domain.ErrProofRejected)
	assert.Contains(t, err.Error(), "timeout-or-duplicate")
	assert.Equal(t, int32(1), calls.Load(), "a rejection is not retried")
}

func TestVerifier_EmptyProofNeverCallsUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	outcome, err := newTestVerifier(srv.URL, nil).Verify(context.Background(), " ", "")
	assert.Equal(t, domain.ProofRejected, outcome)
	assert.ErrorIs(t, err, domain.ErrProofRejected)
	assert.Zero(t, calls.Load())
}

func TestVerifier_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	outcome, err := newTestVerifier(srv.URL, nil).Verify(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProofVerified, outcome)
	assert.Equal(t, int32(3), calls.Load())
}

func TestVerifier_UnavailableAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	outcome, err := newTestVerifier(srv.URL, nil).Verify(context.Background(), "p", "")
	assert.Equal(t, domain.ProofServiceUnavailable, outcome)
	assert.ErrorIs(t, err, domain.ErrProofServiceUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestVerifier_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	outcome, err := newTestVerifier(srv.URL, nil).Verify(context.Background(), "p", "")
	assert.Equal(t, domain.ProofServiceUnavailable, outcome)
	assert.ErrorIs(t, err, errUpstreamStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestVerifier_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	outcome, err := newTestVerifier(srv.URL, nil).Verify(context.Background(), "p", "")
	assert.Equal(t, domain.ProofServiceUnavailable, outcome)
	assert.ErrorIs(t, err, errMalformedBody)
}

func TestVerifier_TimeoutFailsClosed(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	v := newTestVerifier(srv.URL, func(c *Config) {
		c.Timeout = 50 * time.Millisecond
		c.MaxRetries = 0
	})

	start := time.Now()
	outcome, err := v.Verify(context.Background(), "p", "")
	assert.Equal(t, domain.ProofServiceUnavailable, outcome)
	assert.ErrorIs(t, err, domain.ErrProofServiceUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestVerifier_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	outcome, err := newTestVerifier(url, nil).Verify(context.Background(), "p", "")
	assert.Equal(t, domain.ProofServiceUnavailable, outcome)
	assert.ErrorIs(t, err, domain.ErrProofServiceUnavailable)
}

func TestVerifier_BreakerOpensAndShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := newTestVerifier(srv.URL, func(c *Config) {
		c.MaxRetries = 0
		c.BreakerFailures = 2
		c.BreakerCooldown = time.Minute
	})

	for i := 0; i < 2; i++ {
		_, err := v.Verify(context.Background(), "p", "")
		require.Error(t, err)
	}
	assert.Equal(t, "open", v.State())

	outcome, err := v.Verify(context.Background(), "p", "")
	assert.Equal(t, domain.ProofServiceUnavailable, outcome)
	assert.ErrorIs(t, err, domain.ErrProofServiceUnavailable)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not reach upstream")
}

func TestNewVerifier_Defaults(t *testing.T) {
	v := NewVerifier(Config{MaxRetries: -1}, nil, zerolog.Nop())
	assert.Equal(t, DefaultVerifyURL, v.cfg.VerifyURL)
	assert.Equal(t, defaultTimeout, v.cfg.Timeout)
	assert.Equal(t, 0, v.cfg.MaxRetries)
	assert.Equal(t, defaultTimeout, v.client.Timeout)
	assert.Equal(t, "closed", v.State())
}
