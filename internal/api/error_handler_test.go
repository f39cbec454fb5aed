package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mailgate/gate-service/internal/core/domain"
)

func TestHTTPErrorHandler_Mapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"invalid input", fmt.Errorf("classify request: %w", domain.ErrInvalidInput), http.StatusBadRequest, msgInvalidInput},
		{"missing proof", domain.ErrMissingProof, http.StatusBadRequest, msgMissingProof},
		{"automated", fmt.Errorf("classify request: %w", domain.ErrAutomatedTraffic), http.StatusForbidden, msgBlocked},
		{"policy denied", domain.ErrPolicyDenied, http.StatusForbidden, msgBlocked},
		{"not authorized disclosed", domain.ErrIdentityNotAuthorized, http.StatusNotFound, msgNotAuthorized},
		{"not authorized cloaked", fmt.Errorf("%w: %w", domain.ErrIdentityNotAuthorized, domain.ErrRequestBlocked), http.StatusForbidden, msgBlocked},
		{"proof rejected", fmt.Errorf("verify proof: %w", domain.ErrProofRejected), http.StatusBadRequest, msgProofRejected},
		{"proof unavailable", fmt.Errorf("verify proof: %w", domain.ErrProofServiceUnavailable), http.StatusInternalServerError, msgProofUnavailable},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests, msgRateLimited},
		{"token not found", fmt.Errorf("redeem token: %w", domain.ErrTokenNotFound), http.StatusForbidden, msgTokenInvalid},
		{"token expired", fmt.Errorf("redeem token: %w", domain.ErrTokenExpired), http.StatusGone, msgTokenExpired},
		{"echo error", echo.NewHTTPError(http.StatusUnauthorized, "invalid token"), http.StatusUnauthorized, "invalid token"},
		{"unexpected", errors.New("kaboom"), http.StatusInternalServerError, msgInternal},
	}

	handler := NewHTTPErrorHandler(zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/verify", nil)
			rec := httptest.NewRecorder()

			handler(tt.err, e.NewContext(req, rec))

			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.Valid || resp.Message != tt.msg {
				t.Fatalf("unexpected body: %+v", resp)
			}
		})
	}
}

func TestHTTPErrorHandler_BlockedResponsesAreIdentical(t *testing.T) {
	handler := NewHTTPErrorHandler(zerolog.Nop())
	render := func(err error) string {
		e := echo.New()
		rec := httptest.NewRecorder()
		handler(err, e.NewContext(httptest.NewRequest(http.MethodPost, "/verify", nil), rec))
		return fmt.Sprintf("%d %s", rec.Code, rec.Body.String())
	}

	automated := render(domain.ErrAutomatedTraffic)
	for _, err := range []error{
		domain.ErrPolicyDenied,
		fmt.Errorf("%w: %w", domain.ErrIdentityNotAuthorized, domain.ErrRequestBlocked),
	} {
		if got := render(err); got != automated {
			t.Fatalf("expected %q, got %q", automated, got)
		}
	}
}

func TestHTTPErrorHandler_CommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = c.String(http.StatusOK, "done")

	NewHTTPErrorHandler(zerolog.Nop())(errors.New("late"), c)

	if rec.Body.String() != "done" {
		t.Fatalf("committed response must not be rewritten, got %q", rec.Body.String())
	}
}
