package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mailgate/gate-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// Client-facing messages. Blocked traffic of every kind shares one message so
// a client cannot tell which check stopped it.
const (
	msgBlocked            = "Request could not be verified."
	msgInvalidInput       = "Please enter a valid email address."
	msgMissingProof       = "Please complete the verification challenge."
	msgProofRejected      = "Verification challenge failed, please try again."
	msgNotAuthorized      = "Email not authorized"
	msgRateLimited        = "Too many requests, try again later."
	msgProofUnavailable   = "Verification service unavailable, please try again later."
	msgTokenInvalid       = "This link is invalid or has already been used."
	msgTokenExpired       = "This link has expired, please verify again."
	msgInternal           = "Internal server error"
	msgAllowlistUnhealthy = "Service temporarily unavailable"
)

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"valid": false, "message": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, errorResponse{Valid: false, Message: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, auth, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Order matters: a cloaked unauthorized identity wraps both
	// ErrIdentityNotAuthorized and ErrRequestBlocked and must render as blocked.
	switch {
	case errors.Is(err, domain.ErrRequestBlocked):
		return http.StatusForbidden, msgBlocked
	case errors.Is(err, domain.ErrMissingProof):
		return http.StatusBadRequest, msgMissingProof
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, msgInvalidInput
	case errors.Is(err, domain.ErrProofRejected):
		return http.StatusBadRequest, msgProofRejected
	case errors.Is(err, domain.ErrIdentityNotAuthorized):
		return http.StatusNotFound, msgNotAuthorized
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, msgRateLimited
	case errors.Is(err, domain.ErrProofServiceUnavailable):
		return http.StatusInternalServerError, msgProofUnavailable
	case errors.Is(err, domain.ErrTokenNotFound):
		return http.StatusForbidden, msgTokenInvalid
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusGone, msgTokenExpired
	case errors.Is(err, domain.ErrAllowlistUnavailable):
		return http.StatusServiceUnavailable, msgAllowlistUnhealthy
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, msgInternal
}
