package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/mailgate/gate-service/internal/core/domain"
	"github.com/mailgate/gate-service/internal/metrics"
)

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// Store counts requests per client. Defaults to an in-process store
	// sized from Requests and Window.
	Store echomiddleware.RateLimiterStore
	// StoreName labels the rejection metric.
	StoreName string
	Requests  int
	Window    time.Duration
}

// NewMemoryRateLimitStore returns a token-bucket store allowing a burst of
// requests that refills over window.
func NewMemoryRateLimitStore(requests int, window time.Duration) echomiddleware.RateLimiterStore {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(requests) / window.Seconds()),
		Burst:     requests,
		ExpiresIn: 2 * window,
	})
}

// RateLimit limits requests per client address. Rejections surface as
// domain.ErrRateLimited so the error handler renders them like every other
// gate failure.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := cfg.Store
	if store == nil {
		store = NewMemoryRateLimitStore(cfg.Requests, cfg.Window)
	}
	name := cfg.StoreName
	if name == "" {
		name = "memory"
	}

	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			metrics.RateLimitedTotal.WithLabelValues(name).Inc()
			return domain.ErrRateLimited
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			metrics.RateLimitedTotal.WithLabelValues(name).Inc()
			return domain.ErrRateLimited
		},
	})
}
