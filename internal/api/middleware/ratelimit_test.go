package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mailgate/gate-service/internal/core/domain"
)

func TestRateLimit_DeniesAfterBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{Requests: 2, Window: time.Minute})
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	call := func(ip string) error {
		req := httptest.NewRequest(http.MethodPost, "/verify", nil)
		req.Header.Set(echo.HeaderXRealIP, ip)
		return handler(e.NewContext(req, httptest.NewRecorder()))
	}

	for i := 0; i < 2; i++ {
		if err := call("198.51.100.1"); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}
	if err := call("198.51.100.1"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := call("198.51.100.2"); err != nil {
		t.Fatalf("other client must not be limited, got %v", err)
	}
}

type denyingStore struct{ err error }

func (s denyingStore) Allow(string) (bool, error) { return false, s.err }

func TestRateLimit_CustomStore(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{Store: denyingStore{}, StoreName: "redis"})
	handler := mw(func(c echo.Context) error {
		t.Fatalf("should not reach next")
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/forward", nil)
	if err := handler(e.NewContext(req, httptest.NewRecorder())); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestNewMemoryRateLimitStore_Defaults(t *testing.T) {
	store := NewMemoryRateLimitStore(0, 0)
	ok, err := store.Allow("client")
	if err != nil || !ok {
		t.Fatalf("first request must pass, got %v %v", ok, err)
	}
	ok, _ = store.Allow("client")
	if ok {
		t.Fatalf("burst of one must deny the second request")
	}
}
