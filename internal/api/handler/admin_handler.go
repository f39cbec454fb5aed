package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AllowlistReloader reloads the allow-list on behalf of a named trigger.
type AllowlistReloader interface {
	Reload(ctx context.Context, trigger string) error
}

// AllowlistInfo exposes the active allow-list's size and age.
type AllowlistInfo interface {
	Len() int
	LoadedAt() time.Time
}

// TokenCounter reports how many tokens a registry holds.
type TokenCounter interface {
	Len(ctx context.Context) (int, error)
}

// BreakerReporter reports a circuit breaker's state.
type BreakerReporter interface {
	State() string
}

// AdminHandler serves operator endpoints behind admin auth.
type AdminHandler struct {
	reloader  AllowlistReloader
	allowlist AllowlistInfo
	tokens    TokenCounter
	breaker   BreakerReporter
	log       zerolog.Logger
}

// NewAdminHandler creates an AdminHandler. breaker may be nil.
func NewAdminHandler(reloader AllowlistReloader, allowlist AllowlistInfo, tokens TokenCounter, breaker BreakerReporter, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{reloader: reloader, allowlist: allowlist, tokens: tokens, breaker: breaker, log: log}
}

// ReloadAllowlist handles POST /admin/allowlist/reload.
//
// @Summary      Reload the allow-list from its source
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  reloadResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /admin/allowlist/reload [post]
func (h *AdminHandler) ReloadAllowlist(c echo.Context) error {
	subject, _, err := ctxClaims(c)
	if err != nil {
		return err
	}
	if err := h.reloader.Reload(c.Request().Context(), "admin"); err != nil {
		h.log.Warn().Err(err).Str("subject", subject).Msg("admin allow-list reload failed")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "allow-list reload failed, previous list kept")
	}
	h.log.Info().Str("subject", subject).Int("size", h.allowlist.Len()).Msg("allow-list reloaded by admin")
	return c.JSON(http.StatusOK, reloadResponse{Status: "reloaded", Size: h.allowlist.Len()})
}

// Stats handles GET /admin/stats.
//
// @Summary      Gate runtime statistics
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  statsResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /admin/stats [get]
func (h *AdminHandler) Stats(c echo.Context) error {
	held, err := h.tokens.Len(c.Request().Context())
	if err != nil {
		return err
	}

	resp := statsResponse{
		AllowlistSize: h.allowlist.Len(),
		TokensHeld:    held,
	}
	if at := h.allowlist.LoadedAt(); !at.IsZero() {
		at = at.UTC()
		resp.AllowlistLoadedAt = &at
	}
	if h.breaker != nil {
		resp.ProofBreaker = h.breaker.State()
	}
	return c.JSON(http.StatusOK, resp)
}
