package handler

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mailgate/gate-service/internal/core/ports"
)

func toVerifyInput(req verifyRequest, c echo.Context, regionHeader string) ports.VerifyInput {
	identifier := req.Identifier
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Email
	}

	var loadedAt time.Time
	if req.ClientTimestamp > 0 {
		loadedAt = time.UnixMilli(req.ClientTimestamp)
	}

	in := ports.VerifyInput{
		Identifier:      identifier,
		Proof:           req.Proof,
		Honeypot:        req.Honeypot,
		ClientTimestamp: loadedAt,
		RemoteIP:        c.RealIP(),
		UserAgent:       c.Request().UserAgent(),
		RequestID:       requestID(c),
	}
	if regionHeader != "" {
		in.Region = c.Request().Header.Get(regionHeader)
	}
	return in
}

func toVerifyResponse(res *ports.VerifyResult) verifyResponse {
	return verifyResponse{
		Valid:         res.Valid,
		Message:       res.Message,
		RedemptionURL: res.RedemptionURL,
		ExpiresAt:     res.ExpiresAt.UTC(),
	}
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
