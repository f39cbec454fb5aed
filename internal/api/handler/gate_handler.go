package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mailgate/gate-service/internal/core/ports"
)

// GateHandler serves the verify and forward flows.
type GateHandler struct {
	svc          ports.GatewayService
	regionHeader string
}

// NewGateHandler creates a GateHandler. regionHeader names the header a
// fronting proxy sets with the client's country code; empty disables it.
func NewGateHandler(svc ports.GatewayService, regionHeader string) *GateHandler {
	return &GateHandler{svc: svc, regionHeader: regionHeader}
}

// Verify handles POST /verify.
//
// @Summary      Verify an identity and obtain a redemption URL
// @Tags         gate
// @Accept       json
// @Produce      json
// @Param        body  body      verifyRequest  true  "Verify request"
// @Success      200   {object}  verifyResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /verify [post]
func (h *GateHandler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	// A filled honeypot goes straight to the classifier so the response
	// never depends on the rest of the payload.
	if req.Honeypot == "" {
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	res, err := h.svc.Verify(c.Request().Context(), toVerifyInput(req, c, h.regionHeader))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toVerifyResponse(res))
}

// Forward handles GET /forward?token= and GET /forward/:token.
//
// @Summary      Redeem a token and redirect to the destination
// @Tags         gate
// @Param        token  query  string  false  "Redemption token"
// @Success      302
// @Failure      403   {object}  errorResponse
// @Failure      410   {object}  errorResponse
// @Router       /forward [get]
func (h *GateHandler) Forward(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		token = c.QueryParam("token")
	}

	res, err := h.svc.Forward(c.Request().Context(), ports.ForwardInput{
		Token:     token,
		RemoteIP:  c.RealIP(),
		RequestID: requestID(c),
	})
	if err != nil {
		return err
	}

	hdr := c.Response().Header()
	hdr.Set(echo.HeaderCacheControl, "no-store")
	hdr.Set("Referrer-Policy", "no-referrer")
	return c.Redirect(http.StatusFound, res.Location)
}
