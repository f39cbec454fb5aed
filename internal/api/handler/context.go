package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ctxClaims extracts the auth claims injected by the Auth middleware and
// fails fast when they are absent. A token without a subject is
// structurally valid but cannot be attributed, so it is rejected with 401.
func ctxClaims(c echo.Context) (subject, role string, err error) {
	role, _ = c.Get("role").(string)
	subject, _ = c.Get("subject").(string)
	if role == "" || subject == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return subject, role, nil
}
