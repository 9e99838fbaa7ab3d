package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flightdesk/auth-service/internal/api/middleware"
)

// ctxUserID returns the subject injected by middleware.RequireAuth. An empty
// value means the route was mounted without the middleware.
func ctxUserID(c echo.Context) (string, error) {
	userID, _ := c.Get(middleware.UserIDKey).(string)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return userID, nil
}
