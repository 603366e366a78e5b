package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kyu4583/realticket-gatling-simulations/internal/utils"
)

// SessionCookie carries the access token issued at login.
const SessionCookie = "SESSION"

// JWTAuth validates the access token from the session cookie or a Bearer
// header and stores its subject under "user_id".
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearer(c.Request())
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing access token"})
			}
			sub, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(userKey, sub)
			return next(c)
		}
	}
}

func bearer(r *http.Request) string {
	if ck, err := r.Cookie(SessionCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
