package middleware

import "github.com/labstack/echo/v4"

const userKey = "user_id"

// LoginID returns the authenticated login or "" when JWTAuth did not run.
func LoginID(c echo.Context) string {
	if s, ok := c.Get(userKey).(string); ok {
		return s
	}
	return ""
}

func currentUserID(c echo.Context) string {
	if id := LoginID(c); id != "" {
		return id
	}
	return "anon"
}
