package router

import (
	"github.com/labstack/echo/v4"

	"github.com/kyu4583/realticket-gatling-simulations/internal/handler"
	"github.com/kyu4583/realticket-gatling-simulations/internal/middleware"
)

// RegisterRoutes registers unauthenticated routes.
func RegisterRoutes(e *echo.Echo, a *handler.AuthHandler) {
	e.GET("/healthz", handler.Health)
	e.POST("/user/login", a.Login)
}

// RegisterBooking registers the session-protected booking flow.  limit
// wraps every protected route and may be a pass-through.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	auth := e.Group("", middleware.JWTAuth(jwtSecret), limit)
	auth.GET("/booking/permission/:eventId", b.Permission)
	auth.POST("/booking/count", b.SetAmount)
	auth.GET("/booking/seat/:eventId", b.SeatStatus)
	auth.POST("/booking", b.Claim)
	auth.POST("/reservation", b.Reserve)
	auth.GET("/benchmark/seat", b.Stream)
}
