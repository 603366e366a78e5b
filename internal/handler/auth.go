package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/kyu4583/realticket-gatling-simulations/internal/middleware"
	"github.com/kyu4583/realticket-gatling-simulations/internal/repository"
	"github.com/kyu4583/realticket-gatling-simulations/internal/utils"
)

// AuthHandler issues session cookies for seeded accounts.
type AuthHandler struct {
	Accounts  *repository.AccountStore
	JWTSecret string
	TTLMin    int
}

func NewAuthHandler(accounts *repository.AccountStore, secret string, ttlMin int) *AuthHandler {
	return &AuthHandler{Accounts: accounts, JWTSecret: secret, TTLMin: ttlMin}
}

type loginReq struct {
	LoginID       string `json:"loginId"`
	LoginPassword string `json:"loginPassword"`
}

// Login handles POST /user/login.  On success the access token is set as
// the session cookie and echoed in the body.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.LoginID = strings.TrimSpace(req.LoginID)
	if req.LoginID == "" || req.LoginPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "loginId/loginPassword required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Accounts.Verify(ctx, req.LoginID, req.LoginPassword); err != nil {
		if errors.Is(err, repository.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		log.Error().Err(err).Str("login", req.LoginID).Msg("auth: verify")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	tok, err := utils.NewAccessToken(h.JWTSecret, req.LoginID, h.TTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    tok.Token,
		Path:     "/",
		Expires:  tok.Exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, echo.Map{"loginId": req.LoginID, "expires": tok.Exp})
}
