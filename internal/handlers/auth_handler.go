package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/middleware"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/services"
)

// CookieOptions controls how session cookies are written.
type CookieOptions struct {
	Secure bool
	Domain string
}

func setAuthCookies(c *gin.Context, pair *helpers.TokenPair, opts CookieOptions) {
	now := time.Now()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		middleware.AccessTokenCookie,
		pair.AccessToken,
		int(pair.AccessExpiresAt.Sub(now).Seconds()),
		"/",
		opts.Domain,
		opts.Secure,
		true,
	)
	c.SetCookie(
		middleware.RefreshTokenCookie,
		pair.RefreshToken,
		int(pair.RefreshExpiresAt.Sub(now).Seconds()),
		"/",
		opts.Domain,
		opts.Secure,
		true,
	)
}

func clearAuthCookies(c *gin.Context, opts CookieOptions) {
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", opts.Domain, opts.Secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, "/", opts.Domain, opts.Secure, true)
}

func Signup(a *services.AuthService, opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.SignupRequest
		if !bindJSON(c, &req) {
			return
		}
		res, err := a.Signup(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		setAuthCookies(c, res.Tokens, opts)
		c.JSON(http.StatusCreated, models.SuccessResponse(res, "Account created"))
	}
}

func Login(a *services.AuthService, opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.LoginRequest
		if !bindJSON(c, &req) {
			return
		}
		res, err := a.Login(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		setAuthCookies(c, res.Tokens, opts)
		c.JSON(http.StatusOK, models.SuccessResponse(res, "Logged in"))
	}
}

// RefreshToken accepts the refresh token from the body or the cookie.
func RefreshToken(a *services.AuthService, opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = c.ShouldBindJSON(&body)
		token := body.RefreshToken
		if token == "" {
			token, _ = c.Cookie(middleware.RefreshTokenCookie)
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("refresh token is required"))
			return
		}
		res, err := a.Refresh(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			return
		}
		setAuthCookies(c, res.Tokens, opts)
		c.JSON(http.StatusOK, models.SuccessResponse(res, "Token refreshed"))
	}
}

func Logout(a *services.AuthService, opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		refresh, _ := c.Cookie(middleware.RefreshTokenCookie)
		if err := a.Logout(c.Request.Context(), middleware.BearerToken(c), refresh); err != nil {
			respondError(c, err)
			return
		}
		clearAuthCookies(c, opts)
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Logged out successfully"))
	}
}

func UpdatePassword(a *services.AuthService, opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _, ok := caller(c)
		if !ok {
			return
		}
		var req services.PasswordUpdate
		if !bindJSON(c, &req) {
			return
		}
		res, err := a.UpdatePassword(c.Request.Context(), claims.UserID, req)
		if err != nil {
			respondError(c, err)
			return
		}
		setAuthCookies(c, res.Tokens, opts)
		c.JSON(http.StatusOK, models.SuccessResponse(res, "Password updated"))
	}
}
