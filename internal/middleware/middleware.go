package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/metrics"
	"github.com/joshua-takyi/tourbook/internal/models"
)

const (
	ContextUserKey      = "user"
	ContextRequestIDKey = "request_id"
	AccessTokenCookie   = "access_token"
	RefreshTokenCookie  = "refresh_token"
)

// Authenticator resolves an access token to the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*helpers.EnhancedClaims, error)
}

// RequestID middleware adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextRequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// StructuredLogger logs every request and records it in m when m is set.
func StructuredLogger(logger *slog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, strconv.Itoa(statusCode), latency)

		requestID, _ := c.Get(ContextRequestIDKey)
		level := slog.LevelInfo
		if statusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "HTTP Request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", path,
			"status", statusCode,
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}

// ErrorHandler turns errors attached with c.Error into a 500 when the
// handler did not write a response itself.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()
		requestID, _ := c.Get(ContextRequestIDKey)
		logger.Error("Request error",
			"request_id", requestID,
			"error", err.Error(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		if c.Writer.Written() {
			return
		}
		// Don't return error details in production
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":    false,
			"error":      "Internal server error",
			"request_id": requestID,
		})
	}
}

// BearerToken reads the access token from the Authorization header, falling
// back to the access_token cookie.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if token, err := c.Cookie(AccessTokenCookie); err == nil {
		return token
	}
	return ""
}

func AuthMiddleware(auth Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("You are not logged in"))
			return
		}
		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			logger.Debug("Authentication failed", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse(err.Error()))
			return
		}
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentUser returns the claims stored by AuthMiddleware.
func CurrentUser(c *gin.Context) (*helpers.EnhancedClaims, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*helpers.EnhancedClaims)
	return claims, ok && claims != nil
}

// RequirePermission must run after AuthMiddleware.
func RequirePermission(perm models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("You are not logged in"))
			return
		}
		if !claims.HasPermission(perm) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				models.ErrorResponse("You do not have permission to perform this action"))
			return
		}
		c.Next()
	}
}

func RestrictTo(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("You are not logged in"))
			return
		}
		for _, r := range roles {
			if claims.HasRole(r) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden,
			models.ErrorResponse("You do not have permission to perform this action"))
	}
}
