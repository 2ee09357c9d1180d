package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/config"
	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/metrics"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubAuth map[string]*helpers.EnhancedClaims

func (s stubAuth) Authenticate(_ context.Context, token string) (*helpers.EnhancedClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, errors.New("token is invalid")
}

func testAuth() stubAuth {
	return stubAuth{
		"admin-token": {UserID: "a1", RoleName: models.RoleAdmin, Role: &models.Role{
			Name: models.RoleAdmin, Permissions: models.AllPermissions,
		}},
		"user-token": {UserID: "u1", RoleName: models.RoleUser, Role: &models.Role{
			Name: models.RoleUser, Permissions: []models.Permission{models.PermDeleteMe},
		}},
	}
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		id, _ := c.Get(ContextRequestIDKey)
		c.String(http.StatusOK, id.(string))
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = serve(r, req)
	assert.Equal(t, "abc", w.Body.String())
}

func TestStructuredLoggerRecordsMetrics(t *testing.T) {
	m := metrics.New()
	r := gin.New()
	r.Use(StructuredLogger(quiet, m))
	r.GET("/tours/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	serve(r, httptest.NewRequest(http.MethodGet, "/tours/1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/tours/2", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `tourbook_http_requests_total{method="GET",route="/tours/:id",status="204"} 2`)
	assert.Contains(t, body, `route="unmatched"`)
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler(quiet))
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.New("db down")) })
	r.GET("/handled", func(c *gin.Context) {
		_ = c.Error(errors.New("noted"))
		c.JSON(http.StatusConflict, models.ErrorResponse("conflict"))
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/handled", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware(testAuth(), quiet), func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.UserID)
	})

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
		body   string
	}{
		{"no token", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer user-token") }, http.StatusOK, "u1"},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer admin-token") }, http.StatusOK, "a1"},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "user-token"})
		}, http.StatusOK, "u1"},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer forged") }, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.setup(req)
			w := serve(r, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestRequirePermissionAndRestrictTo(t *testing.T) {
	r := gin.New()
	auth := AuthMiddleware(testAuth(), quiet)
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r.GET("/stats", auth, RequirePermission(models.PermViewStats), ok)
	r.GET("/guides", auth, RestrictTo(models.RoleAdmin, models.RoleLeadGuide), ok)
	r.GET("/open", RequirePermission(models.PermViewStats), ok)

	get := func(path, token string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return serve(r, req).Code
	}
	assert.Equal(t, http.StatusNoContent, get("/stats", "admin-token"))
	assert.Equal(t, http.StatusForbidden, get("/stats", "user-token"))
	assert.Equal(t, http.StatusNoContent, get("/guides", "admin-token"))
	assert.Equal(t, http.StatusForbidden, get("/guides", "user-token"))
	assert.Equal(t, http.StatusUnauthorized, get("/open", ""))
}

func limitedRouter(cfg config.RateLimitConfig, rdb *redis.Client) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(cfg, rdb, quiet))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":1234"
	return serve(r, req)
}

func TestRateLimit_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := limitedRouter(config.RateLimitConfig{
		Enabled: true, Capacity: 3, RefillInterval: time.Hour, Prefix: "rl",
	}, rdb)

	for i := 0; i < 3; i++ {
		w := hit(r, "10.0.0.1")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}
	w := hit(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.2").Code, "buckets are per client")
	assert.True(t, mr.Exists("rl:ip:10.0.0.1"))
}

func TestRateLimit_RedisDownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	r := limitedRouter(config.RateLimitConfig{Enabled: true, Capacity: 1, RefillInterval: time.Hour, Prefix: "rl"}, rdb)

	mr.Close()
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	}
}

func TestRateLimit_LocalFallback(t *testing.T) {
	r := limitedRouter(config.RateLimitConfig{Enabled: true, Capacity: 2, RefillInterval: time.Hour, Prefix: "rl"}, nil)

	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.3").Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	r := limitedRouter(config.RateLimitConfig{Enabled: false, Capacity: 1}, nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	}
}
