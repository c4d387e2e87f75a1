package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_backend/testutil"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, key string, method jwt.SigningMethod, role string, exp time.Time) string {
	t.Helper()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1", ExpiresAt: jwt.NewNumericDate(exp)},
		Email:            "ops@example.com",
		Role:             role,
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func adminRouter(secret string) *gin.Engine {
	r := gin.New()
	r.GET("/admin", AdminAuth(secret, testutil.Logger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"role": c.GetString("admin_role")})
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"not configured", "", "Bearer x", http.StatusServiceUnavailable},
		{"missing header", secret, "", http.StatusUnauthorized},
		{"not bearer", secret, "Token abc", http.StatusUnauthorized},
		{"bad signature", secret, "Bearer " + signToken(t, "other", jwt.SigningMethodHS256, "admin", future), http.StatusUnauthorized},
		{"expired", secret, "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, "admin", time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"wrong role", secret, "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, "viewer", future), http.StatusForbidden},
		{"admin", secret, "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, "admin", future), http.StatusOK},
		{"superadmin", secret, "Bearer " + signToken(t, secret, jwt.SigningMethodHS512, "superadmin", future), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			adminRouter(tt.secret).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestParseAdminTokenRequiresExpiry(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{Role: "admin"}).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = ParseAdminToken(signed, secret)
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(60, 2, time.Minute)
	r := gin.New()
	r.GET("/x", RateLimit(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// a different client has its own bucket
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterPrunesIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(60, 1, time.Minute)
	rl.Allow("a")
	rl.Allow("b")

	rl.prune(time.Now())
	assert.Equal(t, 2, rl.size())

	rl.prune(time.Now().Add(2 * time.Minute))
	assert.Zero(t, rl.size())
}
