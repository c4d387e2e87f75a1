package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"market_backend/admin"
	"market_backend/controllers"
	"market_backend/middleware"
	"market_backend/models"
	"market_backend/services/marketconfig"
	"market_backend/testutil"
)

type emptyReader struct{}

func (emptyReader) GetCached(context.Context, models.Category, ...string) []models.SnapshotRow {
	return nil
}

func (emptyReader) IsStale(models.Category, models.Snapshot) bool { return false }

type emptySymbols struct{}

func (emptySymbols) GetTrackedSymbols(context.Context, models.Category, marketconfig.Options) []models.TrackedSymbol {
	return nil
}

func setup(secret string, limiter *middleware.RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r, Deps{
		Market:         controllers.NewMarketController(emptyReader{}, emptySymbols{}, nil),
		MarketAdmin:    admin.NewMarketAdminController(nil, nil, nil, testutil.Logger()),
		AdminJWTSecret: secret,
		PublicLimiter:  limiter,
		Logger:         testutil.Logger(),
	})
	return r
}

func status(r *gin.Engine, method, path string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.1:5000"
	r.ServeHTTP(w, req)
	return w.Code
}

func TestPublicRoutes(t *testing.T) {
	r := setup("", nil)
	for _, path := range []string{"/api/v1/market/indices", "/api/v1/market/crypto", "/api/v1/market/currencies", "/api/v1/market/commodities", "/api/v1/market/config/crypto"} {
		assert.Equal(t, http.StatusOK, status(r, http.MethodGet, path), path)
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, status(setup("", nil), http.MethodGet, "/admin/api/market/scheduler"))
	assert.Equal(t, http.StatusUnauthorized, status(setup("secret", nil), http.MethodPost, "/admin/api/market/refresh/crypto"))
}

func TestPublicLimiter(t *testing.T) {
	r := setup("", middleware.NewRateLimiter(60, 1, time.Minute))
	assert.Equal(t, http.StatusOK, status(r, http.MethodGet, "/api/v1/market/indices"))
	assert.Equal(t, http.StatusTooManyRequests, status(r, http.MethodGet, "/api/v1/market/crypto"))
}
