package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"market_backend/admin"
	"market_backend/config"
	"market_backend/controllers"
	"market_backend/middleware"
	"market_backend/models"
	"market_backend/routes"
	"market_backend/scheduler"
	"market_backend/services/cache"
	"market_backend/services/clock"
	"market_backend/services/fallback"
	"market_backend/services/marketconfig"
	"market_backend/services/marketdata"
	"market_backend/services/metrics"
	"market_backend/services/providers"
	"market_backend/services/realtime"
	"market_backend/services/snapshots"
)

func main() {
	log := config.NewLogger("market-backend")
	log.Info("Market data backend starting")

	cfg, err := config.LoadConfig(log)
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg, log)
	if err != nil {
		log.WithError(err).Error("Database connection failed, starting in limited mode")
		startLimitedServer(cfg.Port, log)
		return
	}

	if err := models.MigrateMarketModels(db); err != nil {
		log.WithError(err).Fatal("Migration failed")
	}
	if err := models.SeedDefaultTrackedSymbols(db); err != nil {
		log.WithError(err).Warn("Could not seed tracked symbols")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	clk := clock.System{}
	registry, tradingView := providers.NewRegistryFromConfig(cfg.Market, clk, log)
	log.WithField("providers", registry.Names()).Info("Provider adapters registered")

	store := marketconfig.NewStore(db, newCache(ctx, cfg, clk, log), cfg.Market.ConfigCacheTTL, log)
	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	svc := marketdata.NewService(marketdata.Deps{
		Store:       store,
		Resolver:    fallback.NewResolver(registry, cfg.Market.ProviderTimeout, log, m),
		Repo:        snapshots.NewRepository(db, clk),
		TradingView: tradingView,
		Publisher:   hub,
		Metrics:     m,
		Logger:      log,
		Clock:       clk,
	}, marketdata.Config{
		DefaultDelay:   cfg.Market.DefaultSymbolDelay,
		ProviderDelays: cfg.Market.SymbolDelays,
		StaleAfter:     staleAfter(cfg.Market.StaleAfter),
	})

	jobScheduler := scheduler.NewScheduler(svc, cfg.Market.Intervals, log)

	var limiter *middleware.RateLimiter
	if rl := cfg.Market.PublicRateLimit; rl.PerMinute > 0 {
		limiter = middleware.NewRateLimiter(rl.PerMinute, rl.Burst, 10*time.Minute)
		go limiter.Cleanup(ctx, time.Minute)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger(log))

	setupHealthEndpoints(router, db)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	routes.SetupRoutes(router, routes.Deps{
		Market:         controllers.NewMarketController(svc, store, hub),
		MarketAdmin:    admin.NewMarketAdminController(store, jobScheduler, svc, log),
		AdminJWTSecret: cfg.AdminJWTSecret,
		PublicLimiter:  limiter,
		Logger:         log,
	})
	if cfg.AdminJWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET not set, admin API disabled")
	}

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server error")
		}
	}()

	jobScheduler.AutoStart(ctx, cfg.Market.StartDelay, cfg.Market.AutoUpdateDisabled)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.WithField("signal", sig.String()).Info("Shutting down gracefully")

	cancel()
	jobScheduler.Stop()
	svc.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
		log.Info("Database connection closed")
	}
	log.Info("Server shutdown completed")
}

// newCache picks the config cache backend. Redis falls back to memory when unreachable.
func newCache(ctx context.Context, cfg *config.Config, clk clock.Clock, log logrus.FieldLogger) cache.Cache {
	if cfg.CacheBackend != "redis" {
		return cache.NewMemory(clk)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).WithField("addr", cfg.RedisAddr()).Warn("Redis unavailable, using in-memory config cache")
		client.Close()
		return cache.NewMemory(clk)
	}
	log.WithField("addr", cfg.RedisAddr()).Info("Using redis config cache")
	return cache.NewRedis(client, "market:", log)
}

func staleAfter(in map[string]time.Duration) map[models.Category]time.Duration {
	out := make(map[models.Category]time.Duration, len(in))
	for raw, d := range in {
		category, err := models.ParseCategory(raw)
		if err != nil {
			continue
		}
		out[category] = d
	}
	return out
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine, db *gorm.DB) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Market Data API",
			"version": "1.0.0",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger logs failed or slow requests
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > time.Second {
			log.WithFields(logrus.Fields{
				"method":   c.Request.Method,
				"path":     path,
				"status":   c.Writer.Status(),
				"duration": duration.String(),
				"ip":       c.ClientIP(),
			}).Info("request")
		}
	}
}

// startLimitedServer answers probes while the database is unreachable
func startLimitedServer(port string, log logrus.FieldLogger) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "limited",
			"message": "Market Data API - Database not connected",
		})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"message": "Database not connected",
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithField("port", port).Info("Limited server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server error")
		}
	}()

	<-quit
	log.Info("Shutting down limited server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}
