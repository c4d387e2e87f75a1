package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port           string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	AdminJWTSecret string
	CacheBackend   string // memory or redis
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	Environment    string
	MarketFile     string
	Market         MarketConfig
}

// LoadConfig loads environment variables and the optional market config file
func LoadConfig(log logrus.FieldLogger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "market_db"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		CacheBackend:   strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		Environment:    getEnv("ENVIRONMENT", "development"),
		MarketFile:     getEnv("MARKET_CONFIG_FILE", "config/market.yaml"),
	}

	market, err := LoadMarketConfig(cfg.MarketFile)
	if err != nil {
		return cfg, err
	}
	market.applyEnv()
	if cfg.Environment == "test" {
		market.AutoUpdateDisabled = true
	}
	if err := market.Validate(); err != nil {
		return cfg, err
	}
	cfg.Market = market

	return cfg, nil
}

// RedisAddr returns host:port for the redis cache backend
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// InitDB initializes database connection
func InitDB(cfg *Config, log logrus.FieldLogger) (*gorm.DB, error) {
	log.WithFields(logrus.Fields{
		"host":   maskHost(cfg.DBHost),
		"port":   cfg.DBPort,
		"user":   cfg.DBUser,
		"dbname": cfg.DBName,
	}).Info("Connecting to database")

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
		cfg.DBSSLMode,
	)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("Database connection verified successfully")
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string) (bool, bool) {
	value := os.Getenv(key)
	if value == "" {
		return false, false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}
	return b, true
}

func getEnvSeconds(key string) (time.Duration, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n * float64(time.Second)), true
}
