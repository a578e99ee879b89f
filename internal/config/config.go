package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

type Config struct {
	Port              string
	AppEnv            string
	LogLevel          string
	JWTSecret         string
	StoreDriver       string
	DBUrl             string
	SQLitePath        string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RelayChannel      string
	CivilTimezone     string
	SendRatePerSecond float64
	SendBurst         int
	EnableMetrics     bool
	EnableDocs        bool
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AppEnv:            normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		JWTSecret:         jwtSecret,
		StoreDriver:       strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", StoreDriverPostgres))),
		DBUrl:             getEnv("DB_URL", ""),
		SQLitePath:        getEnv("SQLITE_PATH", "curasync.db"),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RelayChannel:      getEnv("RELAY_CHANNEL", "curasync:messages"),
		CivilTimezone:     getEnv("CIVIL_TIMEZONE", "Asia/Colombo"),
		SendRatePerSecond: getEnvFloat("SEND_RATE_PER_SECOND", 5),
		SendBurst:         getEnvInt("SEND_BURST", 10),
		EnableMetrics:     getEnvBool("ENABLE_METRICS", true),
		EnableDocs:        getEnvBool("ENABLE_API_DOCS", false),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DBUrl == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves the civil time zone used for server-side stamps.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.CivilTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid CIVIL_TIMEZONE %q: %w", c.CivilTimezone, err)
	}
	return loc, nil
}

func (c *Config) RelayEnabled() bool {
	return c != nil && c.RedisAddr != ""
}

func (c *Config) DocsEnabled() bool {
	return c != nil && c.EnableDocs && c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvFloat(key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(getEnv(key, "")), 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
