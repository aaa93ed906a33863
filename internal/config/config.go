package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	ShopifyAPIKey       string
	ShopifyAPISecret    string
	AppURL              string
	Scopes              []string
	APIVersion          string
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	StateTTL            time.Duration
	HMACMaxSkew         time.Duration
	ExchangeTimeout     time.Duration
	EncryptionKey       string
	Port                string
	LogLevel            string
	RequestLogBodyLimit int
	ValidateTokens      bool
	PostInstallURL      string
}

// Load reads configuration from environment variables with sane defaults.
// A .env file is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	apiKey := strings.TrimSpace(os.Getenv("SHOPIFY_API_KEY"))
	if apiKey == "" {
		return Config{}, fmt.Errorf("SHOPIFY_API_KEY is required")
	}
	apiSecret := strings.TrimSpace(os.Getenv("SHOPIFY_API_SECRET"))
	if apiSecret == "" {
		return Config{}, fmt.Errorf("SHOPIFY_API_SECRET is required")
	}

	cfg := Config{
		ShopifyAPIKey:       apiKey,
		ShopifyAPISecret:    apiSecret,
		AppURL:              strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/"),
		Scopes:              getList("SHOPIFY_SCOPES", []string{"read_products", "read_orders"}),
		APIVersion:          getEnv("SHOPIFY_API_VERSION", "2025-01"),
		DatabaseURL:         getEnv("DATABASE_URL", "file:shopify_auth.db"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getInt("REDIS_DB", 0),
		StateTTL:            getDuration("STATE_TTL", 10*time.Minute),
		HMACMaxSkew:         getDuration("HMAC_MAX_SKEW", 5*time.Minute),
		ExchangeTimeout:     getDuration("EXCHANGE_TIMEOUT", 10*time.Second),
		EncryptionKey:       os.Getenv("ENCRYPTION_KEY"),
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		RequestLogBodyLimit: getInt("REQUEST_LOG_BODY_LIMIT", 4000),
		ValidateTokens:      getBool("VALIDATE_TOKENS", false),
		PostInstallURL:      getEnv("POST_INSTALL_REDIRECT_URL", ""),
	}

	if len(cfg.Scopes) == 0 {
		return Config{}, fmt.Errorf("SHOPIFY_SCOPES must not be empty")
	}

	return cfg, nil
}

// RedirectURI is the callback URL registered with the platform.
func (c Config) RedirectURI() string {
	return c.AppURL + "/auth/callback"
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
