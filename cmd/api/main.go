package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"

	"shopify-auth-layer/internal/application"
	"shopify-auth-layer/internal/config"
	apiinfra "shopify-auth-layer/internal/infrastructure/api"
	"shopify-auth-layer/internal/infrastructure/encryption"
	"shopify-auth-layer/internal/infrastructure/metrics"
	custommiddleware "shopify-auth-layer/internal/infrastructure/middleware"
	"shopify-auth-layer/internal/infrastructure/repository"
	shopifyinfra "shopify-auth-layer/internal/infrastructure/shopify"
	"shopify-auth-layer/internal/infrastructure/statestore"
	"shopify-auth-layer/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		logger = logger.Level(level)
	}

	if cfg.EncryptionKey == "" {
		logger.Fatal().Msg("ENCRYPTION_KEY environment variable is required")
	}
	encryptionService, err := encryption.NewService(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}

	// Connect to the database
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	installationRepo := repository.NewBunInstallationRepository(db)
	if err := installationRepo.EnsureSchema(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// State store: Redis when configured, in-process otherwise
	var stateStore ports.StateStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		stateStore = statestore.NewRedisStateStore(redisClient)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis state store")
	} else {
		stateStore = statestore.NewMemoryStateStore()
		logger.Warn().Msg("REDIS_ADDR not set, using in-memory state store (single instance only)")
	}

	// Initialize infrastructure
	shopifyClient := shopifyinfra.NewClient(cfg.ShopifyAPIKey, cfg.ShopifyAPISecret, cfg.APIVersion, cfg.ExchangeTimeout, logger)
	callbackVerifier := shopifyinfra.NewCallbackVerifier(cfg.ShopifyAPISecret, cfg.HMACMaxSkew)
	sessionTokenVerifier := shopifyinfra.NewSessionTokenVerifier(cfg.ShopifyAPIKey, cfg.ShopifyAPISecret)
	tokenManager := shopifyinfra.NewTokenManager(encryptionService, logger)

	// Initialize application service
	authService := application.NewAuthService(
		installationRepo,
		stateStore,
		shopifyClient,
		callbackVerifier,
		sessionTokenVerifier,
		tokenManager,
		application.Config{
			Scopes:         cfg.Scopes,
			RedirectURI:    cfg.RedirectURI(),
			PostInstallURL: cfg.PostInstallURL,
			StateTTL:       cfg.StateTTL,
			ValidateTokens: cfg.ValidateTokens,
		},
		logger,
	)

	registry := prometheus.NewRegistry()
	flowMetrics := metrics.New(registry)

	handlers := apiinfra.NewAuthHandlers(authService, callbackVerifier, flowMetrics, cfg.PostInstallURL, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(custommiddleware.SecurityHeadersMiddleware())
	r.Use(custommiddleware.RequestLoggingMiddleware(logger, cfg.RequestLogBodyLimit))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// Health check - must be public for monitoring
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, "./docs/swagger.json")
	})

	// OAuth routes
	r.Get("/", handlers.HandleRoot)
	r.Get("/auth/install", handlers.HandleInstall)
	r.Get("/auth/callback", handlers.HandleCallback)
	r.Post("/auth/token-exchange", handlers.HandleTokenExchange)
	r.Get("/auth/shops/{shopDomain}", handlers.HandleGetShop)

	logger.Info().Str("port", cfg.Port).Msg("Starting auth server")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}

// openDatabase opens a bun handle for either postgres or sqlite based on the
// DSN scheme. Sqlite is the default for local development.
func openDatabase(dsn string) (*bun.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	sqldb, err := sql.Open("sqlite3", strings.TrimPrefix(dsn, "file:"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}
