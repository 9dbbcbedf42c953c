package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/auth"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/cache"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/command"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/credential"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/db"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/handlers"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/logger"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/mfa"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/middleware"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/realtime"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/registry"
	"github.com/LoGGGG2402/computer-management-system-sub002/internal/versioncatalog"
)

func main() {
	// Configuration from environment
	port := getEnv("API_PORT", "8000")
	rateLimitEnabled := getEnv("RATE_LIMIT_ENABLED", "true") == "true"
	rateLimitRPM := getEnvInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60)

	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "cms")
	dbPassword := getEnv("DB_PASSWORD", "cms")
	dbName := getEnv("DB_NAME", "cms")
	dbSSLMode := getEnv("DB_SSL_MODE", "disable") // SECURITY: should be "require" in production

	cacheEnabled := getEnv("CACHE_ENABLED", "false") == "true"
	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")

	dataDir := getEnv("CMS_DATA_DIR", "./data")
	maxUploadMB := getEnvInt("CMS_MAX_UPLOAD_MB", 50)

	accessTokenTTL := getEnvDuration("CMS_ACCESS_TOKEN_TTL", 15*time.Minute)
	refreshTokenTTL := getEnvDuration("CMS_REFRESH_TOKEN_TTL", 30*24*time.Hour)
	if d := auth.ParseTTL(os.Getenv("CMS_ACCESS_TOKEN_TTL")); d > 0 {
		accessTokenTTL = d
	}
	if d := auth.ParseTTL(os.Getenv("CMS_REFRESH_TOKEN_TTL")); d > 0 {
		refreshTokenTTL = d
	}
	offlineDebounce := getEnvDuration("CMS_OFFLINE_DEBOUNCE", realtime.DefaultOfflineDebounce)
	refreshSweepCron := getEnv("CMS_REFRESH_SWEEP_CRON", "@daily")

	kdfTime := getEnvInt("CMS_KDF_TIME", 0)
	kdfMemoryKB := getEnvInt("CMS_KDF_MEMORY_KB", 0)

	logLevel := getEnv("LOG_LEVEL", "info")
	logPretty := getEnv("LOG_PRETTY", "false") == "true"
	logger.Initialize(logLevel, logPretty)
	log := logger.GetLogger()

	log.Info().Msg("starting CMS coordination core")

	// Database
	log.Info().Msg("connecting to database")
	database, err := db.NewDatabase(db.Config{
		Host:     dbHost,
		Port:     dbPort,
		User:     dbUser,
		Password: dbPassword,
		DBName:   dbName,
		SSLMode:  dbSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	log.Info().Msg("running database migrations")
	if err := database.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Redis cache (optional; also backs MFA entries and the refresh-token
	// sweep's distributed lock when enabled)
	redisCache, err := cache.NewCache(cache.Config{
		Host:     redisHost,
		Port:     redisPort,
		Password: redisPassword,
		DB:       0,
		Enabled:  cacheEnabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize redis cache, continuing without it")
		redisCache, _ = cache.NewCache(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	// Repositories
	userRepo := db.NewUserDB(database.DB())
	refreshTokenRepo := db.NewRefreshTokenDB(database.DB())
	roomRepo := db.NewRoomDB(database.DB())
	computerRepo := db.NewComputerDB(database.DB())
	versionRepo := db.NewAgentVersionDB(database.DB())

	// Credential Store (C1)
	kdfParams := credential.DefaultParams()
	if kdfTime > 0 {
		kdfParams.Time = uint32(kdfTime)
	}
	if kdfMemoryKB > 0 {
		kdfParams.MemoryKB = uint32(kdfMemoryKB)
	}
	hasher := credential.NewHasher(kdfParams)

	// Auth Service (C2)
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal().Msg("JWT_SECRET environment variable must be set. Generate with: openssl rand -base64 32")
	}
	if len(jwtSecret) < 32 {
		log.Fatal().Msg("JWT_SECRET must be at least 32 characters long")
	}
	jwtManager := auth.NewJWTManager(jwtSecret, accessTokenTTL)
	authService := auth.NewService(userRepo, refreshTokenRepo, hasher, jwtManager, refreshTokenTTL)
	authHandler := auth.NewHandler(authService)
	accessAuth := auth.RequireAccessToken(jwtManager)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	if _, err := auth.StartSweepScheduler(sweepCtx, refreshSweepCron, refreshTokenRepo, redisCache); err != nil {
		log.Fatal().Err(err).Msg("failed to start refresh token sweep scheduler")
	}

	// MFA Broker (C3)
	mfaBroker := mfa.NewBroker(hasher, redisCache)
	janitorCtx, cancelJanitor := context.WithCancel(context.Background())
	defer cancelJanitor()
	go mfaBroker.StartJanitor(janitorCtx, 1*time.Minute)

	// Agent Registry (C4)
	agentRegistry := registry.New(computerRepo, roomRepo, hasher)
	agentAuth := middleware.NewAgentAuth(agentRegistry)

	// Session Hub (C5)
	hub := realtime.New(agentRegistry, jwtManager, userRepo, roomRepo, computerRepo, offlineDebounce)

	// Command Coordinator (C6). Hub and Coordinator depend on each other;
	// the Hub is constructed first and wired with the coordinator via
	// SetCommandCompleter/SetCommandDispatcher once it exists.
	coordinator := command.New(hub, roomRepo)
	hub.SetCommandCompleter(coordinator)
	hub.SetCommandDispatcher(coordinator)

	// Version Catalog (C7)
	catalog, err := versioncatalog.New(versionRepo, hub, dataDir, int64(maxUploadMB)*1024*1024)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize version catalog")
	}

	agentHandler := handlers.NewAgentHandler(agentRegistry, computerRepo, mfaBroker, hub, catalog, agentAuth)
	adminHandler := handlers.NewAdminHandler(catalog, hub, userRepo, roomRepo, computerRepo, versionRepo)
	userHandler := handlers.NewUserHandler(userRepo, authService, hasher)

	// Gin router
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(apperrors.Recovery())
	router.Use(middleware.StructuredLoggerWithConfigFunc(middleware.DefaultStructuredLoggerConfig()))
	router.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))
	router.Use(corsMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimiter(int64(maxUploadMB+1) * 1024 * 1024))

	if rateLimitEnabled {
		agentLimiter := middleware.NewRateLimiter(float64(rateLimitRPM)/60.0, rateLimitRPM)
		router.Use(agentLimiter.Middleware())
	}

	api := router.Group("/api/v1")

	authGroup := api.Group("/auth")
	authHandler.RegisterRoutes(authGroup, accessAuth)

	agentGroup := api.Group("/agent")
	agentHandler.RegisterRoutes(agentGroup)

	adminGroup := api.Group("/admin", accessAuth, auth.RequireRole("admin"))
	adminHandler.RegisterRoutes(adminGroup)
	userHandler.RegisterRoutes(adminGroup)

	router.GET("/api/v1/ws", hub.HandleWebSocket)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,

		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("port", port).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal, starting graceful shutdown")

	shutdownTimeout := getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	} else {
		log.Info().Msg("HTTP server stopped gracefully")
	}
}

func corsMiddleware() gin.HandlerFunc {
	allowedOrigins := getEnv("CORS_ALLOWED_ORIGINS", "*")
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigins)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Agent-ID, X-Client-Type")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
