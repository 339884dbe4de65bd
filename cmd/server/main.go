package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/config"
	"github.com/iwandwip/intan-kiosk/internal/database"
	"github.com/iwandwip/intan-kiosk/internal/devicestate"
	"github.com/iwandwip/intan-kiosk/internal/handler"
	"github.com/iwandwip/intan-kiosk/internal/jobs"
	"github.com/iwandwip/intan-kiosk/internal/middleware"
	"github.com/iwandwip/intan-kiosk/internal/redis"
	"github.com/iwandwip/intan-kiosk/internal/repository"
	"github.com/iwandwip/intan-kiosk/internal/service"
	"github.com/iwandwip/intan-kiosk/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	var store devicestate.Store
	switch cfg.DeviceStore {
	case config.DeviceStoreMemory:
		store = devicestate.NewMemoryStore()
	default:
		store = devicestate.NewRedisStore(redisClient.Client, cfg.DeviceID)
	}

	lock := service.NewLock(store, cfg.DeviceID, service.SessionTimeouts{
		Pairing:  cfg.PairingTimeout(),
		Weighing: cfg.WeighingTimeout(),
	})
	initCtx, initCancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if _, err := lock.EnsureInitialized(initCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize device record")
	}
	initCancel()
	log.Info().Str("deviceId", cfg.DeviceID).Str("store", cfg.DeviceStore).Msg("device record ready")

	userRepo := repository.NewUserRepository(db.DB)
	measurementRepo := repository.NewMeasurementRepository(db.DB)

	rateLimiter := service.NewRateLimiter(redisClient.Client)
	pairingService := service.NewPairingService(lock, db, userRepo)
	weighingService := service.NewWeighingService(lock, userRepo, measurementRepo)
	deviceService := service.NewDeviceService(lock)
	adminService := service.NewAdminService(
		lock, pairingService, weighingService, userRepo, rateLimiter, cfg.AdminPasswordHash,
	)

	flowDriver := service.NewFlowDriver(store, weighingService)
	flowDriver.Start()
	defer flowDriver.Stop()

	supervisor := jobs.NewTimeoutSupervisor(lock, cfg.SupervisorInterval())
	supervisor.Start()
	defer supervisor.Stop()

	broker := sse.NewBroker(store)
	defer broker.Close()

	authMiddleware := middleware.NewAuthMiddleware(userRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin)
	deviceSignatureMiddleware := middleware.NewDeviceSignatureMiddleware(cfg.DeviceSecret)
	deviceRateLimitMiddleware := middleware.NewIPRateLimitMiddleware(
		rateLimiter, config.DeviceRateLimitPerMin, time.Minute, "device",
	)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	clientHandler := handler.NewClientHandler(lock, pairingService, weighingService)
	deviceHandler := handler.NewDeviceHandler(deviceService)
	adminHandler := handler.NewAdminHandler(adminService)
	eventsHandler := handler.NewEventsHandler(broker, lock)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)

		// The event stream outlives any request timeout.
		r.Get("/device/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Mount("/", clientHandler.Routes())
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		r.Mount("/", adminHandler.Routes())
	})

	r.Route("/device", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(deviceRateLimitMiddleware.Handler)
		r.Use(deviceSignatureMiddleware.Handler)
		r.Mount("/", deviceHandler.Routes())
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
