package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/config"
	"github.com/iwandwip/intan-kiosk/internal/devicestate"
	"github.com/iwandwip/intan-kiosk/internal/redis"
	"github.com/iwandwip/intan-kiosk/internal/service"
	"github.com/iwandwip/intan-kiosk/internal/simulator"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.LoadSimulator()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	store := devicestate.NewRedisStore(redisClient.Client, cfg.DeviceID)

	// Timeouts are enforced by the server's supervisor, not by the device.
	lock := service.NewLock(store, cfg.DeviceID, service.SessionTimeouts{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := lock.EnsureInitialized(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize device record")
	}
	cancel()

	sim := simulator.New(service.NewDeviceService(lock), simulator.Config{
		MatchProbability: cfg.MatchProbability,
		MinDelay:         cfg.MinDelay(),
		MaxDelay:         cfg.MaxDelay(),
		SettleTime:       cfg.SettleTime(),
	})
	driver := service.NewFlowDriver(store, sim)
	driver.Start()

	log.Info().
		Str("deviceId", cfg.DeviceID).
		Float64("matchProbability", cfg.MatchProbability).
		Msg("device simulator running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	driver.Stop()
	sim.Stop()
	log.Info().Msg("device simulator stopped")
}
