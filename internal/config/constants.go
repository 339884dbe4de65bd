package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Device state store backends
const (
	DeviceStoreRedis  = "redis"
	DeviceStoreMemory = "memory"
)

// Optimistic transaction retries on the device record before reporting
// the store as unavailable.
const DeviceStoreMaxRetries = 8

// SSE heartbeat interval
const EventsHeartbeatInterval = 30 * time.Second

// Default rate limiting
const DefaultRateLimitPerMin = 60

// How long a timed out record stays visible before the supervisor resets it
// to the idle shape.
const TimedOutRetention = 30 * time.Second

// How long a failed RFID verification stays visible to the owner before the
// supervisor releases the station.
const FailedVerificationRetention = 15 * time.Second

// Per-address limit on the firmware endpoints. Readings stream several
// times a second while a child stands on the scale.
const DeviceRateLimitPerMin = 600
