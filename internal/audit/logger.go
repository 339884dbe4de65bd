package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventSessionAcquire     EventType = "session_acquire"
	EventSessionPreempt     EventType = "session_preempt"
	EventSessionRelease     EventType = "session_release"
	EventSessionForceReset  EventType = "session_force_reset"
	EventSessionTimeout     EventType = "session_timeout"
	EventVerificationFailed EventType = "verification_failed"
	EventMeasurementStored  EventType = "measurement_stored"
	EventRFIDPaired         EventType = "rfid_paired"
	EventRFIDRemoved        EventType = "rfid_removed"
	EventDuplicateRFID      EventType = "duplicate_rfid_rejected"
	EventAuthFailure        EventType = "auth_failure"
	EventSignatureFailure   EventType = "device_signature_failure"
	EventRateLimitExceed    EventType = "rate_limit_exceeded"
	EventAdminReauthFailure EventType = "admin_reauth_failure"
)

type Event struct {
	Type      EventType
	UserID    string
	DeviceID  string
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "session").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.UserID != "" {
		logger = logger.With().Str("user_id", event.UserID).Logger()
	}
	if event.DeviceID != "" {
		logger = logger.With().Str("device_id", event.DeviceID).Logger()
	}
	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case float64:
		return e.Float64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Duration:
		return e.Dur(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
