package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/config"
	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/middleware"
	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/reconcile"
	"github.com/iwandwip/intan-kiosk/internal/service"
	"github.com/iwandwip/intan-kiosk/internal/sse"
)

const (
	eventConnected = "connected"
	eventState     = "state"
)

// EventsHandler streams the caller's view of the device record as
// server-sent events.
type EventsHandler struct {
	broker    *sse.Broker
	lock      *service.Lock
	heartbeat time.Duration
}

func NewEventsHandler(broker *sse.Broker, lock *service.Lock) *EventsHandler {
	return &EventsHandler{
		broker:    broker,
		lock:      lock,
		heartbeat: config.EventsHeartbeatInterval,
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, r, apperrors.Unauthorized("Missing authentication"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apperrors.Internal("Streaming not supported"))
		return
	}

	ctx := r.Context()

	current, err := h.lock.Current(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(user.ID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("userId", user.ID).
		Msg("sse connection established")

	if err := h.sendEvent(w, flusher, eventConnected, map[string]any{"userId": user.ID}); err != nil {
		return
	}

	lastVersion := current.Version
	if err := h.sendState(w, flusher, current, user.ID); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("userId", user.ID).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("userId", user.ID).
				Msg("sse connection closed by broker")
			return

		case rec := <-client.Records:
			if rec.Version <= lastVersion {
				continue
			}
			lastVersion = rec.Version
			if err := h.sendState(w, flusher, rec, user.ID); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("userId", user.ID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendState(w http.ResponseWriter, flusher http.Flusher, rec *model.DeviceSessionRecord, viewerID string) error {
	return h.sendEvent(w, flusher, eventState, reconcile.Derive(rec, viewerID))
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
