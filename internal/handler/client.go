package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/middleware"
	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/reconcile"
	"github.com/iwandwip/intan-kiosk/internal/service"
)

// ClientHandler serves the mobile app. Every session operation answers with
// the caller's view of the record after the change.
type ClientHandler struct {
	lock     *service.Lock
	pairing  *service.PairingService
	weighing *service.WeighingService
}

func NewClientHandler(
	lock *service.Lock,
	pairing *service.PairingService,
	weighing *service.WeighingService,
) *ClientHandler {
	return &ClientHandler{
		lock:     lock,
		pairing:  pairing,
		weighing: weighing,
	}
}

func (h *ClientHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/device", h.Device)

	r.Post("/pairing/start", h.StartPairing)
	r.Get("/pairing/detected", h.DetectedCard)
	r.Post("/pairing/confirm", h.ConfirmPairing)
	r.Post("/pairing/manual", h.ManualPairing)
	r.Post("/pairing/cancel", h.CancelPairing)

	r.Post("/weighing/start", h.StartWeighing)
	r.Post("/weighing/confirm", h.ConfirmWeighing)
	r.Post("/weighing/cancel", h.CancelWeighing)

	r.Get("/me", h.Me)
	r.Get("/me/measurements", h.MyMeasurements)

	return r
}

// GET /v1/device
func (h *ClientHandler) Device(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	h.writeView(w, r, user)
}

// POST /v1/pairing/start
func (h *ClientHandler) StartPairing(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req struct {
		TargetUserID string `json:"targetUserId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.pairing.StartDevicePairing(r.Context(), user, req.TargetUserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reconcile.Derive(rec, user.ID))
}

// GET /v1/pairing/detected
func (h *ClientHandler) DetectedCard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	card, err := h.pairing.DetectedCard(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"detected": card != nil,
		"card":     card,
	})
}

// POST /v1/pairing/confirm
func (h *ClientHandler) ConfirmPairing(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req struct {
		RfidNumber string `json:"rfidNumber"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := h.pairing.Confirm(r.Context(), user.ID, req.RfidNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// POST /v1/pairing/manual
func (h *ClientHandler) ManualPairing(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req struct {
		TargetUserID string `json:"targetUserId"`
		Rfid         string `json:"rfid"`
		RfidNumber   string `json:"rfidNumber"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := h.pairing.ManualPair(r.Context(), user, req.TargetUserID, req.Rfid, req.RfidNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// POST /v1/pairing/cancel
func (h *ClientHandler) CancelPairing(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	if err := h.pairing.Cancel(r.Context(), user.ID); err != nil {
		writeError(w, r, err)
		return
	}

	h.writeView(w, r, user)
}

// POST /v1/weighing/start
func (h *ClientHandler) StartWeighing(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req service.StartWeighingInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.weighing.Start(r.Context(), user, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reconcile.Derive(rec, user.ID))
}

// POST /v1/weighing/confirm
func (h *ClientHandler) ConfirmWeighing(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	rec, err := h.weighing.Confirm(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reconcile.Derive(rec, user.ID))
}

// POST /v1/weighing/cancel
func (h *ClientHandler) CancelWeighing(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	if err := h.weighing.Cancel(r.Context(), user.ID); err != nil {
		writeError(w, r, err)
		return
	}

	h.writeView(w, r, user)
}

// GET /v1/me
func (h *ClientHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.GetUser(r.Context()))
}

// GET /v1/me/measurements
func (h *ClientHandler) MyMeasurements(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	p := ParsePagination(r)

	records, total, err := h.weighing.Measurements(r.Context(), user.ID, p.Limit, p.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPage(records, total, p))
}

func (h *ClientHandler) writeView(w http.ResponseWriter, r *http.Request, user *model.UserProfile) {
	if user == nil {
		writeError(w, r, apperrors.Unauthorized("Missing authentication"))
		return
	}

	rec, err := h.lock.Current(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reconcile.Derive(rec, user.ID))
}
