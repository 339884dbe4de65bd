package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/service"
)

// DeviceHandler is the station firmware's HTTP boundary. Requests are
// authenticated by the device signature middleware.
type DeviceHandler struct {
	device *service.DeviceService
}

func NewDeviceHandler(device *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{device: device}
}

func (h *DeviceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/state", h.State)
	r.Post("/pairing/tap", h.PairingTap)
	r.Post("/weighing/tap", h.WeighingTap)
	r.Post("/readings", h.Readings)
	r.Post("/weighing/result", h.Result)

	return r
}

type tapRequest struct {
	Rfid string `json:"rfid"`
}

// GET /device/state
func (h *DeviceHandler) State(w http.ResponseWriter, r *http.Request) {
	rec, err := h.device.State(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// POST /device/pairing/tap
func (h *DeviceHandler) PairingTap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.device.ReportPairingTap(r.Context(), req.Rfid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// POST /device/weighing/tap
func (h *DeviceHandler) WeighingTap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.device.ReportWeighingTap(r.Context(), req.Rfid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// POST /device/readings
func (h *DeviceHandler) Readings(w http.ResponseWriter, r *http.Request) {
	var req model.LiveReadings
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.device.StreamReadings(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// POST /device/weighing/result
func (h *DeviceHandler) Result(w http.ResponseWriter, r *http.Request) {
	var req model.MeasurementResult
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.device.ReportResult(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
