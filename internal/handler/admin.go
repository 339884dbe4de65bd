package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iwandwip/intan-kiosk/internal/middleware"
	"github.com/iwandwip/intan-kiosk/internal/service"
)

type AdminHandler struct {
	adminService *service.AdminService
}

func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// Routes expects AuthMiddleware in front. Measurements are open to teachers;
// the other routes require an admin.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/users/{id}/measurements", h.UserMeasurements)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin)
		r.Post("/device/reset", h.ResetDevice)
		r.Delete("/users/{id}/rfid", h.RemoveRFID)
	})

	return r
}

// POST /admin/device/reset
func (h *AdminHandler) ResetDevice(w http.ResponseWriter, r *http.Request) {
	admin := middleware.GetUser(r.Context())

	var req struct {
		Password string `json:"password"`
		Reason   string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.adminService.ResetDevice(r.Context(), admin, req.Password, req.Reason); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DELETE /admin/users/{id}/rfid
func (h *AdminHandler) RemoveRFID(w http.ResponseWriter, r *http.Request) {
	admin := middleware.GetUser(r.Context())

	user, err := h.adminService.RemoveRFID(r.Context(), admin, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// GET /admin/users/{id}/measurements
func (h *AdminHandler) UserMeasurements(w http.ResponseWriter, r *http.Request) {
	admin := middleware.GetUser(r.Context())
	p := ParsePagination(r)

	records, total, err := h.adminService.UserMeasurements(r.Context(), admin, chi.URLParam(r, "id"), p.Limit, p.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPage(records, total, p))
}
