package handlers

import (
	"log"
	"net/http"
)

// GetModemManagerStatus reports whether ModemManager is running and which
// serial ports it holds.
// @Summary ModemManager status
// @Tags System
// @Produce json
// @Success 200 {object} modemmanager.Status
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/modemmanager [get]
func (h *SIMHandler) GetModemManagerStatus(w http.ResponseWriter, r *http.Request) {
	if h.mm == nil {
		errorResponse(w, http.StatusServiceUnavailable, "ModemManager probe not available")
		return
	}
	status, err := h.mm.Status(r.Context())
	if err != nil {
		log.Printf("api: modemmanager status: %v", err)
		errorResponse(w, http.StatusInternalServerError, "failed to query system manager")
		return
	}
	jsonResponse(w, http.StatusOK, status)
}
