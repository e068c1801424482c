package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"simscan/internal/devices"
	"simscan/internal/sim"
)

// ============================================================================
// Scan Types
// ============================================================================

// ScanRequest is the optional body of a full scan.
// @Description Full scan options
type ScanRequest struct {
	DeleteSMS bool `json:"delete_sms" example:"false"`
}

// PortsResponse lists attached serial ports.
// @Description Attached serial ports
type PortsResponse struct {
	Ports []devices.PortInfo `json:"ports"`
	Count int                `json:"count" example:"8"`
}

// ============================================================================
// Scan Handlers
// ============================================================================

// HealthCheck reports that the service is up.
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *SIMHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "service": "simscan"})
}

// ListPorts returns the serial ports a full scan would visit.
// @Summary List serial ports
// @Tags Scan
// @Produce json
// @Success 200 {object} PortsResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/ports [get]
func (h *SIMHandler) ListPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := h.ports.ListPorts()
	if err != nil {
		log.Printf("api: list ports: %v", err)
		errorResponse(w, http.StatusInternalServerError, "failed to list serial ports")
		return
	}
	jsonResponse(w, http.StatusOK, PortsResponse{Ports: ports, Count: len(ports)})
}

// RunScan runs a full scan of every attached port and saves the result.
// With refresh=false, saved records are returned instead when there are any.
// @Summary Run full scan
// @Description Unlocks and reads every SIM; optionally clears SMS storage afterwards
// @Tags Scan
// @Accept json
// @Produce json
// @Param refresh query bool false "Scan even if saved data exists" default(true)
// @Param request body ScanRequest false "Scan options"
// @Success 200 {array} sim.Record
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/scan [post]
func (h *SIMHandler) RunScan(w http.ResponseWriter, r *http.Request) {
	r = limitBody(r, 1<<20)

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if r.URL.Query().Get("refresh") == "false" {
		saved, err := h.saved.Load()
		if err != nil {
			log.Printf("api: load saved records: %v", err)
			errorResponse(w, http.StatusInternalServerError, "failed to read saved data")
			return
		}
		if len(saved) > 0 {
			jsonResponse(w, http.StatusOK, saved)
			return
		}
	}

	if !h.acquireModems(w) {
		return
	}
	defer h.releaseModems()

	snap, err := h.scanner.Run(r.Context(), "", req.DeleteSMS)
	if err != nil {
		log.Printf("api: scan failed: %v", err)
		errorResponse(w, http.StatusInternalServerError, "scan failed")
		return
	}
	h.publish(r, snap)
	jsonResponse(w, http.StatusOK, snap.Records)
}

// GetData returns the saved records.
// @Summary Get saved records
// @Tags Scan
// @Produce json
// @Success 200 {array} sim.Record
// @Failure 500 {object} ErrorResponse
// @Router /api/data [get]
func (h *SIMHandler) GetData(w http.ResponseWriter, r *http.Request) {
	records, err := h.saved.Load()
	if err != nil {
		log.Printf("api: load saved records: %v", err)
		errorResponse(w, http.StatusInternalServerError, "failed to read saved data")
		return
	}
	jsonResponse(w, http.StatusOK, records)
}

// ResetData removes the saved records.
// @Summary Reset saved records
// @Tags Scan
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/reset [post]
func (h *SIMHandler) ResetData(w http.ResponseWriter, r *http.Request) {
	if err := h.saved.Reset(); err != nil {
		log.Printf("api: reset: %v", err)
		errorResponse(w, http.StatusInternalServerError, "failed to reset data")
		return
	}
	successResponse(w, "data reset successfully")
}

// publish hands a snapshot to the sinks. Sink failures are logged only; the
// scan result is still returned to the caller.
func (h *SIMHandler) publish(r *http.Request, snap *sim.Snapshot) {
	if h.sink == nil {
		return
	}
	if err := h.sink.Publish(r.Context(), snap); err != nil {
		log.Printf("api: publish snapshot %s: %v", snap.ID, err)
	}
}
