package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// PortRequest names the port an SMS operation runs on.
// @Description Target port
type PortRequest struct {
	Port string `json:"port" example:"/dev/ttyUSB0"`
}

// SMSCountResponse reports SIM message storage usage.
// @Description SMS storage usage
type SMSCountResponse struct {
	Used  int `json:"used" example:"3"`
	Total int `json:"total" example:"50"`
}

// decodePort reads and validates a PortRequest, answering 400 itself.
func decodePort(w http.ResponseWriter, r *http.Request) (string, bool) {
	r = limitBody(r, 1<<20)

	var req PortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if err := validateSerialPort(req.Port); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return req.Port, true
}

// DeleteSMS clears SIM message storage on one port.
// @Summary Delete all SMS
// @Tags SMS
// @Accept json
// @Produce json
// @Param request body PortRequest true "Target port"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/sms/delete [post]
func (h *SIMHandler) DeleteSMS(w http.ResponseWriter, r *http.Request) {
	port, ok := decodePort(w, r)
	if !ok {
		return
	}
	if !h.acquireModems(w) {
		return
	}
	defer h.releaseModems()

	if !h.scanner.DeleteAllSMS(r.Context(), port) {
		errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("error deleting SMS on port %s", port))
		return
	}
	successResponse(w, fmt.Sprintf("all SMS deleted on port %s", port))
}

// CountSMS reports used and total SMS slots on one port.
// @Summary Count SMS
// @Tags SMS
// @Accept json
// @Produce json
// @Param request body PortRequest true "Target port"
// @Success 200 {object} SMSCountResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/sms/count [post]
func (h *SIMHandler) CountSMS(w http.ResponseWriter, r *http.Request) {
	port, ok := decodePort(w, r)
	if !ok {
		return
	}
	if !h.acquireModems(w) {
		return
	}
	defer h.releaseModems()

	count, ok := h.scanner.CountSMS(r.Context(), port)
	if !ok {
		errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("error getting SMS count for port %s", port))
		return
	}
	jsonResponse(w, http.StatusOK, SMSCountResponse{Used: count.Used, Total: count.Total})
}

// LastSMS refreshes the SMS listing of one port and merges it into the
// saved records.
// @Summary Refresh SMS of one port
// @Tags SMS
// @Accept json
// @Produce json
// @Param request body PortRequest true "Target port"
// @Success 200 {object} sim.Record
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/sms/last [post]
func (h *SIMHandler) LastSMS(w http.ResponseWriter, r *http.Request) {
	port, ok := decodePort(w, r)
	if !ok {
		return
	}
	if !h.acquireModems(w) {
		return
	}
	defer h.releaseModems()

	snap, err := h.scanner.Run(r.Context(), port, false)
	if err != nil {
		log.Printf("api: refresh %s: %v", port, err)
		errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("error reading SMS on port %s", port))
		return
	}
	h.publish(r, snap)

	if len(snap.Records) == 0 {
		successResponse(w, "no data found for this port")
		return
	}
	jsonResponse(w, http.StatusOK, snap.Records[0])
}
