package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"simscan/internal/storage"
	"simscan/internal/storage/csvimport"
)

const maxUploadSize = 10 << 20

// AddSIMRequest registers one SIM card.
// @Description SIM credential
type AddSIMRequest struct {
	ICCID json.Number `json:"iccid" swaggertype:"integer" example:"1234567890"`
	PIN   string      `json:"pin" example:"1234"`
}

// BulkImportResponse summarises a CSV import.
// @Description CSV import result
type BulkImportResponse struct {
	Status   string `json:"status" example:"ok"`
	Message  string `json:"message" example:"bulk SIM cards added successfully"`
	Rows     int    `json:"rows" example:"120"`
	Inserted int    `json:"inserted" example:"118"`
}

// AddSIM stores the PIN for one ICCID.
// @Summary Add SIM credential
// @Tags SIMs
// @Accept json
// @Produce json
// @Param request body AddSIMRequest true "ICCID and PIN"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/sims [post]
func (h *SIMHandler) AddSIM(w http.ResponseWriter, r *http.Request) {
	if h.creds == nil {
		errorResponse(w, http.StatusServiceUnavailable, "credential store not configured")
		return
	}
	r = limitBody(r, 1<<20)

	var req AddSIMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PIN == "" {
		errorResponse(w, http.StatusBadRequest, "ICCID and PIN are required")
		return
	}
	iccid, err := parseICCID(req.ICCID.String())
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.creds.AddCredential(r.Context(), storage.Credential{ICCID: iccid, PIN: req.PIN})
	switch {
	case errors.Is(err, storage.ErrDuplicateICCID):
		errorResponse(w, http.StatusBadRequest, "ICCID already exists")
		return
	case errors.Is(err, storage.ErrInvalidCredential):
		errorResponse(w, http.StatusBadRequest, "invalid PIN (must be 4-8 digits)")
		return
	case err != nil:
		log.Printf("api: add credential: %v", err)
		errorResponse(w, http.StatusInternalServerError, "failed to store credential")
		return
	}
	successResponse(w, "SIM card added successfully")
}

// BulkAddSIMs imports credentials from an uploaded semicolon separated CSV
// file. ICCIDs already stored are skipped.
// @Summary Bulk import SIM credentials
// @Tags SIMs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "ICCID;PIN CSV file"
// @Success 200 {object} BulkImportResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/sims/bulk [post]
func (h *SIMHandler) BulkAddSIMs(w http.ResponseWriter, r *http.Request) {
	if h.creds == nil {
		errorResponse(w, http.StatusServiceUnavailable, "credential store not configured")
		return
	}
	r = limitBody(r, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		errorResponse(w, http.StatusBadRequest, "no selected file")
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		errorResponse(w, http.StatusBadRequest, "invalid file format (only .csv is supported)")
		return
	}

	creds, err := csvimport.Parse(file)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	inserted, err := h.creds.BulkAdd(r.Context(), creds)
	if err != nil {
		log.Printf("api: bulk import: %v", err)
		errorResponse(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}
	log.Printf("api: bulk import of %s: %d rows, %d new", header.Filename, len(creds), inserted)
	jsonResponse(w, http.StatusOK, BulkImportResponse{
		Status:   "ok",
		Message:  fmt.Sprintf("bulk SIM cards added successfully (%d new)", inserted),
		Rows:     len(creds),
		Inserted: inserted,
	})
}
