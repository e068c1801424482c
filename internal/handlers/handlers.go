package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"simscan/internal/at"
	"simscan/internal/modemmanager"
	"simscan/internal/publish"
	"simscan/internal/sim"
	"simscan/internal/storage"
)

// Scanner runs scans and the per-port SMS operations.
type Scanner interface {
	Run(ctx context.Context, target string, deleteSMS bool) (*sim.Snapshot, error)
	DeleteAllSMS(ctx context.Context, port string) bool
	CountSMS(ctx context.Context, port string) (at.SMSCount, bool)
}

// CredentialWriter adds SIM credentials.
type CredentialWriter interface {
	AddCredential(ctx context.Context, cred storage.Credential) error
	BulkAdd(ctx context.Context, creds []storage.Credential) (int, error)
}

// SavedRecords gives access to the records of the last scans.
type SavedRecords interface {
	Load() ([]sim.Record, error)
	Reset() error
}

// ModemManagerProbe reports on ModemManager.
type ModemManagerProbe interface {
	Status(ctx context.Context) (*modemmanager.Status, error)
}

// Options wires a SIMHandler. Credentials and ModemManager may be nil, in
// which case their endpoints answer 503.
type Options struct {
	Scanner      Scanner
	Ports        sim.PortLister
	Credentials  CredentialWriter
	Saved        SavedRecords
	Sink         publish.Sink
	ModemManager ModemManagerProbe
}

// SIMHandler serves the simscan API.
type SIMHandler struct {
	scanner Scanner
	ports   sim.PortLister
	creds   CredentialWriter
	saved   SavedRecords
	sink    publish.Sink
	mm      ModemManagerProbe

	// busy is set while anything is talking to the modems.
	busy atomic.Bool
}

// NewSIMHandler creates a new handler.
func NewSIMHandler(opts Options) *SIMHandler {
	return &SIMHandler{
		scanner: opts.Scanner,
		ports:   opts.Ports,
		creds:   opts.Credentials,
		saved:   opts.Saved,
		sink:    opts.Sink,
		mm:      opts.ModemManager,
	}
}

// ErrorResponse is the body of every failed request.
// @Description Error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid serial port"`
	Code  int    `json:"code" example:"400"`
}

// SuccessResponse is the body of requests that only report success.
// @Description Success response
type SuccessResponse struct {
	Status  string `json:"status" example:"ok"`
	Message string `json:"message" example:"data reset"`
}

// Response helpers
func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, ErrorResponse{Error: message, Code: status})
}

func successResponse(w http.ResponseWriter, message string) {
	jsonResponse(w, http.StatusOK, SuccessResponse{Status: "ok", Message: message})
}

// acquireModems claims the modems for one request. Two conversations on
// the same UART corrupt each other, so a second request is refused.
func (h *SIMHandler) acquireModems(w http.ResponseWriter) bool {
	if !h.busy.CompareAndSwap(false, true) {
		errorResponse(w, http.StatusConflict, "a scan is already running")
		return false
	}
	return true
}

func (h *SIMHandler) releaseModems() {
	h.busy.Store(false)
}
