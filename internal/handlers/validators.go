package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// --- Regex patterns (compiled once) ---

var (
	reSerialPort  = regexp.MustCompile(`^/dev/(tty[a-zA-Z0-9]+|serial/[a-zA-Z0-9/._:-]+)$`)
	reWindowsPort = regexp.MustCompile(`^COM[0-9]{1,3}$`)
	reICCID       = regexp.MustCompile(`^[0-9]{1,19}$`)
)

// --- Validator functions ---

// validateSerialPort validates a serial port path, preventing path traversal.
func validateSerialPort(port string) error {
	if port == "" {
		return fmt.Errorf("port not specified")
	}
	if reWindowsPort.MatchString(port) {
		return nil
	}
	// Clean the path first to resolve any ..
	clean := filepath.Clean(port)
	if clean != port {
		return fmt.Errorf("invalid serial port path (traversal detected)")
	}
	if !reSerialPort.MatchString(clean) {
		return fmt.Errorf("invalid serial port (must be /dev/tty*, /dev/serial/* or COMn)")
	}
	return nil
}

// parseICCID accepts the ICCID as sent by clients, a JSON number or a
// numeric string, and returns it as stored.
func parseICCID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("ICCID and PIN are required")
	}
	if !reICCID.MatchString(raw) {
		return 0, fmt.Errorf("invalid ICCID (digits only)")
	}
	iccid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || iccid <= 0 {
		return 0, fmt.Errorf("invalid ICCID")
	}
	return iccid, nil
}

// --- Body size limiter ---

// limitBody wraps the request body with http.MaxBytesReader to prevent oversized payloads.
// Default max is 1MB. Returns the modified request (use: r = limitBody(r, 1<<20)).
func limitBody(r *http.Request, maxBytes int64) *http.Request {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	return r
}
