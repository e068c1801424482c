package sim

import (
	"context"
	"log"

	"simscan/internal/at"
	"simscan/internal/storage"
)

// UnlockState is where a port ended up in the unlock sequence.
type UnlockState int

const (
	StateUnknown UnlockState = iota
	StateReady
	StateLocked
	StateUnrecognized
	StateUnlocked
	StateUnlockFailed
)

func (s UnlockState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateLocked:
		return "locked"
	case StateUnrecognized:
		return "unrecognized"
	case StateUnlocked:
		return "unlocked"
	case StateUnlockFailed:
		return "unlock_failed"
	default:
		return "unknown"
	}
}

// Usable reports whether telemetry commands may run on the port.
func (s UnlockState) Usable() bool {
	return s == StateReady || s == StateUnlocked
}

// UnlockResult is the outcome of Unlock. ICCID is zero when it was never
// read or could not be decoded.
type UnlockResult struct {
	State        UnlockState
	ICCID        int64
	LockDisabled bool
}

// Unlock queries the PIN status of the SIM on port and, when the card asks
// for its PIN, reads the ICCID, looks it up in creds and submits the PIN.
// After a successful unlock the PIN lock is switched off so the card boots
// unlocked next time; that step may fail without affecting the result.
// Nothing is retried.
func (s *Scanner) Unlock(ctx context.Context, port string, creds storage.Credentials) UnlockResult {
	resp := s.tx.Transact(ctx, port, at.CmdPINStatus, s.timeouts.Slow)
	if resp == nil {
		log.Printf("scan: %s: no SIM status response", port)
		return UnlockResult{State: StateUnrecognized}
	}

	status := at.Lenient(resp)
	switch at.PINStatus(status) {
	case at.PINReady:
		return UnlockResult{State: StateReady}
	case at.PINUnrecognized:
		log.Printf("scan: %s: unexpected SIM status %q", port, status)
		return UnlockResult{State: StateUnrecognized}
	}

	log.Printf("scan: %s: SIM is PIN locked", port)
	return s.unlockLocked(ctx, port, creds)
}

func (s *Scanner) unlockLocked(ctx context.Context, port string, creds storage.Credentials) UnlockResult {
	res := UnlockResult{State: StateUnlockFailed}

	resp := s.tx.Transact(ctx, port, at.CmdReadICCID, s.timeouts.Slow)
	if resp == nil {
		log.Printf("scan: %s: failed to read ICCID", port)
		return res
	}
	iccid, ok := at.ICCID(at.Lenient(resp))
	if !ok {
		log.Printf("scan: %s: could not decode ICCID from %q", port, at.Lenient(resp))
		return res
	}
	res.ICCID = iccid

	pin, ok := creds[iccid]
	if !ok {
		log.Printf("scan: %s: no credential for ICCID %d", port, iccid)
		return res
	}
	if !storage.ValidPIN(pin) {
		log.Printf("scan: %s: stored PIN for ICCID %d is malformed", port, iccid)
		return res
	}

	if !at.IsOK(s.tx.Transact(ctx, port, at.EnterPIN(pin), s.timeouts.Slow)) {
		log.Printf("scan: %s: PIN rejected for ICCID %d", port, iccid)
		return res
	}
	res.State = StateUnlocked
	log.Printf("scan: %s: SIM unlocked", port)

	if at.IsOK(s.tx.Transact(ctx, port, at.DisablePINLock(pin), s.timeouts.Slow)) {
		res.LockDisabled = true
		log.Printf("scan: %s: PIN lock disabled", port)
	} else {
		log.Printf("scan: %s: failed to disable PIN lock", port)
	}
	return res
}
