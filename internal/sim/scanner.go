package sim

import (
	"context"
	"log"
	"time"

	"simscan/internal/at"
	"simscan/internal/storage"
)

type step struct {
	field   string
	command []byte
	slow    bool
}

// fullBatch is issued in order after a successful unlock.
var fullBatch = []step{
	{field: FieldSIMStatus, command: at.CmdPINStatus},
	{field: FieldIMSI, command: at.CmdIMSI},
	{field: FieldTextMode, command: at.CmdTextMode},
	{field: FieldSMS, command: at.CmdListSMS},
	{field: fieldUSSD, command: at.CmdUSSDBalance},
	{field: fieldPhonebook, command: at.CmdPhonebookMSISDN, slow: true},
	{field: FieldOperator, command: at.CmdOperator},
	{field: fieldReadICCID, command: at.CmdReadICCID},
}

var targetedBatch = []step{
	{field: FieldSMS, command: at.CmdListSMS},
}

// Scanner runs the command sequences against single ports.
type Scanner struct {
	tx       Transactor
	timeouts Timeouts
	now      func() time.Time
}

// NewScanner creates a scanner; zero timeouts fall back to the defaults.
func NewScanner(tx Transactor, timeouts Timeouts) *Scanner {
	return &Scanner{tx: tx, timeouts: timeouts.withDefaults(), now: time.Now}
}

// ScanPort collects telemetry from one port. A full scan unlocks the SIM
// first and reports false when the port is not usable; otherwise only the
// SMS listing is refreshed. Per-command faults never abort the batch: a
// silent command is stored as null, an undecodable reply as its hex dump.
func (s *Scanner) ScanPort(ctx context.Context, port string, creds storage.Credentials, full bool) (*Record, bool) {
	rec := &Record{
		Port:      port,
		Timestamp: s.now().Format(TimestampLayout),
		Responses: make(map[string]any),
	}
	log.Printf("scan: %s: checking SIM card", port)

	batch := targetedBatch
	if full {
		res := s.Unlock(ctx, port, creds)
		if !res.State.Usable() {
			log.Printf("scan: %s: skipping port, SIM %s", port, res.State)
			return nil, false
		}
		if count, ok := s.CountSMS(ctx, port); ok {
			rec.Responses[FieldSMSCount] = count
		}
		batch = fullBatch
	}

	for _, st := range batch {
		s.exec(ctx, port, st, rec.Responses)
	}
	for _, field := range intermediateFields {
		delete(rec.Responses, field)
	}
	return rec, true
}

func (s *Scanner) exec(ctx context.Context, port string, st step, out map[string]any) {
	timeout := s.timeouts.Query
	if st.slow {
		timeout = s.timeouts.Slow
	}

	raw := s.tx.Transact(ctx, port, st.command, timeout)
	if raw == nil {
		log.Printf("scan: %s: %s: no response", port, st.field)
		out[st.field] = nil
		return
	}

	text, ok := at.Normalize(raw)
	if !ok {
		log.Printf("scan: %s: %s: reply is not UTF-8, storing hex %s", port, st.field, text)
		out[st.field] = text
		return
	}

	if st.field == FieldSMS {
		entries, malformed := at.ParseSMSList(text)
		for _, m := range malformed {
			log.Printf("scan: %s: invalid SMS format: %q", port, m)
		}
		out[FieldSMS] = entries
		return
	}

	out[st.field] = at.FirstLine(text)

	switch st.field {
	case fieldReadICCID:
		if iccid, ok := at.ICCID(text); ok {
			out[FieldICCID] = iccid
		}
	case fieldUSSD:
		if number, ok := at.USSDText(text); ok && number != "" {
			out[FieldUSSDNumber] = number
		}
	case fieldPhonebook:
		if msisdn, ok := at.MSISDN(text); ok {
			out[FieldMSISDN] = msisdn
		}
	case FieldOperator:
		if name, ok := at.Operator(text); ok {
			out[FieldOperator] = name
		}
	}
}

// CountSMS reads the used and total message slots of SIM storage.
func (s *Scanner) CountSMS(ctx context.Context, port string) (at.SMSCount, bool) {
	raw := s.tx.Transact(ctx, port, at.CmdSMSStorage, s.timeouts.Slow)
	if raw == nil {
		log.Printf("scan: %s: no SMS storage response", port)
		return at.SMSCount{}, false
	}
	text, ok := at.Normalize(raw)
	if !ok {
		log.Printf("scan: %s: SMS storage reply is not UTF-8: %s", port, text)
		return at.SMSCount{}, false
	}
	count, ok := at.ParseSMSCount(text)
	if !ok {
		log.Printf("scan: %s: could not parse SMS count from %q", port, text)
	}
	return count, ok
}

// DeleteAllSMS removes every message from SIM storage. It reports whether
// the module acknowledged with OK.
func (s *Scanner) DeleteAllSMS(ctx context.Context, port string) bool {
	if at.IsOK(s.tx.Transact(ctx, port, at.CmdDeleteAllSMS, s.timeouts.Slow)) {
		log.Printf("scan: %s: all SMS deleted", port)
		return true
	}
	log.Printf("scan: %s: failed to delete SMS", port)
	return false
}
