// Package sim drives SIM cards through their modems: it unlocks PIN locked
// cards, runs the telemetry command batch on each port and assembles the
// results of many ports into one snapshot.
package sim

import (
	"context"
	"time"
)

// Field names of a Record's responses. They are written to sim_data.json
// and read back by other tools, so they must not change.
const (
	FieldSMSCount   = "SMS Count"
	FieldSIMStatus  = "Check SIM status"
	FieldIMSI       = "Get IMSI"
	FieldTextMode   = "Set SMS text mode"
	FieldSMS        = "Get SMS"
	FieldOperator   = "Get Operator"
	FieldICCID      = "ICCID"
	FieldUSSDNumber = "Phone Number (USSD)"
	FieldMSISDN     = "MSISDN"

	fieldUSSD      = "Send USSD"
	fieldPhonebook = "Set Phonebook Storage to MSISDN"
	fieldReadICCID = "Get ICCID"
)

// TimestampLayout is the local time format of Record.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000000"

const (
	defaultQueryWait = 80 * time.Millisecond
	defaultSlowWait  = 1700 * time.Millisecond
)

// intermediateFields only feed other fields and are dropped from records.
var intermediateFields = []string{fieldUSSD, fieldPhonebook, fieldReadICCID}

// Mode tells a full scan from a single port refresh.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeTargeted Mode = "targeted"
)

// Record is the telemetry collected from one port.
type Record struct {
	Port      string         `json:"port"`
	Timestamp string         `json:"timestamp"`
	Responses map[string]any `json:"responses"`
}

// Snapshot is the outcome of one orchestrator run. Records are in
// completion order with at most one per port.
type Snapshot struct {
	ID         string    `json:"id"`
	Mode       Mode      `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Records    []Record  `json:"records"`
}

// Transactor runs one AT exchange. A nil reply means the port stayed silent
// or could not be used.
type Transactor interface {
	Transact(ctx context.Context, port string, command []byte, timeout time.Duration) []byte
}

// Timeouts are the idle read timeouts used per exchange.
type Timeouts struct {
	// Query is used for ordinary telemetry commands.
	Query time.Duration
	// Slow is used for the phonebook switch and for unlock, ICCID, lock,
	// count and delete exchanges.
	Slow time.Duration
}

// DefaultTimeouts returns the timings the modules on the rack are tuned for.
func DefaultTimeouts() Timeouts {
	return Timeouts{Query: defaultQueryWait, Slow: defaultSlowWait}
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Query <= 0 {
		t.Query = defaultQueryWait
	}
	if t.Slow <= 0 {
		t.Slow = defaultSlowWait
	}
	return t
}
