package sim

import (
	"context"
	"reflect"
	"testing"

	"simscan/internal/at"
	"simscan/internal/storage"
)

func TestScanPortFullRecord(t *testing.T) {
	tx := newFakeTransport(map[string]*fakeModem{"/dev/ttyUSB0": readyModem()})
	s := fixedScanner(tx)

	rec, ok := s.ScanPort(context.Background(), "/dev/ttyUSB0", storage.Credentials{}, true)
	if !ok {
		t.Fatalf("expected a record")
	}

	want := map[string]any{
		FieldSMSCount:  at.SMSCount{Used: 1, Total: 50},
		FieldSIMStatus: "+CPIN: READY",
		FieldIMSI:      "250011234567890",
		FieldTextMode:  "OK",
		FieldSMS: []at.SMSEntry{
			{Sender: "+79990001122", Timestamp: "24/01/02", Message: "Hi"},
		},
		FieldUSSDNumber: "79991234567",
		FieldMSISDN:     "79991234567",
		FieldOperator:   "MTS RUS",
		FieldICCID:      knownICCID,
	}
	if !reflect.DeepEqual(rec.Responses, want) {
		t.Fatalf("got responses %#v\nwant %#v", rec.Responses, want)
	}
	if rec.Port != "/dev/ttyUSB0" {
		t.Fatalf("got port %q", rec.Port)
	}
	if rec.Timestamp != "2024-01-02T10:00:00.000000" {
		t.Fatalf("got timestamp %q", rec.Timestamp)
	}
}

func TestScanPortCommandOrderAndTimeouts(t *testing.T) {
	tx := newFakeTransport(map[string]*fakeModem{"/dev/ttyUSB0": readyModem()})
	fixedScanner(tx).ScanPort(context.Background(), "/dev/ttyUSB0", storage.Credentials{}, true)

	want := []string{
		"AT+CPIN?\r",
		"AT+CPMS=\"SM\"\r",
		"AT+CPIN?\r",
		"AT+CIMI\r",
		"AT+CMGF=1\r",
		"AT+CMGL=\"ALL\"\r",
		"AT+CUSD=1,\"*99#\"\r",
		"AT+CPBS=\"ON\"\r",
		"AT+COPS?\r",
		"AT+CRSM=176,12258,0,0,10\r",
	}
	calls := tx.callsTo("/dev/ttyUSB0")
	if len(calls) != len(want) {
		t.Fatalf("got %d commands want %d", len(calls), len(want))
	}
	timeouts := DefaultTimeouts()
	for i, c := range calls {
		if c.command != want[i] {
			t.Fatalf("command %d: got %q want %q", i, c.command, want[i])
		}
		wantTimeout := timeouts.Query
		if i < 2 || c.command == "AT+CPBS=\"ON\"\r" {
			wantTimeout = timeouts.Slow
		}
		if c.timeout != wantTimeout {
			t.Fatalf("%q: got timeout %s want %s", c.command, c.timeout, wantTimeout)
		}
	}
}

func TestScanPortDegradedReplies(t *testing.T) {
	m := readyModem()
	delete(m.replies, "AT+COPS?\r")
	delete(m.replies, "AT+CUSD=1,\"*99#\"\r")
	m.replies["AT+CIMI\r"] = "\xff\xfe250"
	m.replies["AT+CPMS=\"SM\"\r"] = "\r\n+CMS ERROR: 302\r\n"
	m.replies["AT+CRSM=176,12258,0,0,10\r"] = "\r\n+CRSM: 106,130\r\n"
	tx := newFakeTransport(map[string]*fakeModem{"/dev/ttyUSB0": m})

	rec, ok := fixedScanner(tx).ScanPort(context.Background(), "/dev/ttyUSB0", storage.Credentials{}, true)
	if !ok {
		t.Fatalf("expected a record")
	}

	if v, ok := rec.Responses[FieldOperator]; !ok || v != nil {
		t.Fatalf("silent command must be present as null, got %v,%v", v, ok)
	}
	if got := rec.Responses[FieldIMSI]; got != "fffe323530" {
		t.Fatalf("got IMSI %v want hex dump", got)
	}
	for _, field := range []string{FieldSMSCount, FieldICCID, FieldUSSDNumber, fieldUSSD, fieldPhonebook, fieldReadICCID} {
		if _, ok := rec.Responses[field]; ok {
			t.Fatalf("field %q should be absent", field)
		}
	}
}

func TestScanPortSkipsUnusableSIM(t *testing.T) {
	tx := newFakeTransport(map[string]*fakeModem{"/dev/ttyUSB1": lockedModem(replyOK)})

	rec, ok := fixedScanner(tx).ScanPort(context.Background(), "/dev/ttyUSB1", storage.Credentials{}, true)

	if ok || rec != nil {
		t.Fatalf("expected no record, got %+v", rec)
	}
	if tx.sent("/dev/ttyUSB1", "AT+CIMI\r") {
		t.Fatalf("telemetry sent to a locked SIM")
	}
}

func TestScanPortTargetedIsIdempotent(t *testing.T) {
	// Locked with no credential: the SMS refresh must not try to unlock.
	tx := newFakeTransport(map[string]*fakeModem{"/dev/ttyUSB1": lockedModem(replyOK)})
	s := fixedScanner(tx)

	first, ok := s.ScanPort(context.Background(), "/dev/ttyUSB1", storage.Credentials{}, false)
	if !ok {
		t.Fatalf("expected a record")
	}
	second, _ := s.ScanPort(context.Background(), "/dev/ttyUSB1", storage.Credentials{}, false)

	if !reflect.DeepEqual(first.Responses, second.Responses) {
		t.Fatalf("responses differ: %#v vs %#v", first.Responses, second.Responses)
	}
	if len(first.Responses) != 1 {
		t.Fatalf("targeted scan returned %d fields want 1", len(first.Responses))
	}
	for _, c := range tx.callsTo("/dev/ttyUSB1") {
		if c.command != "AT+CMGL=\"ALL\"\r" {
			t.Fatalf("unexpected command %q in targeted scan", c.command)
		}
	}
}

func TestCountSMS(t *testing.T) {
	silent := readyModem()
	delete(silent.replies, "AT+CPMS=\"SM\"\r")
	tx := newFakeTransport(map[string]*fakeModem{
		"/dev/ttyUSB0": readyModem(),
		"/dev/ttyUSB1": silent,
	})
	s := fixedScanner(tx)

	if got, ok := s.CountSMS(context.Background(), "/dev/ttyUSB0"); !ok || got != (at.SMSCount{Used: 1, Total: 50}) {
		t.Fatalf("got %+v,%v", got, ok)
	}
	if _, ok := s.CountSMS(context.Background(), "/dev/ttyUSB1"); ok {
		t.Fatalf("expected the none sentinel for a silent port")
	}
}

func TestDeleteAllSMS(t *testing.T) {
	refusing := readyModem()
	refusing.replies["AT+CMGD=1,4\r"] = replyError
	tx := newFakeTransport(map[string]*fakeModem{
		"/dev/ttyUSB0": readyModem(),
		"/dev/ttyUSB1": refusing,
	})
	s := fixedScanner(tx)

	if !s.DeleteAllSMS(context.Background(), "/dev/ttyUSB0") {
		t.Fatalf("expected delete to succeed")
	}
	if s.DeleteAllSMS(context.Background(), "/dev/ttyUSB1") {
		t.Fatalf("expected delete to fail on ERROR")
	}
	if s.DeleteAllSMS(context.Background(), "/dev/ttyUSB9") {
		t.Fatalf("expected delete to fail on a missing port")
	}
}
