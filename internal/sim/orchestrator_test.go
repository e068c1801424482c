package sim

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"simscan/internal/storage"
)

const replyOtherICCID = "\r\n+CRSM: 144,0,\"98106230112233445521\"\r\n\r\nOK\r\n"

func rackOfFive() map[string]*fakeModem {
	stranger := lockedModem(replyOK)
	stranger.replies["AT+CRSM=176,12258,0,0,10\r"] = replyOtherICCID
	return map[string]*fakeModem{
		"/dev/ttyUSB0": readyModem(),
		"/dev/ttyUSB1": lockedModem(replyError),
		"/dev/ttyUSB2": stranger,
		"/dev/ttyUSB3": nil,
		"/dev/ttyUSB4": {replies: map[string]string{cmdPINStatus: "\r\n+CME ERROR: 10\r\n"}},
	}
}

func recordPorts(snap *Snapshot) []string {
	ports := make([]string, 0, len(snap.Records))
	for _, r := range snap.Records {
		ports = append(ports, r.Port)
	}
	sort.Strings(ports)
	return ports
}

func TestRunFullScanKeepsOnlyUsablePorts(t *testing.T) {
	tx := newFakeTransport(rackOfFive())
	store := &stubStore{creds: storage.Credentials{knownICCID: "1234"}}
	o := NewOrchestrator(fixedScanner(tx), store,
		portList("/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2", "/dev/ttyUSB3", "/dev/ttyUSB4"))

	snap, err := o.RunFullScan(context.Background())
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}

	got := recordPorts(snap)
	if len(got) != 2 || got[0] != "/dev/ttyUSB0" || got[1] != "/dev/ttyUSB1" {
		t.Fatalf("got records for %v want ttyUSB0 and ttyUSB1", got)
	}
	if snap.Mode != ModeFull || snap.ID == "" {
		t.Fatalf("unexpected snapshot header %+v", snap)
	}
	if snap.FinishedAt.Before(snap.StartedAt) {
		t.Fatalf("finished before it started")
	}
	if store.calls != 1 {
		t.Fatalf("credentials loaded %d times want 1", store.calls)
	}
	if tx.sent("/dev/ttyUSB0", "AT+CMGD=1,4\r") {
		t.Fatalf("SMS deleted without being asked")
	}
}

func TestRunSlowPortDoesNotDelayOthers(t *testing.T) {
	slow := readyModem()
	slow.delay = 20 * time.Millisecond
	tx := newFakeTransport(map[string]*fakeModem{
		"/dev/ttyUSB0": slow,
		"/dev/ttyUSB1": readyModem(),
		"/dev/ttyUSB2": readyModem(),
	})
	o := NewOrchestrator(fixedScanner(tx), &stubStore{}, portList("/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"))

	snap, err := o.RunFullScan(context.Background())
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}
	if len(snap.Records) != 3 {
		t.Fatalf("got %d records want 3", len(snap.Records))
	}
	if last := snap.Records[2].Port; last != "/dev/ttyUSB0" {
		t.Fatalf("slow port finished before fast ones, last record is %s", last)
	}
}

func TestRunSilentPortDoesNotDelayOthers(t *testing.T) {
	const budget = 400 * time.Millisecond
	tx := newFakeTransport(map[string]*fakeModem{
		"/dev/ttyUSB0": {silent: true},
		"/dev/ttyUSB1": readyModem(),
		"/dev/ttyUSB2": readyModem(),
		"/dev/ttyUSB3": readyModem(),
	})
	scanner := NewScanner(tx, Timeouts{Query: 10 * time.Millisecond, Slow: budget})
	o := NewOrchestrator(scanner, &stubStore{},
		portList("/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2", "/dev/ttyUSB3"))

	start := time.Now()
	snap, err := o.RunFullScan(context.Background())
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}
	total := time.Since(start)

	got := recordPorts(snap)
	if !reflect.DeepEqual(got, []string{"/dev/ttyUSB1", "/dev/ttyUSB2", "/dev/ttyUSB3"}) {
		t.Fatalf("got records for %v want the three answering ports", got)
	}

	for _, port := range got {
		elapsed := tx.lastExchange(port).Sub(start)
		if elapsed >= budget/2 {
			t.Fatalf("%s finished after %s, held up by the silent port", port, elapsed)
		}
	}
	if silent := tx.lastExchange("/dev/ttyUSB0").Sub(start); silent < budget {
		t.Fatalf("silent port gave up after %s, before its %s timeout", silent, budget)
	}
	// The silent port only gets its status query, so the scan is bounded by
	// that one timeout.
	if total > 3*budget {
		t.Fatalf("scan took %s, more than the silent port's own budget", total)
	}
}

func TestRunDuplicatePortsScannedOnce(t *testing.T) {
	tx := newFakeTransport(map[string]*fakeModem{"/dev/ttyUSB0": readyModem()})
	o := NewOrchestrator(fixedScanner(tx), &stubStore{}, portList("/dev/ttyUSB0", "/dev/ttyUSB0"))

	snap, err := o.RunFullScan(context.Background())
	if err != nil {
		t.Fatalf("RunFullScan: %v", err)
	}
	if len(snap.Records) != 1 {
		t.Fatalf("got %d records want 1", len(snap.Records))
	}
}

func TestRunHardFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		lister stubLister
		store  *stubStore
		target string
	}{
		{"discovery fails", stubLister{err: boom}, &stubStore{}, ""},
		{"store fails on full scan", portList("/dev/ttyUSB0"), &stubStore{err: boom}, ""},
		{"store fails on targeted scan", portList(), &stubStore{err: boom}, "/dev/ttyUSB0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newFakeTransport(map[string]*fakeModem{"/dev/ttyUSB0": readyModem()})
			o := NewOrchestrator(fixedScanner(tx), tt.store, tt.lister)

			snap, err := o.Run(context.Background(), tt.target, true)
			if !errors.Is(err, boom) {
				t.Fatalf("got err %v want wrapped boom", err)
			}
			if snap != nil {
				t.Fatalf("expected no snapshot")
			}
			if n := tx.total(); n != 0 {
				t.Fatalf("%d exchanges ran before prerequisites were met", n)
			}
		})
	}
}

func TestRunDeleteSMSAfterTelemetryOnEveryPort(t *testing.T) {
	tx := newFakeTransport(rackOfFive())
	o := NewOrchestrator(fixedScanner(tx), &stubStore{creds: storage.Credentials{}},
		portList("/dev/ttyUSB0", "/dev/ttyUSB2", "/dev/ttyUSB3"))

	if _, err := o.Run(context.Background(), "", true); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, port := range []string{"/dev/ttyUSB0", "/dev/ttyUSB2", "/dev/ttyUSB3"} {
		calls := tx.callsTo(port)
		if len(calls) == 0 || calls[len(calls)-1].command != "AT+CMGD=1,4\r" {
			t.Fatalf("%s: delete was not the last exchange: %+v", port, calls)
		}
	}
}

func TestRunTargetedScan(t *testing.T) {
	tx := newFakeTransport(map[string]*fakeModem{"/dev/ttyUSB1": lockedModem(replyOK)})
	store := &stubStore{creds: storage.Credentials{}}
	o := NewOrchestrator(fixedScanner(tx), store, stubLister{err: errors.New("not used")})

	first, err := o.RunTargetedScan(context.Background(), "/dev/ttyUSB1")
	if err != nil {
		t.Fatalf("RunTargetedScan: %v", err)
	}
	second, err := o.RunTargetedScan(context.Background(), "/dev/ttyUSB1")
	if err != nil {
		t.Fatalf("RunTargetedScan: %v", err)
	}
	if first == nil || second == nil {
		t.Fatalf("expected records")
	}
	if first.Port != "/dev/ttyUSB1" {
		t.Fatalf("got port %q", first.Port)
	}
	a, b := first.Responses[FieldSMS], second.Responses[FieldSMS]
	if a == nil || !reflect.DeepEqual(a, b) {
		t.Fatalf("SMS listings differ: %v vs %v", a, b)
	}
	if store.calls != 2 {
		t.Fatalf("credentials loaded %d times want 2", store.calls)
	}
}

func TestRunCancelled(t *testing.T) {
	tx := newFakeTransport(map[string]*fakeModem{"/dev/ttyUSB0": readyModem()})
	o := NewOrchestrator(fixedScanner(tx), &stubStore{}, portList("/dev/ttyUSB0"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.RunFullScan(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got err %v want context.Canceled", err)
	}
}
