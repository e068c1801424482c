package sim

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"simscan/internal/at"
	"simscan/internal/devices"
	"simscan/internal/storage"
)

// CredentialStore supplies the ICCID to PIN map for a scan.
type CredentialStore interface {
	AllCredentials(ctx context.Context) (storage.Credentials, error)
}

// PortLister enumerates attached serial ports.
type PortLister interface {
	ListPorts() ([]devices.PortInfo, error)
}

// Orchestrator fans a scan out over ports and gathers the records.
type Orchestrator struct {
	scanner *Scanner
	store   CredentialStore
	ports   PortLister
}

// NewOrchestrator wires a scanner to its credential source and port lister.
func NewOrchestrator(scanner *Scanner, store CredentialStore, ports PortLister) *Orchestrator {
	return &Orchestrator{scanner: scanner, store: store, ports: ports}
}

// Run scans target, or every discovered port when target is empty. An empty
// target means a full scan with unlock; a named port gets the SMS-only
// refresh. Port discovery and credential loading must succeed before any
// port is touched. Each port runs in its own goroutine and a port that
// fails only drops out of the snapshot. With deleteSMS, every target port
// has its SMS storage cleared once all telemetry is in, whatever its
// outcome.
func (o *Orchestrator) Run(ctx context.Context, target string, deleteSMS bool) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.NewString(),
		Mode:      ModeTargeted,
		StartedAt: time.Now(),
	}

	var targets []string
	if target == "" {
		snap.Mode = ModeFull
		ports, err := o.ports.ListPorts()
		if err != nil {
			return nil, fmt.Errorf("discover ports: %w", err)
		}
		targets = uniquePorts(devices.Names(ports))
	} else {
		targets = []string{target}
	}

	creds, err := o.store.AllCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	log.Printf("scan: %s: starting %s scan of %d port(s)", snap.ID, snap.Mode, len(targets))

	full := snap.Mode == ModeFull
	records := make([]Record, 0, len(targets))
	var mu sync.Mutex
	var g errgroup.Group
	for _, port := range targets {
		port := port
		g.Go(func() error {
			rec, ok := o.scanner.ScanPort(ctx, port, creds, full)
			if !ok {
				return nil
			}
			mu.Lock()
			records = append(records, *rec)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan %s interrupted: %w", snap.ID, err)
	}

	if deleteSMS {
		for _, port := range targets {
			o.scanner.DeleteAllSMS(ctx, port)
		}
	}

	snap.Records = records
	snap.FinishedAt = time.Now()
	log.Printf("scan: %s: finished, %d of %d port(s) usable in %s",
		snap.ID, len(records), len(targets), snap.FinishedAt.Sub(snap.StartedAt).Round(time.Millisecond))
	return snap, nil
}

// RunFullScan discovers every port and scans it with unlock.
func (o *Orchestrator) RunFullScan(ctx context.Context) (*Snapshot, error) {
	return o.Run(ctx, "", false)
}

// RunTargetedScan refreshes the SMS listing of one port. It returns a nil
// record when the port produced nothing.
func (o *Orchestrator) RunTargetedScan(ctx context.Context, port string) (*Record, error) {
	snap, err := o.Run(ctx, port, false)
	if err != nil {
		return nil, err
	}
	if len(snap.Records) == 0 {
		return nil, nil
	}
	return &snap.Records[0], nil
}

// DeleteAllSMS clears SIM message storage on port.
func (o *Orchestrator) DeleteAllSMS(ctx context.Context, port string) bool {
	return o.scanner.DeleteAllSMS(ctx, port)
}

// CountSMS reports SIM message storage usage on port.
func (o *Orchestrator) CountSMS(ctx context.Context, port string) (at.SMSCount, bool) {
	return o.scanner.CountSMS(ctx, port)
}

func uniquePorts(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
