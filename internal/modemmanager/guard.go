// Package modemmanager keeps ModemManager away from the modems simscan
// talks to. ModemManager probes every ttyUSB it sees and its AT traffic
// interleaves with ours, so scans warn about ports it holds and can stop
// the service first.
package modemmanager

import (
	"context"
	"fmt"
	"log"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Unit is the systemd unit ModemManager runs as.
const Unit = "ModemManager.service"

// Status describes the ModemManager unit and the ports it has claimed.
type Status struct {
	Unit         string   `json:"unit" example:"ModemManager.service"`
	LoadState    string   `json:"load_state" example:"loaded"`
	ActiveState  string   `json:"active_state" example:"active"`
	SubState     string   `json:"sub_state" example:"running"`
	Active       bool     `json:"active"`
	ClaimedPorts []string `json:"claimed_ports"`
}

// Guard inspects and stops ModemManager over the system bus.
type Guard struct{}

// NewGuard creates a guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Status reads the unit state from systemd. Claimed ports are filled in
// only while the unit is active.
func (g *Guard) Status(ctx context.Context) (*Status, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	props, err := conn.GetUnitPropertiesContext(ctx, Unit)
	if err != nil {
		return nil, fmt.Errorf("get %s properties: %w", Unit, err)
	}
	status := statusFromProps(props)

	if status.Active {
		ports, err := g.ClaimedPorts(ctx)
		if err != nil {
			log.Printf("modemmanager: listing claimed ports: %v", err)
		}
		status.ClaimedPorts = ports
	}
	if status.ClaimedPorts == nil {
		status.ClaimedPorts = []string{}
	}
	return status, nil
}

// Stop stops the unit and waits for systemd to finish the job.
func (g *Guard) Stop(ctx context.Context) error {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	resultChan := make(chan string, 1)
	if _, err := conn.StopUnitContext(ctx, Unit, "replace", resultChan); err != nil {
		return fmt.Errorf("stop %s: %w", Unit, err)
	}

	select {
	case result := <-resultChan:
		if result != "done" {
			return fmt.Errorf("stop %s: job %s", Unit, result)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Printf("modemmanager: %s stopped", Unit)
	return nil
}

func statusFromProps(props map[string]interface{}) *Status {
	status := &Status{Unit: Unit}
	if v, ok := props["LoadState"].(string); ok {
		status.LoadState = v
	}
	if v, ok := props["ActiveState"].(string); ok {
		status.ActiveState = v
		status.Active = v == "active" || v == "activating" || v == "reloading"
	}
	if v, ok := props["SubState"].(string); ok {
		status.SubState = v
	}
	return status
}
