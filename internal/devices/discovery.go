package devices

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes one attached serial device.
type PortInfo struct {
	Name         string `json:"name" example:"/dev/ttyUSB0"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty" example:"1a86"`
	PID          string `json:"pid,omitempty" example:"7523"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Discoverer lists attached serial ports. It is re-evaluated on every call,
// so modules plugged in between scans are picked up.
type Discoverer struct {
	// Glob optionally restricts the result, e.g. "/dev/ttyUSB*".
	Glob string
}

// ListPorts returns attached ports ordered by name.
func (d Discoverer) ListPorts() ([]PortInfo, error) {
	ports, err := enumerate()
	if err != nil {
		return nil, err
	}
	return filterPorts(ports, d.Glob)
}

func enumerate() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]PortInfo, 0, len(details))
		for _, p := range details {
			ports = append(ports, PortInfo{
				Name:         p.Name,
				IsUSB:        p.IsUSB,
				VID:          p.VID,
				PID:          p.PID,
				SerialNumber: p.SerialNumber,
				Product:      p.Product,
			})
		}
		return ports, nil
	}

	// Fall back to the plain listing when USB details are unavailable.
	log.Printf("discovery: detailed listing failed, using plain list: %v", err)
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(names))
	for _, name := range names {
		ports = append(ports, PortInfo{Name: name})
	}
	return ports, nil
}

// filterPorts applies the glob, drops duplicates and sorts by name.
func filterPorts(ports []PortInfo, glob string) ([]PortInfo, error) {
	seen := make(map[string]bool, len(ports))
	out := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		if p.Name == "" || seen[p.Name] {
			continue
		}
		if glob != "" {
			ok, err := filepath.Match(glob, p.Name)
			if err != nil {
				return nil, fmt.Errorf("invalid port glob %q: %w", glob, err)
			}
			if !ok {
				continue
			}
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Names extracts the device names from a port listing.
func Names(ports []PortInfo) []string {
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
	}
	return names
}
