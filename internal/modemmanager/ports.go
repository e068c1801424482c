package modemmanager

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/godbus/dbus/v5"
)

const (
	mmBus             = "org.freedesktop.ModemManager1"
	mmPath            = "/org/freedesktop/ModemManager1"
	mmModem           = "org.freedesktop.ModemManager1.Modem"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"
	errServiceUnknown = "org.freedesktop.DBus.Error.ServiceUnknown"
)

// MMModemPortType values for ports backed by a tty.
const (
	portUnknown = 1
	portAT      = 3
	portQCDM    = 4
	portGPS     = 5
)

// ClaimedPorts lists the serial devices ModemManager has bound to a modem,
// as /dev paths. It returns nothing when ModemManager is not on the bus.
func (g *Guard) ClaimedPorts(ctx context.Context) ([]string, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := conn.Object(mmBus, mmPath).CallWithContext(ctx, dbusObjectManager+".GetManagedObjects", 0)
	if call.Err != nil {
		var dbusErr dbus.Error
		if errors.As(call.Err, &dbusErr) && dbusErr.Name == errServiceUnknown {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list modems: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("decode modem objects: %w", err)
	}
	return portsFromObjects(objects), nil
}

// portsFromObjects pulls tty ports out of the Ports property, an a(su) of
// (name, MMModemPortType), of every modem object.
func portsFromObjects(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []string {
	seen := make(map[string]bool)
	ports := []string{}
	for _, ifaces := range objects {
		modem, ok := ifaces[mmModem]
		if !ok {
			continue
		}
		v, ok := modem["Ports"]
		if !ok {
			continue
		}
		entries, ok := v.Value().([][]interface{})
		if !ok {
			continue
		}
		for _, e := range entries {
			if len(e) != 2 {
				continue
			}
			name, ok := e[0].(string)
			if !ok || name == "" {
				continue
			}
			kind, ok := e[1].(uint32)
			if !ok {
				continue
			}
			switch kind {
			case portUnknown, portAT, portQCDM, portGPS:
			default:
				continue
			}
			dev := "/dev/" + name
			if !seen[dev] {
				seen[dev] = true
				ports = append(ports, dev)
			}
		}
	}
	sort.Strings(ports)
	return ports
}
