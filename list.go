package gdserial

import (
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortType classifies how a serial port is attached to the system
type PortType int

const (
	PortTypeUnknown PortType = iota
	PortTypeUSB
	PortTypePCI
	PortTypeBluetooth
)

func (t PortType) String() string {
	switch t {
	case PortTypeUSB:
		return "USB"
	case PortTypePCI:
		return "PCI"
	case PortTypeBluetooth:
		return "Bluetooth"
	default:
		return "Unknown"
	}
}

// PortInfo describes one enumerated serial port
type PortInfo struct {
	Name   string
	Type   PortType
	Device string
}

// ListPorts returns the serial ports available on the system, sorted by
// port name
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{Name: d.Name}
		if d.IsUSB {
			info.Type = PortTypeUSB
			info.Device = usbDeviceName(d.VID, d.PID, d.Product)
		} else {
			info.Type = classifyPortName(d.Name)
			info.Device = deviceDescription(info.Type)
		}
		ports = append(ports, info)
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// usbDeviceName builds a display name from the USB descriptor strings,
// falling back to VID/PID identification when none are present
func usbDeviceName(vid, pid, product string) string {
	if name := strings.TrimSpace(product); name != "" {
		return name
	}
	return fmt.Sprintf("USB Serial (VID: %s, PID: %s)", strings.ToUpper(vid), strings.ToUpper(pid))
}

// classifyPortName guesses the attachment type of a non-USB port from its
// device name
func classifyPortName(name string) PortType {
	base := strings.ToLower(name)
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	switch {
	case strings.HasPrefix(base, "rfcomm"):
		return PortTypeBluetooth
	case strings.HasPrefix(base, "ttys"), strings.HasPrefix(base, "ttyama"),
		strings.HasPrefix(base, "ttymxc"), strings.HasPrefix(base, "ttyths"),
		strings.HasPrefix(base, "ttysac"), strings.HasPrefix(base, "ttyo"),
		strings.HasPrefix(base, "com"):
		return PortTypePCI
	default:
		return PortTypeUnknown
	}
}

func deviceDescription(t PortType) string {
	switch t {
	case PortTypePCI:
		return "PCI Serial Port"
	case PortTypeBluetooth:
		return "Bluetooth Serial Port"
	default:
		return "Unknown Serial Device"
	}
}
