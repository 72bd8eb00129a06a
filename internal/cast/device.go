// Package cast finds a cast receiver on the local network and reports
// whether it is running anything other than its idle application.
package cast

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the cast receiver control port.
const DefaultPort = 8009

// Device is a cast receiver found on the network.
type Device struct {
	Name  string // Friendly name (TXT fn)
	Model string // TXT md
	UUID  string // TXT id
	Host  string
	Port  int
}

// Addr returns host:port.
func (d Device) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// String returns a human-readable description for logs.
func (d Device) String() string {
	if d.Model != "" {
		return fmt.Sprintf("%s (%s) at %s", d.Name, d.Model, d.Addr())
	}
	return fmt.Sprintf("%s at %s", d.Name, d.Addr())
}

// ParseAddress builds a Device from "host" or "host:port".
func ParseAddress(addr, name string) (Device, error) {
	host, port := addr, DefaultPort

	if h, p, err := net.SplitHostPort(addr); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return Device{}, fmt.Errorf("invalid port in cast address %q", addr)
		}
		host, port = h, n
	}
	if host == "" {
		return Device{}, fmt.Errorf("empty host in cast address %q", addr)
	}
	if name == "" {
		name = host
	}

	return Device{Name: name, Host: host, Port: port}, nil
}

// parseTXT maps cast TXT records (key=value) to device fields.
func parseTXT(d *Device, fields []string) {
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch key {
		case "fn":
			d.Name = value
		case "md":
			d.Model = value
		case "id":
			d.UUID = value
		}
	}
}
