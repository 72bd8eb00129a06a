package cast

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

// ServiceName is the mDNS service cast receivers announce.
const ServiceName = "_googlecast._tcp"

// ErrNoDevice is returned when discovery finds no matching receiver.
var ErrNoDevice = errors.New("no cast device found")

// DiscoveryOptions configures Discover.
type DiscoveryOptions struct {
	Address string        // Static host[:port]; skips mDNS when set
	Name    string        // Friendly name filter (case-insensitive), empty = first found
	Timeout time.Duration // mDNS listen time
}

// query is swapped in tests.
var query = mdns.Query

// Browse lists the cast receivers answering within timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	errCh := make(chan error, 1)

	go func() {
		params := &mdns.QueryParam{
			Service:             ServiceName,
			Domain:              "local",
			Timeout:             timeout,
			Entries:             entries,
			DisableIPv6:         true,
			WantUnicastResponse: true,
		}
		errCh <- query(params)
		close(entries)
	}()

	var devices []Device
	seen := make(map[string]bool)

	for entry := range entries {
		if ctx.Err() != nil {
			// Keep draining so the query goroutine can finish
			continue
		}
		d, ok := deviceFromEntry(entry)
		if !ok {
			continue
		}
		key := d.UUID
		if key == "" {
			key = d.Addr()
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		log.Debug().Str("device", d.String()).Msg("Cast device answered")
		devices = append(devices, d)
	}

	if err := <-errCh; err != nil {
		return devices, err
	}
	return devices, ctx.Err()
}

// Discover returns the receiver to track.
func Discover(ctx context.Context, opts DiscoveryOptions) (Device, error) {
	if opts.Address != "" {
		return ParseAddress(opts.Address, opts.Name)
	}

	devices, err := Browse(ctx, opts.Timeout)
	if err != nil && len(devices) == 0 {
		return Device{}, err
	}
	return selectDevice(devices, opts.Name)
}

func selectDevice(devices []Device, name string) (Device, error) {
	for _, d := range devices {
		if name == "" || strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	if name != "" {
		return Device{}, errors.Join(ErrNoDevice, errors.New("no device named "+name))
	}
	return Device{}, ErrNoDevice
}

func deviceFromEntry(entry *mdns.ServiceEntry) (Device, bool) {
	if entry == nil || entry.AddrV4 == nil {
		return Device{}, false
	}

	d := Device{
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
	if d.Port == 0 {
		d.Port = DefaultPort
	}
	parseTXT(&d, entry.InfoFields)
	if d.Name == "" {
		d.Name = strings.TrimSuffix(entry.Name, "."+ServiceName+".local.")
	}
	return d, true
}
