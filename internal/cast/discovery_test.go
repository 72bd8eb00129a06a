package cast

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr     string
		name     string
		wantHost string
		wantPort int
		wantName string
		wantErr  bool
	}{
		{addr: "192.168.1.40", wantHost: "192.168.1.40", wantPort: 8009, wantName: "192.168.1.40"},
		{addr: "192.168.1.40:8010", name: "Den TV", wantHost: "192.168.1.40", wantPort: 8010, wantName: "Den TV"},
		{addr: "tv.local", wantHost: "tv.local", wantPort: 8009, wantName: "tv.local"},
		{addr: "192.168.1.40:http", wantErr: true},
		{addr: ":8009", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			d, err := ParseAddress(tt.addr, tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAddress(%q) expected error", tt.addr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) error = %v", tt.addr, err)
			}
			if d.Host != tt.wantHost || d.Port != tt.wantPort || d.Name != tt.wantName {
				t.Errorf("ParseAddress(%q) = %+v", tt.addr, d)
			}
		})
	}
}

func TestParseTXT(t *testing.T) {
	var d Device
	parseTXT(&d, []string{"id=abc123", "md=Chromecast Ultra", "fn=Living Room TV", "rs=", "junk"})

	if d.UUID != "abc123" || d.Model != "Chromecast Ultra" || d.Name != "Living Room TV" {
		t.Errorf("parseTXT() = %+v", d)
	}
}

func TestSelectDevice(t *testing.T) {
	devices := []Device{
		{Name: "Kitchen speaker", Host: "10.0.0.5", Port: 8009},
		{Name: "Living Room TV", Host: "10.0.0.6", Port: 8009},
	}

	d, err := selectDevice(devices, "")
	if err != nil || d.Name != "Kitchen speaker" {
		t.Errorf("selectDevice(any) = %+v, %v", d, err)
	}

	d, err = selectDevice(devices, "living room tv")
	if err != nil || d.Host != "10.0.0.6" {
		t.Errorf("selectDevice(name) = %+v, %v", d, err)
	}

	if _, err := selectDevice(devices, "Bedroom"); !errors.Is(err, ErrNoDevice) {
		t.Errorf("selectDevice(missing) error = %v, want ErrNoDevice", err)
	}
	if _, err := selectDevice(nil, ""); !errors.Is(err, ErrNoDevice) {
		t.Errorf("selectDevice(empty) error = %v, want ErrNoDevice", err)
	}
}

func withQuery(t *testing.T, fn func(*mdns.QueryParam) error) {
	t.Helper()
	orig := query
	query = fn
	t.Cleanup(func() { query = orig })
}

func TestBrowse(t *testing.T) {
	withQuery(t, func(p *mdns.QueryParam) error {
		if p.Service != ServiceName || p.Domain != "local" {
			t.Errorf("query params = %+v", p)
		}
		p.Entries <- &mdns.ServiceEntry{
			Name:       "Chromecast-abc._googlecast._tcp.local.",
			AddrV4:     net.ParseIP("10.0.0.6"),
			Port:       8009,
			InfoFields: []string{"id=abc", "fn=Living Room TV", "md=Chromecast"},
		}
		// Duplicate answer from the same device
		p.Entries <- &mdns.ServiceEntry{
			AddrV4:     net.ParseIP("10.0.0.6"),
			Port:       8009,
			InfoFields: []string{"id=abc", "fn=Living Room TV"},
		}
		// No IPv4 address
		p.Entries <- &mdns.ServiceEntry{Name: "v6only", InfoFields: []string{"id=def"}}
		p.Entries <- &mdns.ServiceEntry{
			Name:   "Speaker-xyz._googlecast._tcp.local.",
			AddrV4: net.ParseIP("10.0.0.7"),
		}
		return nil
	})

	devices, err := Browse(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Browse() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Browse() = %+v, want 2 devices", devices)
	}
	if devices[0].Name != "Living Room TV" || devices[0].Addr() != "10.0.0.6:8009" {
		t.Errorf("devices[0] = %+v", devices[0])
	}
	if devices[1].Name != "Speaker-xyz" || devices[1].Port != DefaultPort {
		t.Errorf("devices[1] = %+v", devices[1])
	}
}

func TestDiscover_NoDevice(t *testing.T) {
	withQuery(t, func(p *mdns.QueryParam) error { return nil })

	_, err := Discover(context.Background(), DiscoveryOptions{Timeout: time.Millisecond})
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("Discover() error = %v, want ErrNoDevice", err)
	}
}

func TestDiscover_StaticAddressSkipsMDNS(t *testing.T) {
	withQuery(t, func(p *mdns.QueryParam) error {
		t.Error("mDNS must not be queried when an address is configured")
		return nil
	})

	d, err := Discover(context.Background(), DiscoveryOptions{Address: "10.0.0.9", Name: "Den TV"})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if d.Addr() != "10.0.0.9:8009" || d.Name != "Den TV" {
		t.Errorf("Discover() = %+v", d)
	}
}

func TestDiscover_QueryError(t *testing.T) {
	withQuery(t, func(p *mdns.QueryParam) error { return errors.New("no multicast interface") })

	if _, err := Discover(context.Background(), DiscoveryOptions{}); err == nil {
		t.Error("Discover() should fail when the query fails")
	}
}
