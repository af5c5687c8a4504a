// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests entry conversion and browsing with a fake query
package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestNewManagerDefaults(t *testing.T) {
	mgr := NewManager(Config{})
	defer mgr.Stop()

	if mgr.config.Service != ServiceType {
		t.Errorf("expected service %s, got %s", ServiceType, mgr.config.Service)
	}
	if mgr.config.Domain != "local" {
		t.Errorf("expected domain local, got %s", mgr.config.Domain)
	}
	if mgr.config.Timeout != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, mgr.config.Timeout)
	}
}

func TestServerFromEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  string
	}{
		{
			name:  "default path",
			entry: &mdns.ServiceEntry{Name: "Living Room._sendspin-server._tcp.local.", AddrV4: net.IPv4(192, 168, 1, 5), Port: 8927},
			want:  "ws://192.168.1.5:8927/sendspin",
		},
		{
			name:  "txt path",
			entry: &mdns.ServiceEntry{Name: "x", AddrV4: net.IPv4(10, 0, 0, 1), Port: 80, InfoFields: []string{"version=1", "path=ws"}},
			want:  "ws://10.0.0.1:80/ws",
		},
		{
			name:  "ipv6 only",
			entry: &mdns.ServiceEntry{Name: "x", AddrV6: net.ParseIP("fe80::1"), Port: 8927},
			want:  "ws://[fe80::1]:8927/sendspin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serverFromEntry(tt.entry)
			if server == nil {
				t.Fatal("expected server")
			}
			if got := server.URL(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	if serverFromEntry(&mdns.ServiceEntry{Name: "no address"}) != nil {
		t.Error("expected entry without address to be skipped")
	}
}

func TestServerNameTrimsServiceSuffix(t *testing.T) {
	server := serverFromEntry(&mdns.ServiceEntry{Name: "Living Room._sendspin-server._tcp.local.", AddrV4: net.IPv4(1, 2, 3, 4)})
	if server.Name != "Living Room" {
		t.Errorf("expected Living Room, got %q", server.Name)
	}
}

func TestFindReturnsFirstServer(t *testing.T) {
	mgr := NewManager(Config{Timeout: time.Millisecond})
	defer mgr.Stop()

	mgr.query = func(p *mdns.QueryParam) error {
		if p.Service != ServiceType {
			t.Errorf("expected query for %s, got %s", ServiceType, p.Service)
		}
		p.Entries <- &mdns.ServiceEntry{Name: "srv", AddrV4: net.IPv4(127, 0, 0, 1), Port: 8927}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server, err := mgr.Find(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if server.URL() != "ws://127.0.0.1:8927/sendspin" {
		t.Errorf("unexpected URL %s", server.URL())
	}
}

func TestFindTimesOut(t *testing.T) {
	mgr := NewManager(Config{Timeout: time.Millisecond})
	defer mgr.Stop()
	mgr.query = func(p *mdns.QueryParam) error { return errors.New("no multicast") }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := mgr.Find(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
