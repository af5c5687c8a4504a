// ABOUTME: mDNS discovery of Sendspin servers
// ABOUTME: Browses _sendspin-server._tcp and reports each server's WebSocket URL
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	ServiceType    = "_sendspin-server._tcp"
	DefaultPath    = "/sendspin"
	DefaultTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	Service string        // defaults to ServiceType
	Domain  string        // defaults to "local"
	Timeout time.Duration // per query round
}

// Manager browses for servers
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
	query   func(*mdns.QueryParam) error
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the server's WebSocket endpoint.
func (s *ServerInfo) URL() string {
	return "ws://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) + s.Path
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Service == "" {
		config.Service = ServiceType
	}
	if config.Domain == "" {
		config.Domain = "local"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
		query:   mdns.Query,
	}
}

// Browse searches for servers until Stop is called
func (m *Manager) Browse() {
	go m.browseLoop()
}

// browseLoop continuously browses for servers
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				server := serverFromEntry(entry)
				if server == nil {
					continue
				}

				log.Printf("Discovered server: %s at %s", server.Name, server.URL())

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: m.config.Service,
			Domain:  m.config.Domain,
			Timeout: m.config.Timeout,
			Entries: entries,
		}

		if err := m.query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
			select {
			case <-m.ctx.Done():
			case <-time.After(m.config.Timeout):
			}
		}
		close(entries)
		<-done
	}
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Find browses until the first server answers, ctx ends or Stop is called.
func (m *Manager) Find(ctx context.Context) (*ServerInfo, error) {
	m.Browse()
	select {
	case server := <-m.servers:
		return server, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no %s found: %w", m.config.Service, ctx.Err())
	case <-m.ctx.Done():
		return nil, fmt.Errorf("discovery stopped")
	}
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// serverFromEntry converts an mDNS answer, preferring IPv4. The path comes
// from the path TXT record.
func serverFromEntry(entry *mdns.ServiceEntry) *ServerInfo {
	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return nil
	}

	path := DefaultPath
	for _, field := range entry.InfoFields {
		if k, v, ok := strings.Cut(field, "="); ok && k == "path" && v != "" {
			path = v
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
		}
	}

	name := entry.Name
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	return &ServerInfo{Name: name, Host: host, Port: entry.Port, Path: path}
}
