// Package registry holds the live set of VPN servers and implements
// best-available selection. Servers are built once from configuration at
// process start; only their runtime state mutates afterwards.
package registry

import (
	"sort"
	"time"

	"github.com/jarvisvpn/jvpnd/internal/config"
)

// Registry is the fixed set of configured servers.
type Registry struct {
	servers []*Server
	byID    map[string]*Server
}

// New builds a registry from the configured server descriptors.
func New(cfgs []config.Server) *Registry {
	r := &Registry{byID: make(map[string]*Server, len(cfgs))}
	for _, c := range cfgs {
		s := newServer(c)
		r.servers = append(r.servers, s)
		r.byID[s.ID] = s
	}
	return r
}

// Get returns the server with the given id, or nil.
func (r *Registry) Get(id string) *Server {
	return r.byID[id]
}

// All returns every configured server.
func (r *Registry) All() []*Server {
	return r.servers
}

// Len returns the number of configured servers.
func (r *Registry) Len() int {
	return len(r.servers)
}

// Available returns the servers currently accepting new keys, ordered by
// (priority ascending, latency ascending). Servers without a measured
// latency sort after measured ones of the same priority.
func (r *Registry) Available() []*Server {
	var out []*Server
	for _, s := range r.servers {
		if s.Available() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return sortLatency(out[i]) < sortLatency(out[j])
	})
	return out
}

// Best returns the preferred available server, or nil when every server is
// unavailable.
func (r *Registry) Best() *Server {
	avail := r.Available()
	if len(avail) == 0 {
		return nil
	}
	return avail[0]
}

func sortLatency(s *Server) time.Duration {
	if lat, ok := s.Latency(); ok {
		return lat
	}
	// unmeasured sorts last within a priority band
	return time.Hour
}
