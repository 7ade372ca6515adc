package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/jarvisvpn/jvpnd/internal/config"
)

// Status is the health state of a server.
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusDegraded Status = "degraded"
	StatusUnknown  Status = "unknown"
)

// Server is one VPN backend: the static descriptor from configuration plus
// the mutable runtime state. All mutable fields are guarded by a per-server
// mutex; the health loop and the orchestrator both write through the
// accessors, so the two writers never race. Drift between them is accepted —
// the next health cycle wins.
type Server struct {
	ID       string
	Name     string
	Location string

	Host        string
	SSHPort     int
	SSHUser     string
	SSHKeyPath  string
	SSHPassword string

	XrayAPIPort int
	InboundPort int
	InboundTag  string
	APIMode     string

	RealityPrivateKey string
	RealityPublicKey  string
	RealityShortID    string
	RealityServerName string

	Priority int
	MaxUsers int

	mu           sync.Mutex
	status       Status
	latency      time.Duration
	hasLatency   bool
	currentUsers int
	lastCheck    time.Time
}

func newServer(c config.Server) *Server {
	return &Server{
		ID:                c.ID,
		Name:              c.Name,
		Location:          c.Location,
		Host:              c.Host,
		SSHPort:           c.SSHPort,
		SSHUser:           c.SSHUser,
		SSHKeyPath:        c.SSHKeyPath,
		SSHPassword:       c.SSHPassword,
		XrayAPIPort:       c.XrayAPIPort,
		InboundPort:       c.InboundPort,
		InboundTag:        c.InboundTag,
		APIMode:           c.APIMode,
		RealityPrivateKey: c.RealityPrivateKey,
		RealityPublicKey:  c.RealityPublicKey,
		RealityShortID:    c.RealityShortID,
		RealityServerName: c.RealityServerName,
		Priority:          c.Priority,
		MaxUsers:          c.MaxUsers,
		status:            StatusUnknown,
	}
}

// SSHAddr returns the host:port SSH endpoint.
func (s *Server) SSHAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.SSHPort)
}

// Status returns the current health status.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetHealth records the outcome of a health probe.
func (s *Server) SetHealth(st Status, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	if st == StatusOnline || st == StatusDegraded {
		s.latency = latency
		s.hasLatency = true
	}
	s.lastCheck = time.Now()
}

// Latency returns the last measured probe latency. ok is false when the
// server has never been probed successfully.
func (s *Server) Latency() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency, s.hasLatency
}

// CurrentUsers returns the local user counter. It is a soft capacity hint,
// never reconciled against the remote user list.
func (s *Server) CurrentUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUsers
}

// AddUserSlot increments the local user counter.
func (s *Server) AddUserSlot() {
	s.mu.Lock()
	s.currentUsers++
	s.mu.Unlock()
}

// ReleaseUserSlot decrements the local user counter, floored at zero.
func (s *Server) ReleaseUserSlot() {
	s.mu.Lock()
	if s.currentUsers > 0 {
		s.currentUsers--
	}
	s.mu.Unlock()
}

// Available reports whether the server can take new keys: it must not be
// known-bad, must have capacity, and must carry Reality key material.
// Unknown counts as available until the first health check says otherwise.
func (s *Server) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusOnline && s.status != StatusUnknown {
		return false
	}
	if s.currentUsers >= s.MaxUsers {
		return false
	}
	return s.RealityPublicKey != ""
}

// Snapshot is a read-only copy of a server's state for APIs and logs.
type Snapshot struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Location     string  `json:"location"`
	Host         string  `json:"host"`
	Status       string  `json:"status"`
	LatencyMS    float64 `json:"latency_ms"`
	Priority     int     `json:"priority"`
	CurrentUsers int     `json:"current_users"`
	MaxUsers     int     `json:"max_users"`
	Available    bool    `json:"is_available"`
}

// Snapshot returns a consistent copy of the server's state.
func (s *Server) Snapshot() Snapshot {
	available := s.Available()
	s.mu.Lock()
	defer s.mu.Unlock()
	var ms float64
	if s.hasLatency {
		ms = float64(s.latency) / float64(time.Millisecond)
	}
	return Snapshot{
		ID:           s.ID,
		Name:         s.Name,
		Location:     s.Location,
		Host:         s.Host,
		Status:       string(s.status),
		LatencyMS:    ms,
		Priority:     s.Priority,
		CurrentUsers: s.currentUsers,
		MaxUsers:     s.MaxUsers,
		Available:    available,
	}
}
