// Package xraymgr orchestrates user provisioning across the configured Xray
// servers: add/remove users, traffic stats with a short-TTL cache, and key
// creation with single-shot failover. Remote failures come back as values,
// never panics, so one bad server cannot take down the flow for the rest.
package xraymgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jarvisvpn/jvpnd/internal/keygen"
	"github.com/jarvisvpn/jvpnd/internal/registry"
	"github.com/jarvisvpn/jvpnd/internal/sshexec"
	"github.com/jarvisvpn/jvpnd/internal/xrayapi"
)

const (
	userHelperBin = "/usr/local/bin/xray-user"
	xrayBin       = "/usr/local/bin/xray"
)

var (
	// ErrNoServerAvailable is terminal: every server was unavailable or
	// every provisioning attempt failed.
	ErrNoServerAvailable = errors.New("no VPN server available")
	// ErrUnknownServer means the caller named a server id the registry
	// does not know.
	ErrUnknownServer = errors.New("unknown server")
)

// CommandRunner executes one remote command. Satisfied by *sshexec.Runner.
type CommandRunner interface {
	Run(ctx context.Context, t sshexec.Target, command string) (string, error)
}

// APIClient provisions users via a remote Xray gRPC API. Satisfied by
// *xrayapi.Client.
type APIClient interface {
	AddUser(ctx context.Context, t sshexec.Target, apiAddr, tag, id, email, flow string) error
	RemoveUser(ctx context.Context, t sshexec.Target, apiAddr, tag, email string) error
	QueryUserBytes(ctx context.Context, t sshexec.Target, apiAddr, email string) (int64, int64, error)
}

// Options configures a Manager.
type Options struct {
	Registry *registry.Registry
	Keys     *keygen.Generator
	Runner   CommandRunner
	API      APIClient // may be nil; servers in grpc mode then fail closed
	Flow     string
	CacheTTL time.Duration
}

// Manager is the orchestration core.
type Manager struct {
	reg      *registry.Registry
	keys     *keygen.Generator
	run      CommandRunner
	api      APIClient
	flow     string
	cacheTTL time.Duration
	stats    statsCache
}

// New returns a Manager.
func New(opts Options) *Manager {
	if opts.Flow == "" {
		opts.Flow = "xtls-rprx-vision"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 60 * time.Second
	}
	return &Manager{
		reg:      opts.Registry,
		keys:     opts.Keys,
		run:      opts.Runner,
		api:      opts.API,
		flow:     opts.Flow,
		cacheTTL: opts.CacheTTL,
	}
}

// Identifier is the remote-side name for one device of one user. It doubles
// as the Xray stats email.
func Identifier(userID int64, deviceID int) string {
	return fmt.Sprintf("jarvis_%d_d%d", userID, deviceID)
}

func target(s *registry.Server) sshexec.Target {
	return sshexec.Target{
		Host:     s.Host,
		Port:     s.SSHPort,
		User:     s.SSHUser,
		KeyPath:  s.SSHKeyPath,
		Password: s.SSHPassword,
	}
}

func apiAddr(s *registry.Server) string {
	return fmt.Sprintf("127.0.0.1:%d", s.XrayAPIPort)
}

func (m *Manager) params(s *registry.Server) keygen.ServerParams {
	return keygen.ServerParams{
		ServerID:   s.ID,
		Host:       s.Host,
		Port:       s.InboundPort,
		PublicKey:  s.RealityPublicKey,
		ShortID:    s.RealityShortID,
		ServerName: s.RealityServerName,
		Flow:       m.flow,
	}
}

// AddUser provisions uuid/email on the server. The operation is idempotent:
// "already exists" counts as success. The local user counter is incremented
// only on success. Failures are reported as (false, detail), never raised.
func (m *Manager) AddUser(ctx context.Context, s *registry.Server, uuid, email string) (bool, string) {
	if s.APIMode == "grpc" {
		if m.api == nil {
			return false, "xray api client not configured"
		}
		err := m.api.AddUser(ctx, target(s), apiAddr(s), s.InboundTag, uuid, email, m.flow)
		if err != nil && !xrayapi.IsAlreadyExists(err) {
			slog.Error("vpn: add user failed", "server", s.ID, "email", email, "error", err)
			return false, err.Error()
		}
		s.AddUserSlot()
		slog.Info("vpn: user added", "server", s.ID, "email", email)
		return true, ""
	}

	cmd := fmt.Sprintf("%s add %q %q %q", userHelperBin, uuid, email, m.flow)
	out, err := m.run.Run(ctx, target(s), cmd)
	if err != nil {
		slog.Error("vpn: add user failed", "server", s.ID, "email", email, "error", err)
		return false, err.Error()
	}
	switch strings.TrimSpace(out) {
	case "ADDED", "EXISTS":
		s.AddUserSlot()
		slog.Info("vpn: user added", "server", s.ID, "email", email, "result", strings.TrimSpace(out))
		return true, ""
	default:
		slog.Error("vpn: add user rejected", "server", s.ID, "email", email, "output", strings.TrimSpace(out))
		return false, strings.TrimSpace(out)
	}
}

// RemoveUser deprovisions email from the server and decrements the local
// user counter (floored at zero).
func (m *Manager) RemoveUser(ctx context.Context, s *registry.Server, email string) (bool, string) {
	if s.APIMode == "grpc" {
		if m.api == nil {
			return false, "xray api client not configured"
		}
		err := m.api.RemoveUser(ctx, target(s), apiAddr(s), s.InboundTag, email)
		if err != nil && !xrayapi.IsNotFound(err) {
			slog.Error("vpn: remove user failed", "server", s.ID, "email", email, "error", err)
			return false, err.Error()
		}
		s.ReleaseUserSlot()
		slog.Info("vpn: user removed", "server", s.ID, "email", email)
		return true, ""
	}

	cmd := fmt.Sprintf("%s remove %q", userHelperBin, email)
	out, err := m.run.Run(ctx, target(s), cmd)
	if err != nil {
		slog.Error("vpn: remove user failed", "server", s.ID, "email", email, "error", err)
		return false, err.Error()
	}
	if strings.TrimSpace(out) != "REMOVED" {
		slog.Error("vpn: remove user rejected", "server", s.ID, "email", email, "output", strings.TrimSpace(out))
		return false, strings.TrimSpace(out)
	}
	s.ReleaseUserSlot()
	slog.Info("vpn: user removed", "server", s.ID, "email", email)
	return true, ""
}

// CreateKeyForUser creates a key on the best available server, with a
// single failover pass: if provisioning fails on the chosen server, each
// remaining available server is tried once, in selection order. The failed
// server is never retried within the call.
func (m *Manager) CreateKeyForUser(ctx context.Context, userID int64, deviceID int, expiresAt *time.Time, preferredServerID string) (keygen.VLESSKey, error) {
	var chosen *registry.Server
	if preferredServerID != "" {
		if s := m.reg.Get(preferredServerID); s != nil && s.Available() {
			chosen = s
		}
	}
	if chosen == nil {
		chosen = m.reg.Best()
	}
	if chosen == nil {
		return keygen.VLESSKey{}, ErrNoServerAvailable
	}

	email := Identifier(userID, deviceID)
	key := m.keys.CreateKey(userID, deviceID, m.params(chosen), "", expiresAt)

	ok, detail := m.AddUser(ctx, chosen, key.UUID, email)
	if !ok {
		for _, fb := range m.reg.Available() {
			if fb.ID == chosen.ID {
				continue
			}
			key = m.keys.CreateKey(userID, deviceID, m.params(fb), "", expiresAt)
			if ok, detail = m.AddUser(ctx, fb, key.UUID, email); ok {
				break
			}
		}
	}
	if !ok {
		if detail == "" {
			detail = "all provisioning attempts failed"
		}
		return keygen.VLESSKey{}, fmt.Errorf("%w: %s", ErrNoServerAvailable, detail)
	}
	return key, nil
}

// RevokeKey deprovisions one device's user from a named server. The server
// must be known to the registry; the remote state is the source of truth,
// so there is nothing else to forget.
func (m *Manager) RevokeKey(ctx context.Context, userID int64, deviceID int, serverID string) error {
	s := m.reg.Get(serverID)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}
	if ok, detail := m.RemoveUser(ctx, s, Identifier(userID, deviceID)); !ok {
		return fmt.Errorf("removing user from %s: %s", serverID, detail)
	}
	return nil
}

// UserTraffic returns the cached traffic counters for one device on a named
// server.
func (m *Manager) UserTraffic(ctx context.Context, userID int64, deviceID int, serverID string) (UserStats, error) {
	s := m.reg.Get(serverID)
	if s == nil {
		return UserStats{}, fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}
	return m.UserStats(ctx, s, Identifier(userID, deviceID))
}
