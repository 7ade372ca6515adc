// Package health runs the background probe loop: every interval it probes
// all configured servers concurrently and feeds the results back into the
// registry. Each probe carries its own timeout at the SSH layer, so one
// hanging server cannot delay another's status update.
package health

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jarvisvpn/jvpnd/internal/registry"
	"github.com/jarvisvpn/jvpnd/internal/sshexec"
)

// probeCommand checks that the Xray process is alive on the server.
const probeCommand = `systemctl is-active xray 2>/dev/null || pgrep -x xray > /dev/null && echo active`

// Prober measures one server. Implementations must honor ctx.
type Prober interface {
	Probe(ctx context.Context, s *registry.Server) (time.Duration, error)
}

// SSHProber probes over a short-lived SSH session.
type SSHProber struct {
	Runner *sshexec.Runner
}

// Probe runs the liveness command and returns the round-trip latency.
func (p *SSHProber) Probe(ctx context.Context, s *registry.Server) (time.Duration, error) {
	start := time.Now()
	out, err := p.Runner.Run(ctx, sshexec.Target{
		Host:     s.Host,
		Port:     s.SSHPort,
		User:     s.SSHUser,
		KeyPath:  s.SSHKeyPath,
		Password: s.SSHPassword,
	}, probeCommand)
	if err != nil {
		return 0, err
	}
	if !strings.Contains(strings.ToLower(out), "active") {
		return 0, errNotActive
	}
	return time.Since(start), nil
}

type notActiveError struct{}

func (notActiveError) Error() string { return "xray process not active" }

var errNotActive = notActiveError{}

// Checker is the background health loop.
type Checker struct {
	reg      *registry.Registry
	prober   Prober
	interval time.Duration
	timeout  time.Duration

	// DegradedAfter is the probe latency beyond which an online server
	// is marked degraded.
	DegradedAfter time.Duration

	// OnAllDown fires when a cycle finds zero servers online out of at
	// least one configured. Hook for external alerting.
	OnAllDown func(total int)
}

// New returns a Checker. Zero interval falls back to 60s, zero timeout to
// 10s per probe.
func New(reg *registry.Registry, prober Prober, interval, timeout time.Duration) *Checker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Checker{
		reg:           reg,
		prober:        prober,
		interval:      interval,
		timeout:       timeout,
		DegradedAfter: 500 * time.Millisecond,
	}
}

// Run probes immediately, then on every tick, until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	slog.Info("health: checker started", "interval", c.interval, "servers", c.reg.Len())
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.CheckAll(ctx)
		select {
		case <-ctx.Done():
			slog.Info("health: checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// CheckAll probes every server concurrently (fan-out), waits for all
// results (fan-in), updates the registry, and returns the statuses.
func (c *Checker) CheckAll(ctx context.Context) map[string]registry.Status {
	servers := c.reg.All()
	results := make(map[string]registry.Status, len(servers))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s *registry.Server) {
			defer wg.Done()
			st := c.checkOne(ctx, s)
			mu.Lock()
			results[s.ID] = st
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	online := 0
	for _, st := range results {
		if st == registry.StatusOnline {
			online++
		}
	}
	slog.Debug("health: cycle complete", "online", online, "total", len(servers))
	if online == 0 && len(servers) > 0 {
		slog.Error("health: all VPN servers are down", "total", len(servers))
		if c.OnAllDown != nil {
			c.OnAllDown(len(servers))
		}
	}
	return results
}

func (c *Checker) checkOne(ctx context.Context, s *registry.Server) registry.Status {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	latency, err := c.prober.Probe(probeCtx, s)
	if err != nil {
		slog.Warn("health: server offline", "server", s.ID, "error", err)
		s.SetHealth(registry.StatusOffline, 0)
		return registry.StatusOffline
	}

	st := registry.StatusOnline
	if latency > c.DegradedAfter {
		st = registry.StatusDegraded
	}
	s.SetHealth(st, latency)
	return st
}
