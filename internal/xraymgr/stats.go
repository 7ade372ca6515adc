package xraymgr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jarvisvpn/jvpnd/internal/registry"
)

// UserStats holds one user's traffic counters on one server.
type UserStats struct {
	Identifier    string
	UploadBytes   int64
	DownloadBytes int64
	TotalBytes    int64
}

// statsCache is a read-mostly TTL cache keyed by "server:identifier".
// Entries are replaced atomically; concurrent refreshes of the same key are
// redundant but harmless — last write wins.
type statsCache struct {
	entries sync.Map
}

type statsEntry struct {
	stats UserStats
	at    time.Time
}

func (c *statsCache) get(key string, ttl time.Duration) (UserStats, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return UserStats{}, false
	}
	e := v.(statsEntry)
	if time.Since(e.at) >= ttl {
		return UserStats{}, false
	}
	return e.stats, true
}

func (c *statsCache) put(key string, stats UserStats) {
	c.entries.Store(key, statsEntry{stats: stats, at: time.Now()})
}

// UserStats returns the uplink/downlink byte counters for one identifier on
// one server. Results are cached per (server, identifier) for the manager's
// TTL; a miss or expiry triggers exactly one fresh remote call from this
// goroutine.
func (m *Manager) UserStats(ctx context.Context, s *registry.Server, email string) (UserStats, error) {
	key := s.ID + ":" + email
	if stats, ok := m.stats.get(key, m.cacheTTL); ok {
		return stats, nil
	}

	up, down, err := m.fetchUserBytes(ctx, s, email)
	if err != nil {
		return UserStats{}, err
	}

	stats := UserStats{
		Identifier:    email,
		UploadBytes:   up,
		DownloadBytes: down,
		TotalBytes:    up + down,
	}
	m.stats.put(key, stats)
	return stats, nil
}

func (m *Manager) fetchUserBytes(ctx context.Context, s *registry.Server, email string) (int64, int64, error) {
	if s.APIMode == "grpc" {
		if m.api == nil {
			return 0, 0, fmt.Errorf("xray api client not configured")
		}
		return m.api.QueryUserBytes(ctx, target(s), apiAddr(s), email)
	}

	// Both counters in one round trip; a missing counter prints 0.
	cmd := fmt.Sprintf(
		`%[1]s api stats --server=127.0.0.1:%[2]d --name="user>>>%[3]s>>>traffic>>>uplink" 2>/dev/null || echo 0; `+
			`%[1]s api stats --server=127.0.0.1:%[2]d --name="user>>>%[3]s>>>traffic>>>downlink" 2>/dev/null || echo 0`,
		xrayBin, s.XrayAPIPort, email)

	out, err := m.run.Run(ctx, target(s), cmd)
	if err != nil {
		return 0, 0, fmt.Errorf("querying stats on %s: %w", s.ID, err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	var up, down int64
	if len(lines) > 0 {
		up = parseCounter(lines[0])
	}
	if len(lines) > 1 {
		down = parseCounter(lines[1])
	}
	return up, down, nil
}

func parseCounter(line string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// HumanBytes renders a byte count for people.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
