// Package subscription serves the machine-readable feed VPN clients poll.
// The endpoint is public: authorization is the signed token in the URL, and
// everything a client receives is re-derived on demand from the current
// server state, so rotated Reality keys are picked up automatically.
package subscription

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jarvisvpn/jvpnd/internal/keygen"
	"github.com/jarvisvpn/jvpnd/internal/registry"
)

// KeyRecord is one externally-recorded active device binding. The durable
// mapping of devices to users is owned by the caller; this service only
// reads it.
type KeyRecord struct {
	UserID   int64
	DeviceID int
	ServerID string
	Name     string
}

// KeyStore supplies a user's active key records.
type KeyStore interface {
	ActiveKeys(ctx context.Context, userID int64) ([]KeyRecord, error)
}

// Entitlement is the caller-supplied access decision for a user.
type Entitlement struct {
	Active    bool
	ExpiresAt time.Time // zero when unlimited or inactive
}

// Entitlements answers whether a user currently has VPN access.
type Entitlements interface {
	Check(ctx context.Context, userID int64) (Entitlement, error)
}

// Service renders subscription feeds.
type Service struct {
	reg    *registry.Registry
	keys   *keygen.Generator
	tokens *keygen.TokenSigner
	store  KeyStore
	ents   Entitlements
}

// New returns a Service.
func New(reg *registry.Registry, keys *keygen.Generator, tokens *keygen.TokenSigner, store KeyStore, ents Entitlements) *Service {
	return &Service{reg: reg, keys: keys, tokens: tokens, store: store, ents: ents}
}

// Register mounts the HTTP routes on the fiber app.
func (s *Service) Register(app *fiber.App) {
	app.Get("/sub/:token", s.handleSubscription)
	app.Get("/health", s.handleHealth)
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Jarvis VPN")
	})
}

// handleSubscription is GET /sub/:token. Invalid and forged tokens get the
// same 404 as an unknown user, so the endpoint is not a token-validity
// oracle. Everything past that point answers 200 with a decodable body —
// clients poll on a schedule and must never be pushed into retry storms.
func (s *Service) handleSubscription(c *fiber.Ctx) error {
	userID, ok := s.tokens.Verify(c.Params("token"))
	if !ok {
		slog.Warn("sub: invalid token", "ip", c.IP())
		return fiber.ErrNotFound
	}

	ent, err := s.ents.Check(c.Context(), userID)
	if err != nil {
		slog.Error("sub: entitlement check failed", "user", userID, "error", err)
		return s.placeholder(c, "# Temporarily unavailable\n", 0)
	}
	if !ent.Active {
		slog.Info("sub: entitlement expired", "user", userID)
		return s.placeholder(c, "# Subscription expired\n", 0)
	}

	expire := int64(0)
	if !ent.ExpiresAt.IsZero() {
		expire = ent.ExpiresAt.Unix()
	}

	records, err := s.store.ActiveKeys(c.Context(), userID)
	if err != nil {
		slog.Error("sub: key store failed", "user", userID, "error", err)
		return s.placeholder(c, "# Temporarily unavailable\n", expire)
	}
	if len(records) == 0 {
		return s.placeholder(c, "# No keys\n", expire)
	}

	var urls []string
	for _, rec := range records {
		srv := s.reg.Get(rec.ServerID)
		if srv == nil || srv.RealityPublicKey == "" {
			// Server was retired or lost its key material; hand the
			// device the best server we have instead.
			if srv = s.reg.Best(); srv == nil {
				continue
			}
		}
		key := s.keys.CreateKey(userID, rec.DeviceID, keygen.ServerParams{
			ServerID:   srv.ID,
			Host:       srv.Host,
			Port:       srv.InboundPort,
			PublicKey:  srv.RealityPublicKey,
			ShortID:    srv.RealityShortID,
			ServerName: srv.RealityServerName,
		}, rec.Name, nil)
		urls = append(urls, key.URL())
	}

	slog.Debug("sub: feed served", "user", userID, "keys", len(urls))
	return s.respond(c, strings.Join(urls, "\n"), expire)
}

func (s *Service) placeholder(c *fiber.Ctx, body string, expire int64) error {
	return s.respond(c, body, expire)
}

func (s *Service) respond(c *fiber.Ctx, body string, expire int64) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename=jarvis-vpn.txt`)
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	c.Set("Subscription-Userinfo", fmt.Sprintf("upload=0; download=0; total=0; expire=%d", expire))
	return c.SendString(base64.StdEncoding.EncodeToString([]byte(body)))
}

// handleHealth is GET /health.
func (s *Service) handleHealth(c *fiber.Ctx) error {
	servers := make(map[string]string, s.reg.Len())
	for _, srv := range s.reg.All() {
		servers[srv.ID] = string(srv.Status())
	}
	return c.JSON(fiber.Map{
		"status":    "ok",
		"servers":   servers,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
