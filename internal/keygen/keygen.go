// Package keygen derives per-(user,device) VLESS identities and signs
// subscription tokens. Everything here is pure computation: the same secret
// and inputs always produce the same identity, so nothing needs to be
// stored to "remember" a device's key.
package keygen

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator derives deterministic VLESS identities from a shared secret.
type Generator struct {
	secret []byte
}

// NewGenerator returns a Generator keyed with the given secret.
func NewGenerator(secret string) *Generator {
	return &Generator{secret: []byte(secret)}
}

// UUIDFor computes the deterministic identity for one device of one user:
// the first 16 bytes of HMAC-SHA256(secret, "user:device") with the
// RFC-4122 version and variant bits forced. Identical inputs always yield
// the identical UUID; without the secret the UUID cannot be predicted.
// Once a client has used it on the wire the UUID is not a secret anymore —
// revocation happens by deprovisioning the remote user, not by forgetting
// the UUID.
func (g *Generator) UUIDFor(userID int64, deviceID int) string {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "%d:%d", userID, deviceID)
	sum := mac.Sum(nil)

	var b [16]byte
	copy(b[:], sum[:16])
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant RFC 4122

	id, _ := uuid.FromBytes(b[:])
	return id.String()
}

// ServerParams is the per-server material a client needs to connect.
type ServerParams struct {
	ServerID   string
	Host       string
	Port       int
	PublicKey  string // Reality public key
	ShortID    string
	ServerName string // SNI
	Flow       string
}

// VLESSKey is an ephemeral connection descriptor for one device on one
// server. It is rebuilt on demand from the secret and the current server
// parameters; holding one does not mean the identity is provisioned
// remotely.
type VLESSKey struct {
	UserID   int64
	DeviceID int
	UUID     string

	Server ServerParams

	Name      string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// CreateKey derives the identity and assembles a VLESSKey for the given
// server parameters. name defaults to "Jarvis VPN #<device>".
func (g *Generator) CreateKey(userID int64, deviceID int, p ServerParams, name string, expiresAt *time.Time) VLESSKey {
	if p.Flow == "" {
		p.Flow = "xtls-rprx-vision"
	}
	if name == "" {
		name = fmt.Sprintf("Jarvis VPN #%d", deviceID)
	}
	return VLESSKey{
		UserID:    userID,
		DeviceID:  deviceID,
		UUID:      g.UUIDFor(userID, deviceID),
		Server:    p,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
}

// URL renders the key as a VLESS URI:
//
//	vless://{uuid}@{host}:{port}?type=tcp&security=reality&pbk=...&fp=chrome&sni=...&sid=...&flow=...#{name}
//
// The query parameter order is fixed — some clients are picky about it.
func (k VLESSKey) URL() string {
	params := []struct{ k, v string }{
		{"type", "tcp"},
		{"security", "reality"},
		{"pbk", k.Server.PublicKey},
		{"fp", "chrome"},
		{"sni", k.Server.ServerName},
		{"sid", k.Server.ShortID},
		{"flow", k.Server.Flow},
	}
	var query strings.Builder
	for i, p := range params {
		if i > 0 {
			query.WriteByte('&')
		}
		query.WriteString(p.k)
		query.WriteByte('=')
		query.WriteString(url.QueryEscape(p.v))
	}
	return fmt.Sprintf("vless://%s@%s:%d?%s#%s",
		k.UUID, k.Server.Host, k.Server.Port, query.String(), url.PathEscape(k.Name))
}

// SubscriptionEntry is the structured (v2-style) record equivalent to the
// VLESS URI, for clients that consume JSON subscription feeds.
type SubscriptionEntry struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Scy  string `json:"scy"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni"`
	ALPN string `json:"alpn"`
	FP   string `json:"fp"`
	PBK  string `json:"pbk"`
	SID  string `json:"sid"`
	Flow string `json:"flow"`
}

// SubscriptionEntry returns the structured record for this key.
func (k VLESSKey) SubscriptionEntry() SubscriptionEntry {
	return SubscriptionEntry{
		V:    "2",
		PS:   k.Name,
		Add:  k.Server.Host,
		Port: fmt.Sprintf("%d", k.Server.Port),
		ID:   k.UUID,
		Aid:  "0",
		Scy:  "none",
		Net:  "tcp",
		Type: "none",
		TLS:  "reality",
		SNI:  k.Server.ServerName,
		FP:   "chrome",
		PBK:  k.Server.PublicKey,
		SID:  k.Server.ShortID,
		Flow: k.Server.Flow,
	}
}
