package keygen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDDeterministic(t *testing.T) {
	g := NewGenerator("test-secret")

	a := g.UUIDFor(12345, 0)
	b := g.UUIDFor(12345, 0)
	if a != b {
		t.Fatalf("same inputs gave different UUIDs: %s vs %s", a, b)
	}
}

func TestUUIDDistinct(t *testing.T) {
	g := NewGenerator("test-secret")

	ids := map[string]string{
		"user":   g.UUIDFor(12345, 0),
		"device": g.UUIDFor(12345, 1),
		"other":  g.UUIDFor(54321, 0),
	}
	seen := map[string]string{}
	for name, id := range ids {
		if prev, ok := seen[id]; ok {
			t.Fatalf("%s and %s derived the same UUID %s", name, prev, id)
		}
		seen[id] = name
	}
}

func TestUUIDSecretMatters(t *testing.T) {
	a := NewGenerator("secret-a").UUIDFor(1, 0)
	b := NewGenerator("secret-b").UUIDFor(1, 0)
	if a == b {
		t.Fatalf("different secrets gave the same UUID %s", a)
	}
}

func TestUUIDWireFormat(t *testing.T) {
	g := NewGenerator("test-secret")

	id, err := uuid.Parse(g.UUIDFor(7, 3))
	if err != nil {
		t.Fatalf("parsing derived UUID: %v", err)
	}
	if id.Version() != 4 {
		t.Fatalf("version = %d, want 4", id.Version())
	}
	if id.Variant() != uuid.RFC4122 {
		t.Fatalf("variant = %v, want RFC4122", id.Variant())
	}
}

func TestCreateKeyDefaults(t *testing.T) {
	g := NewGenerator("test-secret")

	key := g.CreateKey(42, 2, ServerParams{Host: "vpn.example.com", Port: 443}, "", nil)
	if key.Name != "Jarvis VPN #2" {
		t.Fatalf("default name = %q", key.Name)
	}
	if key.Server.Flow != "xtls-rprx-vision" {
		t.Fatalf("default flow = %q", key.Server.Flow)
	}
	if key.UUID != g.UUIDFor(42, 2) {
		t.Fatal("key UUID does not match derived UUID")
	}
}

func TestVLESSURL(t *testing.T) {
	g := NewGenerator("test-secret")

	p := ServerParams{
		ServerID:   "nl-1",
		Host:       "vpn.example.com",
		Port:       443,
		PublicKey:  "pbk+value/with=chars",
		ShortID:    "ab12",
		ServerName: "www.google.com",
	}
	key := g.CreateKey(42, 0, p, "My Phone", nil)
	u := key.URL()

	if !strings.HasPrefix(u, "vless://"+key.UUID+"@vpn.example.com:443?") {
		t.Fatalf("unexpected URL prefix: %s", u)
	}
	// Clients are picky about parameter order.
	wantQuery := "type=tcp&security=reality&pbk=pbk%2Bvalue%2Fwith%3Dchars&fp=chrome&sni=www.google.com&sid=ab12&flow=xtls-rprx-vision"
	if !strings.Contains(u, "?"+wantQuery+"#") {
		t.Fatalf("query mismatch:\n  got  %s\n  want ?%s#", u, wantQuery)
	}
	if !strings.HasSuffix(u, "#My%20Phone") {
		t.Fatalf("fragment mismatch: %s", u)
	}
}

func TestSubscriptionEntry(t *testing.T) {
	g := NewGenerator("test-secret")

	key := g.CreateKey(1, 0, ServerParams{Host: "vpn.example.com", Port: 8443, PublicKey: "pbk", ShortID: "sid", ServerName: "sni.example"}, "Entry", nil)
	e := key.SubscriptionEntry()
	if e.Add != "vpn.example.com" || e.Port != "8443" || e.ID != key.UUID {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.TLS != "reality" || e.FP != "chrome" {
		t.Fatalf("unexpected transport fields: %+v", e)
	}
}
