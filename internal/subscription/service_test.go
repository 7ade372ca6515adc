package subscription

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jarvisvpn/jvpnd/internal/config"
	"github.com/jarvisvpn/jvpnd/internal/keygen"
	"github.com/jarvisvpn/jvpnd/internal/registry"
)

type fakeStore struct {
	records []KeyRecord
	err     error
}

func (f *fakeStore) ActiveKeys(ctx context.Context, userID int64) ([]KeyRecord, error) {
	return f.records, f.err
}

type fakeEnts struct {
	ent Entitlement
	err error
}

func (f *fakeEnts) Check(ctx context.Context, userID int64) (Entitlement, error) {
	return f.ent, f.err
}

func testApp(reg *registry.Registry, store KeyStore, ents Entitlements) (*fiber.App, *keygen.TokenSigner) {
	keys := keygen.NewGenerator("test-secret")
	tokens := keygen.NewTokenSigner("test-secret")
	app := fiber.New()
	New(reg, keys, tokens, store, ents).Register(app)
	return app, tokens
}

func testRegistry() *registry.Registry {
	return registry.New([]config.Server{{
		ID:                "nl-1",
		Name:              "Amsterdam",
		Host:              "vpn.example.com",
		InboundPort:       443,
		RealityPublicKey:  "pbk-nl",
		RealityShortID:    "ab12",
		RealityServerName: "www.google.com",
		Priority:          10,
		MaxUsers:          100,
	}})
}

func fetch(t *testing.T, app *fiber.App, path string) (int, map[string]string, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return resp.StatusCode, headers, string(body)
}

func decodeFeed(t *testing.T, body string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		t.Fatalf("feed body is not base64: %v", err)
	}
	return string(raw)
}

func TestSubscriptionFeed(t *testing.T) {
	reg := testRegistry()
	store := &fakeStore{records: []KeyRecord{
		{UserID: 42, DeviceID: 0, ServerID: "nl-1", Name: "Phone"},
		{UserID: 42, DeviceID: 1, ServerID: "nl-1"},
	}}
	ents := &fakeEnts{ent: Entitlement{Active: true, ExpiresAt: time.Unix(1900000000, 0)}}
	app, tokens := testApp(reg, store, ents)

	code, headers, body := fetch(t, app, "/sub/"+tokens.Generate(42))
	if code != fiber.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got := headers["Content-Disposition"]; got != `attachment; filename=jarvis-vpn.txt` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if got := headers["Cache-Control"]; !strings.Contains(got, "no-store") {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := headers["Subscription-Userinfo"]; got != "upload=0; download=0; total=0; expire=1900000000" {
		t.Fatalf("Subscription-Userinfo = %q", got)
	}

	feed := decodeFeed(t, body)
	lines := strings.Split(feed, "\n")
	if len(lines) != 2 {
		t.Fatalf("feed has %d lines, want 2:\n%s", len(lines), feed)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "vless://") || !strings.Contains(line, "@vpn.example.com:443?") {
			t.Fatalf("bad feed line: %s", line)
		}
	}
	if !strings.HasSuffix(lines[0], "#Phone") {
		t.Fatalf("device name lost: %s", lines[0])
	}
}

func TestSubscriptionInvalidToken(t *testing.T) {
	app, _ := testApp(testRegistry(), &fakeStore{}, &fakeEnts{ent: Entitlement{Active: true}})

	code, _, _ := fetch(t, app, "/sub/not-a-real-token")
	if code != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
}

func TestSubscriptionExpired(t *testing.T) {
	app, tokens := testApp(testRegistry(), &fakeStore{}, &fakeEnts{ent: Entitlement{Active: false}})

	code, _, body := fetch(t, app, "/sub/"+tokens.Generate(42))
	if code != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if feed := decodeFeed(t, body); feed != "# Subscription expired\n" {
		t.Fatalf("feed = %q", feed)
	}
}

func TestSubscriptionStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	app, tokens := testApp(testRegistry(), store, &fakeEnts{ent: Entitlement{Active: true}})

	code, _, body := fetch(t, app, "/sub/"+tokens.Generate(42))
	if code != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if feed := decodeFeed(t, body); feed != "# Temporarily unavailable\n" {
		t.Fatalf("feed = %q", feed)
	}
}

func TestSubscriptionNoKeys(t *testing.T) {
	app, tokens := testApp(testRegistry(), &fakeStore{}, &fakeEnts{ent: Entitlement{Active: true}})

	code, _, body := fetch(t, app, "/sub/"+tokens.Generate(42))
	if code != fiber.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if feed := decodeFeed(t, body); feed != "# No keys\n" {
		t.Fatalf("feed = %q", feed)
	}
}

func TestSubscriptionRetiredServerFallsBack(t *testing.T) {
	reg := testRegistry()
	store := &fakeStore{records: []KeyRecord{{UserID: 42, ServerID: "gone"}}}
	app, tokens := testApp(reg, store, &fakeEnts{ent: Entitlement{Active: true}})

	_, _, body := fetch(t, app, "/sub/"+tokens.Generate(42))
	feed := decodeFeed(t, body)
	if !strings.Contains(feed, "@vpn.example.com:443?") {
		t.Fatalf("retired server not replaced: %s", feed)
	}
}

func TestSubscriptionReflectsRotatedKeys(t *testing.T) {
	reg := testRegistry()
	store := &fakeStore{records: []KeyRecord{{UserID: 42, ServerID: "nl-1"}}}
	app, tokens := testApp(reg, store, &fakeEnts{ent: Entitlement{Active: true}})
	token := tokens.Generate(42)

	_, _, body := fetch(t, app, "/sub/"+token)
	if !strings.Contains(decodeFeed(t, body), "pbk=pbk-nl") {
		t.Fatal("feed missing original public key")
	}

	// Rotate the Reality key pair on the server; the next poll of the same
	// token must already carry the new material.
	reg.Get("nl-1").RealityPublicKey = "pbk-rotated"
	_, _, body = fetch(t, app, "/sub/"+token)
	if !strings.Contains(decodeFeed(t, body), "pbk=pbk-rotated") {
		t.Fatal("feed did not pick up rotated public key")
	}
}

func TestHealthEndpoint(t *testing.T) {
	reg := testRegistry()
	reg.Get("nl-1").SetHealth(registry.StatusOnline, 20*time.Millisecond)
	app, _ := testApp(reg, &fakeStore{}, &fakeEnts{})

	code, _, body := fetch(t, app, "/health")
	if code != fiber.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(body, `"nl-1":"online"`) {
		t.Fatalf("health body = %s", body)
	}
}
