package keygen

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	s := NewTokenSigner("test-secret")

	token := s.Generate(42)
	userID, ok := s.Verify(token)
	if !ok {
		t.Fatal("fresh token failed verification")
	}
	if userID != 42 {
		t.Fatalf("userID = %d, want 42", userID)
	}
}

func TestTokenPaddedInput(t *testing.T) {
	s := NewTokenSigner("test-secret")

	// Some clients helpfully re-pad the base64.
	token := s.Generate(42) + "=="
	if _, ok := s.Verify(token); !ok {
		t.Fatal("padded token failed verification")
	}
}

func TestTokenRejectsGarbage(t *testing.T) {
	s := NewTokenSigner("test-secret")

	for _, token := range []string{
		"",
		"not-base64!!!",
		base64.RawURLEncoding.EncodeToString([]byte("no-colons")),
		base64.RawURLEncoding.EncodeToString([]byte("1:2")),
		base64.RawURLEncoding.EncodeToString([]byte("x:1700000000:abcdef0123456789")),
		base64.RawURLEncoding.EncodeToString([]byte("42:y:abcdef0123456789")),
	} {
		if _, ok := s.Verify(token); ok {
			t.Fatalf("accepted malformed token %q", token)
		}
	}
}

func TestTokenRejectsTampering(t *testing.T) {
	s := NewTokenSigner("test-secret")

	token := s.Generate(42)
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decoding own token: %v", err)
	}

	// Swap the user id for another one, keep the original signature.
	parts := strings.SplitN(string(raw), ":", 2)
	forged := base64.RawURLEncoding.EncodeToString([]byte("43:" + parts[1]))
	if _, ok := s.Verify(forged); ok {
		t.Fatal("accepted token with swapped user id")
	}
}

func TestTokenRejectsBitFlips(t *testing.T) {
	s := NewTokenSigner("test-secret")

	token := s.Generate(42)
	for i := range token {
		flipped := []byte(token)
		flipped[i] ^= 0x01
		if _, ok := s.Verify(string(flipped)); ok {
			t.Fatalf("accepted token with byte %d flipped", i)
		}
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token := NewTokenSigner("secret-a").Generate(42)
	if _, ok := NewTokenSigner("secret-b").Verify(token); ok {
		t.Fatal("accepted token signed with a different secret")
	}
}

func TestSubscriptionURL(t *testing.T) {
	s := NewTokenSigner("test-secret")

	u := s.SubscriptionURL(42, "vpn.example.com")
	if !strings.HasPrefix(u, "https://vpn.example.com/sub/") {
		t.Fatalf("unexpected URL: %s", u)
	}
	token := strings.TrimPrefix(u, "https://vpn.example.com/sub/")
	if userID, ok := s.Verify(token); !ok || userID != 42 {
		t.Fatalf("embedded token did not verify (ok=%v, userID=%d)", ok, userID)
	}

	if got := s.SubscriptionURL(42, ""); got != "" {
		t.Fatalf("empty domain should yield empty URL, got %q", got)
	}
}
