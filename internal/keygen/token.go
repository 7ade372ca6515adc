package keygen

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenSigner issues and verifies stateless subscription tokens. A token is
// base64url("user:ts:sig") where sig is HMAC-SHA256(secret, "user:ts")
// truncated to 16 hex characters. Verification is constant-time and fails
// closed: any malformed input is indistinguishable from a forged one.
//
// The timestamp is embedded and signed but not checked — tokens are
// permanent by design. Access is revoked by deprovisioning the remote user,
// not by expiring the token.
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner returns a TokenSigner keyed with the given secret.
func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret)}
}

func (t *TokenSigner) sign(data string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

// Generate issues a token for the given user.
func (t *TokenSigner) Generate(userID int64) string {
	data := fmt.Sprintf("%d:%d", userID, time.Now().Unix())
	payload := data + ":" + t.sign(data)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// Verify checks a token and returns the embedded user id. ok is false for
// any decode, format, or signature failure — callers must treat that
// identically to "not found".
func (t *TokenSigner) Verify(token string) (int64, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return 0, false
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 {
		return 0, false
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}

	expected := t.sign(fmt.Sprintf("%d:%d", userID, ts))
	if !hmac.Equal([]byte(parts[2]), []byte(expected)) {
		return 0, false
	}
	return userID, true
}

// SubscriptionURL builds the full subscription URL for a user.
func (t *TokenSigner) SubscriptionURL(userID int64, domain string) string {
	if domain == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/sub/%s", domain, t.Generate(userID))
}
