package sshexec

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	gossh "golang.org/x/crypto/ssh"
)

func TestTargetAddr(t *testing.T) {
	tgt := Target{Host: "vpn.example.com", Port: 2222}
	if got := tgt.Addr(); got != "vpn.example.com:2222" {
		t.Fatalf("Addr() = %q", got)
	}
}

func TestRunnerDefaults(t *testing.T) {
	r := NewRunner(0, 0)
	if r.connectTimeout != 10*time.Second || r.commandTimeout != 30*time.Second {
		t.Fatalf("defaults = %v / %v", r.connectTimeout, r.commandTimeout)
	}
}

func writeTestKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	block, err := gossh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("writing key: %v", err)
	}
	return path
}

func TestAuthMethodsKeyWinsOverPassword(t *testing.T) {
	tgt := Target{Host: "h", Port: 22, KeyPath: writeTestKey(t), Password: "hunter2"}
	methods, err := authMethods(tgt)
	if err != nil {
		t.Fatalf("authMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("got %d methods, want 1 (key only)", len(methods))
	}
}

func TestAuthMethodsPasswordOnly(t *testing.T) {
	methods, err := authMethods(Target{Host: "h", Port: 22, Password: "hunter2"})
	if err != nil {
		t.Fatalf("authMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(methods))
	}
}

func TestAuthMethodsNoCredentials(t *testing.T) {
	if _, err := authMethods(Target{Host: "h", Port: 22}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestAuthMethodsBadKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("not a key"), 0600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := authMethods(Target{Host: "h", Port: 22, KeyPath: path}); err == nil {
		t.Fatal("expected error for unparsable key")
	}
}
