//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "civicbot", "config.json")

	b, err := newFileBackend(path)
	if err != nil {
		t.Fatalf("newFileBackend: %v", err)
	}
	if err := setKey(b, "server.port", "4200"); err != nil {
		t.Fatal(err)
	}
	if err := setKey(b, "governor.courtesy_delay", "750ms"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	reopened, err := newFileBackend(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	if port, ok, err := reopened.GetInt("server.port"); err != nil || !ok || port != 4200 {
		t.Errorf("server.port = %d, %v, %v", port, ok, err)
	}
	if d, ok, err := reopened.GetString("governor.courtesy_delay"); err != nil || !ok || d != "750ms" {
		t.Errorf("governor.courtesy_delay = %q, %v, %v", d, ok, err)
	}
	if reopened.Describe() != path {
		t.Errorf("Describe = %q, want %q", reopened.Describe(), path)
	}

	if err := reopened.Delete("server.port"); err != nil {
		t.Fatal(err)
	}
	again, _ := newFileBackend(path)
	if _, ok, _ := again.GetInt("server.port"); ok {
		t.Error("server.port still present after Delete")
	}
}

func TestFileBackend_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	b, err := newFileBackend(path)
	if err == nil {
		t.Error("expected parse error")
	}
	if _, ok, _ := b.GetString("log.level"); ok {
		t.Error("corrupt file should load as empty")
	}
}

func TestFileBackend_IntFromString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.port":"5100","retry.max_attempts":2.5}`), 0o600); err != nil {
		t.Fatal(err)
	}

	b, err := newFileBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	if port, _, err := b.GetInt("server.port"); err != nil || port != 5100 {
		t.Errorf("server.port = %d, %v", port, err)
	}
	if _, _, err := b.GetInt("retry.max_attempts"); err == nil {
		t.Error("expected error for a fractional integer")
	}
}

func TestSecretsFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainGet(secretService, secretAccount); err == nil {
		t.Fatal("expected error before any secret is stored")
	}
	if err := SetAPIKey("sk-test"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	key, err := keychainReader{}.Get(secretService, secretAccount)
	if err != nil || key != "sk-test" {
		t.Errorf("Get = %q, %v", key, err)
	}
}
