//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.civicbot.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "civicbot")
	}
	return "civicbot-data"
}

func apiKeyHint() string {
	return ", or store it in the macOS Keychain with `civicbot config set-key`"
}

// defaultsBackend stores config in UserDefaults through the defaults(1) tool.
type defaultsBackend struct {
	domain string
	run    func(args ...string) ([]byte, error)
}

func newPlatformBackend() ConfigBackend {
	return &defaultsBackend{domain: defaultsDomain, run: runDefaults}
}

func runDefaults(args ...string) ([]byte, error) {
	return exec.Command("defaults", args...).CombinedOutput()
}

func (b *defaultsBackend) Describe() string {
	return "UserDefaults domain " + b.domain
}

// read reports ok=false when the key is absent, which defaults(1) signals
// with exit status 1.
func (b *defaultsBackend) read(key string) (string, bool, error) {
	out, err := b.run("read", b.domain, key)
	s := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s from %s: %w (%s)", key, b.domain, err, s)
	}
	return s, true, nil
}

func (b *defaultsBackend) write(args ...string) error {
	if out, err := b.run(args...); err != nil {
		return fmt.Errorf("defaults %s: %w (%s)", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	return b.read(key)
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.read(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	return b.write("write", b.domain, key, "-string", val)
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	return b.write("write", b.domain, key, "-int", strconv.Itoa(val))
}

func (b *defaultsBackend) Delete(key string) error {
	return b.write("delete", b.domain, key)
}
