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
	"time"
)

// defaultsDomain is the UserDefaults domain relfield settings live under.
const defaultsDomain = "com.relfield.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "relfield")
	}
	return "relfield-data"
}

// defaultsBackend keeps settings in UserDefaults through the `defaults` CLI.
// Every value is written as a string and converted on read, so a key edited
// by hand with `defaults write` behaves the same as one set by relfield.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &defaultsBackend{domain: defaultsDomain}
}

func (b *defaultsBackend) run(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// lookup reports ok=false when the key is absent from the domain, which
// `defaults read` signals with exit status 1.
func (b *defaultsBackend) lookup(key string) (string, bool, error) {
	out, err := b.run("read", b.domain, key)
	if err == nil {
		return out, true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return "", false, nil
	}
	return "", false, fmt.Errorf("defaults read %s: %w (%s)", key, err, out)
}

func (b *defaultsBackend) write(key, val string) error {
	if out, err := b.run("write", b.domain, key, "-string", val); err != nil {
		return fmt.Errorf("defaults write %s: %w (%s)", key, err, out)
	}
	return nil
}

func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	return b.lookup(key)
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	raw, ok, err := b.lookup(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return n, true, nil
}

func (b *defaultsBackend) GetDuration(key string) (time.Duration, bool, error) {
	raw, ok, err := b.lookup(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %q is not a duration", key, raw)
	}
	return d, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	return b.write(key, val)
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	return b.write(key, strconv.Itoa(val))
}

func (b *defaultsBackend) SetDuration(key string, val time.Duration) error {
	return b.write(key, val.String())
}

// Delete removes key from the domain. Deleting an absent key is not an error.
func (b *defaultsBackend) Delete(key string) error {
	if _, ok, err := b.lookup(key); err != nil || !ok {
		return err
	}
	if out, err := b.run("delete", b.domain, key); err != nil {
		return fmt.Errorf("defaults delete %s: %w (%s)", key, err, out)
	}
	return nil
}
