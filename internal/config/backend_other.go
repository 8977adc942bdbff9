//go:build !darwin

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "relfield")
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "relfield", "config.yaml")
}

// xdgDir returns $env, or the fallback path under the home directory.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

// yamlBackend stores settings as a flat YAML mapping of dotted keys:
//
//	jira.base_url: https://acme.atlassian.net
//	search.debounce: 300ms
//
// JSON is valid YAML, so a hand-written JSON object loads too.
type yamlBackend struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

func newPlatformBackend() ConfigBackend {
	return openYAMLBackend(configFilePath())
}

// openYAMLBackend never fails: an unreadable or malformed file is reported on
// stderr and treated as empty so defaults apply.
func openYAMLBackend(path string) *yamlBackend {
	b := &yamlBackend{path: path, values: map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
		}
		return b
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
		return b
	}
	for k, v := range raw {
		if v != nil {
			b.values[k] = fmt.Sprint(v)
		}
	}
	return b
}

func (b *yamlBackend) get(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	return v, ok
}

func (b *yamlBackend) GetString(key string) (string, bool, error) {
	v, ok := b.get(key)
	return v, ok, nil
}

func (b *yamlBackend) GetInt(key string) (int, bool, error) {
	raw, ok := b.get(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return n, true, nil
}

// GetDuration accepts a duration string, or a bare number of milliseconds.
func (b *yamlBackend) GetDuration(key string) (time.Duration, bool, error) {
	raw, ok := b.get(key)
	if !ok {
		return 0, false, nil
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, true, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %q is not a duration", key, raw)
	}
	return d, true, nil
}

func (b *yamlBackend) SetString(key, val string) error {
	return b.update(func(m map[string]string) { m[key] = val })
}

func (b *yamlBackend) SetInt(key string, val int) error {
	return b.update(func(m map[string]string) { m[key] = strconv.Itoa(val) })
}

func (b *yamlBackend) SetDuration(key string, val time.Duration) error {
	return b.update(func(m map[string]string) { m[key] = val.String() })
}

func (b *yamlBackend) Delete(key string) error {
	return b.update(func(m map[string]string) { delete(m, key) })
}

// update applies fn and rewrites the file through a temp file and rename.
func (b *yamlBackend) update(fn func(map[string]string)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.values)

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(b.values)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}
