package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingRequired is wrapped by RequireJira when a required key is unset.
var ErrMissingRequired = errors.New("missing required config")

const keychainService = "relfield"

type Config struct {
	Server     ServerConfig
	Resolver   ResolverConfig
	Jira       JiraConfig
	Field      FieldConfig
	Search     SearchConfig
	Validation ValidationConfig
	Storage    StorageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type ResolverConfig struct {
	// URL of the relfield server that serves resolver functions.
	URL string
}

type JiraConfig struct {
	BaseURL  string
	Email    string
	APIToken string
}

type FieldConfig struct {
	ID        string
	ContextID string
}

type SearchConfig struct {
	PageSize int
	Debounce time.Duration
}

type ValidationConfig struct {
	Debounce time.Duration
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Resolver: ResolverConfig{
			URL: "http://127.0.0.1:4100",
		},
		Search: SearchConfig{
			PageSize: 50,
			Debounce: 500 * time.Millisecond,
		},
		Validation: ValidationConfig{
			Debounce: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.relfield.app) and secrets
// live in the macOS Keychain (service: relfield).
// Elsewhere the backend is a YAML file at $XDG_CONFIG_HOME/relfield/config.yaml
// and secrets live in $XDG_DATA_HOME/relfield/secrets.json.
//
// Environment variables (RELFIELD_*) override backend values on all platforms.
// Load does not require the Jira credentials; see RequireJira.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets not given in the environment come from the keychain.
	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, secretAccount(s.key)); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

// RequireJira reports which of the settings needed to talk to Jira are missing.
func (c Config) RequireJira() error {
	var missing []string
	if c.Jira.BaseURL == "" {
		missing = append(missing, "jira.base_url (RELFIELD_JIRA_BASE_URL)")
	}
	if c.Jira.APIToken == "" {
		missing = append(missing, "jira.api_token (RELFIELD_JIRA_API_TOKEN"+secretHint()+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	return nil
}

// RequireField reports whether a custom field id is configured.
func (c Config) RequireField() error {
	if c.Field.ID == "" {
		return fmt.Errorf("%w: field.id (RELFIELD_FIELD_ID)", ErrMissingRequired)
	}
	return nil
}

func secretAccount(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}
