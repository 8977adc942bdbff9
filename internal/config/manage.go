package config

import (
	"fmt"
	"strconv"
	"time"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll lists every key with its effective value. Secrets are reported as
// "(set)" or "(unset)", never by value.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		info := KeyInfo{Key: s.key, EnvVar: s.env, Secret: s.secret}
		switch v := s.extract(cfg); {
		case !s.secret:
			info.Value = fmt.Sprint(v)
		case v != "":
			info.Value = "(set)"
		default:
			info.Value = "(unset)"
		}
		result = append(result, info)
	}
	return result
}

// ValidKeys returns the config key names in display order.
func ValidKeys() []string {
	keys := make([]string, len(specs))
	for i, s := range specs {
		keys[i] = s.key
	}
	return keys
}

func findSpec(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key == key {
			return s, nil
		}
	}
	return keySpec{}, fmt.Errorf("unknown config key: %q", key)
}

// SetKey validates value against the key's type and stores it. Secrets go to
// the platform keychain, everything else to the config backend.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), NewKeychain(), key, value)
}

func setKeyWith(b ConfigBackend, kc Keychain, key, value string) error {
	s, err := findSpec(key)
	if err != nil {
		return err
	}
	if s.secret {
		return kc.Set(keychainService, secretAccount(key), value)
	}

	switch s.typ {
	case kInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return b.SetInt(key, n)
	case kDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %w", key, err)
		}
		return b.SetDuration(key, d)
	default:
		return b.SetString(key, value)
	}
}

// UnsetKey removes a stored key so its default applies again.
func UnsetKey(key string) error {
	return unsetKeyWith(newPlatformBackend(), NewKeychain(), key)
}

func unsetKeyWith(b ConfigBackend, kc Keychain, key string) error {
	s, err := findSpec(key)
	if err != nil {
		return err
	}
	if s.secret {
		return kc.Delete(keychainService, secretAccount(key))
	}
	return b.Delete(key)
}
