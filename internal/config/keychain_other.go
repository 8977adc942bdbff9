//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// The secrets file is a flat JSON object keyed by "service/account", kept
// beside the database with mode 0600.
func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

func secretHint() string {
	return " or " + secretsFilePath()
}

func secretKey(service, account string) string {
	return service + "/" + account
}

// readSecrets returns an empty map when the file does not exist yet.
func readSecrets() (map[string]string, error) {
	secrets := map[string]string{}
	data, err := os.ReadFile(secretsFilePath())
	if errors.Is(err, os.ErrNotExist) {
		return secrets, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", secretsFilePath(), err)
	}
	return secrets, nil
}

func writeSecrets(secrets map[string]string) error {
	p := secretsFilePath()
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, out, 0o600)
}

func keychainGet(service, account string) ([]byte, error) {
	secrets, err := readSecrets()
	if err != nil {
		return nil, err
	}
	v, ok := secrets[secretKey(service, account)]
	if !ok {
		return nil, fmt.Errorf("no secret stored for %s", secretKey(service, account))
	}
	return []byte(v), nil
}

func keychainSet(service, account, value string) error {
	secrets, err := readSecrets()
	if err != nil {
		return err
	}
	secrets[secretKey(service, account)] = value
	return writeSecrets(secrets)
}

func keychainDelete(service, account string) error {
	secrets, err := readSecrets()
	if err != nil {
		return err
	}
	if _, ok := secrets[secretKey(service, account)]; !ok {
		return nil
	}
	delete(secrets, secretKey(service, account))
	return writeSecrets(secrets)
}
