package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const resolverTokenAccount = "resolver_token"

// Keychain stores secrets outside the config backend.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

// NewKeychain returns the platform secret store: the macOS Keychain on
// darwin, a 0600 JSON file elsewhere.
func NewKeychain() Keychain {
	return platformKeychain{}
}

type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

func (platformKeychain) Delete(service, account string) error {
	return keychainDelete(service, account)
}

// GetResolverToken returns the bearer token protecting the resolver API,
// generating and storing one on first use.
func GetResolverToken(kc Keychain) (string, error) {
	if token, err := kc.Get(keychainService, resolverTokenAccount); err == nil && token != "" {
		return token, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating resolver token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := kc.Set(keychainService, resolverTokenAccount, token); err != nil {
		return "", fmt.Errorf("storing resolver token: %w", err)
	}
	return token, nil
}
