package fieldconfig

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Resolver fetches a field's configuration with elevated privileges.
// Implemented by resolver.Resolver and resolver.Client.
type Resolver interface {
	GetFieldConfiguration(ctx context.Context, fieldID string) (Result, error)
}

// Store holds field configurations loaded through a Resolver. A configuration
// is fetched at most once per field; concurrent loads share one fetch.
type Store struct {
	resolver Resolver
	group    singleflight.Group
	logger   *slog.Logger

	mu      sync.RWMutex
	configs map[string]Configuration
}

// NewStore creates a Store backed by the given resolver.
func NewStore(r Resolver) *Store {
	return &Store{
		resolver: r,
		logger:   slog.Default(),
		configs:  make(map[string]Configuration),
	}
}

// Load returns the configuration for fieldID, fetching it on first use.
// Returns an error wrapping ErrNotConfigured when the resolver fails or the
// stored configuration has no query; failures are not cached.
func (s *Store) Load(ctx context.Context, fieldID string) (Configuration, error) {
	if cfg, ok := s.Get(fieldID); ok {
		return cfg, nil
	}

	v, err, _ := s.group.Do(fieldID, func() (any, error) {
		if cfg, ok := s.Get(fieldID); ok {
			return cfg, nil
		}

		res, err := s.resolver.GetFieldConfiguration(ctx, fieldID)
		if err != nil {
			s.logger.Error("fetching field configuration", "field_id", fieldID, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
		}
		if !res.Success {
			s.logger.Error("resolver could not fetch configuration", "field_id", fieldID, "error", res.Error)
			return nil, fmt.Errorf("%w: %s", ErrNotConfigured, res.Error)
		}

		var cfg Configuration
		if res.Configuration != nil {
			cfg = *res.Configuration
		}
		if !cfg.HasQuery() {
			return nil, ErrNotConfigured
		}

		s.mu.Lock()
		s.configs[fieldID] = cfg
		s.mu.Unlock()

		s.logger.Debug("field configuration loaded", "field_id", fieldID)
		return cfg, nil
	})
	if err != nil {
		return Configuration{}, err
	}
	return v.(Configuration), nil
}

// Get returns the cached configuration for fieldID, if loaded.
func (s *Store) Get(fieldID string) (Configuration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[fieldID]
	return cfg, ok
}
